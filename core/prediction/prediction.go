package prediction

import (
	"errors"
	"strings"

	"github.com/kilianp07/medqueue/core/model"
)

// ErrNoModel is returned by predictors without a loaded model.
var ErrNoModel = errors.New("prediction: no model loaded")

// FeatureNames lists the vector layout produced by ExtractFeatures.
var FeatureNames = []string{
	"patient_age",
	"urgency_rank",
	"symptom_count",
	"history_count",
	"experience_years",
	"patient_rating",
	"success_rate",
	"load_ratio",
	"tag_match",
}

// NumFeatures is the length of a feature vector.
var NumFeatures = len(FeatureNames)

// Features is a dense feature vector in FeatureNames order.
type Features []float64

// Predictor returns an estimate for one case and doctor pair.
type Predictor interface {
	Predict(f Features) (float64, error)
}

// ExtractFeatures builds the vector fed to a Predictor.
func ExtractFeatures(p model.Patient, d model.Doctor) Features {
	sr := 0.0
	if d.SuccessRate != nil {
		sr = *d.SuccessRate
	}
	return Features{
		float64(p.Age),
		float64(p.Urgency.Rank()),
		float64(len(p.Symptoms)),
		float64(len(p.MedicalHistory)),
		float64(d.ExperienceYears),
		d.PatientRating,
		sr,
		d.LoadRatio(),
		boolFeature(TagMatch(p, d)),
	}
}

// TagMatch reports whether one of the doctor's specialization tags equals one
// of the patient's symptoms, ignoring case.
func TagMatch(p model.Patient, d model.Doctor) bool {
	for _, tag := range d.SpecializationTags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if p.HasSymptom(tag) {
			return true
		}
	}
	return false
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Nop never produces an estimate.
type Nop struct{}

func (Nop) Predict(Features) (float64, error) { return 0, ErrNoModel }

// Static returns the same estimate for every input. It is useful for tests
// and for pinning a constant bias.
type Static float64

func (s Static) Predict(Features) (float64, error) { return float64(s), nil }
