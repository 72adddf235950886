// Package scoring ranks doctors for a case.
//
// The score of a doctor is
//
//	base  = 0.5*(experience_years/20) + 0.3*patient_rating
//	      + 0.2*success_rate            (when known)
//	      + weight*estimate             (when a predictor answers)
//	score = base * 1.2 (tag match) * (1 - load/max_daily_cases)
//
// Doctors without a daily limit, unavailable or already full are never
// scored.
package scoring

import (
	"sort"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/prediction"
)

const (
	experienceWeight = 0.5
	experienceScale  = 20.0
	ratingWeight     = 0.3
	successWeight    = 0.2
	// TagBonus multiplies the score when a specialization tag matches a symptom.
	TagBonus = 1.2
)

// Scorer computes doctor scores. The zero value scores without predictor.
type Scorer struct {
	Predictor prediction.Predictor
	// Weight applied to the predictor estimate before the multipliers.
	Weight float64
}

// Ranked is a scored candidate.
type Ranked struct {
	Doctor model.Doctor
	Score  float64
}

// Score returns the match score of d for patient p. It has no side effects
// and returns 0 for doctors that are not eligible.
func (s Scorer) Score(d model.Doctor, p model.Patient) float64 {
	if !d.Eligible() {
		return 0
	}
	base := experienceWeight*(float64(d.ExperienceYears)/experienceScale) + ratingWeight*d.PatientRating
	if d.SuccessRate != nil {
		base += successWeight * *d.SuccessRate
	}
	if s.Predictor != nil && s.Weight != 0 {
		if est, err := s.Predictor.Predict(prediction.ExtractFeatures(p, d)); err == nil {
			base += s.Weight * est
		}
	}
	if prediction.TagMatch(p, d) {
		base *= TagBonus
	}
	return base * (1 - d.LoadRatio())
}

// Rank scores every eligible doctor and sorts them best first. Equal scores
// are ordered by lowest workload, then by doctor id.
func (s Scorer) Rank(doctors []model.Doctor, p model.Patient) []Ranked {
	out := make([]Ranked, 0, len(doctors))
	for _, d := range doctors {
		if !d.Eligible() {
			continue
		}
		out = append(out, Ranked{Doctor: d, Score: s.Score(d, p)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Doctor.CurrentWorkload != b.Doctor.CurrentWorkload {
			return a.Doctor.CurrentWorkload < b.Doctor.CurrentWorkload
		}
		return a.Doctor.ID < b.Doctor.ID
	})
	return out
}

// SelectBest returns the top ranked doctor.
func (s Scorer) SelectBest(doctors []model.Doctor, p model.Patient) (Ranked, bool) {
	r := s.Rank(doctors, p)
	if len(r) == 0 {
		return Ranked{}, false
	}
	return r[0], true
}
