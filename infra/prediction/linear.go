// Package prediction provides a linear predictor backed by gonum. Models
// are plain JSON files so they can be trained offline and shipped with the
// service configuration.
package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	coreprediction "github.com/kilianp07/medqueue/core/prediction"
)

// Link functions applied to the linear response.
const (
	LinkIdentity = "identity"
	LinkLogistic = "logistic"
)

// LinearModel is a standardized linear model over the core feature vector.
type LinearModel struct {
	Version  string    `json:"version"`
	Features []string  `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Means    []float64 `json:"means,omitempty"`
	Scales   []float64 `json:"scales,omitempty"`
	Link     string    `json:"link,omitempty"`

	w *mat.VecDense
}

// Validate checks dimensions against the core feature layout.
func (m *LinearModel) Validate() error {
	n := coreprediction.NumFeatures
	if len(m.Weights) != n {
		return fmt.Errorf("prediction: %d weights, want %d", len(m.Weights), n)
	}
	if len(m.Features) != 0 {
		if len(m.Features) != n {
			return fmt.Errorf("prediction: %d feature names, want %d", len(m.Features), n)
		}
		for i, name := range m.Features {
			if name != coreprediction.FeatureNames[i] {
				return fmt.Errorf("prediction: feature %d is %q, want %q", i, name, coreprediction.FeatureNames[i])
			}
		}
	}
	if len(m.Means) != 0 && len(m.Means) != n {
		return fmt.Errorf("prediction: %d means, want %d", len(m.Means), n)
	}
	if len(m.Scales) != 0 && len(m.Scales) != n {
		return fmt.Errorf("prediction: %d scales, want %d", len(m.Scales), n)
	}
	switch m.Link {
	case "", LinkIdentity, LinkLogistic:
	default:
		return fmt.Errorf("prediction: unknown link %q", m.Link)
	}
	return nil
}

func (m *LinearModel) prepare() error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.w = mat.NewVecDense(len(m.Weights), append([]float64(nil), m.Weights...))
	return nil
}

// Predict standardizes f and returns the linear response passed through the
// link function.
func (m *LinearModel) Predict(f coreprediction.Features) (float64, error) {
	if m.w == nil {
		return 0, coreprediction.ErrNoModel
	}
	if len(f) != m.w.Len() {
		return 0, fmt.Errorf("prediction: %d features, want %d", len(f), m.w.Len())
	}
	x := mat.NewVecDense(len(f), m.standardize(f))
	y := mat.Dot(m.w, x) + m.Bias
	if m.Link == LinkLogistic {
		y = 1 / (1 + math.Exp(-y))
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, errors.New("prediction: non-finite estimate")
	}
	return y, nil
}

func (m *LinearModel) standardize(f coreprediction.Features) []float64 {
	out := make([]float64, len(f))
	for i, v := range f {
		if len(m.Means) > 0 {
			v -= m.Means[i]
		}
		if len(m.Scales) > 0 && m.Scales[i] != 0 {
			v /= m.Scales[i]
		}
		out[i] = v
	}
	return out
}

// Load reads a model from a JSON file.
func Load(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prediction: read model: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("prediction: decode model %s: %w", path, err)
	}
	if err := m.prepare(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the model as indented JSON.
func (m *LinearModel) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(m.Features) == 0 {
		m.Features = append([]string(nil), coreprediction.FeatureNames...)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
