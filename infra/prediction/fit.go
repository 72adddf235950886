package prediction

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	coreprediction "github.com/kilianp07/medqueue/core/prediction"
)

// Sample is one labelled observation.
type Sample struct {
	Features coreprediction.Features `json:"features"`
	Target   float64                 `json:"target"`
}

// Fit trains an identity-link model with ridge regularisation on
// standardized features. The bias is the target mean and is not penalised.
func Fit(samples []Sample, ridge float64) (*LinearModel, error) {
	n := coreprediction.NumFeatures
	if len(samples) < 2 {
		return nil, errors.New("prediction: need at least two samples")
	}
	if ridge < 0 {
		return nil, errors.New("prediction: ridge must not be negative")
	}
	for i, s := range samples {
		if len(s.Features) != n {
			return nil, fmt.Errorf("prediction: sample %d has %d features, want %d", i, len(s.Features), n)
		}
	}

	rows := len(samples)
	raw := mat.NewDense(rows, n, nil)
	y := make([]float64, rows)
	for i, s := range samples {
		raw.SetRow(i, s.Features)
		y[i] = s.Target
	}

	means := make([]float64, n)
	scales := make([]float64, n)
	col := make([]float64, rows)
	for j := 0; j < n; j++ {
		mat.Col(col, j, raw)
		mean, std := stat.MeanStdDev(col, nil)
		means[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		scales[j] = std
	}

	x := mat.NewDense(rows, n, nil)
	x.Apply(func(i, j int, v float64) float64 {
		return (v - means[j]) / scales[j]
	}, raw)
	bias := stat.Mean(y, nil)
	centered := make([]float64, rows)
	for i, v := range y {
		centered[i] = v - bias
	}

	// (XᵀX + λI) w = Xᵀy
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < n; j++ {
		xtx.Set(j, j, xtx.At(j, j)+ridge)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(rows, centered))

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("prediction: solve: %w", err)
	}

	m := &LinearModel{
		Version:  "fit",
		Features: append([]string(nil), coreprediction.FeatureNames...),
		Weights:  make([]float64, n),
		Bias:     bias,
		Means:    means,
		Scales:   scales,
		Link:     LinkIdentity,
	}
	for j := 0; j < n; j++ {
		m.Weights[j] = w.AtVec(j)
	}
	if err := m.prepare(); err != nil {
		return nil, err
	}
	return m, nil
}
