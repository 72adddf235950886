package prediction

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreprediction "github.com/kilianp07/medqueue/core/prediction"
)

func unitModel() *LinearModel {
	w := make([]float64, coreprediction.NumFeatures)
	w[1] = 2   // urgency_rank
	w[8] = 0.5 // tag_match
	return &LinearModel{Version: "t1", Weights: w, Bias: 1}
}

func writeModel(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadAndPredict(t *testing.T) {
	path := writeModel(t, unitModel())
	m, err := Load(path)
	require.NoError(t, err)

	f := make(coreprediction.Features, coreprediction.NumFeatures)
	f[1] = 3
	f[8] = 1
	got, err := m.Predict(f)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, got, 1e-9)

	_, err = m.Predict(f[:3])
	assert.Error(t, err)
}

func TestPredictStandardizedLogistic(t *testing.T) {
	m := unitModel()
	m.Bias = 0
	m.Means = make([]float64, coreprediction.NumFeatures)
	m.Scales = make([]float64, coreprediction.NumFeatures)
	for i := range m.Scales {
		m.Scales[i] = 1
	}
	m.Means[1] = 3
	m.Link = LinkLogistic
	require.NoError(t, m.prepare())

	f := make(coreprediction.Features, coreprediction.NumFeatures)
	f[1] = 3
	got, err := m.Predict(f)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestLoadRejects(t *testing.T) {
	checks := []struct {
		name  string
		model any
	}{
		{"short weights", LinearModel{Weights: []float64{1, 2}}},
		{"wrong feature order", func() LinearModel {
			m := *unitModel()
			m.Features = append([]string(nil), coreprediction.FeatureNames...)
			m.Features[0], m.Features[1] = m.Features[1], m.Features[0]
			return m
		}()},
		{"bad link", func() LinearModel { m := *unitModel(); m.Link = "probit"; return m }()},
		{"bad means", func() LinearModel { m := *unitModel(); m.Means = []float64{1}; return m }()},
		{"not json", "weights"},
	}
	for _, c := range checks {
		if _, err := Load(writeModel(t, c.model)); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("missing file: expected error")
	}
}

func TestUnpreparedModel(t *testing.T) {
	var m LinearModel
	_, err := m.Predict(make(coreprediction.Features, coreprediction.NumFeatures))
	assert.ErrorIs(t, err, coreprediction.ErrNoModel)
}

func TestFitRecoversLinearRelation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := coreprediction.NumFeatures
	var samples []Sample
	for i := 0; i < 200; i++ {
		f := make(coreprediction.Features, n)
		for j := range f {
			f[j] = rng.Float64() * 10
		}
		samples = append(samples, Sample{Features: f, Target: 4 + 2*f[1] - 0.5*f[4] + f[8]})
	}
	m, err := Fit(samples, 1e-9)
	require.NoError(t, err)

	probe := make(coreprediction.Features, n)
	probe[1], probe[4], probe[8] = 3, 6, 1
	got, err := m.Predict(probe)
	require.NoError(t, err)
	assert.InDelta(t, 4+6-3+1, got, 1e-3)

	path := filepath.Join(t.TempDir(), "fit.json")
	require.NoError(t, m.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	again, err := loaded.Predict(probe)
	require.NoError(t, err)
	assert.InDelta(t, got, again, 1e-9)
	assert.False(t, math.IsNaN(again))
}

func TestFitRejects(t *testing.T) {
	_, err := Fit(nil, 0)
	assert.Error(t, err)
	_, err = Fit([]Sample{{Features: coreprediction.Features{1}}, {Features: coreprediction.Features{2}}}, 0)
	assert.Error(t, err)
	ok := make(coreprediction.Features, coreprediction.NumFeatures)
	_, err = Fit([]Sample{{Features: ok}, {Features: ok}}, -1)
	assert.Error(t, err)
}
