package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreprediction "github.com/kilianp07/medqueue/core/prediction"
	"github.com/kilianp07/medqueue/infra/prediction"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const fixture = `hospitals:
  - hospital_id: h1
    name: General
    sla_rules:
      emergency: 15
      routine: 240
doctors:
  - doctor_id: d1
    name: Dr One
    hospital_id: h1
    availability: true
    max_daily_cases: 5
    specialization_tags: [cardiology]
  - doctor_id: d2
    name: Dr Two
    hospital_id: h1
    availability: true
    max_daily_cases: 3
`

func setup(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = writeFile(t, dir, "config.yaml", `store:
  backend: sql
  migrate: true
database:
  driver: sqlite
  dsn: `+filepath.Join(dir, "medqueue.db")+`
housekeeping:
  disabled: true
logging:
  level: error
`)
	return dir, cfgPath
}

//nolint:gocyclo
func TestCaseCommands(t *testing.T) {
	dir, cfg := setup(t)
	fx := writeFile(t, dir, "fixture.yaml", fixture)

	out, err := execute(t, "migrate", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")

	out, err = execute(t, "seed", "-c", cfg, "-f", fx)
	require.NoError(t, err)
	assert.Equal(t, "3 created, 0 already present\n", out)
	out, err = execute(t, "seed", "-c", cfg, "-f", fx)
	require.NoError(t, err)
	assert.Equal(t, "0 created, 3 already present\n", out)

	out, err = execute(t, "admit", "-c", cfg, "--hospital", "h1", "--patient", "p1",
		"--urgency", "emergency", "--age", "54", "--symptom", "chest pain", "--triage", "0.8")
	require.NoError(t, err)
	caseID := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(caseID, "case_"), caseID)

	out, err = execute(t, "cases", "ls", "-c", cfg, "--hospital", "h1")
	require.NoError(t, err)
	assert.Contains(t, out, caseID)
	assert.Contains(t, out, "emergency\tpending")

	exported := filepath.Join(dir, "cases.json")
	_, err = execute(t, "cases", "export", "-c", cfg, "--hospital", "h1", "--format", "json", "-o", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	var cases []map[string]any
	require.NoError(t, json.Unmarshal(data, &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, caseID, cases[0]["case_id"])

	_, err = execute(t, "cases", "export", "-c", cfg, "--hospital", "h1", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	out, err = execute(t, "reprioritize", "-c", cfg, "--hospital", "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1: 1 pending cases\n", out)

	out, err = execute(t, "reset-workload", "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "2 doctors reset\n", out)

	out, err = execute(t, "outcome", "-c", cfg, "--case", caseID, "--status", "cancelled")
	require.NoError(t, err)
	assert.Equal(t, caseID+" cancelled met_sla=false\n", out)

	out, err = execute(t, "cases", "ls", "-c", cfg, "--hospital", "h1", "--status", "pending")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAdmitRejectsBadUrgency(t *testing.T) {
	_, cfg := setup(t)
	_, err := execute(t, "admit", "-c", cfg, "--hospital", "h1", "--patient", "p1", "--urgency", "soon")
	assert.ErrorContains(t, err, "unknown urgency")
}

func TestModelFit(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(7))
	samples := make([]prediction.Sample, 60)
	for i := range samples {
		f := make(coreprediction.Features, coreprediction.NumFeatures)
		for j := range f {
			f[j] = rng.Float64() * 10
		}
		samples[i] = prediction.Sample{Features: f, Target: 3*f[0] + 1}
	}
	data, err := json.Marshal(samples)
	require.NoError(t, err)
	samplesPath := writeFile(t, dir, "samples.json", string(data))
	modelPath := filepath.Join(dir, "model.json")

	out, err := execute(t, "model", "fit", "--samples", samplesPath, "-o", modelPath, "--ridge", "0", "--version", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "fitted on 60 samples")

	m, err := prediction.Load(modelPath)
	require.NoError(t, err)
	assert.Equal(t, "t1", m.Version)
	got, err := m.Predict(samples[0].Features)
	require.NoError(t, err)
	assert.InDelta(t, samples[0].Target, got, 1e-6)
}

func TestSeedRequiresFile(t *testing.T) {
	_, cfg := setup(t)
	_, err := execute(t, "seed", "-c", cfg)
	assert.ErrorContains(t, err, "file")
}
