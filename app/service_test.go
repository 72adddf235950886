package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/config"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/internal/testutil"
)

func loadConfig(t *testing.T, data string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

const baseConfig = `dispatch:
  workers: 2
  idle_interval: 5ms
  error_backoff: 5ms
  max_backoff: 20ms
housekeeping:
  disabled: true
logging:
  level: error
`

func seed(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Engine.CreateHospital(ctx, model.Hospital{
		ID:       "h1",
		Name:     "General",
		SLARules: map[model.Urgency]int{model.UrgencyEmergency: 15},
	})
	require.NoError(t, err)
	_, err = svc.Engine.RegisterDoctor(ctx, model.Doctor{
		ID:            "d1",
		Name:          "Dr One",
		HospitalID:    "h1",
		Available:     true,
		MaxDailyCases: 5,
	})
	require.NoError(t, err)
}

func runService(t *testing.T, svc *Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
		}
	}
}

func waitAssigned(t *testing.T, svc *Service, caseID string) model.Case {
	t.Helper()
	var c model.Case
	require.Eventually(t, func() bool {
		var err error
		c, err = svc.Engine.GetCase(context.Background(), caseID)
		return err == nil && c.Status == model.StatusAssigned
	}, 5*time.Second, 10*time.Millisecond)
	return c
}

func TestServiceMemoryBackends(t *testing.T) {
	cfg := loadConfig(t, baseConfig)

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()
	seed(t, svc)

	stop := runService(t, svc)
	id, err := svc.Engine.Admit(context.Background(), "h1", model.Patient{ID: "p1", Age: 40}, model.UrgencyEmergency)
	require.NoError(t, err)

	c := waitAssigned(t, svc, id)
	assert.Equal(t, "d1", c.AssignedDoctorID)
	stop()
}

func TestServiceSQLAndRedisRecoverIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	dsn := filepath.Join(t.TempDir(), "medqueue.db")
	cfg := loadConfig(t, baseConfig+`store:
  backend: sql
  migrate: true
queue:
  backend: redis
database:
  driver: sqlite
  dsn: `+dsn+`
redis:
  addr: `+mr.Addr()+"\n")

	first, err := New(context.Background(), cfg)
	require.NoError(t, err)
	_, err = first.Engine.CreateHospital(context.Background(), model.Hospital{ID: "h1", Name: "General"})
	require.NoError(t, err)
	id, err := first.Engine.Admit(context.Background(), "h1", model.Patient{ID: "p1"}, model.UrgencyRoutine)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// The pending case survives in SQL while the index is lost.
	mr.FlushAll()

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()
	_, err = svc.Engine.RegisterDoctor(context.Background(), model.Doctor{
		ID: "d1", HospitalID: "h1", Available: true, MaxDailyCases: 3,
	})
	require.NoError(t, err)

	stop := runService(t, svc)
	c := waitAssigned(t, svc, id)
	stop()
	assert.Equal(t, "d1", c.AssignedDoctorID)

	d, err := svc.Engine.GetDoctor(context.Background(), "h1", "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.CurrentWorkload)
}

func TestRunSkipsHospitalLockedByPeer(t *testing.T) {
	mr := miniredis.RunT(t)
	conf := strings.Replace(baseConfig, "max_backoff: 20ms\n", "max_backoff: 20ms\n  rebuild_lock_wait: 20ms\n", 1)
	cfg := loadConfig(t, conf+`queue:
  backend: redis
redis:
  addr: `+mr.Addr()+"\n")
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()
	seed(t, svc)
	id, err := svc.Engine.Admit(context.Background(), "h1", model.Patient{ID: "p1"}, model.UrgencyEmergency)
	require.NoError(t, err)

	// Another dispatcher holds the h1 queue lock for the whole run.
	key := queue.TenantLockKey("h1")
	require.NoError(t, mr.Set(key, "peer"))
	mr.SetTTL(key, time.Minute)
	require.NoError(t, svc.Reconcile(context.Background()))

	stop := runService(t, svc)
	c := waitAssigned(t, svc, id)
	assert.Equal(t, "d1", c.AssignedDoctorID)
	assert.True(t, mr.Exists(key))
	stop()
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := loadConfig(t, baseConfig+`queue:
  backend: redis
redis:
  addr: 127.0.0.1:1
  dial_timeout: 50ms
`)
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "redis")
}

func TestNewFailsOnMissingModel(t *testing.T) {
	cfg := loadConfig(t, baseConfig)
	cfg.Prediction = config.PredictionConfig{Type: config.PredictionLinear, ModelPath: filepath.Join(t.TempDir(), "none.json"), Weight: 0.1}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServiceServesMetricsAndCases(t *testing.T) {
	addr := freeAddr(t)
	cfg := loadConfig(t, baseConfig+`metrics:
  prometheus_addr: "`+addr+`"
  sinks:
    - type: prometheus
api:
  enabled: true
  token: secret
`)
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()
	seed(t, svc)

	stop := runService(t, svc)
	defer stop()
	id, err := svc.Engine.Admit(context.Background(), "h1", model.Patient{ID: "p1"}, model.UrgencyEmergency)
	require.NoError(t, err)
	waitAssigned(t, svc, id)

	get := func(path, token string) (int, string) {
		req, err := http.NewRequest(http.MethodGet, "http://"+addr+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return 0, err.Error()
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	mctx, cancel := context.WithTimeout(context.Background(), testutil.MetricTimeout)
	defer cancel()
	require.NoError(t, testutil.WaitForMetric(mctx, "http://"+addr+"/metrics", `medqueue_assignments_total{hospital_id="h1"}`))

	code, _ := get("/api/cases?hospital_id=h1", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, body := get("/api/cases?hospital_id=h1&status=assigned", "secret")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, id), body)
}
