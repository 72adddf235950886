package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/core/events"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

func TestNextReset(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	tests := []struct {
		name string
		now  time.Time
		hour int
		loc  *time.Location
		want time.Time
	}{
		{"later today", time.Date(2025, 3, 1, 1, 30, 0, 0, time.UTC), 3, time.UTC, time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC), 3, time.UTC, time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC)},
		{"exact boundary moves on", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 0, time.UTC, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC), 0, time.UTC, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"local midnight", time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC), 0, paris, time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextReset(tt.now, tt.hour, tt.loc)
			if !got.Equal(tt.want) {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

type fakeResetter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeResetter) ResetAll(_ context.Context, h string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, h)
	if f.fail[h] {
		return 0, errors.New("db down")
	}
	return 2, nil
}

func (f *fakeResetter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestResetNowScopes(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	r := &fakeResetter{fail: map[string]bool{"h2": true}}
	s, err := New(Config{Hospitals: []string{"h1", "h2", "h3"}}, r, bus, nil, nil)
	require.NoError(t, err)

	n, err := s.ResetNow(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"h1", "h2", "h3"}, r.calls)

	ev := (<-sub).(events.WorkloadReset)
	assert.Equal(t, "h1", ev.HospitalID)
	assert.Equal(t, 2, ev.Doctors)
}

func TestResetNowAllHospitals(t *testing.T) {
	r := &fakeResetter{}
	s, err := New(Config{}, r, nil, nil, nil)
	require.NoError(t, err)
	_, err = s.ResetNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, r.calls)
}

func TestRunFiresAtBoundary(t *testing.T) {
	r := &fakeResetter{}
	s, err := New(Config{ResetHour: 2}, r, nil, nil, nil)
	require.NoError(t, err)
	s.Now = func() time.Time { return time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC) }
	fire := make(chan time.Time)
	s.After = func(time.Duration) <-chan time.Time { return fire }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	fire <- time.Time{}
	fire <- time.Time{}
	require.Eventually(t, func() bool { return r.count() == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{ResetHour: 24}, &fakeResetter{}, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Timezone: "Mars/Olympus"}, &fakeResetter{}, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(bytes.NewBufferString("reset_hour: 4\nhospitals: [h1]\n"), "yaml")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ResetHour)
	assert.Equal(t, []string{"h1"}, cfg.Hospitals)

	path := filepath.Join(t.TempDir(), "reset.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"reset_hour": 1, "timezone": "UTC"}`), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ResetHour)

	_, err = DecodeConfig(bytes.NewBufferString("reset_hour = 1"), "toml")
	assert.Error(t, err)
}
