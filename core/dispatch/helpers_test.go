package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/monitoring"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/store"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

var t0 = time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyIndex injects failures into a MemoryIndex.
type flakyIndex struct {
	*queue.MemoryIndex
	mu         sync.Mutex
	removeErr  error
	insertErr  error
	tenantsErr error
	peekErr    error
}

func (f *flakyIndex) set(fn func(f *flakyIndex)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *flakyIndex) errFor(which *error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *which
}

func (f *flakyIndex) Remove(ctx context.Context, h, c string) error {
	if err := f.errFor(&f.removeErr); err != nil {
		return err
	}
	return f.MemoryIndex.Remove(ctx, h, c)
}

func (f *flakyIndex) Insert(ctx context.Context, h, c string, d time.Time) error {
	if err := f.errFor(&f.insertErr); err != nil {
		return err
	}
	return f.MemoryIndex.Insert(ctx, h, c, d)
}

func (f *flakyIndex) Tenants(ctx context.Context) ([]string, error) {
	if err := f.errFor(&f.tenantsErr); err != nil {
		return nil, err
	}
	return f.MemoryIndex.Tenants(ctx)
}

func (f *flakyIndex) PeekEarliest(ctx context.Context, h string) (queue.Entry, bool, error) {
	if err := f.errFor(&f.peekErr); err != nil {
		return queue.Entry{}, false, err
	}
	return f.MemoryIndex.PeekEarliest(ctx, h)
}

type fixture struct {
	engine  *Engine
	store   *store.MemoryStore
	index   *flakyIndex
	locker  *queue.MemoryLocker
	clock   *clock
	monitor *monitoring.Recorder
	bus     *eventbus.Bus
	sink    *countingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemoryStore(),
		index:   &flakyIndex{MemoryIndex: queue.NewMemoryIndex()},
		locker:  queue.NewMemoryLocker(),
		clock:   &clock{now: t0},
		monitor: &monitoring.Recorder{},
		bus:     eventbus.New(),
		sink:    &countingSink{},
	}
	eng, err := NewEngine(Deps{
		Store:   f.store,
		Index:   f.index,
		Locker:  f.locker,
		Sink:    f.sink,
		Bus:     f.bus,
		Monitor: f.monitor,
		Now:     f.clock.Now,
	}, Config{Workers: 2, IdleInterval: 5 * time.Millisecond, ErrorBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond, CaseLockWait: 20 * time.Millisecond, RebuildLockWait: 20 * time.Millisecond})
	require.NoError(t, err)
	f.engine = eng
	t.Cleanup(f.bus.Close)
	return f
}

func (f *fixture) hospital(t *testing.T, id string, rules map[model.Urgency]int) {
	t.Helper()
	_, err := f.engine.CreateHospital(context.Background(), model.Hospital{ID: id, Name: id, SLARules: rules})
	require.NoError(t, err)
}

func (f *fixture) doctor(t *testing.T, d model.Doctor) {
	t.Helper()
	d.Available = true
	_, err := f.engine.RegisterDoctor(context.Background(), d)
	require.NoError(t, err)
}

func (f *fixture) admit(t *testing.T, hospitalID, patientID string, u model.Urgency, symptoms ...string) string {
	t.Helper()
	id, err := f.engine.Admit(context.Background(), hospitalID, model.Patient{ID: patientID, Age: 50, Symptoms: symptoms}, u)
	require.NoError(t, err)
	return id
}

// checkConsistency asserts that a case is queued if and only if it is pending.
func (f *fixture) checkConsistency(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	cases, err := f.store.ListCases(ctx, store.CaseFilter{})
	require.NoError(t, err)
	for _, c := range cases {
		_, queued, err := f.index.Lookup(ctx, c.HospitalID, c.ID)
		require.NoError(t, err)
		if queued != (c.Status == model.StatusPending) {
			t.Fatalf("case %s status %s queued=%v", c.ID, c.Status, queued)
		}
		require.NoError(t, c.Validate())
	}
}

type countingSink struct {
	mu       sync.Mutex
	outcomes map[string]int
	queues   []string
	rebuilds int
}

func (s *countingSink) RecordClaim(ev metrics.ClaimEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomes == nil {
		s.outcomes = make(map[string]int)
	}
	s.outcomes[ev.Outcome]++
	return nil
}

func (s *countingSink) RecordQueue(q metrics.QueueSample) error {
	s.mu.Lock()
	s.queues = append(s.queues, q.HospitalID)
	s.mu.Unlock()
	return nil
}

func (s *countingSink) RecordRebuild(metrics.RebuildEvent) error {
	s.mu.Lock()
	s.rebuilds++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) count(outcome string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[outcome]
}
