package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
)

func TestRunOnceServesEveryHospital(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, h := range []string{"h1", "h2", "h3"} {
		f.hospital(t, h, map[model.Urgency]int{model.UrgencyEmergency: 15, model.UrgencyRoutine: 240})
		f.doctor(t, model.Doctor{ID: "doc-" + h, HospitalID: h, MaxDailyCases: 5})
	}
	a := f.admit(t, "h1", "p1", model.UrgencyRoutine)
	b := f.admit(t, "h2", "p2", model.UrgencyRoutine)
	c := f.admit(t, "h1", "p3", model.UrgencyEmergency)

	loop := f.engine.NewLoop()
	n, err := loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one case per hospital per cycle")

	cc, _ := f.store.GetCase(ctx, c)
	assert.Equal(t, model.StatusAssigned, cc.Status, "earliest deadline goes first")
	ca, _ := f.store.GetCase(ctx, a)
	assert.Equal(t, model.StatusPending, ca.Status)
	cb, _ := f.store.GetCase(ctx, b)
	assert.Equal(t, "doc-h2", cb.AssignedDoctorID)
	f.checkConsistency(t)

	n, err = loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = loop.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.checkConsistency(t)
	assert.Contains(t, f.sink.queues, "h1")
}

func TestRotateStartsAtNextHospital(t *testing.T) {
	l := &Loop{}
	tenants := []string{"a", "b", "c"}
	if got := l.rotate(tenants); got[0] != "a" {
		t.Fatalf("first cycle = %v", got)
	}
	if got := l.rotate(tenants); got[0] != "b" || got[2] != "a" {
		t.Fatalf("second cycle = %v", got)
	}
	l.rotate(tenants)
	if got := l.rotate(tenants); got[0] != "a" {
		t.Fatalf("fourth cycle = %v", got)
	}
}

func TestRunOnceReportsUnavailableIndex(t *testing.T) {
	f := newFixture(t)
	f.index.set(func(fi *flakyIndex) { fi.tenantsErr = queue.ErrUnavailable })
	_, err := f.engine.NewLoop().RunOnce(context.Background())
	assert.True(t, IsUnavailable(err))
}

func TestRunOnceSwallowsTenantMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hospital(t, "h1", nil)
	f.hospital(t, "h2", nil)
	id := f.admit(t, "h1", "p1", model.UrgencyRoutine)
	require.NoError(t, f.index.Insert(ctx, "h2", id, t0))

	_, err := f.engine.NewLoop().RunOnce(ctx)
	require.NoError(t, err)
	captured := f.monitor.Captured()
	require.NotEmpty(t, captured)
	assert.ErrorIs(t, captured[0].Err, ErrTenantMismatch)
	assert.Equal(t, "h2", captured[0].Tags["hospital_id"])
}

func TestRunBacksOffAndStops(t *testing.T) {
	f := newFixture(t)
	f.index.set(func(fi *flakyIndex) { fi.peekErr = queue.ErrUnavailable })
	require.NoError(t, f.index.Insert(context.Background(), "h1", "c1", t0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.NewLoop().Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	f.index.set(func(fi *flakyIndex) { fi.peekErr = nil })
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Empty(t, f.monitor.Captured(), "unavailable errors are retried, not reported")
}

func TestRunAssignsUntilQueuesDrain(t *testing.T) {
	f := newFixture(t)
	f.hospital(t, "h1", nil)
	f.doctor(t, model.Doctor{ID: "d1", HospitalID: "h1", MaxDailyCases: 10})
	for i := 0; i < 4; i++ {
		f.admit(t, "h1", "p"+string(rune('a'+i)), model.UrgencyUrgent)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.engine.NewLoop().Run(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := f.index.Len(context.Background(), "h1")
		return n == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	d, _ := f.store.GetDoctor(context.Background(), "d1")
	assert.Equal(t, 4, d.CurrentWorkload)
	f.checkConsistency(t)
}

func TestServeRecoversPanic(t *testing.T) {
	f := newFixture(t)
	l := f.engine.NewLoop()
	l.deps.Index = panickingIndex{f.index}
	ok, err := l.serve(context.Background(), "h1")
	assert.False(t, ok)
	assert.NoError(t, err)
	require.Len(t, f.monitor.Captured(), 1)
}

type panickingIndex struct{ *flakyIndex }

func (panickingIndex) PeekEarliest(context.Context, string) (queue.Entry, bool, error) {
	panic(errors.New("corrupted index"))
}
