package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
)

func TestRebuildAppliesNewSLA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hospital(t, "h1", map[model.Urgency]int{model.UrgencyUrgent: 60})
	f.doctor(t, model.Doctor{ID: "d1", HospitalID: "h1", MaxDailyCases: 1})

	first := f.admit(t, "h1", "p1", model.UrgencyUrgent)
	_, err := f.engine.Coordinator().TryAssign(ctx, "h1", first)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	second := f.admit(t, "h1", "p2", model.UrgencyUrgent)
	before, _ := f.store.GetCase(ctx, first)

	_, err = f.engine.UpdateHospital(ctx, "h1", model.HospitalUpdate{SLARules: map[model.Urgency]int{model.UrgencyUrgent: 30}})
	require.NoError(t, err)

	pending, err := f.store.GetCase(ctx, second)
	require.NoError(t, err)
	want := t0.Add(10*time.Minute + 30*time.Minute)
	assert.True(t, pending.SLADeadline.Equal(want), "deadline %s", pending.SLADeadline)
	score, ok, err := f.index.Lookup(ctx, "h1", second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, queue.Score(want), score, 1e-6)

	after, _ := f.store.GetCase(ctx, first)
	assert.Equal(t, before, after, "assigned case untouched")
	_, queued, _ := f.index.Lookup(ctx, "h1", first)
	assert.False(t, queued)
	assert.Equal(t, 1, f.sink.rebuilds)
	f.checkConsistency(t)
}

func TestRebuildUsesAdmissionUrgency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hospital(t, "h1", map[model.Urgency]int{model.UrgencyEmergency: 10, model.UrgencyRoutine: 300})
	id := f.admit(t, "h1", "p1", model.UrgencyEmergency)
	// A later admission of the same patient must not change the first case.
	f.admit(t, "h1", "p1", model.UrgencyRoutine)

	n, err := f.engine.Rebuild(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	c, _ := f.store.GetCase(ctx, id)
	assert.True(t, c.SLADeadline.Equal(t0.Add(10*time.Minute)))
	head, ok, err := f.index.PeekEarliest(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, head.CaseID)
}

func TestRebuildEmptiesQueueWithoutPendingCases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hospital(t, "h1", nil)
	require.NoError(t, f.index.Insert(ctx, "h1", "orphan", t0))

	n, err := f.engine.Rebuild(ctx, "h1")
	require.NoError(t, err)
	assert.Zero(t, n)
	size, _ := f.index.Len(ctx, "h1")
	assert.Zero(t, size)
	tenants, _ := f.index.Tenants(ctx)
	assert.NotContains(t, tenants, "h1")
}

func TestRebuildUnknownHospital(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Rebuild(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestRebuildLockHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hospital(t, "h1", nil)
	lock, err := f.locker.Acquire(ctx, queue.TenantLockKey("h1"), time.Minute, 0)
	require.NoError(t, err)
	defer lock.Release(ctx)

	_, err = f.engine.Rebuild(ctx, "h1")
	assert.ErrorIs(t, err, queue.ErrLockNotAcquired)
	assert.Zero(t, f.sink.rebuilds)
}

func TestRebuildKeepsOtherHospitals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hospital(t, "h1", nil)
	f.hospital(t, "h2", nil)
	other := f.admit(t, "h2", "p1", model.UrgencyRoutine)
	_, err := f.engine.Rebuild(ctx, "h1")
	require.NoError(t, err)
	_, ok, _ := f.index.Lookup(ctx, "h2", other)
	assert.True(t, ok)
}
