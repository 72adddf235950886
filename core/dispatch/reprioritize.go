package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/medqueue/core/events"
	"github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/store"
)

// Reprioritizer recomputes the deadlines of a hospital's pending cases from
// its current SLA rules and swaps in a fresh queue.
type Reprioritizer struct {
	deps Deps
	cfg  Config
}

// NewReprioritizer validates deps and returns a Reprioritizer.
func NewReprioritizer(deps Deps, cfg Config) (*Reprioritizer, error) {
	if err := deps.normalize(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &Reprioritizer{deps: deps, cfg: cfg}, nil
}

// Rebuild replaces the queue of hospitalID under the hospital lock and
// returns the number of entries written. It fails with
// queue.ErrLockNotAcquired when another rebuild or admission holds the lock.
func (r *Reprioritizer) Rebuild(ctx context.Context, hospitalID string) (int, error) {
	start := r.deps.Now()
	lock, err := r.deps.Locker.Acquire(ctx, queue.TenantLockKey(hospitalID), r.cfg.RebuildLockLease, r.cfg.RebuildLockWait)
	if err != nil {
		if errors.Is(err, queue.ErrLockNotAcquired) {
			r.deps.Log.Warnf("could not acquire rebuild lock for hospital %s", hospitalID)
		}
		return 0, fmt.Errorf("rebuild %s: %w", hospitalID, err)
	}
	defer releaseLock(ctx, r.deps, lock)

	n, err := r.rebuildLocked(ctx, hospitalID)
	if err != nil {
		r.deps.Log.Errorf("rebuild of hospital %s failed: %v", hospitalID, err)
		return 0, err
	}
	elapsed := r.deps.Now().Sub(start)
	r.deps.Log.Infof("re-prioritized queue for hospital %s (%d cases)", hospitalID, n)
	r.deps.publish(events.QueueRebuilt{HospitalID: hospitalID, Entries: n, Duration: elapsed, Time: r.deps.Now()})
	if rec, ok := r.deps.Sink.(metrics.RebuildRecorder); ok {
		if err := rec.RecordRebuild(metrics.RebuildEvent{HospitalID: hospitalID, Entries: n, Duration: elapsed, Time: r.deps.Now()}); err != nil {
			r.deps.Log.Warnf("rebuild metrics error: %v", err)
		}
	}
	return n, nil
}

func (r *Reprioritizer) rebuildLocked(ctx context.Context, hospitalID string) (int, error) {
	h, err := r.deps.Store.GetHospital(ctx, hospitalID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("rebuild %s: %w", hospitalID, ErrTenantNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("rebuild %s: read hospital: %w", hospitalID, err)
	}
	cases, err := r.deps.Store.ListCases(ctx, store.CaseFilter{HospitalID: hospitalID, Status: model.StatusPending})
	if err != nil {
		return 0, fmt.Errorf("rebuild %s: list cases: %w", hospitalID, err)
	}
	deadlines := make(map[string]time.Time, len(cases))
	entries := make([]queue.Entry, 0, len(cases))
	for _, c := range cases {
		d := c.CreatedAt.Add(h.SLAFor(c.Urgency, r.cfg.DefaultSLAMinutes))
		deadlines[c.ID] = d
		entries = append(entries, queue.Entry{CaseID: c.ID, Score: queue.Score(d)})
	}
	if err := r.deps.Store.UpdateDeadlines(ctx, hospitalID, deadlines); err != nil {
		return 0, fmt.Errorf("rebuild %s: persist deadlines: %w", hospitalID, err)
	}
	if err := r.deps.Index.Rebuild(ctx, hospitalID, entries); err != nil {
		return 0, fmt.Errorf("rebuild %s: swap queue: %w", hospitalID, err)
	}
	return len(entries), nil
}

func releaseLock(ctx context.Context, deps Deps, lock queue.Lock) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := lock.Release(cctx); err != nil {
		deps.Log.Warnf("release %s: %v", lock.Key(), err)
	}
}
