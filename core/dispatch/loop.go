package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/core/queue"
)

// Loop repeatedly offers the earliest case of every hospital queue to the
// Coordinator. Hospitals are served by a bounded pool and the starting
// hospital rotates every cycle so that a busy hospital cannot starve the
// others.
type Loop struct {
	coord *Coordinator
	deps  Deps
	cfg   Config

	mu    sync.Mutex
	cycle int
}

// NewLoop returns a Loop driving coord.
func NewLoop(coord *Coordinator) *Loop {
	return &Loop{coord: coord, deps: coord.deps, cfg: coord.cfg}
}

// Run blocks until ctx is canceled. Unavailable dependencies are retried
// with exponential backoff; any other error is reported and the loop goes on.
func (l *Loop) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.cfg.ErrorBackoff
	bo.MaxInterval = l.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	l.deps.Log.Infof("dispatch loop started with %d workers", l.cfg.Workers)
	for {
		if ctx.Err() != nil {
			l.deps.Log.Infof("dispatch loop stopped")
			return nil
		}
		n, err := l.RunOnce(ctx)
		var wait time.Duration
		switch {
		case err != nil && ctx.Err() != nil:
			continue
		case err != nil && IsUnavailable(err):
			wait = bo.NextBackOff()
			l.deps.Log.Warnf("dependency unavailable, retrying in %s: %v", wait, err)
		case err != nil:
			wait = l.cfg.IdleInterval
			l.deps.Log.Errorf("dispatch cycle failed: %v", err)
			l.deps.Monitor.CaptureException(err, map[string]string{"component": "dispatch_loop"})
		case n == 0:
			bo.Reset()
			wait = l.cfg.IdleInterval
		default:
			bo.Reset()
			continue
		}
		sleep(ctx, wait)
	}
}

// RunOnce performs one cycle over every hospital with pending cases and
// returns the number of assignments made. Only unavailable dependencies and
// failures to list hospitals are returned; other per-hospital errors are
// reported and swallowed.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	tenants, err := l.deps.Index.Tenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list queues: %w", err)
	}
	if len(tenants) == 0 {
		return 0, nil
	}
	order := l.rotate(tenants)

	var assigned atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for _, h := range order {
		h := h
		g.Go(func() error {
			ok, err := l.serve(gctx, h)
			if ok {
				assigned.Add(1)
			}
			return err
		})
	}
	err = g.Wait()
	return int(assigned.Load()), err
}

func (l *Loop) rotate(tenants []string) []string {
	l.mu.Lock()
	start := l.cycle % len(tenants)
	l.cycle++
	l.mu.Unlock()
	order := make([]string, 0, len(tenants))
	order = append(order, tenants[start:]...)
	return append(order, tenants[:start]...)
}

// serve offers the head of one hospital queue. It returns an error only for
// unavailable dependencies so that the whole cycle backs off.
func (l *Loop) serve(ctx context.Context, hospitalID string) (assigned bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic serving %s: %v", hospitalID, r)
			l.deps.Log.Errorf("%v", perr)
			l.deps.Monitor.CaptureException(perr, map[string]string{"hospital_id": hospitalID})
			assigned, err = false, nil
		}
	}()

	head, ok, err := l.deps.Index.PeekEarliest(ctx, hospitalID)
	if err != nil {
		return false, l.filter(hospitalID, "", err)
	}
	l.sample(ctx, hospitalID, head, ok)
	if !ok {
		return false, nil
	}
	res, err := l.coord.TryAssign(ctx, hospitalID, head.CaseID)
	if err != nil {
		return false, l.filter(hospitalID, head.CaseID, err)
	}
	return res.Assigned(), nil
}

// filter keeps unavailable errors for the backoff and reports the rest.
func (l *Loop) filter(hospitalID, caseID string, err error) error {
	if IsUnavailable(err) || ctxErr(err) {
		return err
	}
	l.deps.Log.Errorf("dispatch hospital=%s case=%s: %v", hospitalID, caseID, err)
	l.deps.Monitor.CaptureException(err, map[string]string{"hospital_id": hospitalID, "case_id": caseID})
	return nil
}

func (l *Loop) sample(ctx context.Context, hospitalID string, head queue.Entry, ok bool) {
	rec, isRec := l.deps.Sink.(metrics.QueueRecorder)
	if !isRec {
		return
	}
	now := l.deps.Now()
	s := metrics.QueueSample{HospitalID: hospitalID, Time: now}
	if ok {
		n, err := l.deps.Index.Len(ctx, hospitalID)
		if err != nil {
			return
		}
		s.Depth = n
		if lag := now.Sub(head.Deadline()); lag > 0 {
			s.HeadLag = lag
		}
	}
	if err := rec.RecordQueue(s); err != nil {
		l.deps.Log.Warnf("queue metrics error: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
