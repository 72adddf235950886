package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/medqueue/core/events"
	"github.com/kilianp07/medqueue/core/logger"
	"github.com/kilianp07/medqueue/core/monitoring"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

// Resetter zeroes doctor workloads. An empty hospitalID means every hospital.
type Resetter interface {
	ResetAll(ctx context.Context, hospitalID string) (int, error)
}

// Scheduler triggers the workload reset at each daily boundary.
type Scheduler struct {
	cfg     Config
	loc     *time.Location
	reset   Resetter
	bus     eventbus.EventBus
	log     logger.Logger
	monitor monitoring.Monitor

	// Now and After are replaced in tests.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// New returns a Scheduler. bus, log and mon may be nil.
func New(cfg Config, r Resetter, bus eventbus.EventBus, log logger.Logger, mon monitoring.Monitor) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("scheduler: resetter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	loc, _ := cfg.Location()
	return &Scheduler{
		cfg:     cfg,
		loc:     loc,
		reset:   r,
		bus:     bus,
		log:     logger.OrNop(log),
		monitor: monitoring.OrNop(mon),
		Now:     time.Now,
		After:   time.After,
	}, nil
}

// NextReset returns the first instant strictly after now at hour:00 in loc.
func NextReset(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

// Run waits for each reset boundary until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Disabled {
		s.log.Infof("workload reset disabled")
		<-ctx.Done()
		return nil
	}
	for {
		next := NextReset(s.Now(), s.cfg.ResetHour, s.loc)
		s.log.Debugw("next workload reset", map[string]any{"at": next.Format(time.RFC3339)})
		select {
		case <-ctx.Done():
			return nil
		case <-s.After(next.Sub(s.Now())):
		}
		if _, err := s.ResetNow(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorf("workload reset failed: %v", err)
			s.monitor.CaptureException(err, map[string]string{"component": "workload_reset"})
		}
	}
}

// ResetNow resets the configured hospitals and returns the number of doctors
// touched. A failing hospital does not stop the others.
func (s *Scheduler) ResetNow(ctx context.Context) (int, error) {
	scopes := s.cfg.Hospitals
	if len(scopes) == 0 {
		scopes = []string{""}
	}
	total := 0
	var errs []error
	for _, h := range scopes {
		n, err := s.reset.ResetAll(ctx, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("reset %q: %w", h, err))
			continue
		}
		total += n
		if s.bus != nil {
			s.bus.Publish(events.WorkloadReset{HospitalID: h, Doctors: n, Time: s.Now()})
		}
	}
	return total, errors.Join(errs...)
}
