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

// cleanupTimeout bounds lock release and rollback calls, which run on a
// context detached from the caller so that they still happen on cancel.
const cleanupTimeout = 2 * time.Second

// Result is the outcome of one TryAssign call.
type Result struct {
	Outcome  string
	CaseID   string
	DoctorID string
	Score    float64
}

// Assigned reports whether the case was bound to a doctor.
func (r Result) Assigned() bool { return r.Outcome == metrics.OutcomeAssigned }

// Coordinator claims cases under a per-case lock and binds them to the best
// doctor with free capacity.
type Coordinator struct {
	deps Deps
	cfg  Config
}

// NewCoordinator validates deps and returns a Coordinator.
func NewCoordinator(deps Deps, cfg Config) (*Coordinator, error) {
	if err := deps.normalize(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &Coordinator{deps: deps, cfg: cfg}, nil
}

// TryAssign attempts to assign caseID of hospitalID.
//
// Lock contention, a case that is no longer pending and the absence of a
// doctor with capacity are normal outcomes reported through Result with a nil
// error. An error means the case was left pending for the next cycle.
func (c *Coordinator) TryAssign(ctx context.Context, hospitalID, caseID string) (res Result, err error) {
	start := c.deps.Now()
	res = Result{CaseID: caseID}
	defer func() {
		if err != nil {
			res.Outcome = metrics.OutcomeError
		}
		c.report(hospitalID, res, err, start)
	}()

	lock, err := c.deps.Locker.Acquire(ctx, queue.CaseLockKey(caseID), c.cfg.CaseLockLease, c.cfg.CaseLockWait)
	if errors.Is(err, queue.ErrLockNotAcquired) {
		c.deps.Log.Debugw("case locked elsewhere", map[string]any{"hospital_id": hospitalID, "case_id": caseID})
		res.Outcome = metrics.OutcomeContended
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("lock case %s: %w", caseID, err)
	}
	defer releaseLock(ctx, c.deps, lock)

	cs, err := c.deps.Store.GetCase(ctx, caseID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		res.Outcome = metrics.OutcomeStale
		return res, c.dropStale(ctx, hospitalID, caseID, "case record missing")
	case err != nil:
		return res, fmt.Errorf("read case %s: %w", caseID, err)
	}
	if cs.HospitalID != hospitalID {
		return res, c.repairTenant(ctx, hospitalID, cs)
	}
	if cs.Status != model.StatusPending {
		res.Outcome = metrics.OutcomeStale
		return res, c.dropStale(ctx, hospitalID, caseID, "case is "+string(cs.Status))
	}

	patient, err := c.deps.Store.GetPatient(ctx, cs.PatientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return res, fmt.Errorf("read patient %s: %w", cs.PatientID, err)
	}

	doctors, err := c.deps.Registry.ListAvailable(ctx, hospitalID)
	if err != nil {
		return res, fmt.Errorf("list doctors of %s: %w", hospitalID, err)
	}
	var claimed *model.Doctor
	for _, cand := range c.deps.Scorer.Rank(doctors, patient) {
		d, err := c.deps.Registry.ClaimCapacity(ctx, cand.Doctor.ID)
		if errors.Is(err, store.ErrNoCapacity) || errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("claim doctor %s: %w", cand.Doctor.ID, err)
		}
		claimed = &d
		res.DoctorID = d.ID
		res.Score = cand.Score
		break
	}
	if claimed == nil {
		c.deps.Log.Debugw("no doctor available", map[string]any{"hospital_id": hospitalID, "case_id": caseID})
		res.Outcome = metrics.OutcomeNoDoctor
		return res, nil
	}

	now := c.deps.Now()
	rec := model.AssignmentRecord{
		DoctorID:   claimed.ID,
		Action:     model.ActionAssigned,
		Score:      res.Score,
		AssignedAt: now,
		AssignedBy: "dispatch",
	}
	assigned, err := c.deps.Store.AssignCase(ctx, caseID, rec)
	if err != nil {
		c.rollback(ctx, hospitalID, caseID, claimed.ID, false)
		if errors.Is(err, store.ErrConflict) {
			res.Outcome = metrics.OutcomeStale
			res.DoctorID, res.Score = "", 0
			return res, c.dropStale(ctx, hospitalID, caseID, "case changed under lock")
		}
		return res, fmt.Errorf("assign case %s: %w", caseID, err)
	}
	if err := c.deps.Index.Remove(ctx, hospitalID, caseID); err != nil {
		c.rollback(ctx, hospitalID, caseID, claimed.ID, true)
		return res, fmt.Errorf("dequeue case %s: %w", caseID, err)
	}

	res.Outcome = metrics.OutcomeAssigned
	wait := now.Sub(assigned.CreatedAt)
	c.deps.Log.Infof("case %s of %s assigned to %s (score %.3f, waited %s)", caseID, hospitalID, claimed.ID, res.Score, wait.Round(time.Second))
	c.deps.publish(events.CaseAssigned{
		HospitalID: hospitalID,
		CaseID:     caseID,
		DoctorID:   claimed.ID,
		Score:      res.Score,
		Deadline:   assigned.SLADeadline,
		Wait:       wait,
		Time:       now,
	})
	if r, ok := c.deps.Sink.(metrics.AssignmentRecorder); ok {
		if err := r.RecordAssignment(metrics.AssignmentEvent{
			HospitalID: hospitalID,
			CaseID:     caseID,
			DoctorID:   claimed.ID,
			Score:      res.Score,
			Wait:       wait,
			MetSLA:     !now.After(assigned.SLADeadline),
			Time:       now,
		}); err != nil {
			c.deps.Log.Warnf("assignment metrics error: %v", err)
		}
	}
	return res, nil
}

// dropStale removes an index entry whose case is no longer pending. It runs
// under the case lock so the case cannot become pending again meanwhile.
func (c *Coordinator) dropStale(ctx context.Context, hospitalID, caseID, reason string) error {
	c.deps.Log.Debugw("dropping stale queue entry", map[string]any{"hospital_id": hospitalID, "case_id": caseID, "reason": reason})
	if err := c.deps.Index.Remove(ctx, hospitalID, caseID); err != nil {
		return fmt.Errorf("drop stale case %s: %w", caseID, err)
	}
	return nil
}

// repairTenant moves an entry found in the wrong hospital queue back to the
// queue of the hospital owning the case.
func (c *Coordinator) repairTenant(ctx context.Context, hospitalID string, cs model.Case) error {
	c.deps.Log.Errorf("case %s of %s found in queue of %s", cs.ID, cs.HospitalID, hospitalID)
	if err := c.deps.Index.Remove(ctx, hospitalID, cs.ID); err != nil {
		return fmt.Errorf("remove misplaced case %s: %w", cs.ID, err)
	}
	if cs.Status == model.StatusPending {
		if err := c.deps.Index.Insert(ctx, cs.HospitalID, cs.ID, cs.SLADeadline); err != nil {
			return fmt.Errorf("requeue misplaced case %s: %w", cs.ID, err)
		}
	}
	return fmt.Errorf("case %s in queue of %s: %w", cs.ID, hospitalID, ErrTenantMismatch)
}

// rollback releases the claimed capacity and, when revertCase is set, moves
// the case back to pending.
func (c *Coordinator) rollback(ctx context.Context, hospitalID, caseID, doctorID string, revertCase bool) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	tags := map[string]string{"hospital_id": hospitalID, "case_id": caseID, "doctor_id": doctorID}
	if revertCase {
		if _, err := c.deps.Store.RevertAssignment(cctx, caseID, doctorID, c.deps.Now()); err != nil {
			c.deps.Log.Errorf("revert assignment of case %s: %v", caseID, err)
			c.deps.Monitor.CaptureException(fmt.Errorf("revert assignment: %w", err), tags)
		}
	}
	if _, err := c.deps.Registry.ReleaseCapacity(cctx, doctorID); err != nil {
		c.deps.Log.Errorf("release capacity of doctor %s: %v", doctorID, err)
		c.deps.Monitor.CaptureException(fmt.Errorf("release capacity: %w", err), tags)
	}
}

func (c *Coordinator) report(hospitalID string, res Result, err error, start time.Time) {
	now := c.deps.Now()
	if sinkErr := c.deps.Sink.RecordClaim(metrics.ClaimEvent{
		HospitalID: hospitalID,
		CaseID:     res.CaseID,
		Outcome:    res.Outcome,
		Latency:    now.Sub(start),
		Time:       now,
	}); sinkErr != nil {
		c.deps.Log.Warnf("claim metrics error: %v", sinkErr)
	}
	c.deps.publish(events.ClaimAttempt{
		HospitalID: hospitalID,
		CaseID:     res.CaseID,
		Outcome:    res.Outcome,
		Latency:    now.Sub(start),
		Err:        err,
		Time:       now,
	})
}
