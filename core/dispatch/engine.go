package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kilianp07/medqueue/core/events"
	"github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/store"
)

// Engine is the entry point used by callers of the dispatch core.
type Engine struct {
	deps   Deps
	cfg    Config
	coord  *Coordinator
	reprio *Reprioritizer
}

// NewEngine wires the coordinator and reprioritizer around deps.
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	if err := deps.normalize(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	coord, err := NewCoordinator(deps, cfg)
	if err != nil {
		return nil, err
	}
	reprio, err := NewReprioritizer(deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{deps: deps, cfg: cfg, coord: coord, reprio: reprio}, nil
}

// Coordinator exposes the assignment coordinator shared with the loop.
func (e *Engine) Coordinator() *Coordinator { return e.coord }

// NewLoop returns a dispatch loop bound to the engine coordinator.
func (e *Engine) NewLoop() *Loop { return NewLoop(e.coord) }

// Admit stores the patient, creates a pending case and queues it. The
// deadline is derived from a single read of the clock. A missing hospital
// fails with ErrTenantNotFound.
func (e *Engine) Admit(ctx context.Context, hospitalID string, p model.Patient, urgency model.Urgency) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("admit: patient id required: %w", ErrInvalidInput)
	}
	u, err := model.ParseUrgency(string(urgency))
	if err != nil {
		return "", fmt.Errorf("admit: %v: %w", err, ErrInvalidInput)
	}
	now := e.deps.Now()

	lock, err := e.deps.Locker.Acquire(ctx, queue.TenantLockKey(hospitalID), e.cfg.RebuildLockLease, e.cfg.RebuildLockWait)
	if err != nil {
		return "", fmt.Errorf("admit to %s: %w", hospitalID, err)
	}
	defer releaseLock(ctx, e.deps, lock)

	h, err := e.deps.Store.GetHospital(ctx, hospitalID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("admit to %s: %w", hospitalID, ErrTenantNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("admit to %s: %w", hospitalID, err)
	}

	p.Urgency = u
	if p.ArrivalTime.IsZero() {
		p.ArrivalTime = now
	}
	if err := e.deps.Store.UpsertPatient(ctx, p); err != nil {
		return "", fmt.Errorf("admit: store patient %s: %w", p.ID, err)
	}

	deadline := now.Add(h.SLAFor(u, e.cfg.DefaultSLAMinutes))
	c := model.Case{
		ID:            model.NewCaseID(now),
		HospitalID:    hospitalID,
		PatientID:     p.ID,
		Urgency:       u,
		Status:        model.StatusPending,
		PriorityScore: queue.Score(deadline),
		CreatedAt:     now,
		LastUpdated:   now,
		SLADeadline:   deadline,
	}
	if err := e.deps.Store.CreateCase(ctx, c); err != nil {
		return "", fmt.Errorf("admit: create case: %w", err)
	}
	if err := e.deps.Index.Insert(ctx, hospitalID, c.ID, deadline); err != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if derr := e.deps.Store.DeleteCase(cctx, c.ID); derr != nil {
			e.deps.Log.Errorf("undo case %s after queue failure: %v", c.ID, derr)
			e.deps.Monitor.CaptureException(derr, map[string]string{"hospital_id": hospitalID, "case_id": c.ID})
		}
		return "", fmt.Errorf("admit: queue case: %w", err)
	}

	e.deps.Log.Infof("case %s admitted to %s (%s, due %s)", c.ID, hospitalID, u, deadline.Format("15:04:05"))
	e.deps.publish(events.CaseAdmitted{HospitalID: hospitalID, CaseID: c.ID, PatientID: p.ID, Urgency: u, Deadline: deadline, Time: now})
	if rec, ok := e.deps.Sink.(metrics.AdmissionRecorder); ok {
		if err := rec.RecordAdmission(metrics.AdmissionEvent{HospitalID: hospitalID, CaseID: c.ID, Urgency: u, Deadline: deadline, Time: now}); err != nil {
			e.deps.Log.Warnf("admission metrics error: %v", err)
		}
	}
	return c.ID, nil
}

// OutcomeInput is what a caller reports when closing a case.
type OutcomeInput struct {
	// Status must be completed or cancelled. Empty means completed.
	Status model.CaseStatus
	// ActualDuration in minutes.
	ActualDuration      float64
	PatientSatisfaction *float64
}

// RecordOutcome closes the case, drops it from its queue and stores the
// outcome. The doctor workload is a daily quota and is not given back.
func (e *Engine) RecordOutcome(ctx context.Context, caseID string, in OutcomeInput) (model.CaseOutcome, error) {
	status := in.Status
	if status == "" {
		status = model.StatusCompleted
	}
	if !status.Terminal() {
		return model.CaseOutcome{}, fmt.Errorf("outcome status %q: %w", status, ErrInvalidInput)
	}

	lock, err := e.deps.Locker.Acquire(ctx, queue.CaseLockKey(caseID), e.cfg.CaseLockLease, e.cfg.CaseLockWait)
	if err != nil {
		return model.CaseOutcome{}, fmt.Errorf("record outcome %s: %w", caseID, err)
	}
	defer releaseLock(ctx, e.deps, lock)

	c, err := e.deps.Store.GetCase(ctx, caseID)
	if err != nil {
		return model.CaseOutcome{}, fmt.Errorf("record outcome %s: %w", caseID, err)
	}
	if c.Status.Terminal() {
		return model.CaseOutcome{}, fmt.Errorf("record outcome %s: %w", caseID, ErrCaseClosed)
	}
	now := e.deps.Now()
	closed, err := e.deps.Store.CloseCase(ctx, caseID, status, now)
	if errors.Is(err, store.ErrConflict) {
		return model.CaseOutcome{}, fmt.Errorf("record outcome %s: %w", caseID, ErrCaseClosed)
	}
	if err != nil {
		return model.CaseOutcome{}, fmt.Errorf("record outcome %s: %w", caseID, err)
	}
	if err := e.deps.Index.Remove(ctx, c.HospitalID, caseID); err != nil {
		// The entry is dropped as stale by the next claim attempt.
		e.deps.Log.Warnf("dequeue closed case %s: %v", caseID, err)
	}

	assignedAt, wasAssigned := closed.FirstAssignedAt()
	out := model.CaseOutcome{
		ID:                  uuid.NewString(),
		CaseID:              caseID,
		FinalStatus:         status,
		ActualDuration:      in.ActualDuration,
		PatientSatisfaction: in.PatientSatisfaction,
		WasReassigned:       closed.Assignments() > 1,
		MetSLA:              wasAssigned && !assignedAt.After(closed.SLADeadline),
		CreatedAt:           now,
	}
	if err := e.deps.Store.SaveOutcome(ctx, out); err != nil {
		return model.CaseOutcome{}, fmt.Errorf("record outcome %s: save: %w", caseID, err)
	}
	e.deps.publish(events.CaseClosed{HospitalID: c.HospitalID, CaseID: caseID, DoctorID: closed.AssignedDoctorID, Status: status, MetSLA: out.MetSLA, Time: now})
	return out, nil
}

// Delete removes a case that has not been assigned.
func (e *Engine) Delete(ctx context.Context, caseID string) error {
	lock, err := e.deps.Locker.Acquire(ctx, queue.CaseLockKey(caseID), e.cfg.CaseLockLease, e.cfg.CaseLockWait)
	if err != nil {
		return fmt.Errorf("delete case %s: %w", caseID, err)
	}
	defer releaseLock(ctx, e.deps, lock)

	c, err := e.deps.Store.GetCase(ctx, caseID)
	if err != nil {
		return fmt.Errorf("delete case %s: %w", caseID, err)
	}
	if c.Status == model.StatusAssigned || c.AssignedDoctorID != "" {
		return fmt.Errorf("delete case %s: %w", caseID, ErrCaseAssigned)
	}
	if err := e.deps.Index.Remove(ctx, c.HospitalID, caseID); err != nil {
		return fmt.Errorf("delete case %s: %w", caseID, err)
	}
	if err := e.deps.Store.DeleteCase(ctx, caseID); err != nil {
		return fmt.Errorf("delete case %s: %w", caseID, err)
	}
	e.deps.Log.Infof("case %s deleted", caseID)
	return nil
}

// GetCase returns the stored case.
func (e *Engine) GetCase(ctx context.Context, caseID string) (model.Case, error) {
	return e.deps.Store.GetCase(ctx, caseID)
}

// ListCases returns the cases of a hospital, optionally filtered by status.
func (e *Engine) ListCases(ctx context.Context, hospitalID string, status model.CaseStatus) ([]model.Case, error) {
	return e.deps.Store.ListCases(ctx, store.CaseFilter{HospitalID: hospitalID, Status: status})
}

// Outcome returns the recorded outcome of a case.
func (e *Engine) Outcome(ctx context.Context, caseID string) (model.CaseOutcome, error) {
	return e.deps.Store.GetOutcome(ctx, caseID)
}

// Rebuild re-prioritizes the queue of a hospital.
func (e *Engine) Rebuild(ctx context.Context, hospitalID string) (int, error) {
	return e.reprio.Rebuild(ctx, hospitalID)
}

func validID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.ContainsAny(id, " \t\n:")
}
