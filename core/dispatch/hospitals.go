package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/store"
)

// maxUpdateAttempts bounds retries of a doctor update racing with claims.
const maxUpdateAttempts = 5

// CreateHospital registers a hospital policy.
func (e *Engine) CreateHospital(ctx context.Context, h model.Hospital) (model.Hospital, error) {
	if !validID(h.ID) {
		return model.Hospital{}, fmt.Errorf("hospital id %q: %w", h.ID, ErrInvalidInput)
	}
	if err := validateSLA(h.SLARules); err != nil {
		return model.Hospital{}, err
	}
	h.ApplyDefaults()
	if err := e.deps.Store.CreateHospital(ctx, h); err != nil {
		return model.Hospital{}, err
	}
	e.deps.Log.Infof("hospital %s registered", h.ID)
	return h, nil
}

// GetHospital returns a hospital policy or ErrTenantNotFound.
func (e *Engine) GetHospital(ctx context.Context, id string) (model.Hospital, error) {
	h, err := e.deps.Store.GetHospital(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Hospital{}, fmt.Errorf("hospital %s: %w", id, ErrTenantNotFound)
	}
	return h, err
}

// ListHospitals returns every registered hospital.
func (e *Engine) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	return e.deps.Store.ListHospitals(ctx)
}

// UpdateHospital applies a partial policy update. A change of SLA rules
// rebuilds the hospital queue before returning.
func (e *Engine) UpdateHospital(ctx context.Context, id string, upd model.HospitalUpdate) (model.Hospital, error) {
	if err := validateSLA(upd.SLARules); err != nil {
		return model.Hospital{}, err
	}
	h, err := e.GetHospital(ctx, id)
	if err != nil {
		return model.Hospital{}, err
	}
	h = upd.Apply(h)
	if err := e.deps.Store.UpdateHospital(ctx, h); err != nil {
		return model.Hospital{}, fmt.Errorf("update hospital %s: %w", id, err)
	}
	if upd.ChangesSLA() {
		if _, err := e.reprio.Rebuild(ctx, id); err != nil {
			return h, fmt.Errorf("update hospital %s: %w", id, err)
		}
	}
	return h, nil
}

// DeleteHospital removes a hospital without open cases.
func (e *Engine) DeleteHospital(ctx context.Context, id string) error {
	for _, st := range []model.CaseStatus{model.StatusPending, model.StatusAssigned} {
		open, err := e.deps.Store.ListCases(ctx, store.CaseFilter{HospitalID: id, Status: st})
		if err != nil {
			return fmt.Errorf("delete hospital %s: %w", id, err)
		}
		if len(open) > 0 {
			return fmt.Errorf("delete hospital %s: %d %s cases: %w", id, len(open), st, ErrHospitalInUse)
		}
	}
	if err := e.deps.Store.DeleteHospital(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete hospital %s: %w", id, ErrTenantNotFound)
		}
		return err
	}
	e.deps.Log.Infof("hospital %s deleted", id)
	return nil
}

// RegisterDoctor adds a doctor to an existing hospital. A doctor without a
// daily limit inherits the hospital limit for its kind of practice.
func (e *Engine) RegisterDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error) {
	if !validID(d.ID) {
		return model.Doctor{}, fmt.Errorf("doctor id %q: %w", d.ID, ErrInvalidInput)
	}
	h, err := e.GetHospital(ctx, d.HospitalID)
	if err != nil {
		return model.Doctor{}, err
	}
	if d.MaxDailyCases <= 0 {
		d.MaxDailyCases = capacityFor(h, d)
	}
	if d.CurrentWorkload < 0 || d.CurrentWorkload > d.MaxDailyCases {
		return model.Doctor{}, fmt.Errorf("doctor %s workload %d outside [0,%d]: %w", d.ID, d.CurrentWorkload, d.MaxDailyCases, ErrInvalidInput)
	}
	if d.CurrentWorkload == d.MaxDailyCases {
		d.Available = false
	}
	if err := e.deps.Store.CreateDoctor(ctx, d); err != nil {
		return model.Doctor{}, err
	}
	e.deps.Log.Infof("doctor %s registered at %s (max %d cases)", d.ID, d.HospitalID, d.MaxDailyCases)
	return d, nil
}

func capacityFor(h model.Hospital, d model.Doctor) int {
	s := strings.ToLower(strings.TrimSpace(d.Specialty))
	if s == "" || s == "general" || s == "general practice" {
		return h.MaxCasesPerGeneral
	}
	return h.MaxCasesPerSpecialist
}

// GetDoctor returns a doctor of the given hospital.
func (e *Engine) GetDoctor(ctx context.Context, hospitalID, doctorID string) (model.Doctor, error) {
	d, err := e.deps.Store.GetDoctor(ctx, doctorID)
	if err != nil {
		return model.Doctor{}, err
	}
	if d.HospitalID != hospitalID {
		return model.Doctor{}, fmt.Errorf("doctor %s in hospital %s: %w", doctorID, hospitalID, store.ErrNotFound)
	}
	return d, nil
}

// ListDoctors returns the doctors of a hospital ordered by id.
func (e *Engine) ListDoctors(ctx context.Context, hospitalID string) ([]model.Doctor, error) {
	return e.deps.Store.ListDoctors(ctx, hospitalID)
}

// UpdateDoctor applies a partial update to a doctor of the given hospital.
// The write is conditioned on the workload that was read, so a claim landing
// in between makes it retry on fresh state. A limit below the current
// workload fails with ErrInvalidInput.
func (e *Engine) UpdateDoctor(ctx context.Context, hospitalID, doctorID string, upd model.DoctorUpdate) (model.Doctor, error) {
	if upd.MaxDailyCases != nil && *upd.MaxDailyCases < 0 {
		return model.Doctor{}, fmt.Errorf("max_daily_cases %d: %w", *upd.MaxDailyCases, ErrInvalidInput)
	}
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var d model.Doctor
		d, err = e.GetDoctor(ctx, hospitalID, doctorID)
		if err != nil {
			return model.Doctor{}, err
		}
		d = upd.Apply(d)
		if d.MaxDailyCases < d.CurrentWorkload {
			return model.Doctor{}, fmt.Errorf("doctor %s max_daily_cases %d below workload %d: %w",
				doctorID, d.MaxDailyCases, d.CurrentWorkload, ErrInvalidInput)
		}
		err = e.deps.Store.UpdateDoctor(ctx, d)
		if err == nil {
			return e.deps.Store.GetDoctor(ctx, doctorID)
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Doctor{}, err
		}
		e.deps.Log.Debugf("doctor %s changed during update, retrying", doctorID)
	}
	return model.Doctor{}, err
}

// SetAvailability toggles whether a doctor can receive cases.
func (e *Engine) SetAvailability(ctx context.Context, hospitalID, doctorID string, available bool) (model.Doctor, error) {
	return e.UpdateDoctor(ctx, hospitalID, doctorID, model.DoctorUpdate{Available: &available})
}

// DeleteDoctor removes a doctor of the given hospital.
func (e *Engine) DeleteDoctor(ctx context.Context, hospitalID, doctorID string) error {
	if _, err := e.GetDoctor(ctx, hospitalID, doctorID); err != nil {
		return err
	}
	return e.deps.Store.DeleteDoctor(ctx, doctorID)
}

func validateSLA(rules map[model.Urgency]int) error {
	for u, m := range rules {
		if _, err := model.ParseUrgency(string(u)); err != nil {
			return fmt.Errorf("sla rule: %v: %w", err, ErrInvalidInput)
		}
		if m <= 0 {
			return fmt.Errorf("sla rule %s: %d minutes: %w", u, m, ErrInvalidInput)
		}
	}
	return nil
}
