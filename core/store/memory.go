package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
)

// MemoryStore keeps every entity in maps guarded by a single mutex, which
// makes each method one atomic unit.
type MemoryStore struct {
	mu        sync.RWMutex
	hospitals map[string]model.Hospital
	patients  map[string]model.Patient
	doctors   map[string]model.Doctor
	cases     map[string]model.Case
	outcomes  map[string]model.CaseOutcome
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hospitals: make(map[string]model.Hospital),
		patients:  make(map[string]model.Patient),
		doctors:   make(map[string]model.Doctor),
		cases:     make(map[string]model.Case),
		outcomes:  make(map[string]model.CaseOutcome),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateHospital(_ context.Context, h model.Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hospitals[h.ID]; ok {
		return fmt.Errorf("hospital %s: %w", h.ID, ErrConflict)
	}
	m.hospitals[h.ID] = h
	return nil
}

func (m *MemoryStore) GetHospital(_ context.Context, id string) (model.Hospital, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hospitals[id]
	if !ok {
		return model.Hospital{}, fmt.Errorf("hospital %s: %w", id, ErrNotFound)
	}
	return h, nil
}

func (m *MemoryStore) ListHospitals(context.Context) ([]model.Hospital, error) {
	m.mu.RLock()
	out := make([]model.Hospital, 0, len(m.hospitals))
	for _, h := range m.hospitals {
		out = append(out, h)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateHospital(_ context.Context, h model.Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hospitals[h.ID]; !ok {
		return fmt.Errorf("hospital %s: %w", h.ID, ErrNotFound)
	}
	m.hospitals[h.ID] = h
	return nil
}

func (m *MemoryStore) DeleteHospital(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hospitals[id]; !ok {
		return fmt.Errorf("hospital %s: %w", id, ErrNotFound)
	}
	delete(m.hospitals, id)
	return nil
}

func (m *MemoryStore) UpsertPatient(_ context.Context, p model.Patient) error {
	m.mu.Lock()
	m.patients[p.ID] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetPatient(_ context.Context, id string) (model.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return model.Patient{}, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *MemoryStore) CreateDoctor(_ context.Context, d model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; ok {
		return fmt.Errorf("doctor %s: %w", d.ID, ErrConflict)
	}
	m.doctors[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDoctor(_ context.Context, id string) (model.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return model.Doctor{}, fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (m *MemoryStore) UpdateDoctor(_ context.Context, d model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.doctors[d.ID]
	if !ok {
		return fmt.Errorf("doctor %s: %w", d.ID, ErrNotFound)
	}
	if cur.CurrentWorkload != d.CurrentWorkload {
		return fmt.Errorf("doctor %s workload changed to %d: %w", d.ID, cur.CurrentWorkload, ErrConflict)
	}
	if d.MaxDailyCases < cur.CurrentWorkload {
		return fmt.Errorf("doctor %s limit %d below workload %d: %w", d.ID, d.MaxDailyCases, cur.CurrentWorkload, ErrConflict)
	}
	if cur.CurrentWorkload >= d.MaxDailyCases {
		d.Available = false
	}
	d.HospitalID = cur.HospitalID
	m.doctors[d.ID] = d
	return nil
}

func (m *MemoryStore) DeleteDoctor(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[id]; !ok {
		return fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	delete(m.doctors, id)
	return nil
}

func (m *MemoryStore) ListDoctors(_ context.Context, hospitalID string) ([]model.Doctor, error) {
	return m.listDoctors(hospitalID, func(model.Doctor) bool { return true }), nil
}

func (m *MemoryStore) ListAvailableDoctors(_ context.Context, hospitalID string) ([]model.Doctor, error) {
	return m.listDoctors(hospitalID, func(d model.Doctor) bool {
		return d.Available && d.CurrentWorkload < d.MaxDailyCases
	}), nil
}

func (m *MemoryStore) listDoctors(hospitalID string, keep func(model.Doctor) bool) []model.Doctor {
	m.mu.RLock()
	var out []model.Doctor
	for _, d := range m.doctors {
		if d.HospitalID == hospitalID && keep(d) {
			out = append(out, d)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) ClaimCapacity(_ context.Context, doctorID string) (model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[doctorID]
	if !ok {
		return model.Doctor{}, fmt.Errorf("doctor %s: %w", doctorID, ErrNotFound)
	}
	if !d.Available || d.CurrentWorkload >= d.MaxDailyCases {
		return d, fmt.Errorf("doctor %s: %w", doctorID, ErrNoCapacity)
	}
	d.CurrentWorkload++
	if d.CurrentWorkload >= d.MaxDailyCases {
		d.Available = false
	}
	m.doctors[doctorID] = d
	return d, nil
}

func (m *MemoryStore) ReleaseCapacity(_ context.Context, doctorID string) (model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[doctorID]
	if !ok {
		return model.Doctor{}, fmt.Errorf("doctor %s: %w", doctorID, ErrNotFound)
	}
	if d.CurrentWorkload > 0 {
		full := d.CurrentWorkload >= d.MaxDailyCases
		d.CurrentWorkload--
		if full && !d.Available {
			d.Available = true
		}
	}
	m.doctors[doctorID] = d
	return d, nil
}

func (m *MemoryStore) ResetWorkload(_ context.Context, hospitalID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, d := range m.doctors {
		if hospitalID != "" && d.HospitalID != hospitalID {
			continue
		}
		if !d.Available && d.MaxDailyCases > 0 && d.CurrentWorkload >= d.MaxDailyCases {
			d.Available = true
		}
		d.CurrentWorkload = 0
		m.doctors[id] = d
		n++
	}
	return n, nil
}

func (m *MemoryStore) CreateCase(_ context.Context, c model.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; ok {
		return fmt.Errorf("case %s: %w", c.ID, ErrConflict)
	}
	m.cases[c.ID] = c.Clone()
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, id string) (model.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return model.Case{}, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *MemoryStore) DeleteCase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	delete(m.cases, id)
	return nil
}

func (m *MemoryStore) ListCases(_ context.Context, f CaseFilter) ([]model.Case, error) {
	m.mu.RLock()
	var out []model.Case
	for _, c := range m.cases {
		if f.HospitalID != "" && c.HospitalID != f.HospitalID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) AssignCase(_ context.Context, caseID string, rec model.AssignmentRecord) (model.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return model.Case{}, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	if c.Status != model.StatusPending {
		return c.Clone(), fmt.Errorf("case %s is %s: %w", caseID, c.Status, ErrConflict)
	}
	c = c.Clone()
	c.Status = model.StatusAssigned
	c.AssignedDoctorID = rec.DoctorID
	c.LastUpdated = rec.AssignedAt
	c.AssignmentHistory = append(c.AssignmentHistory, rec)
	m.cases[caseID] = c
	return c.Clone(), nil
}

func (m *MemoryStore) RevertAssignment(_ context.Context, caseID, doctorID string, at time.Time) (model.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return model.Case{}, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	if c.Status != model.StatusAssigned || c.AssignedDoctorID != doctorID {
		return c.Clone(), fmt.Errorf("case %s not assigned to %s: %w", caseID, doctorID, ErrConflict)
	}
	c = c.Clone()
	c.Status = model.StatusPending
	c.AssignedDoctorID = ""
	c.LastUpdated = at
	if n := len(c.AssignmentHistory); n > 0 && c.AssignmentHistory[n-1].DoctorID == doctorID {
		c.AssignmentHistory = c.AssignmentHistory[:n-1]
	}
	m.cases[caseID] = c
	return c.Clone(), nil
}

func (m *MemoryStore) UpdateDeadlines(_ context.Context, hospitalID string, deadlines map[string]time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range deadlines {
		c, ok := m.cases[id]
		if !ok || c.HospitalID != hospitalID || c.Status != model.StatusPending {
			continue
		}
		c.SLADeadline = d
		c.PriorityScore = queue.Score(d)
		m.cases[id] = c
	}
	return nil
}

func (m *MemoryStore) CloseCase(_ context.Context, caseID string, status model.CaseStatus, at time.Time) (model.Case, error) {
	if !status.Terminal() {
		return model.Case{}, fmt.Errorf("close case %s with status %s: %w", caseID, status, ErrConflict)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return model.Case{}, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	if c.Status.Terminal() {
		return c.Clone(), fmt.Errorf("case %s already %s: %w", caseID, c.Status, ErrConflict)
	}
	c = c.Clone()
	c.Status = status
	c.LastUpdated = at
	m.cases[caseID] = c
	return c.Clone(), nil
}

func (m *MemoryStore) SaveOutcome(_ context.Context, o model.CaseOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outcomes[o.CaseID]; ok {
		return fmt.Errorf("outcome for %s: %w", o.CaseID, ErrConflict)
	}
	m.outcomes[o.CaseID] = o
	return nil
}

func (m *MemoryStore) GetOutcome(_ context.Context, caseID string) (model.CaseOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outcomes[caseID]
	if !ok {
		return model.CaseOutcome{}, fmt.Errorf("outcome for %s: %w", caseID, ErrNotFound)
	}
	return o, nil
}
