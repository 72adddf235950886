// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/store"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

// Run executes the shared checks against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Hospitals", func(t *testing.T) { testHospitals(t, newStore(t)) })
	t.Run("Patients", func(t *testing.T) { testPatients(t, newStore(t)) })
	t.Run("DoctorCapacity", func(t *testing.T) { testDoctorCapacity(t, newStore(t)) })
	t.Run("ConcurrentClaims", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("ResetWorkload", func(t *testing.T) { testResetWorkload(t, newStore(t)) })
	t.Run("CaseLifecycle", func(t *testing.T) { testCaseLifecycle(t, newStore(t)) })
	t.Run("UpdateDeadlines", func(t *testing.T) { testUpdateDeadlines(t, newStore(t)) })
	t.Run("Outcomes", func(t *testing.T) { testOutcomes(t, newStore(t)) })
}

func hospital(id string) model.Hospital {
	return model.Hospital{
		ID:                    id,
		Name:                  "General " + id,
		SLARules:              map[model.Urgency]int{model.UrgencyUrgent: 60},
		MaxCasesPerSpecialist: 5,
		MaxCasesPerGeneral:    6,
		WorkingHours:          map[string]string{"mon": "08:00-18:00"},
	}
}

func doctor(id, hospitalID string, maxCases int) model.Doctor {
	rate := 0.9
	return model.Doctor{
		ID:                 id,
		Name:               "Dr " + id,
		Specialty:          "cardiology",
		HospitalID:         hospitalID,
		Available:          true,
		MaxDailyCases:      maxCases,
		ExperienceYears:    10,
		PatientRating:      4.5,
		SpecializationTags: []string{"chest pain"},
		SuccessRate:        &rate,
		WorkingHours:       map[string]string{},
	}
}

func pendingCase(id, hospitalID string, created time.Time) model.Case {
	return model.Case{
		ID:          id,
		HospitalID:  hospitalID,
		PatientID:   "p-" + id,
		Urgency:     model.UrgencyUrgent,
		Status:      model.StatusPending,
		CreatedAt:   created,
		LastUpdated: created,
		SLADeadline: created.Add(time.Hour),
	}
}

func testHospitals(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateHospital(ctx, hospital("h1")))
	require.NoError(t, s.CreateHospital(ctx, hospital("h2")))
	assert.ErrorIs(t, s.CreateHospital(ctx, hospital("h1")), store.ErrConflict)

	got, err := s.GetHospital(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.SLARules[model.UrgencyUrgent])
	assert.Equal(t, "08:00-18:00", got.WorkingHours["mon"])

	got.SLARules = map[model.Urgency]int{model.UrgencyUrgent: 30}
	require.NoError(t, s.UpdateHospital(ctx, got))
	got, err = s.GetHospital(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 30, got.SLARules[model.UrgencyUrgent])

	list, err := s.ListHospitals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].ID)

	require.NoError(t, s.DeleteHospital(ctx, "h2"))
	_, err = s.GetHospital(ctx, "h2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateHospital(ctx, hospital("missing")), store.ErrNotFound)
}

func testPatients(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := model.Patient{ID: "p1", Age: 40, Symptoms: []string{"fever"}, Urgency: model.UrgencyRoutine, ArrivalTime: base}
	require.NoError(t, s.UpsertPatient(ctx, p))
	p.Age = 41
	p.Symptoms = []string{"fever", "cough"}
	require.NoError(t, s.UpsertPatient(ctx, p))
	got, err := s.GetPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 41, got.Age)
	assert.Equal(t, []string{"fever", "cough"}, got.Symptoms)
	_, err = s.GetPatient(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDoctorCapacity(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDoctor(ctx, doctor("d1", "h1", 2)))
	require.NoError(t, s.CreateDoctor(ctx, doctor("d2", "h2", 2)))

	d, err := s.ClaimCapacity(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.CurrentWorkload)
	assert.True(t, d.Available)

	d, err = s.ClaimCapacity(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, d.CurrentWorkload)
	assert.False(t, d.Available)

	_, err = s.ClaimCapacity(ctx, "d1")
	assert.ErrorIs(t, err, store.ErrNoCapacity)

	avail, err := s.ListAvailableDoctors(ctx, "h1")
	require.NoError(t, err)
	assert.Empty(t, avail)

	d, err = s.ReleaseCapacity(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.CurrentWorkload)
	assert.True(t, d.Available)

	avail, err = s.ListAvailableDoctors(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "d1", avail[0].ID)

	all, err := s.ListDoctors(ctx, "h2")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "d2", all[0].ID)

	stale := d
	stale.CurrentWorkload = 0
	assert.ErrorIs(t, s.UpdateDoctor(ctx, stale), store.ErrConflict)

	below := d
	below.MaxDailyCases = 0
	assert.ErrorIs(t, s.UpdateDoctor(ctx, below), store.ErrConflict)

	one, yes := 1, true
	require.NoError(t, s.UpdateDoctor(ctx, model.DoctorUpdate{MaxDailyCases: &one, Available: &yes}.Apply(d)))
	got, err := s.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MaxDailyCases)
	assert.False(t, got.Available)

	two, no := 2, false
	upd := model.DoctorUpdate{MaxDailyCases: &two, Available: &no}.Apply(got)
	require.NoError(t, s.UpdateDoctor(ctx, upd))
	got, err = s.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, 1, got.CurrentWorkload)
	require.NotNil(t, got.SuccessRate)
	assert.InDelta(t, 0.9, *got.SuccessRate, 1e-9)

	// A doctor disabled below capacity stays disabled on release.
	got, err = s.ReleaseCapacity(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentWorkload)
	assert.False(t, got.Available)

	got, err = s.ReleaseCapacity(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentWorkload)

	_, err = s.ClaimCapacity(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.DeleteDoctor(ctx, "d2"))
	_, err = s.GetDoctor(ctx, "d2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentClaims(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDoctor(ctx, doctor("d1", "h1", 3)))
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClaimCapacity(ctx, "d1")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrNoCapacity) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, wins)
	d, err := s.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, d.CurrentWorkload)
	assert.False(t, d.Available)
}

func testResetWorkload(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDoctor(ctx, doctor("d1", "h1", 1)))
	off := doctor("d2", "h1", 3)
	off.Available = false
	require.NoError(t, s.CreateDoctor(ctx, off))
	require.NoError(t, s.CreateDoctor(ctx, doctor("d3", "h2", 1)))

	_, err := s.ClaimCapacity(ctx, "d1")
	require.NoError(t, err)
	_, err = s.ClaimCapacity(ctx, "d3")
	require.NoError(t, err)

	n, err := s.ResetWorkload(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d1, _ := s.GetDoctor(ctx, "d1")
	d2, _ := s.GetDoctor(ctx, "d2")
	d3, _ := s.GetDoctor(ctx, "d3")
	assert.Equal(t, 0, d1.CurrentWorkload)
	assert.True(t, d1.Available)
	assert.False(t, d2.Available, "manually disabled doctor must stay disabled")
	assert.Equal(t, 1, d3.CurrentWorkload, "other hospital untouched")

	n, err = s.ResetWorkload(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	d3, _ = s.GetDoctor(ctx, "d3")
	assert.Equal(t, 0, d3.CurrentWorkload)
	assert.True(t, d3.Available)
}

func testCaseLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := pendingCase("c1", "h1", base)
	require.NoError(t, s.CreateCase(ctx, c))
	assert.ErrorIs(t, s.CreateCase(ctx, c), store.ErrConflict)

	rec := model.AssignmentRecord{DoctorID: "d1", Action: "assigned", Score: 2.5, AssignedAt: base.Add(time.Minute)}
	got, err := s.AssignCase(ctx, "c1", rec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, got.Status)
	assert.Equal(t, "d1", got.AssignedDoctorID)
	require.Len(t, got.AssignmentHistory, 1)

	_, err = s.AssignCase(ctx, "c1", model.AssignmentRecord{DoctorID: "d2", AssignedAt: base})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.RevertAssignment(ctx, "c1", "d2", base)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err = s.RevertAssignment(ctx, "c1", "d1", base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Empty(t, got.AssignedDoctorID)
	assert.Empty(t, got.AssignmentHistory)

	got, err = s.GetCase(ctx, "c1")
	require.NoError(t, err)
	assert.NoError(t, got.Validate())
	assert.True(t, got.SLADeadline.Equal(base.Add(time.Hour)))

	_, err = s.AssignCase(ctx, "c1", rec)
	require.NoError(t, err)
	closed, err := s.CloseCase(ctx, "c1", model.StatusCompleted, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, closed.Status)
	_, err = s.CloseCase(ctx, "c1", model.StatusCancelled, base)
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.CreateCase(ctx, pendingCase("c2", "h1", base.Add(time.Second))))
	require.NoError(t, s.CreateCase(ctx, pendingCase("c3", "h2", base)))
	pending, err := s.ListCases(ctx, store.CaseFilter{HospitalID: "h1", Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c2", pending[0].ID)

	all, err := s.ListCases(ctx, store.CaseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeleteCase(ctx, "c3"))
	_, err = s.GetCase(ctx, "c3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateDeadlines(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateCase(ctx, pendingCase("c1", "h1", base)))
	require.NoError(t, s.CreateCase(ctx, pendingCase("c2", "h1", base)))
	require.NoError(t, s.CreateCase(ctx, pendingCase("c3", "h2", base)))
	_, err := s.AssignCase(ctx, "c2", model.AssignmentRecord{DoctorID: "d1", AssignedAt: base})
	require.NoError(t, err)

	nd := base.Add(30 * time.Minute)
	require.NoError(t, s.UpdateDeadlines(ctx, "h1", map[string]time.Time{"c1": nd, "c2": nd, "c3": nd}))

	c1, _ := s.GetCase(ctx, "c1")
	c2, _ := s.GetCase(ctx, "c2")
	c3, _ := s.GetCase(ctx, "c3")
	assert.True(t, c1.SLADeadline.Equal(nd))
	assert.InDelta(t, float64(nd.Unix()), c1.PriorityScore, 1e-3)
	assert.True(t, c2.SLADeadline.Equal(base.Add(time.Hour)), "assigned case untouched")
	assert.True(t, c3.SLADeadline.Equal(base.Add(time.Hour)), "other hospital untouched")
}

func testOutcomes(t *testing.T, s store.Store) {
	ctx := context.Background()
	sat := 4.0
	o := model.CaseOutcome{ID: "o1", CaseID: "c1", FinalStatus: model.StatusCompleted, ActualDuration: 25, PatientSatisfaction: &sat, MetSLA: true, CreatedAt: base}
	require.NoError(t, s.SaveOutcome(ctx, o))
	assert.ErrorIs(t, s.SaveOutcome(ctx, o), store.ErrConflict)
	got, err := s.GetOutcome(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)
	assert.True(t, got.MetSLA)
	require.NotNil(t, got.PatientSatisfaction)
	assert.InDelta(t, 4.0, *got.PatientSatisfaction, 1e-9)
	_, err = s.GetOutcome(ctx, "c2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
