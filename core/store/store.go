// Package store defines the entity persistence contracts used by the
// dispatch engine and an in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/medqueue/core/model"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrConflict    = errors.New("store: conflict")
	ErrUnavailable = errors.New("store: unavailable")
	// ErrNoCapacity is returned by ClaimCapacity when the doctor is full or unavailable.
	ErrNoCapacity = errors.New("store: no capacity")
)

type HospitalStore interface {
	CreateHospital(ctx context.Context, h model.Hospital) error
	GetHospital(ctx context.Context, id string) (model.Hospital, error)
	ListHospitals(ctx context.Context) ([]model.Hospital, error)
	UpdateHospital(ctx context.Context, h model.Hospital) error
	DeleteHospital(ctx context.Context, id string) error
}

type PatientStore interface {
	UpsertPatient(ctx context.Context, p model.Patient) error
	GetPatient(ctx context.Context, id string) (model.Patient, error)
}

// DoctorStore persists doctors. Workload is only changed through
// ClaimCapacity, ReleaseCapacity and ResetWorkload, each of which is a single
// conditional update.
type DoctorStore interface {
	CreateDoctor(ctx context.Context, d model.Doctor) error
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	// UpdateDoctor overwrites every field except the current workload. The
	// write only happens while the stored workload still equals
	// d.CurrentWorkload and fits under the new limit, otherwise it fails with
	// ErrConflict. Availability is stored as false when the doctor is full.
	UpdateDoctor(ctx context.Context, d model.Doctor) error
	DeleteDoctor(ctx context.Context, id string) error
	ListDoctors(ctx context.Context, hospitalID string) ([]model.Doctor, error)
	// ListAvailableDoctors returns doctors with availability set and workload
	// below the daily limit, read at call time.
	ListAvailableDoctors(ctx context.Context, hospitalID string) ([]model.Doctor, error)
	// ClaimCapacity increments the workload and clears availability when the
	// limit is reached. It fails with ErrNoCapacity instead of over-booking.
	ClaimCapacity(ctx context.Context, doctorID string) (model.Doctor, error)
	// ReleaseCapacity decrements the workload, never below zero, and restores
	// availability when the doctor was only unavailable because it was full.
	ReleaseCapacity(ctx context.Context, doctorID string) (model.Doctor, error)
	// ResetWorkload zeroes the workload of every doctor of the hospital, or
	// of all hospitals when hospitalID is empty. It returns the number of rows.
	ResetWorkload(ctx context.Context, hospitalID string) (int, error)
}

// CaseFilter selects cases in ListCases. Empty fields match everything.
type CaseFilter struct {
	HospitalID string
	Status     model.CaseStatus
}

type CaseStore interface {
	CreateCase(ctx context.Context, c model.Case) error
	GetCase(ctx context.Context, id string) (model.Case, error)
	DeleteCase(ctx context.Context, id string) error
	ListCases(ctx context.Context, f CaseFilter) ([]model.Case, error)
	// AssignCase moves a pending case to assigned and appends rec to its
	// history. It returns ErrConflict when the case is no longer pending.
	AssignCase(ctx context.Context, caseID string, rec model.AssignmentRecord) (model.Case, error)
	// RevertAssignment undoes AssignCase for the given doctor. It returns
	// ErrConflict when the case is not assigned to that doctor.
	RevertAssignment(ctx context.Context, caseID, doctorID string, at time.Time) (model.Case, error)
	// UpdateDeadlines rewrites deadline and priority of pending cases of the
	// hospital. Cases that are no longer pending are left untouched.
	UpdateDeadlines(ctx context.Context, hospitalID string, deadlines map[string]time.Time) error
	// CloseCase moves a case to a terminal status. It returns ErrConflict if
	// the case is already closed.
	CloseCase(ctx context.Context, caseID string, status model.CaseStatus, at time.Time) (model.Case, error)
}

type OutcomeStore interface {
	SaveOutcome(ctx context.Context, o model.CaseOutcome) error
	GetOutcome(ctx context.Context, caseID string) (model.CaseOutcome, error)
}

// Store groups every entity store.
type Store interface {
	HospitalStore
	PatientStore
	DoctorStore
	CaseStore
	OutcomeStore
	Close() error
}
