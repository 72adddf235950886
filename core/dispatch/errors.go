package dispatch

import (
	"context"
	"errors"

	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/store"
)

var (
	// ErrTenantNotFound is returned when the hospital policy does not exist.
	ErrTenantNotFound = errors.New("dispatch: hospital not found")
	// ErrCaseAssigned is returned by Delete for a case bound to a doctor.
	ErrCaseAssigned = errors.New("dispatch: case is assigned")
	// ErrCaseClosed is returned when an outcome was already recorded.
	ErrCaseClosed = errors.New("dispatch: case is closed")
	// ErrTenantMismatch flags a case found in another hospital's queue.
	ErrTenantMismatch = errors.New("dispatch: case belongs to another hospital")
	// ErrHospitalInUse is returned when deleting a hospital with open cases.
	ErrHospitalInUse = errors.New("dispatch: hospital has open cases")
	// ErrInvalidInput wraps rejected identifiers, limits and SLA rules.
	ErrInvalidInput = errors.New("dispatch: invalid input")
)

// IsUnavailable reports whether err comes from an unreachable dependency.
// Such errors are retried with backoff rather than reported.
func IsUnavailable(err error) bool {
	return errors.Is(err, queue.ErrUnavailable) || errors.Is(err, store.ErrUnavailable)
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
