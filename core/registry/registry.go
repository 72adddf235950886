// Package registry exposes the doctors of a hospital as a pool of capacity.
package registry

import (
	"context"

	"github.com/kilianp07/medqueue/core/logger"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/store"
)

// Registry reads doctors straight from the store on every call so that
// concurrent claims are always observed.
type Registry struct {
	doctors store.DoctorStore
	log     logger.Logger
}

// New returns a Registry backed by ds.
func New(ds store.DoctorStore, log logger.Logger) *Registry {
	return &Registry{doctors: ds, log: logger.OrNop(log)}
}

// ListAvailable returns the doctors of the hospital able to take a case now.
// Doctors without a daily limit are dropped here as well.
func (r *Registry) ListAvailable(ctx context.Context, hospitalID string) ([]model.Doctor, error) {
	ds, err := r.doctors.ListAvailableDoctors(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	out := ds[:0]
	for _, d := range ds {
		if d.Eligible() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *Registry) ClaimCapacity(ctx context.Context, doctorID string) (model.Doctor, error) {
	return r.doctors.ClaimCapacity(ctx, doctorID)
}

func (r *Registry) ReleaseCapacity(ctx context.Context, doctorID string) (model.Doctor, error) {
	return r.doctors.ReleaseCapacity(ctx, doctorID)
}

// ResetAll zeroes the workload of one hospital, or of every hospital when
// hospitalID is empty.
func (r *Registry) ResetAll(ctx context.Context, hospitalID string) (int, error) {
	n, err := r.doctors.ResetWorkload(ctx, hospitalID)
	if err != nil {
		return 0, err
	}
	scope := hospitalID
	if scope == "" {
		scope = "all hospitals"
	}
	r.log.Infof("workload reset for %d doctors (%s)", n, scope)
	return n, nil
}
