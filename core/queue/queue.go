package queue

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrLockNotAcquired is returned when a lock could not be taken within the wait.
	ErrLockNotAcquired = errors.New("queue: lock not acquired")
	// ErrLockLost is returned by Release when the lease expired before release.
	ErrLockLost = errors.New("queue: lock lost")
	// ErrUnavailable wraps transport failures of the backing store.
	ErrUnavailable = errors.New("queue: backend unavailable")
)

// Entry is one pending case of a hospital queue.
type Entry struct {
	CaseID string  `json:"case_id"`
	Score  float64 `json:"score"`
}

// Deadline converts the entry score back to a time.
func (e Entry) Deadline() time.Time { return FromScore(e.Score) }

// Score converts a deadline to the numeric key used for ordering. It is the
// unix time in seconds with sub-second precision.
func Score(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromScore is the inverse of Score, rounded to the microsecond.
func FromScore(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}

// DeadlineIndex is the per-hospital ordered set of pending cases.
type DeadlineIndex interface {
	// Insert adds the case or replaces its score.
	Insert(ctx context.Context, hospitalID, caseID string, deadline time.Time) error
	// Remove deletes the case. Removing an absent case is not an error.
	Remove(ctx context.Context, hospitalID, caseID string) error
	// PeekEarliest returns the entry with the lowest score without removing it.
	// Equal scores are ordered by case identifier.
	PeekEarliest(ctx context.Context, hospitalID string) (Entry, bool, error)
	// Rebuild atomically replaces the whole set of the hospital.
	Rebuild(ctx context.Context, hospitalID string, entries []Entry) error
	// Lookup returns the score of a single case.
	Lookup(ctx context.Context, hospitalID, caseID string) (float64, bool, error)
	Len(ctx context.Context, hospitalID string) (int, error)
	// Tenants lists hospitals with at least one pending entry.
	Tenants(ctx context.Context) ([]string, error)
}

// Lock is a held lease on a key.
type Lock interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases. Acquire blocks at most wait and returns
// ErrLockNotAcquired when the key stays held by someone else.
type Locker interface {
	Acquire(ctx context.Context, key string, lease, wait time.Duration) (Lock, error)
}

const (
	queuePrefix      = "hospital_queue:"
	caseLockPrefix   = "case_lock:"
	tenantLockPrefix = "queue_update_lock:"
)

// QueueKey is the storage key of a hospital's deadline index.
func QueueKey(hospitalID string) string { return queuePrefix + hospitalID }

// HospitalFromKey extracts the hospital identifier from a queue key.
func HospitalFromKey(key string) (string, bool) {
	if len(key) <= len(queuePrefix) || key[:len(queuePrefix)] != queuePrefix {
		return "", false
	}
	return key[len(queuePrefix):], true
}

// CaseLockKey is the lock key guarding a single case.
func CaseLockKey(caseID string) string { return caseLockPrefix + caseID }

// TenantLockKey is the lock key guarding a hospital index rebuild.
func TenantLockKey(hospitalID string) string { return tenantLockPrefix + hospitalID }

// PollInterval is the delay between two acquisition attempts.
const PollInterval = 10 * time.Millisecond

// AcquireWithin calls try until it reports success, returns an error, the wait
// elapses or ctx is done. A non-positive wait makes a single attempt.
func AcquireWithin(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockNotAcquired
		}
		delay := PollInterval
		if remaining < delay {
			delay = remaining
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
