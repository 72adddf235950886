package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/medqueue/core/model"
)

// Config defines dispatch-related settings.
type Config struct {
	// Workers bounds how many hospitals are served concurrently.
	Workers int `json:"workers"`
	// IdleInterval is the pause after a cycle that assigned nothing.
	IdleInterval time.Duration `json:"idle_interval"`
	// ErrorBackoff is the first pause after an unavailable dependency.
	ErrorBackoff time.Duration `json:"error_backoff"`
	MaxBackoff   time.Duration `json:"max_backoff"`

	CaseLockLease    time.Duration `json:"case_lock_lease"`
	CaseLockWait     time.Duration `json:"case_lock_wait"`
	RebuildLockLease time.Duration `json:"rebuild_lock_lease"`
	RebuildLockWait  time.Duration `json:"rebuild_lock_wait"`

	// DefaultSLAMinutes applies to urgencies without a hospital rule.
	DefaultSLAMinutes int `json:"default_sla_minutes"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.CaseLockLease <= 0 {
		c.CaseLockLease = 10 * time.Second
	}
	if c.CaseLockWait <= 0 {
		c.CaseLockWait = time.Second
	}
	if c.RebuildLockLease <= 0 {
		c.RebuildLockLease = 10 * time.Second
	}
	if c.RebuildLockWait <= 0 {
		c.RebuildLockWait = time.Second
	}
	if c.DefaultSLAMinutes <= 0 {
		c.DefaultSLAMinutes = model.DefaultSLAMinutes
	}
}

// Validate checks that the settings are consistent.
func (c Config) Validate() error {
	if c.MaxBackoff < c.ErrorBackoff {
		return fmt.Errorf("dispatch: max_backoff %s below error_backoff %s", c.MaxBackoff, c.ErrorBackoff)
	}
	if c.CaseLockWait > c.CaseLockLease {
		return fmt.Errorf("dispatch: case_lock_wait %s exceeds case_lock_lease %s", c.CaseLockWait, c.CaseLockLease)
	}
	if c.RebuildLockWait > c.RebuildLockLease {
		return fmt.Errorf("dispatch: rebuild_lock_wait %s exceeds rebuild_lock_lease %s", c.RebuildLockWait, c.RebuildLockLease)
	}
	return nil
}
