// Package monitoring defines the error reporting hook used by long running
// loops. The Sentry adapter lives in infra/monitoring.
package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover must be deferred. It reports a panic and re-raises it.
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

// OrNop returns m, or NopMonitor when m is nil.
func OrNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}

// Captured is one exception kept by Recorder.
type Captured struct {
	Err  error
	Tags map[string]string
}

// Recorder keeps captured exceptions in memory.
type Recorder struct {
	mu       sync.Mutex
	captured []Captured
}

func (r *Recorder) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.captured = append(r.captured, Captured{Err: err, Tags: tags})
	r.mu.Unlock()
}

func (r *Recorder) Recover() {
	if v := recover(); v != nil {
		panic(v)
	}
}

func (r *Recorder) Flush(time.Duration) {}

// Captured returns a copy of the exceptions seen so far.
func (r *Recorder) Captured() []Captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Captured(nil), r.captured...)
}
