package dispatch

import (
	"errors"
	"time"

	"github.com/kilianp07/medqueue/core/logger"
	"github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/core/monitoring"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/registry"
	"github.com/kilianp07/medqueue/core/scoring"
	"github.com/kilianp07/medqueue/core/store"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

// Deps carries the collaborators shared by the dispatch components. Store,
// Index and Locker are required; the rest fall back to no-op versions.
type Deps struct {
	Store    store.Store
	Index    queue.DeadlineIndex
	Locker   queue.Locker
	Registry *registry.Registry
	Scorer   scoring.Scorer
	Sink     metrics.MetricsSink
	Bus      eventbus.EventBus
	Log      logger.Logger
	Monitor  monitoring.Monitor
	Now      func() time.Time
}

func (d *Deps) normalize() error {
	if d.Store == nil || d.Index == nil || d.Locker == nil {
		return errors.New("dispatch: store, index and locker are required")
	}
	d.Log = logger.OrNop(d.Log)
	if d.Registry == nil {
		d.Registry = registry.New(d.Store, d.Log)
	}
	if d.Sink == nil {
		d.Sink = metrics.NopSink{}
	}
	d.Monitor = monitoring.OrNop(d.Monitor)
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}

func (d Deps) publish(ev eventbus.Event) {
	if d.Bus != nil {
		d.Bus.Publish(ev)
	}
}
