package notify

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/medqueue/core/events"
	"github.com/kilianp07/medqueue/core/factory"
	"github.com/kilianp07/medqueue/core/logger"
	"github.com/kilianp07/medqueue/core/monitoring"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

// Notification kinds.
const (
	KindCaseAdmitted  = "case_admitted"
	KindCaseAssigned  = "case_assigned"
	KindCaseClosed    = "case_closed"
	KindQueueRebuilt  = "queue_rebuilt"
	KindWorkloadReset = "workload_reset"
)

// ErrClosed is returned by publishers used after Close.
var ErrClosed = errors.New("notify: publisher closed")

// Notification is the payload sent to external consumers.
type Notification struct {
	Kind       string     `json:"kind"`
	HospitalID string     `json:"hospital_id,omitempty"`
	CaseID     string     `json:"case_id,omitempty"`
	DoctorID   string     `json:"doctor_id,omitempty"`
	Urgency    string     `json:"urgency,omitempty"`
	Status     string     `json:"status,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	WaitSec    float64    `json:"wait_seconds,omitempty"`
	MetSLA     *bool      `json:"met_sla,omitempty"`
	Count      int        `json:"count,omitempty"`
	Time       time.Time  `json:"time"`
}

// Publisher delivers notifications to a transport.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Publish(context.Context, Notification) error { return nil }
func (Nop) Close() error                                { return nil }

// FromEvent converts a bus event. Claim attempts and unknown events are not
// notified.
func FromEvent(ev eventbus.Event) (Notification, bool) {
	switch e := ev.(type) {
	case events.CaseAdmitted:
		d := e.Deadline
		return Notification{Kind: KindCaseAdmitted, HospitalID: e.HospitalID, CaseID: e.CaseID,
			Urgency: string(e.Urgency), Deadline: &d, Time: e.Time}, true
	case events.CaseAssigned:
		d := e.Deadline
		met := !e.Time.After(e.Deadline)
		return Notification{Kind: KindCaseAssigned, HospitalID: e.HospitalID, CaseID: e.CaseID,
			DoctorID: e.DoctorID, Deadline: &d, WaitSec: e.Wait.Seconds(), MetSLA: &met, Time: e.Time}, true
	case events.CaseClosed:
		met := e.MetSLA
		return Notification{Kind: KindCaseClosed, HospitalID: e.HospitalID, CaseID: e.CaseID,
			DoctorID: e.DoctorID, Status: string(e.Status), MetSLA: &met, Time: e.Time}, true
	case events.QueueRebuilt:
		return Notification{Kind: KindQueueRebuilt, HospitalID: e.HospitalID, Count: e.Entries, Time: e.Time}, true
	case events.WorkloadReset:
		return Notification{Kind: KindWorkloadReset, HospitalID: e.HospitalID, Count: e.Doctors, Time: e.Time}, true
	}
	return Notification{}, false
}

// Scope returns the hospital segment used in topics and subjects.
func (n Notification) Scope() string {
	if n.HospitalID == "" {
		return "all"
	}
	return n.HospitalID
}

// Forward publishes every notifiable bus event until ctx is canceled or the
// bus is closed. Publish failures are logged and reported, never retried
// here. The returned channel is closed once forwarding stopped.
func Forward(ctx context.Context, bus eventbus.EventBus, pub Publisher, log logger.Logger, mon monitoring.Monitor) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || pub == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	mon = monitoring.OrNop(mon)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				n, ok := FromEvent(ev)
				if !ok {
					continue
				}
				if err := pub.Publish(ctx, n); err != nil {
					log.Errorf("notify %s for hospital %s case %s: %v", n.Kind, n.HospitalID, n.CaseID, err)
					mon.CaptureException(err, map[string]string{"module": "notify", "kind": n.Kind, "hospital_id": n.HospitalID})
				}
			}
		}
	}()
	return done
}

var publisherRegistry = factory.NewRegistry[Publisher]()

func init() {
	_ = RegisterPublisher("none", func(map[string]any) (Publisher, error) { return Nop{}, nil })
}

// RegisterPublisher adds a publisher factory identified by name.
func RegisterPublisher(name string, f factory.Factory[Publisher]) error {
	return publisherRegistry.Register(name, f)
}

// NewPublisher creates the configured publisher. An empty type means none.
func NewPublisher(cfg factory.ModuleConfig) (Publisher, error) {
	if cfg.Type == "" {
		return Nop{}, nil
	}
	return publisherRegistry.Create(cfg)
}
