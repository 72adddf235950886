package metrics

import (
	"context"

	"github.com/kilianp07/medqueue/core/events"
	coremetrics "github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records the events the
// engine does not report to the sink directly: closed cases and workload
// resets. It stops when the context is canceled. The returned channel is
// closed once the collector has unsubscribed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
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
				switch e := ev.(type) {
				case events.CaseClosed:
					if r, ok := sink.(coremetrics.OutcomeRecorder); ok {
						_ = r.RecordOutcome(coremetrics.OutcomeEvent{
							HospitalID: e.HospitalID,
							CaseID:     e.CaseID,
							Status:     e.Status,
							MetSLA:     e.MetSLA,
							Time:       e.Time,
						})
					}
				case events.WorkloadReset:
					if r, ok := sink.(coremetrics.ResetRecorder); ok {
						_ = r.RecordReset(coremetrics.ResetEvent{HospitalID: e.HospitalID, Doctors: e.Doctors, Time: e.Time})
					}
				}
			}
		}
	}()
	return done
}
