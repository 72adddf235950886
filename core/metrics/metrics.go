package metrics

import (
	"time"

	"github.com/kilianp07/medqueue/core/model"
)

// Claim outcomes reported by the coordinator.
const (
	OutcomeAssigned  = "assigned"
	OutcomeContended = "contended"
	OutcomeStale     = "stale"
	OutcomeNoDoctor  = "no_doctor"
	OutcomeError     = "error"
)

// ClaimEvent describes one TryAssign call.
type ClaimEvent struct {
	HospitalID string
	CaseID     string
	Outcome    string
	Latency    time.Duration
	Time       time.Time
}

// MetricsSink records dispatch activity for observability purposes.
type MetricsSink interface {
	RecordClaim(ev ClaimEvent) error
}

// AdmissionEvent is recorded for every admitted case.
type AdmissionEvent struct {
	HospitalID string
	CaseID     string
	Urgency    model.Urgency
	Deadline   time.Time
	Time       time.Time
}

// AdmissionRecorder records admissions.
type AdmissionRecorder interface {
	RecordAdmission(ev AdmissionEvent) error
}

// AssignmentEvent captures a successful assignment.
type AssignmentEvent struct {
	HospitalID string
	CaseID     string
	DoctorID   string
	Score      float64
	// Wait is the time spent in the queue.
	Wait time.Duration
	// MetSLA is false when the case was assigned after its deadline.
	MetSLA bool
	Time   time.Time
}

// AssignmentRecorder records assignments.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentEvent) error
}

// QueueSample is a point-in-time view of one hospital queue.
type QueueSample struct {
	HospitalID string
	Depth      int
	// HeadLag is how far the earliest deadline is in the past. Zero when the
	// head is not overdue or the queue is empty.
	HeadLag time.Duration
	Time    time.Time
}

// QueueRecorder records queue samples.
type QueueRecorder interface {
	RecordQueue(s QueueSample) error
}

// RebuildEvent is recorded after a hospital index rebuild.
type RebuildEvent struct {
	HospitalID string
	Entries    int
	Duration   time.Duration
	Time       time.Time
}

// RebuildRecorder records rebuilds.
type RebuildRecorder interface {
	RecordRebuild(ev RebuildEvent) error
}

// OutcomeEvent is recorded when a case is closed.
type OutcomeEvent struct {
	HospitalID string
	CaseID     string
	Status     model.CaseStatus
	MetSLA     bool
	Time       time.Time
}

// OutcomeRecorder records closed cases.
type OutcomeRecorder interface {
	RecordOutcome(ev OutcomeEvent) error
}

// ResetEvent is recorded after a workload reset.
type ResetEvent struct {
	HospitalID string
	Doctors    int
	Time       time.Time
}

// ResetRecorder records workload resets.
type ResetRecorder interface {
	RecordReset(ev ResetEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordClaim(ClaimEvent) error         { return nil }
func (NopSink) RecordAdmission(AdmissionEvent) error { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error {
	return nil
}
func (NopSink) RecordQueue(QueueSample) error    { return nil }
func (NopSink) RecordRebuild(RebuildEvent) error { return nil }
func (NopSink) RecordOutcome(OutcomeEvent) error { return nil }
func (NopSink) RecordReset(ResetEvent) error     { return nil }
