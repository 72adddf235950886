package events

import (
	"time"

	"github.com/kilianp07/medqueue/core/model"
)

// CaseAdmitted is published after a case has been stored and indexed.
type CaseAdmitted struct {
	HospitalID string
	CaseID     string
	PatientID  string
	Urgency    model.Urgency
	Deadline   time.Time
	Time       time.Time
}

// ClaimAttempt is published for every TryAssign call. Outcome is one of the
// metrics.Outcome* constants.
type ClaimAttempt struct {
	HospitalID string
	CaseID     string
	Outcome    string
	Latency    time.Duration
	Err        error
	Time       time.Time
}

// CaseAssigned is published once a case is bound to a doctor.
type CaseAssigned struct {
	HospitalID string
	CaseID     string
	DoctorID   string
	Score      float64
	Deadline   time.Time
	Wait       time.Duration
	Time       time.Time
}

// CaseClosed is published when an outcome is recorded.
type CaseClosed struct {
	HospitalID string
	CaseID     string
	DoctorID   string
	Status     model.CaseStatus
	MetSLA     bool
	Time       time.Time
}

// QueueRebuilt is published after a hospital index rebuild.
type QueueRebuilt struct {
	HospitalID string
	Entries    int
	Duration   time.Duration
	Time       time.Time
}

// WorkloadReset is published after the daily workload reset. An empty
// HospitalID means every hospital.
type WorkloadReset struct {
	HospitalID string
	Doctors    int
	Time       time.Time
}
