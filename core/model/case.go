package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionAssigned marks an assignment record written by the dispatcher.
const ActionAssigned = "assigned"

// AssignmentRecord is one entry of a case's audit trail.
type AssignmentRecord struct {
	DoctorID   string    `json:"doctor_id"`
	Action     string    `json:"action"`
	Score      float64   `json:"score"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy string    `json:"assigned_by,omitempty"`
}

// Case is a unit of work waiting for, or assigned to, a doctor.
type Case struct {
	ID         string `json:"case_id"`
	HospitalID string `json:"hospital_id"`
	PatientID  string `json:"patient_id"`
	// Urgency is the patient urgency at admission. It selects the SLA rule
	// used when the hospital queue is rebuilt.
	Urgency           Urgency            `json:"urgency_level"`
	AssignedDoctorID  string             `json:"assigned_doctor_id,omitempty"`
	Status            CaseStatus         `json:"status"`
	PriorityScore     float64            `json:"priority_score"`
	MLPriorityScore   *float64           `json:"ml_priority_score,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	LastUpdated       time.Time          `json:"last_updated"`
	SLADeadline       time.Time          `json:"sla_deadline"`
	AssignmentHistory []AssignmentRecord `json:"assignment_history"`
	PredictedDuration *float64           `json:"predicted_duration,omitempty"`
	ComplexityScore   *float64           `json:"complexity_score,omitempty"`
}

// NewCaseID builds a unique case identifier stamped with the admission time.
func NewCaseID(now time.Time) string {
	return fmt.Sprintf("case_%d_%s", now.Unix(), uuid.NewString())
}

// Validate checks the assigned/doctor invariant.
func (c Case) Validate() error {
	if c.ID == "" || c.HospitalID == "" {
		return fmt.Errorf("case requires id and hospital")
	}
	switch c.Status {
	case StatusAssigned:
		if c.AssignedDoctorID == "" {
			return fmt.Errorf("case %s: assigned without doctor", c.ID)
		}
	case StatusPending:
		if c.AssignedDoctorID != "" {
			return fmt.Errorf("case %s: pending with doctor %s", c.ID, c.AssignedDoctorID)
		}
	case StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("case %s: unknown status %q", c.ID, c.Status)
	}
	return nil
}

// FirstAssignedAt returns when the case was first given to a doctor.
func (c Case) FirstAssignedAt() (time.Time, bool) {
	for _, r := range c.AssignmentHistory {
		if r.Action == ActionAssigned {
			return r.AssignedAt, true
		}
	}
	return time.Time{}, false
}

// Assignments counts the assignment records of the history.
func (c Case) Assignments() int {
	n := 0
	for _, r := range c.AssignmentHistory {
		if r.Action == ActionAssigned {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to mutate.
func (c Case) Clone() Case {
	cp := c
	cp.AssignmentHistory = append([]AssignmentRecord(nil), c.AssignmentHistory...)
	return cp
}

// CaseOutcome is the terminal record written when a case is closed.
type CaseOutcome struct {
	ID                  string     `json:"id"`
	CaseID              string     `json:"case_id"`
	FinalStatus         CaseStatus `json:"final_status"`
	ActualDuration      float64    `json:"actual_duration"`
	PatientSatisfaction *float64   `json:"patient_satisfaction,omitempty"`
	WasReassigned       bool       `json:"was_reassigned"`
	MetSLA              bool       `json:"met_sla"`
	CreatedAt           time.Time  `json:"created_at"`
}
