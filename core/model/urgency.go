package model

import (
	"fmt"
	"strings"
)

// Urgency defines how quickly a patient has to be seen.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyRoutine   Urgency = "routine"
)

// ParseUrgency converts a user supplied string into an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(strings.ToLower(strings.TrimSpace(s)))
	switch u {
	case UrgencyEmergency, UrgencyUrgent, UrgencyRoutine:
		return u, nil
	default:
		return "", fmt.Errorf("unknown urgency level %q", s)
	}
}

// Rank orders urgencies from most (1) to least (3) pressing. Unknown levels rank last.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyEmergency:
		return 1
	case UrgencyUrgent:
		return 2
	case UrgencyRoutine:
		return 3
	default:
		return 4
	}
}

func (u Urgency) String() string { return string(u) }

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	StatusPending   CaseStatus = "pending"
	StatusAssigned  CaseStatus = "assigned"
	StatusCompleted CaseStatus = "completed"
	StatusCancelled CaseStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s CaseStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
