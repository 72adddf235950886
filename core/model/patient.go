package model

import (
	"strings"
	"time"
)

// Patient is the subject of a case.
type Patient struct {
	ID              string    `json:"patient_id" yaml:"patient_id"`
	Age             int       `json:"age" yaml:"age"`
	Gender          string    `json:"gender" yaml:"gender"`
	MedicalHistory  []string  `json:"medical_history" yaml:"medical_history"`
	Symptoms        []string  `json:"symptoms" yaml:"symptoms"`
	Urgency         Urgency   `json:"urgency_level" yaml:"urgency_level"`
	PreferredDoctor string    `json:"preferred_doctor,omitempty" yaml:"preferred_doctor"`
	ArrivalTime     time.Time `json:"arrival_time" yaml:"arrival_time"`
	TriageScore     *float64  `json:"triage_score,omitempty" yaml:"triage_score"`
}

// HasSymptom reports whether any symptom equals tag, ignoring case.
func (p Patient) HasSymptom(tag string) bool {
	for _, s := range p.Symptoms {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(tag)) {
			return true
		}
	}
	return false
}
