package model

import "time"

// DefaultSLAMinutes is used when a hospital has no rule for an urgency level.
const DefaultSLAMinutes = 120

// Hospital is the tenant policy: SLA offsets per urgency and capacity limits.
type Hospital struct {
	ID                    string            `json:"hospital_id" yaml:"hospital_id"`
	Name                  string            `json:"name" yaml:"name"`
	SLARules              map[Urgency]int   `json:"sla_rules" yaml:"sla_rules"`
	MaxCasesPerSpecialist int               `json:"max_cases_per_specialist" yaml:"max_cases_per_specialist"`
	MaxCasesPerGeneral    int               `json:"max_cases_per_general" yaml:"max_cases_per_general"`
	WorkingHours          map[string]string `json:"working_hours" yaml:"working_hours"`
}

// SLAFor returns the deadline offset configured for the urgency level, or the
// fallback (in minutes) when no rule exists.
func (h Hospital) SLAFor(u Urgency, fallbackMinutes int) time.Duration {
	if m, ok := h.SLARules[u]; ok && m > 0 {
		return time.Duration(m) * time.Minute
	}
	if fallbackMinutes <= 0 {
		fallbackMinutes = DefaultSLAMinutes
	}
	return time.Duration(fallbackMinutes) * time.Minute
}

// ApplyDefaults fills capacity limits left at zero.
func (h *Hospital) ApplyDefaults() {
	if h.MaxCasesPerSpecialist == 0 {
		h.MaxCasesPerSpecialist = 5
	}
	if h.MaxCasesPerGeneral == 0 {
		h.MaxCasesPerGeneral = 6
	}
	if h.SLARules == nil {
		h.SLARules = map[Urgency]int{}
	}
	if h.WorkingHours == nil {
		h.WorkingHours = map[string]string{}
	}
}

// HospitalUpdate carries a partial policy update. Nil fields are left untouched.
type HospitalUpdate struct {
	Name                  *string
	SLARules              map[Urgency]int
	MaxCasesPerSpecialist *int
	MaxCasesPerGeneral    *int
	WorkingHours          map[string]string
}

// Apply returns h with the provided fields overwritten.
func (u HospitalUpdate) Apply(h Hospital) Hospital {
	if u.Name != nil {
		h.Name = *u.Name
	}
	if u.SLARules != nil {
		rules := make(map[Urgency]int, len(u.SLARules))
		for k, v := range u.SLARules {
			rules[k] = v
		}
		h.SLARules = rules
	}
	if u.MaxCasesPerSpecialist != nil {
		h.MaxCasesPerSpecialist = *u.MaxCasesPerSpecialist
	}
	if u.MaxCasesPerGeneral != nil {
		h.MaxCasesPerGeneral = *u.MaxCasesPerGeneral
	}
	if u.WorkingHours != nil {
		wh := make(map[string]string, len(u.WorkingHours))
		for k, v := range u.WorkingHours {
			wh[k] = v
		}
		h.WorkingHours = wh
	}
	return h
}

// ChangesSLA reports whether applying the update can move deadlines.
func (u HospitalUpdate) ChangesSLA() bool { return u.SLARules != nil }
