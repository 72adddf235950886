// Package scenarios replays YAML dispatch scenarios against an in-memory
// engine and checks the resulting assignments.
package scenarios

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/medqueue/core/model"
)

// AdmitDef admits one case.
type AdmitDef struct {
	Hospital string   `yaml:"hospital,omitempty"`
	Patient  string   `yaml:"patient"`
	Urgency  string   `yaml:"urgency"`
	Age      int      `yaml:"age,omitempty"`
	Symptoms []string `yaml:"symptoms,omitempty"`
}

// AvailabilityDef toggles a doctor.
type AvailabilityDef struct {
	Hospital  string `yaml:"hospital,omitempty"`
	Doctor    string `yaml:"doctor"`
	Available bool   `yaml:"available"`
}

// SLADef replaces the SLA rules of a hospital.
type SLADef struct {
	Hospital string                `yaml:"hospital,omitempty"`
	Rules    map[model.Urgency]int `yaml:"rules"`
}

// Step is one action at a point of the scenario clock. Exactly one action
// field must be set.
type Step struct {
	AtMinute      int              `yaml:"at_minute"`
	Admit         *AdmitDef        `yaml:"admit,omitempty"`
	Dispatch      int              `yaml:"dispatch,omitempty"`
	Availability  *AvailabilityDef `yaml:"availability,omitempty"`
	SLA           *SLADef          `yaml:"sla,omitempty"`
	ResetWorkload bool             `yaml:"reset_workload,omitempty"`
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Admit != nil, s.Dispatch > 0, s.Availability != nil, s.SLA != nil, s.ResetWorkload} {
		if set {
			n++
		}
	}
	return n
}

// Expected is checked once every step has run.
type Expected struct {
	// Assignments maps patient ids to the doctor their case went to.
	Assignments map[string]string `yaml:"assignments"`
	Pending     []string          `yaml:"pending,omitempty"`
	// Claims counts claim attempts per outcome.
	Claims map[string]int `yaml:"claims,omitempty"`
	MetSLA int            `yaml:"met_sla,omitempty"`
}

type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Hospitals   []model.Hospital `yaml:"hospitals"`
	Doctors     []model.Doctor   `yaml:"doctors"`
	Steps       []Step           `yaml:"steps"`
	Expected    Expected         `yaml:"expected"`
}

// Validate rejects scenarios that cannot be replayed.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return errors.New("scenario without name")
	}
	if len(sc.Hospitals) == 0 {
		return fmt.Errorf("scenario %s: no hospital", sc.Name)
	}
	last := 0
	for i, st := range sc.Steps {
		if st.actions() != 1 {
			return fmt.Errorf("scenario %s: step %d must have exactly one action", sc.Name, i)
		}
		if st.AtMinute < last {
			return fmt.Errorf("scenario %s: step %d goes back in time", sc.Name, i)
		}
		last = st.AtMinute
	}
	return nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}
