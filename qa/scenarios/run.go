package scenarios

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/kilianp07/medqueue/core/dispatch"
	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/registry"
	"github.com/kilianp07/medqueue/core/store"
	"github.com/kilianp07/medqueue/infra/logger"
	"github.com/kilianp07/medqueue/infra/metrics"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

var epoch = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func RunScenario(t *testing.T, sc *Scenario) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	now := epoch
	st := store.NewMemoryStore()
	bus := eventbus.New()
	defer bus.Close()
	doctors := registry.New(st, logger.NopLogger{})
	eng, err := dispatch.NewEngine(dispatch.Deps{
		Store:    st,
		Index:    queue.NewMemoryIndex(),
		Locker:   queue.NewMemoryLocker(),
		Registry: doctors,
		Sink:     sink,
		Bus:      bus,
		Log:      logger.NopLogger{},
		Now:      func() time.Time { return now },
	}, dispatch.Config{Workers: 1})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	loop := eng.NewLoop()

	for _, h := range sc.Hospitals {
		if _, err := eng.CreateHospital(ctx, h); err != nil {
			t.Fatalf("hospital %s: %v", h.ID, err)
		}
	}
	for _, d := range sc.Doctors {
		if _, err := eng.RegisterDoctor(ctx, d); err != nil {
			t.Fatalf("doctor %s: %v", d.ID, err)
		}
	}

	hospital := func(id string) string {
		if id == "" {
			return sc.Hospitals[0].ID
		}
		return id
	}
	cases := make(map[string]string)
	for i, step := range sc.Steps {
		now = epoch.Add(time.Duration(step.AtMinute) * time.Minute)
		switch {
		case step.Admit != nil:
			a := step.Admit
			u, err := model.ParseUrgency(a.Urgency)
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			id, err := eng.Admit(ctx, hospital(a.Hospital), model.Patient{ID: a.Patient, Age: a.Age, Symptoms: a.Symptoms}, u)
			if err != nil {
				t.Fatalf("step %d: admit %s: %v", i, a.Patient, err)
			}
			cases[a.Patient] = id
		case step.Dispatch > 0:
			for n := 0; n < step.Dispatch; n++ {
				if _, err := loop.RunOnce(ctx); err != nil {
					t.Fatalf("step %d: dispatch cycle %d: %v", i, n, err)
				}
			}
		case step.Availability != nil:
			a := step.Availability
			if _, err := eng.SetAvailability(ctx, hospital(a.Hospital), a.Doctor, a.Available); err != nil {
				t.Fatalf("step %d: availability %s: %v", i, a.Doctor, err)
			}
		case step.SLA != nil:
			if _, err := eng.UpdateHospital(ctx, hospital(step.SLA.Hospital), model.HospitalUpdate{SLARules: step.SLA.Rules}); err != nil {
				t.Fatalf("step %d: sla: %v", i, err)
			}
		case step.ResetWorkload:
			if _, err := doctors.ResetAll(ctx, ""); err != nil {
				t.Fatalf("step %d: reset: %v", i, err)
			}
		}
	}

	var pending []string
	for patient, id := range cases {
		c, err := eng.GetCase(ctx, id)
		if err != nil {
			t.Fatalf("case of %s: %v", patient, err)
		}
		switch c.Status {
		case model.StatusPending:
			pending = append(pending, patient)
		case model.StatusAssigned:
			if want, ok := sc.Expected.Assignments[patient]; !ok || want != c.AssignedDoctorID {
				t.Errorf("scenario %s: %s assigned to %s, expected %q", sc.Name, patient, c.AssignedDoctorID, want)
			}
		}
	}
	for patient := range sc.Expected.Assignments {
		if _, ok := cases[patient]; !ok {
			t.Errorf("scenario %s: expected assignment for unknown patient %s", sc.Name, patient)
		}
	}
	sort.Strings(pending)
	want := append([]string(nil), sc.Expected.Pending...)
	sort.Strings(want)
	if !equalStrings(pending, want) {
		t.Errorf("scenario %s: pending %v, expected %v", sc.Name, pending, want)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for outcome, n := range sc.Expected.Claims {
		if got := counterSum(families, "medqueue_claims_total", "outcome", outcome); got != float64(n) {
			t.Errorf("scenario %s: %g %s claims, expected %d", sc.Name, got, outcome, n)
		}
	}
	if got := counterSum(families, "medqueue_assignment_sla_total", "result", "met"); got != float64(sc.Expected.MetSLA) {
		t.Errorf("scenario %s: %g assignments met the SLA, expected %d", sc.Name, got, sc.Expected.MetSLA)
	}
}

// counterSum adds the counters of a family whose label has the given value.
func counterSum(families []*dto.MetricFamily, name, label, value string) float64 {
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
