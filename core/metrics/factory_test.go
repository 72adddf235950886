package metrics_test

import (
	"testing"

	"github.com/kilianp07/medqueue/core/factory"
	metrics "github.com/kilianp07/medqueue/core/metrics"
	_ "github.com/kilianp07/medqueue/infra/metrics"
)

func TestMetricsFactoryBuiltins(t *testing.T) {
	checks := []struct {
		name    string
		cfgs    []factory.ModuleConfig
		wantErr bool
		check   func(metrics.MetricsSink) bool
	}{
		{"empty is nop", nil, false, func(s metrics.MetricsSink) bool { _, ok := s.(metrics.NopSink); return ok }},
		{"single nop", []factory.ModuleConfig{{Type: "nop"}}, false, func(s metrics.MetricsSink) bool { return s != nil }},
		{"prometheus records rebuilds", []factory.ModuleConfig{{Type: "prometheus"}}, false, func(s metrics.MetricsSink) bool {
			_, ok := s.(metrics.RebuildRecorder)
			return ok
		}},
		{"two sinks fan out", []factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}}, false, func(s metrics.MetricsSink) bool {
			m, ok := s.(*metrics.MultiSink)
			return ok && len(m.Sinks) == 2
		}},
		{"unknown type", []factory.ModuleConfig{{Type: "statsd"}}, true, nil},
		{"unknown among many", []factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}}, true, nil},
	}
	for _, c := range checks {
		s, err := metrics.NewMetricsSink(c.cfgs)
		if c.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", c.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !c.check(s) {
			t.Fatalf("%s: unexpected sink %T", c.name, s)
		}
	}
}
