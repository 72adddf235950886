package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/medqueue/core/metrics"
)

type lineServer struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineServer) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	l.mu.Lock()
	l.lines = append(l.lines, strings.TrimSpace(string(data)))
	l.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (l *lineServer) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	return l.lines[len(l.lines)-1]
}

func TestInfluxSink_RecordAssignment(t *testing.T) {
	ls := &lineServer{}
	srv := httptest.NewServer(http.HandlerFunc(ls.handler))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.AssignmentEvent{
		HospitalID: "h1",
		CaseID:     "c1",
		DoctorID:   "d1",
		Score:      2.25,
		Wait:       90 * time.Second,
		MetSLA:     true,
		Time:       now,
	}
	if err := sink.RecordAssignment(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("case_assigned").
		AddTag("hospital_id", "h1").
		AddTag("doctor_id", "d1").
		AddTag("met_sla", "true").
		AddField("case_id", "c1").
		AddField("score", 2.25).
		AddField("wait_s", 90.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if got := ls.last(); got != expected {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestInfluxSink_Measurements(t *testing.T) {
	ls := &lineServer{}
	srv := httptest.NewServer(http.HandlerFunc(ls.handler))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	now := time.Now()

	checks := []struct {
		name   string
		record func() error
		want   []string
	}{
		{"claim", func() error {
			return sink.RecordClaim(coremetrics.ClaimEvent{HospitalID: "h1", CaseID: "c1", Outcome: coremetrics.OutcomeStale, Time: now})
		}, []string{"claim_attempt,", "component=coordinator", "outcome=stale"}},
		{"admission", func() error {
			return sink.RecordAdmission(coremetrics.AdmissionEvent{HospitalID: "h1", CaseID: "c1", Urgency: "urgent", Deadline: now.Add(time.Hour), Time: now})
		}, []string{"case_admitted,", "urgency=urgent", "sla_minutes=60"}},
		{"queue", func() error {
			return sink.RecordQueue(coremetrics.QueueSample{HospitalID: "h1", Depth: 3, Time: now})
		}, []string{"queue_state,", "hospital_id=h1", "depth=3i"}},
		{"rebuild", func() error {
			return sink.RecordRebuild(coremetrics.RebuildEvent{HospitalID: "h1", Entries: 2, Time: now})
		}, []string{"queue_rebuilt,", "entries=2i"}},
		{"outcome", func() error {
			return sink.RecordOutcome(coremetrics.OutcomeEvent{HospitalID: "h1", CaseID: "c1", Status: "completed", Time: now})
		}, []string{"case_closed,", "met_sla=false", "status=completed"}},
		{"reset all", func() error {
			return sink.RecordReset(coremetrics.ResetEvent{Doctors: 4, Time: now})
		}, []string{"workload_reset doctors=4i"}},
	}
	for _, c := range checks {
		if err := c.record(); err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		got := ls.last()
		if !strings.HasPrefix(got, c.want[0]) {
			t.Errorf("%s: unexpected measurement in %q", c.name, got)
		}
		for _, w := range c.want[1:] {
			if !strings.Contains(got, w) {
				t.Errorf("%s: %q missing from %q", c.name, w, got)
			}
		}
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not queried")
	}
}
