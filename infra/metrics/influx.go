package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/infra/logger"
)

// InfluxConfig locates the bucket that receives dispatch points.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch activity to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordClaim writes one claim_attempt point.
func (s *InfluxSink) RecordClaim(ev coremetrics.ClaimEvent) error {
	p := write.NewPointWithMeasurement("claim_attempt").
		AddTag("hospital_id", ev.HospitalID).
		AddTag("outcome", ev.Outcome).
		AddTag("component", "coordinator").
		AddField("case_id", ev.CaseID).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordAdmission(ev coremetrics.AdmissionEvent) error {
	p := write.NewPointWithMeasurement("case_admitted").
		AddTag("hospital_id", ev.HospitalID).
		AddTag("urgency", string(ev.Urgency)).
		AddField("case_id", ev.CaseID).
		AddField("sla_minutes", round3(ev.Deadline.Sub(ev.Time).Minutes())).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("case_assigned").
		AddTag("hospital_id", ev.HospitalID).
		AddTag("doctor_id", ev.DoctorID).
		AddTag("met_sla", strconv.FormatBool(ev.MetSLA)).
		AddField("case_id", ev.CaseID).
		AddField("score", round3(ev.Score)).
		AddField("wait_s", round3(ev.Wait.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordQueue(q coremetrics.QueueSample) error {
	p := write.NewPointWithMeasurement("queue_state").
		AddTag("hospital_id", q.HospitalID).
		AddField("depth", q.Depth).
		AddField("head_lag_s", round3(q.HeadLag.Seconds())).
		SetTime(q.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordRebuild(ev coremetrics.RebuildEvent) error {
	p := write.NewPointWithMeasurement("queue_rebuilt").
		AddTag("hospital_id", ev.HospitalID).
		AddField("entries", ev.Entries).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordOutcome(ev coremetrics.OutcomeEvent) error {
	p := write.NewPointWithMeasurement("case_closed").
		AddTag("hospital_id", ev.HospitalID).
		AddTag("status", string(ev.Status)).
		AddTag("met_sla", strconv.FormatBool(ev.MetSLA)).
		AddField("case_id", ev.CaseID).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordReset(ev coremetrics.ResetEvent) error {
	p := write.NewPointWithMeasurement("workload_reset")
	if ev.HospitalID != "" {
		p = p.AddTag("hospital_id", ev.HospitalID)
	}
	p = p.AddField("doctors", ev.Doctors).SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
