package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/medqueue/core/metrics"
)

// PromSink records dispatch activity in Prometheus metrics.
type PromSink struct {
	claims       *prometheus.CounterVec
	claimLatency *prometheus.HistogramVec
	admissions   *prometheus.CounterVec
	assignments  *prometheus.CounterVec
	wait         *prometheus.HistogramVec
	sla          *prometheus.CounterVec
	depth        *prometheus.GaugeVec
	headLag      *prometheus.GaugeVec
	rebuilds     *prometheus.CounterVec
	rebuildTime  *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	resets       *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_claims_total",
			Help: "Claim attempts by hospital and outcome",
		}, []string{"hospital_id", "outcome"}),
		claimLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medqueue_claim_latency_seconds",
			Help:    "Duration of a single claim attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"hospital_id"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_admissions_total",
			Help: "Admitted cases by hospital and urgency",
		}, []string{"hospital_id", "urgency"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_assignments_total",
			Help: "Assigned cases by hospital",
		}, []string{"hospital_id"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medqueue_queue_wait_seconds",
			Help:    "Time a case spent queued before assignment",
			Buckets: []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"hospital_id"}),
		sla: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_assignment_sla_total",
			Help: "Assignments made before (met) or after (missed) the deadline",
		}, []string{"hospital_id", "result"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "medqueue_queue_depth",
			Help: "Number of cases in the hospital queue",
		}, []string{"hospital_id"}),
		headLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "medqueue_queue_head_lag_seconds",
			Help: "How far the earliest deadline is overdue",
		}, []string{"hospital_id"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_rebuilds_total",
			Help: "Queue rebuilds by hospital",
		}, []string{"hospital_id"}),
		rebuildTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medqueue_rebuild_duration_seconds",
			Help:    "Duration of a queue rebuild",
			Buckets: prometheus.DefBuckets,
		}, []string{"hospital_id"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_outcomes_total",
			Help: "Closed cases by hospital, status and SLA result",
		}, []string{"hospital_id", "status", "met_sla"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medqueue_workload_resets_total",
			Help: "Doctors whose workload was reset",
		}, []string{"scope"}),
	}

	var err error
	if s.claims, err = register(reg, s.claims); err != nil {
		return nil, err
	}
	if s.claimLatency, err = register(reg, s.claimLatency); err != nil {
		return nil, err
	}
	if s.admissions, err = register(reg, s.admissions); err != nil {
		return nil, err
	}
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.wait, err = register(reg, s.wait); err != nil {
		return nil, err
	}
	if s.sla, err = register(reg, s.sla); err != nil {
		return nil, err
	}
	if s.depth, err = register(reg, s.depth); err != nil {
		return nil, err
	}
	if s.headLag, err = register(reg, s.headLag); err != nil {
		return nil, err
	}
	if s.rebuilds, err = register(reg, s.rebuilds); err != nil {
		return nil, err
	}
	if s.rebuildTime, err = register(reg, s.rebuildTime); err != nil {
		return nil, err
	}
	if s.outcomes, err = register(reg, s.outcomes); err != nil {
		return nil, err
	}
	if s.resets, err = register(reg, s.resets); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordClaim(ev coremetrics.ClaimEvent) error {
	s.claims.WithLabelValues(ev.HospitalID, ev.Outcome).Inc()
	s.claimLatency.WithLabelValues(ev.HospitalID).Observe(ev.Latency.Seconds())
	return nil
}

func (s *PromSink) RecordAdmission(ev coremetrics.AdmissionEvent) error {
	s.admissions.WithLabelValues(ev.HospitalID, string(ev.Urgency)).Inc()
	return nil
}

func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.HospitalID).Inc()
	s.wait.WithLabelValues(ev.HospitalID).Observe(ev.Wait.Seconds())
	result := "missed"
	if ev.MetSLA {
		result = "met"
	}
	s.sla.WithLabelValues(ev.HospitalID, result).Inc()
	return nil
}

func (s *PromSink) RecordQueue(q coremetrics.QueueSample) error {
	s.depth.WithLabelValues(q.HospitalID).Set(float64(q.Depth))
	s.headLag.WithLabelValues(q.HospitalID).Set(q.HeadLag.Seconds())
	return nil
}

func (s *PromSink) RecordRebuild(ev coremetrics.RebuildEvent) error {
	s.rebuilds.WithLabelValues(ev.HospitalID).Inc()
	s.rebuildTime.WithLabelValues(ev.HospitalID).Observe(ev.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordOutcome(ev coremetrics.OutcomeEvent) error {
	s.outcomes.WithLabelValues(ev.HospitalID, string(ev.Status), strconv.FormatBool(ev.MetSLA)).Inc()
	return nil
}

func (s *PromSink) RecordReset(ev coremetrics.ResetEvent) error {
	scope := ev.HospitalID
	if scope == "" {
		scope = "all"
	}
	s.resets.WithLabelValues(scope).Add(float64(ev.Doctors))
	return nil
}
