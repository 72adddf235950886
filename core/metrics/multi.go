package metrics

import "errors"

// MultiSink fans out records to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordClaim forwards to every sink and joins the errors.
func (m *MultiSink) RecordClaim(ev ClaimEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordClaim(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordAdmission(ev AdmissionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AdmissionRecorder); ok {
			errs = append(errs, r.RecordAdmission(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AssignmentRecorder); ok {
			errs = append(errs, r.RecordAssignment(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordQueue(sample QueueSample) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(QueueRecorder); ok {
			errs = append(errs, r.RecordQueue(sample))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordRebuild(ev RebuildEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(RebuildRecorder); ok {
			errs = append(errs, r.RecordRebuild(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordOutcome(ev OutcomeEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(OutcomeRecorder); ok {
			errs = append(errs, r.RecordOutcome(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordReset(ev ResetEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(ResetRecorder); ok {
			errs = append(errs, r.RecordReset(ev))
		}
	}
	return errors.Join(errs...)
}
