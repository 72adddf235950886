package metrics

import (
	"errors"
	"testing"
)

type recordSink struct {
	claims int
	queues int
	err    error
}

func (r *recordSink) RecordClaim(ClaimEvent) error {
	r.claims++
	return r.err
}

func (r *recordSink) RecordQueue(QueueSample) error {
	r.queues++
	return nil
}

// claimOnly implements only the base interface.
type claimOnly struct{ n int }

func (c *claimOnly) RecordClaim(ClaimEvent) error { c.n++; return nil }

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordClaim(ClaimEvent{Outcome: OutcomeAssigned}); err != nil {
		t.Fatalf("record claim: %v", err)
	}
	if err := m.RecordQueue(QueueSample{Depth: 3}); err != nil {
		t.Fatalf("record queue: %v", err)
	}
	if s1.claims != 1 || s2.claims != 1 || s1.queues != 1 || s2.queues != 1 {
		t.Fatalf("records not forwarded")
	}
}

func TestMultiSinkSkipsMissingRecorders(t *testing.T) {
	c := &claimOnly{}
	m := NewMultiSink(c, NopSink{})
	if err := m.RecordAssignment(AssignmentEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.RecordClaim(ClaimEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.n != 1 {
		t.Fatalf("expected 1 claim got %d", c.n)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	err := NewMultiSink(s1, s2).RecordClaim(ClaimEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}
	if s2.claims != 1 {
		t.Fatalf("second sink must still receive the record")
	}
}
