// Package events defines the dispatch events emitted on the event bus.
//
// Available event types:
//   - CaseAdmitted: a case entered a hospital queue
//   - ClaimAttempt: the coordinator tried to assign a case
//   - CaseAssigned: a case was assigned to a doctor
//   - CaseClosed: an outcome was recorded for a case
//   - QueueRebuilt: a hospital index was rebuilt
//   - WorkloadReset: the daily workload reset ran
package events
