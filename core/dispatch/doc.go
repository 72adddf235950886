// Package dispatch assigns pending cases to doctors.
//
// The Coordinator claims one case at a time under a case lock, the Loop
// offers the head of every hospital queue to the Coordinator in round-robin
// order, and the Reprioritizer rebuilds a hospital queue under a hospital
// lock when its SLA policy changes. Engine is the boundary used by callers
// to admit cases, record outcomes and manage hospitals and doctors.
//
// All authoritative state lives in the entity store and the deadline index,
// so every component is safe to stop and restart at any point.
package dispatch
