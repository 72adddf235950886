// Package redisqueue implements the deadline index and the lease locks on
// Redis. Each hospital queue is a sorted set keyed hospital_queue:{id} whose
// scores are deadlines in unix seconds. Locks are SET NX PX keys released
// with a compare-and-delete script.
package redisqueue
