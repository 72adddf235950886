// Package scheduler runs the daily doctor workload reset. The reset fires
// once per day at a configured hour of a configured time zone and can be
// limited to a subset of hospitals.
package scheduler
