// Package queue defines the per-hospital deadline index and the lock
// primitive used to serialise claims on cases and index rebuilds.
//
// Every hospital owns one ordered set of pending case identifiers scored by
// their SLA deadline. Operations only ever touch the partition of the
// hospital they are called with. MemoryIndex and MemoryLocker are single
// process implementations; infra/redisqueue provides the shared ones.
package queue
