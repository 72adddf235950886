// Package sqlstore implements store.Store on PostgreSQL (lib/pq) and SQLite
// (modernc.org/sqlite). Both dialects share one schema and one set of
// queries written with ? placeholders, rebound to $n for PostgreSQL.
//
// Doctor capacity changes are single conditional UPDATE statements so that
// concurrent claims can never push a workload past its daily limit.
package sqlstore
