package metrics

// Package metrics defines the sinks used to observe the dispatch engine.
// Every sink records claim attempts; optional recorder interfaces cover
// admissions, assignments, queue depth and index rebuilds and are
// discovered by type assertion. Sinks like PromSink and InfluxSink live in
// infra/metrics and can be combined with NewMultiSink. The factory helpers
// return a MultiSink automatically when multiple sinks are configured.
