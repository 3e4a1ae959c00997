// Package prometheus exposes goGuard metrics as a client_golang Collector.
//
// [NewCollector] reads [goGuard.Engine.MetricsSnapshot] on every scrape.
// Counters are named goguard_*_total, denials are also exported as
// goguard_guard_denied_total{reason}, and the single histogram is
// goguard_guard_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     Collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
