// Package otel publishes goGuard metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter, a
// goguard_guard_denied_total counter with a reason attribute, and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [goGuard.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
