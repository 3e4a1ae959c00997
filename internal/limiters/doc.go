// Package limiters provides counters layered on top of the internal/rate
// decisions.
//
// # Limiters
//
//   - [RepeatTracker] counts rate-limit denials per client inside a rolling
//     window and reports when a client crosses the suspicious-activity
//     threshold.
//
// All limiters are nil-safe: calling any method on a nil receiver reports
// nothing and never escalates.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package except internal/rate.
//   - Decide audit consequences. The guard flow maps escalation to events.
package limiters
