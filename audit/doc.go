// Package audit records the compliance-tagged, tamper-evident audit trail of
// security decisions.
//
// # Components
//
//   - [Recorder] builds events, derives compliance flags and retention from
//     the event type, issues correlation ids and hands events to a [Sink].
//   - [Dispatcher] is the buffered async relay used when the recorder runs
//     in async mode.
//   - [Chain] links delivered events with an HMAC-SHA256 hash chain;
//     [VerifyChain] checks a stored trail.
//   - [Router] fans events out to the primary, security and transaction
//     channels.
//   - Sinks: [JSONWriterSink], [FileSink], [PostgresSink], [LogrusSink],
//     [ChannelSink], [MultiSink].
//
// # Failure model
//
// Recording never fails the audited operation. Record returns
// [ErrorCorrelationID] when an event cannot be built or queued, and every
// failure is written to the fallback logger tagged channel=audit_fallback.
//
// # What this package must NOT do
//
//   - Update or delete stored events.
//   - Decide which security decisions are audited. The guard pipeline does.
//   - Import goGuard or any internal package.
package audit
