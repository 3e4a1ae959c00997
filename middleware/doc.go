// Package middleware adapts goGuard.Engine to net/http.
//
// # Guards
//
//   - [Guard] runs one Operation for every request.
//   - [Named] looks the Operation up in the engine configuration.
//
// Credentials are read from the Authorization bearer header, the session
// cookie and the integrity token header. Denials are written by
// [WriteDenial] as JSON with the status from [StatusCode]. The returned
// handlers are plain func(http.Handler) http.Handler and work with
// gorilla/mux Router.Use.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision
// is made by Engine.Guard.
//
// # What this package must NOT do
//
//   - Parse tokens or look up sessions.
//   - Access Redis.
//   - Record audit events of its own.
package middleware
