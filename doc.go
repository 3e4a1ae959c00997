// Package goGuard is a security enforcement and audit core. Every
// protected operation passes through [Engine.Guard] (or [Engine.Run]),
// which resolves the actor, validates the session, applies the operation's
// rate limit, checks the integrity token of mutating operations, authorizes
// the actor's role and validates input, in that fixed order. The first
// failing stage is terminal and every decision records exactly one audit
// event.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config],
// the [Operation] declaration and the [Denial] taxonomy. The stage pipeline
// lives in internal/flows; permission, session, jwt, audit and validation
// are standalone packages the Engine composes.
//
// # What this package must NOT do
//
//   - Let an audit failure change a guard decision or a business result.
//   - Surface internal error text in a [Denial].
//   - Fail open when a session or rate limit backend is unavailable.
//   - Hold global mutable state; two Engines never share buckets or
//     registries.
package goGuard
