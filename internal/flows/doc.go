// Package flows contains the pure-function guard pipeline behind
// Engine.Guard.
//
// [RunGuard] accepts a typed dependency struct and walks a fixed, ordered
// stage list: identity, session, rate limit, integrity, authorization and
// validation. The first stage that fails is terminal. The result carries a
// classified [FailureKind]; mapping to public denials and audit events is
// the root engine's job.
//
// # Architecture boundaries
//
// Flow functions coordinate the session store, JWT manager, rate limiter
// and permission registry. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Record audit events or metrics.
package flows
