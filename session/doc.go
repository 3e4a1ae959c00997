// Package session provides Redis-backed session persistence, compact
// binary session encoding and request fingerprinting.
//
// # Binary encoding
//
// Sessions are stored as a compact length-prefixed binary blob (see
// [CurrentSchemaVersion]). LastSeen sits at a fixed offset after the
// string fields so [Store.Touch] can rewrite it in place in one script.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT decide
// whether a session is expired or anomalous; the guard pipeline applies
// idle, absolute and fingerprint policy to the stored timestamps.
//
// # What this package must NOT do
//
//   - Import goGuard, jwt, or permission (no upward imports).
//   - Perform authorization decisions.
//   - Store raw request attributes; only their hash.
package session
