// Package internal holds helpers private to goGuard: session id generation
// and HKDF key derivation from the master key.
//
// # Sub-packages
//
//   - csrf: HMAC integrity tokens bound to a session
//   - flows: the ordered guard pipeline, free of engine state
//   - limiters: the bounded repeated-denial tracker behind suspicious-activity escalation
//   - rate: sliding-window limiters with memory and Redis backends
//   - security: the static configuration posture report
//
// Nothing in this tree is part of the public API.
package internal
