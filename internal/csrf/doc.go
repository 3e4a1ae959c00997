// Package csrf implements the stateless request integrity tokens checked
// for mutating operations.
//
// A token is the base64url HMAC-SHA256 of a binding string under a key
// derived from the master secret. Bindings are "sid:<session id>" for
// authenticated actors and "anon:<fingerprint hex>" for anonymous ones.
package csrf
