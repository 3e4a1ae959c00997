// Package jwt issues and verifies the access tokens the guard pipeline
// resolves identities from. Tokens carry the user id, username, role and
// session id; signature, issuer, audience and iat are validated strictly.
package jwt
