package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// SessionIDLen is the number of random bytes behind a session id.
const SessionIDLen = 16

// ErrInvalidSessionID is returned for ids this package could not have
// issued.
var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDEncoding = base64.RawURLEncoding.Strict()

// NewSessionID returns a random, unpadded base64url session id.
func NewSessionID() (string, error) {
	var raw [SessionIDLen]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("session id entropy: %w", err)
	}
	return sessionIDEncoding.EncodeToString(raw[:]), nil
}

// CheckSessionID reports whether id has the shape NewSessionID produces.
// Malformed cookie values are rejected before they reach the store.
func CheckSessionID(id string) error {
	if len(id) != sessionIDEncoding.EncodedLen(SessionIDLen) {
		return ErrInvalidSessionID
	}
	raw, err := sessionIDEncoding.DecodeString(id)
	if err != nil || len(raw) != SessionIDLen {
		return ErrInvalidSessionID
	}
	return nil
}
