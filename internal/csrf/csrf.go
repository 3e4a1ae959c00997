package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/MrEthical07/goGuard/internal"
)

var (
	// ErrMissingToken is returned when no integrity token was supplied.
	ErrMissingToken = errors.New("integrity token missing")
	// ErrInvalidToken is returned when the token does not match its binding.
	ErrInvalidToken = errors.New("integrity token invalid")
	// ErrEmptyBinding is returned when issuing or verifying without a binding.
	ErrEmptyBinding = errors.New("integrity binding empty")
)

// Signer issues and verifies integrity tokens bound to a session or to an
// anonymous request fingerprint.
type Signer struct {
	key []byte
}

// New derives the signing key from master.
func New(master []byte) (*Signer, error) {
	key, err := internal.DeriveKey(master, internal.KeyLabelIntegrity)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// SessionBinding binds tokens to an authenticated session.
func SessionBinding(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	return "sid:" + sessionID
}

// AnonymousBinding binds tokens to an anonymous request fingerprint.
func AnonymousBinding(fingerprint [32]byte) string {
	if fingerprint == [32]byte{} {
		return ""
	}
	return "anon:" + hex.EncodeToString(fingerprint[:])
}

// Issue returns base64url(HMAC-SHA256(key, binding)).
func (s *Signer) Issue(binding string) (string, error) {
	if binding == "" {
		return "", ErrEmptyBinding
	}
	return base64.RawURLEncoding.EncodeToString(s.mac(binding)), nil
}

// Verify checks token against binding in constant time.
func (s *Signer) Verify(binding, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if binding == "" {
		return ErrEmptyBinding
	}
	got, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(got, s.mac(binding)) {
		return ErrInvalidToken
	}
	return nil
}

func (s *Signer) mac(binding string) []byte {
	m := hmac.New(sha256.New, s.key)
	_, _ = m.Write([]byte(binding))
	return m.Sum(nil)
}
