package internal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeyLabelIntegrity derives the request integrity (CSRF) signing key.
	KeyLabelIntegrity = "goguard/csrf/v1"
	// KeyLabelAuditChain derives the audit hash chain key.
	KeyLabelAuditChain = "goguard/audit-chain/v1"

	// MinMasterKeyLen is the minimum master secret length in bytes.
	MinMasterKeyLen = 32
)

// ErrWeakMasterKey is returned when the master secret is shorter than 32 bytes.
var ErrWeakMasterKey = errors.New("master key must be at least 32 bytes")

// DeriveKey expands master into a 32-byte subkey bound to label with
// HKDF-SHA256. Distinct labels yield independent keys.
func DeriveKey(master []byte, label string) ([]byte, error) {
	if len(master) < MinMasterKeyLen {
		return nil, ErrWeakMasterKey
	}
	r := hkdf.New(sha256.New, master, nil, []byte(label))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", label, err)
	}
	return key, nil
}
