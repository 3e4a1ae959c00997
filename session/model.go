package session

import "time"

// Session is the server-side record of an authenticated actor.
//
// CreatedAt and LastSeen are unix milliseconds. Fingerprint is the zero
// array when the session was issued without a fingerprint.
type Session struct {
	SchemaVersion uint8
	SessionID     string
	UserID        string
	Username      string
	Role          string

	CreatedAt int64
	LastSeen  int64

	Fingerprint [32]byte
}

// Created returns CreatedAt as a time.
func (s *Session) Created() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// LastSeenAt returns LastSeen as a time.
func (s *Session) LastSeenAt() time.Time {
	return time.UnixMilli(s.LastSeen)
}

// HasFingerprint reports whether the session is bound to a fingerprint.
func (s *Session) HasFingerprint() bool {
	return s.Fingerprint != [32]byte{}
}

// IdleFor returns how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastSeenAt())
}

// Age returns the session's age at now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.Created())
}
