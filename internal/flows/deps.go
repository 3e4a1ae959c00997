package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

// GuardSessionStore is the session store surface used by the pipeline.
type GuardSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string, now time.Time) error
}

// Authorizer is the permission registry surface used by the pipeline.
type Authorizer interface {
	HasPermission(role, permission string) bool
	RequiredPermission(module string) (string, bool)
}

// GuardDeps wires the pipeline's collaborators. The root engine builds it
// once; RunGuard never mutates it.
type GuardDeps struct {
	Now func() time.Time

	// ParseAccess is nil when token identity is not configured.
	ParseAccess func(string) (*jwt.AccessClaims, error)

	// Sessions is nil when sessions are not configured.
	Sessions       GuardSessionStore
	SessionTimeout time.Duration
	MaxIdle        time.Duration
	MaxAge         time.Duration
	Fingerprint    session.FingerprintPolicy
	// EnforceFingerprint denies on mismatch; otherwise mismatches are
	// reported as anomalies.
	EnforceFingerprint bool

	Limiter          rate.Limiter
	RateLimitTimeout time.Duration
	Repeats          *limiters.RepeatTracker

	VerifyIntegrity func(binding, token string) error

	Permissions Authorizer

	// OnTouchError observes failed LastSeen updates. It may be nil.
	OnTouchError func(sessionID string, err error)
}
