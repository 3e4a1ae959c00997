package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/csrf"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/validation"
)

// Anomaly labels reported on the final audit event.
const (
	AnomalyStaleSession        = "stale_session"
	AnomalyCorruptSession      = "corrupt_session"
	AnomalyFingerprintMismatch = "fingerprint_mismatch"
	AnomalyTouchFailed         = "touch_failed"
)

// FailureKind classifies a terminal denial for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureInvalidToken
	FailureAnonymous
	FailureSessionExpired
	FailureSessionAnomalous
	FailureRateLimited
	FailureIntegrity
	FailurePermission
	FailureValidation
	FailureUnavailable
)

// Stage names in execution order.
const (
	StageIdentity      = "identity"
	StageSession       = "session"
	StageRateLimit     = "rate_limit"
	StageIntegrity     = "integrity"
	StageAuthorization = "authorization"
	StageValidation    = "validation"
	StageAllowed       = "allowed"
)

// GuardOperation is the pipeline's view of an operation.
type GuardOperation struct {
	Name               string
	RequiredPermission string
	Module             string
	RateLimit          rate.Policy
	RateLimitScope     string
	Mutating           bool
	Validation         map[string]validation.Rule
}

// GuardInput is everything the pipeline reads about one request.
type GuardInput struct {
	Operation GuardOperation

	AccessToken    string
	SessionID      string
	IntegrityToken string

	IP             string
	UserAgent      string
	AcceptLanguage string

	Fields map[string]string
}

// Attributes returns the fingerprintable request facts.
func (in GuardInput) Attributes() session.Attributes {
	return session.Attributes{IP: in.IP, UserAgent: in.UserAgent, AcceptLanguage: in.AcceptLanguage}
}

// GuardActor is the resolved actor.
type GuardActor struct {
	UserID        string
	Username      string
	Role          string
	SessionID     string
	Authenticated bool
}

// GuardResult is the pipeline outcome. Err holds the internal cause of a
// failure and is never shown to callers.
type GuardResult struct {
	Failure FailureKind
	Stage   string
	Err     error

	Actor    GuardActor
	Required string

	RetryAfter time.Duration
	RateClient string
	RateScope  string
	Repeats    int
	Suspicious bool

	Field string
	Rule  string

	Anomalies []string
}

type guardState struct {
	in     GuardInput
	deps   *GuardDeps
	now    time.Time
	sess   *session.Session
	result GuardResult
}

type guardStage struct {
	name string
	run  func(ctx context.Context, st *guardState) bool
}

// guardStages run in order; the first stage returning false is terminal.
var guardStages = [...]guardStage{
	{StageIdentity, runIdentity},
	{StageSession, runSession},
	{StageRateLimit, runRateLimit},
	{StageIntegrity, runIntegrity},
	{StageAuthorization, runAuthorization},
	{StageValidation, runValidation},
}

// RunGuard evaluates in through every stage and returns the first denial
// or an allowed result.
func RunGuard(ctx context.Context, in GuardInput, deps GuardDeps) GuardResult {
	st := &guardState{
		in:   in,
		deps: &deps,
		now:  deps.Now(),
	}
	st.result.Actor = GuardActor{Role: permission.RoleAnonymous}
	st.result.Required = requiredPermission(in.Operation, deps.Permissions)

	for _, stage := range guardStages {
		if !stage.run(ctx, st) {
			st.result.Stage = stage.name
			return st.result
		}
	}

	st.result.Stage = StageAllowed
	return st.result
}

// StageNames returns the stage names in execution order.
func StageNames() []string {
	out := make([]string, 0, len(guardStages))
	for _, s := range guardStages {
		out = append(out, s.name)
	}
	return out
}

func requiredPermission(op GuardOperation, perms Authorizer) string {
	if op.RequiredPermission != "" {
		return op.RequiredPermission
	}
	if op.Module != "" && perms != nil {
		if p, ok := perms.RequiredPermission(op.Module); ok {
			return p
		}
	}
	return ""
}

func (st *guardState) deny(kind FailureKind, err error) bool {
	st.result.Failure = kind
	st.result.Err = err
	return false
}

func (st *guardState) anomaly(label string) {
	st.result.Anomalies = append(st.result.Anomalies, label)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

/*
====================================
IDENTITY
====================================
*/

func runIdentity(ctx context.Context, st *guardState) bool {
	in := st.in
	sessionID := in.SessionID

	var tokenUID string
	if in.AccessToken != "" {
		if st.deps.ParseAccess == nil {
			return st.deny(FailureInvalidToken, errors.New("token identity not configured"))
		}
		claims, err := st.deps.ParseAccess(in.AccessToken)
		if err != nil {
			return st.deny(FailureInvalidToken, err)
		}
		tokenUID = claims.UID
		if claims.SID != "" {
			sessionID = claims.SID
		}
		// no session to bind to: the token alone is the identity
		if st.deps.Sessions == nil || sessionID == "" {
			st.result.Actor = GuardActor{
				UserID:        claims.UID,
				Username:      claims.Username,
				Role:          claims.Role,
				SessionID:     claims.SID,
				Authenticated: true,
			}
			return true
		}
	}

	if sessionID == "" || st.deps.Sessions == nil {
		return true
	}

	lookupCtx, cancel := withTimeout(ctx, st.deps.SessionTimeout)
	sess, err := st.deps.Sessions.Get(lookupCtx, sessionID)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		st.anomaly(AnomalyStaleSession)
		return true
	case errors.Is(err, session.ErrSessionCorrupt):
		st.anomaly(AnomalyCorruptSession)
		return true
	default:
		return st.deny(FailureUnavailable, err)
	}

	st.sess = sess
	st.result.Actor = GuardActor{
		UserID:        sess.UserID,
		Username:      sess.Username,
		Role:          sess.Role,
		SessionID:     sess.SessionID,
		Authenticated: true,
	}
	if tokenUID != "" && tokenUID != sess.UserID {
		return st.deny(FailureSessionAnomalous, errors.New("token subject does not own session"))
	}
	return true
}

/*
====================================
SESSION
====================================
*/

func runSession(ctx context.Context, st *guardState) bool {
	actor := st.result.Actor
	if !actor.Authenticated {
		if st.result.Required != "" {
			return st.deny(FailureAnonymous, nil)
		}
		return true
	}

	sess := st.sess
	if sess == nil {
		// stateless token identity
		return true
	}

	if st.deps.MaxIdle > 0 && sess.IdleFor(st.now) > st.deps.MaxIdle {
		return st.deny(FailureSessionExpired, errors.New("session idle timeout"))
	}
	if st.deps.MaxAge > 0 && sess.Age(st.now) > st.deps.MaxAge {
		return st.deny(FailureSessionExpired, errors.New("session max age exceeded"))
	}

	if st.deps.Fingerprint.Enabled() && sess.HasFingerprint() {
		if session.Fingerprint(st.deps.Fingerprint, st.in.Attributes()) != sess.Fingerprint {
			if st.deps.EnforceFingerprint {
				return st.deny(FailureSessionAnomalous, errors.New("fingerprint mismatch"))
			}
			st.anomaly(AnomalyFingerprintMismatch)
		}
	}

	touchCtx, cancel := withTimeout(ctx, st.deps.SessionTimeout)
	err := st.deps.Sessions.Touch(touchCtx, sess.SessionID, st.now)
	cancel()
	if err != nil {
		st.anomaly(AnomalyTouchFailed)
		if st.deps.OnTouchError != nil {
			st.deps.OnTouchError(sess.SessionID, err)
		}
	}
	return true
}

/*
====================================
RATE LIMIT
====================================
*/

// RateLimitKey returns the client and scope a request is limited under.
func RateLimitKey(op GuardOperation, actor GuardActor, ip string) (string, string) {
	scope := op.RateLimitScope
	if scope == "" {
		scope = op.Name
	}
	if actor.Authenticated && actor.UserID != "" {
		return "user:" + actor.UserID, scope
	}
	if ip == "" {
		return "anonymous", scope
	}
	return "ip:" + ip, scope
}

func runRateLimit(ctx context.Context, st *guardState) bool {
	policy := st.in.Operation.RateLimit
	if !policy.Enabled() || st.deps.Limiter == nil {
		return true
	}

	client, scope := RateLimitKey(st.in.Operation, st.result.Actor, st.in.IP)
	st.result.RateClient = client
	st.result.RateScope = scope

	limitCtx, cancel := withTimeout(ctx, st.deps.RateLimitTimeout)
	decision, err := st.deps.Limiter.Allow(limitCtx, client, scope, policy)
	cancel()
	if err != nil {
		return st.deny(FailureUnavailable, err)
	}
	if decision.Allowed {
		return true
	}

	st.result.RetryAfter = decision.RetryAfter
	st.result.Repeats, st.result.Suspicious = st.deps.Repeats.Record(client+"|"+scope, st.now)
	return st.deny(FailureRateLimited, nil)
}

/*
====================================
INTEGRITY
====================================
*/

// IntegrityBinding returns the binding a mutating request's integrity token
// is checked against. Authenticated actors bind to their session; others
// bind to a request fingerprint.
func IntegrityBinding(actor GuardActor, attrs session.Attributes, policy session.FingerprintPolicy) string {
	if actor.Authenticated {
		return csrf.SessionBinding(actor.SessionID)
	}
	return csrf.AnonymousBinding(session.Fingerprint(AnonymousFingerprintPolicy(policy), attrs))
}

// AnonymousFingerprintPolicy is the fingerprint policy for anonymous
// integrity bindings. It falls back to IP and User-Agent when policy is
// disabled.
func AnonymousFingerprintPolicy(policy session.FingerprintPolicy) session.FingerprintPolicy {
	if policy.Enabled() {
		return policy
	}
	return session.FingerprintPolicy{IP: true, UserAgent: true}
}

func runIntegrity(_ context.Context, st *guardState) bool {
	if !st.in.Operation.Mutating {
		return true
	}
	if st.deps.VerifyIntegrity == nil {
		return st.deny(FailureIntegrity, errors.New("integrity verification not configured"))
	}

	binding := IntegrityBinding(st.result.Actor, st.in.Attributes(), st.deps.Fingerprint)
	if err := st.deps.VerifyIntegrity(binding, st.in.IntegrityToken); err != nil {
		return st.deny(FailureIntegrity, err)
	}
	return true
}

/*
====================================
AUTHORIZATION
====================================
*/

func runAuthorization(_ context.Context, st *guardState) bool {
	required := st.result.Required
	if required == "" {
		return true
	}
	if st.deps.Permissions == nil || !st.deps.Permissions.HasPermission(st.result.Actor.Role, required) {
		return st.deny(FailurePermission, nil)
	}
	return true
}

/*
====================================
VALIDATION
====================================
*/

func runValidation(_ context.Context, st *guardState) bool {
	fail, ok := validation.Validate(st.in.Fields, st.in.Operation.Validation)
	if ok {
		return true
	}
	st.result.Field = fail.Field
	st.result.Rule = fail.Rule
	return st.deny(FailureValidation, nil)
}
