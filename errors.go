package goGuard

import (
	"errors"
	"strconv"
	"time"
)

// DenyReason is the stable, machine-readable cause of a guard denial.
type DenyReason string

const (
	ReasonAuthenticationRequired    DenyReason = "authentication_required"
	ReasonSessionExpiredOrAnomalous DenyReason = "session_expired_or_anomalous"
	ReasonRateLimited               DenyReason = "rate_limited"
	ReasonCSRFInvalid               DenyReason = "csrf_invalid"
	ReasonInsufficientPermission    DenyReason = "insufficient_permission"
	ReasonValidationFailed          DenyReason = "validation_failed"
	// ReasonUnavailable is returned when a backend an authorization stage
	// depends on failed or timed out.
	ReasonUnavailable DenyReason = "unavailable"
)

var (
	// ErrAuthenticationRequired matches denials for missing or invalid
	// identity, including expired or anomalous sessions.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrSessionExpiredOrAnomalous matches idle, aged-out and fingerprint
	// mismatched sessions.
	ErrSessionExpiredOrAnomalous = errors.New("session expired or anomalous")
	// ErrRateLimited matches rate limit denials.
	ErrRateLimited = errors.New("rate limited")
	// ErrCSRFInvalid matches missing or invalid integrity tokens.
	ErrCSRFInvalid = errors.New("integrity token invalid")
	// ErrInsufficientPermission matches authorization denials.
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrValidationFailed matches input validation denials.
	ErrValidationFailed = errors.New("validation failed")
	// ErrUnavailable matches fail-closed denials.
	ErrUnavailable = errors.New("security service unavailable")

	// ErrBuilderUsed is returned by a second call to Builder.Build.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrRedisRequired is returned when a configured component needs Redis
	// and no client was supplied.
	ErrRedisRequired = errors.New("redis client required")
	// ErrSessionsDisabled is returned by session operations when no session
	// store is configured.
	ErrSessionsDisabled = errors.New("sessions disabled")
	// ErrTokensDisabled is returned when no access token manager is
	// configured.
	ErrTokensDisabled = errors.New("access tokens disabled")
	// ErrIntegrityDisabled is returned when integrity tokens are not
	// configured.
	ErrIntegrityDisabled = errors.New("integrity tokens disabled")
	// ErrUnknownOperation is returned when a named operation is not
	// configured.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrInvalidIdentity is returned by OpenSession for an empty user id or
	// role.
	ErrInvalidIdentity = errors.New("invalid session identity")
	// ErrEngineClosed is returned by operations started after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// Denial is the structured, caller-visible denial of a guarded operation.
// Error never includes internal error text.
type Denial struct {
	Reason  DenyReason
	Message string

	RetryAfter time.Duration
	Required   string
	Field      string
	Rule       string

	CorrelationID string
}

func (d *Denial) Error() string {
	if d == nil {
		return ""
	}
	return string(d.Reason) + ": " + d.Message
}

// Is matches the sentinel for d.Reason. Session denials also match
// [ErrAuthenticationRequired].
func (d *Denial) Is(target error) bool {
	if d == nil {
		return false
	}
	switch target {
	case ErrAuthenticationRequired:
		return d.Reason == ReasonAuthenticationRequired || d.Reason == ReasonSessionExpiredOrAnomalous
	case ErrSessionExpiredOrAnomalous:
		return d.Reason == ReasonSessionExpiredOrAnomalous
	case ErrRateLimited:
		return d.Reason == ReasonRateLimited
	case ErrCSRFInvalid:
		return d.Reason == ReasonCSRFInvalid
	case ErrInsufficientPermission:
		return d.Reason == ReasonInsufficientPermission
	case ErrValidationFailed:
		return d.Reason == ReasonValidationFailed
	case ErrUnavailable:
		return d.Reason == ReasonUnavailable
	}
	return false
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, as used by the
// Retry-After header.
func (d *Denial) RetryAfterSeconds() int {
	if d == nil || d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// AsDenial extracts a [*Denial] from err.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

func newDenial(reason DenyReason) *Denial {
	d := &Denial{Reason: reason}
	switch reason {
	case ReasonAuthenticationRequired:
		d.Message = "authentication required"
	case ReasonSessionExpiredOrAnomalous:
		d.Message = "session expired, please sign in again"
	case ReasonRateLimited:
		d.Message = "too many requests"
	case ReasonCSRFInvalid:
		d.Message = "request integrity check failed"
	case ReasonInsufficientPermission:
		d.Message = "insufficient permission"
	case ReasonValidationFailed:
		d.Message = "invalid input"
	case ReasonUnavailable:
		d.Message = "service temporarily unavailable"
	default:
		d.Message = "denied"
	}
	return d
}

func rateLimitedDenial(retryAfter time.Duration) *Denial {
	d := newDenial(ReasonRateLimited)
	d.RetryAfter = retryAfter
	if s := d.RetryAfterSeconds(); s > 0 {
		d.Message = "too many requests, retry in " + strconv.Itoa(s) + "s"
	}
	return d
}

func validationDenial(field, rule string) *Denial {
	d := newDenial(ReasonValidationFailed)
	d.Field = field
	d.Rule = rule
	d.Message = "invalid value for " + field
	return d
}
