package goGuard

import (
	"time"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/validation"
)

// RateLimitPolicy is a per-operation sliding-window limit. A zero
// MaxRequests disables limiting for the operation.
//
//	Docs: docs/rate_limiting.md
type RateLimitPolicy struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	// Block is the temporary ban applied when the window is exhausted.
	Block time.Duration `yaml:"block"`
	// RetainHistory keeps the window's timestamps when a block starts.
	RetainHistory bool `yaml:"retain_history"`
}

func (p RateLimitPolicy) policy() rate.Policy {
	return rate.Policy{
		MaxRequests:   p.MaxRequests,
		Window:        p.Window,
		Block:         p.Block,
		RetainHistory: p.RetainHistory,
	}
}

// Operation declares the checks a protected action passes through. It is
// a plain value; the stage order is fixed by the Engine.
//
//	Docs: docs/guard.md
type Operation struct {
	Name string `yaml:"-"`

	// RequiredPermission takes precedence over Module.
	RequiredPermission string `yaml:"required_permission"`
	Module             string `yaml:"module"`

	RateLimit      RateLimitPolicy `yaml:"rate_limit"`
	RateLimitScope string          `yaml:"rate_limit_scope"`

	// Mutating operations must present a valid integrity token.
	Mutating   bool                       `yaml:"mutating"`
	Validation map[string]validation.Rule `yaml:"validation"`

	// AuditEvent is recorded on Allowed. Defaults to access_granted.
	AuditEvent    audit.EventType `yaml:"audit_event"`
	AuditSeverity audit.Severity  `yaml:"audit_severity"`
	Resource      string          `yaml:"resource"`
	// ResourceIDField names the request field copied to the event's
	// resource id.
	ResourceIDField string `yaml:"resource_id_field"`
}

// RequestContext carries the transport facts of one inbound operation.
type RequestContext struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
	Method         string
	Endpoint       string

	// Fields are the submitted input values checked by validation rules.
	Fields map[string]string
}

// ActorContext carries the credentials presented with an operation. All
// fields are optional; an empty ActorContext resolves to the anonymous
// role.
type ActorContext struct {
	AccessToken    string
	SessionID      string
	IntegrityToken string
}

// Actor is the identity resolved for an operation.
type Actor struct {
	UserID        string
	Username      string
	Role          string
	SessionID     string
	Authenticated bool
}

// SecurityContext is the per-operation value built by the guard pipeline.
// It is never shared across operations.
type SecurityContext struct {
	CorrelationID string
	Operation     string
	Actor         Actor
	// Permissions is a copy of the actor role's permission set.
	Permissions []string
	Request     RequestContext
	StartedAt   time.Time
	// Anomalies lists non-fatal findings such as a stale session id or a
	// detect-only fingerprint mismatch.
	Anomalies []string
}

// HasPermission reports whether the resolved actor was granted permission
// when the context was built.
func (s *SecurityContext) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GuardResult is the outcome of [Engine.Guard]. Err is nil when Allowed,
// otherwise a [*Denial].
type GuardResult struct {
	Allowed bool
	Context *SecurityContext
	Err     error
}

// Denial returns the structured denial, or nil when the result is allowed.
func (r GuardResult) Denial() *Denial {
	d, _ := AsDenial(r.Err)
	return d
}

// IssuedSession is returned by [Engine.OpenSession].
type IssuedSession struct {
	SessionID      string
	AccessToken    string
	IntegrityToken string
	ExpiresAt      time.Time
	CorrelationID  string
}

// SessionRequest describes the identity a new session is opened for.
type SessionRequest struct {
	UserID   string
	Username string
	Role     string
	Request  RequestContext
}
