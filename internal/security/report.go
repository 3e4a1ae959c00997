package security

import (
	"sort"
	"time"
)

// Finding severities.
const (
	FindingWarn = "warn"
	FindingInfo = "info"
)

// Finding is one posture observation.
type Finding struct {
	Level   string
	Code    string
	Message string
}

// Report summarizes the effective security posture of an engine.
type Report struct {
	SigningAlgorithm    string
	TokensEnabled       bool
	SessionsEnabled     bool
	SessionMaxIdle      time.Duration
	SessionMaxAge       time.Duration
	FingerprintEnabled  bool
	FingerprintEnforced bool
	RateLimitBackend    string
	IntegrityEnabled    bool
	AuditAsync          bool
	AuditMayDrop        bool
	AuditChained        bool
	SuspiciousEscalated bool

	Roles              int
	Operations         int
	RateLimitedOps     int
	MutatingOps        int
	PublicOps          []string
	UnprotectedWriteOp []string

	Findings []Finding
}

// OperationInput is the posture-relevant part of one operation.
type OperationInput struct {
	Name        string
	Gated       bool
	RateLimited bool
	Mutating    bool
}

// ReportInput is the flattened engine configuration.
type ReportInput struct {
	SigningAlgorithm    string
	SessionsEnabled     bool
	SessionMaxIdle      time.Duration
	SessionMaxAge       time.Duration
	FingerprintEnabled  bool
	FingerprintEnforced bool
	RateLimitBackend    string
	IntegrityEnabled    bool
	AuditAsync          bool
	AuditDropIfFull     bool
	AuditChained        bool
	SuspiciousThreshold int
	Roles               int
	Operations          []OperationInput
}

// BuildReport derives a Report and its findings from input. Operations
// are reported in name order.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:    input.SigningAlgorithm,
		TokensEnabled:       input.SigningAlgorithm != "",
		SessionsEnabled:     input.SessionsEnabled,
		SessionMaxIdle:      input.SessionMaxIdle,
		SessionMaxAge:       input.SessionMaxAge,
		FingerprintEnabled:  input.FingerprintEnabled,
		FingerprintEnforced: input.FingerprintEnabled && input.FingerprintEnforced,
		RateLimitBackend:    input.RateLimitBackend,
		IntegrityEnabled:    input.IntegrityEnabled,
		AuditAsync:          input.AuditAsync,
		AuditMayDrop:        input.AuditAsync && input.AuditDropIfFull,
		AuditChained:        input.AuditChained,
		SuspiciousEscalated: input.SuspiciousThreshold > 0,
		Roles:               input.Roles,
		Operations:          len(input.Operations),
	}

	ops := append([]OperationInput(nil), input.Operations...)
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	for _, op := range ops {
		if op.RateLimited {
			r.RateLimitedOps++
		}
		if op.Mutating {
			r.MutatingOps++
		}
		if !op.Gated {
			r.PublicOps = append(r.PublicOps, op.Name)
			if op.Mutating && !op.RateLimited {
				r.UnprotectedWriteOp = append(r.UnprotectedWriteOp, op.Name)
			}
		}
	}

	if r.MutatingOps > 0 && !r.IntegrityEnabled {
		r.Findings = append(r.Findings, Finding{FindingWarn, "integrity_disabled", "mutating operations are configured but integrity tokens are disabled"})
	}
	if r.AuditMayDrop {
		r.Findings = append(r.Findings, Finding{FindingWarn, "audit_may_drop", "audit events are dropped when the buffer is full"})
	}
	if !r.AuditChained {
		r.Findings = append(r.Findings, Finding{FindingInfo, "audit_unchained", "audit trail is not hash chained"})
	}
	if r.SessionsEnabled && r.SessionMaxAge == 0 {
		r.Findings = append(r.Findings, Finding{FindingInfo, "no_absolute_lifetime", "sessions have no absolute lifetime"})
	}
	if r.FingerprintEnabled && !r.FingerprintEnforced {
		r.Findings = append(r.Findings, Finding{FindingInfo, "fingerprint_detect_only", "fingerprint mismatches are recorded but not denied"})
	}
	if r.RateLimitBackend == "memory" {
		r.Findings = append(r.Findings, Finding{FindingInfo, "local_rate_limits", "rate limits are per process"})
	}
	for _, name := range r.UnprotectedWriteOp {
		r.Findings = append(r.Findings, Finding{FindingWarn, "public_write_unthrottled", "public mutating operation " + name + " has no rate limit"})
	}
	return r
}
