package goGuard

import "github.com/MrEthical07/goGuard/internal/security"

// SecurityReport is the configuration posture summary of an Engine.
type SecurityReport = security.Report

// SecurityFinding is one entry of SecurityReport.Findings.
type SecurityFinding = security.Finding

// SecurityReport summarizes the engine's effective configuration and flags
// risky combinations.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	ops := make([]security.OperationInput, 0, len(e.operations))
	for name, op := range e.operations {
		gated := op.RequiredPermission != ""
		if !gated && op.Module != "" {
			_, gated = e.registry.RequiredPermission(op.Module)
		}
		ops = append(ops, security.OperationInput{
			Name:        name,
			Gated:       gated,
			RateLimited: op.RateLimit.MaxRequests > 0,
			Mutating:    op.Mutating,
		})
	}

	backend := cfg.RateLimit.Backend
	if backend == "" {
		backend = "memory"
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:    cfg.JWT.SigningMethod,
		SessionsEnabled:     e.sessionStore != nil,
		SessionMaxIdle:      cfg.Session.MaxIdle,
		SessionMaxAge:       cfg.Session.MaxAge,
		FingerprintEnabled:  cfg.Session.Fingerprint.Enabled(),
		FingerprintEnforced: cfg.Session.EnforceFingerprint,
		RateLimitBackend:    backend,
		IntegrityEnabled:    e.integrity != nil,
		AuditAsync:          cfg.Audit.Async,
		AuditDropIfFull:     cfg.Audit.DropIfFull,
		AuditChained:        cfg.Audit.Chain,
		SuspiciousThreshold: cfg.Guard.SuspiciousThreshold,
		Roles:               e.registry.Count(),
		Operations:          ops,
	})
}
