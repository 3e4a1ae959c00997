package goGuard

import (
	"testing"
	"time"
)

func findingCodes(r SecurityReport) map[string]string {
	out := make(map[string]string, len(r.Findings))
	for _, f := range r.Findings {
		out[f.Code] = f.Level
	}
	return out
}

func TestSecurityReportFlagsRiskyPosture(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Integrity.Enabled = false
		cfg.Audit.Chain = false
		cfg.Audit.Async = true
		cfg.Audit.DropIfFull = true
		cfg.Operations = map[string]Operation{
			"feedback": {Mutating: true},
			"transfer": {RequiredPermission: "transfers.create", Mutating: true},
		}
	})

	r := env.engine.SecurityReport()
	codes := findingCodes(r)
	for _, want := range []string{
		"integrity_disabled",
		"audit_may_drop",
		"audit_unchained",
		"no_absolute_lifetime",
		"local_rate_limits",
		"public_write_unthrottled",
	} {
		if _, ok := codes[want]; !ok {
			t.Fatalf("missing finding %q in %+v", want, r.Findings)
		}
	}
	if codes["integrity_disabled"] != "warn" {
		t.Fatalf("integrity_disabled level = %q", codes["integrity_disabled"])
	}
	if r.MutatingOps != 2 || r.Operations != 2 {
		t.Fatalf("operation counts = %d/%d", r.MutatingOps, r.Operations)
	}
	if len(r.PublicOps) != 1 || r.PublicOps[0] != "feedback" {
		t.Fatalf("public ops = %v", r.PublicOps)
	}
	if !r.TokensEnabled || !r.SessionsEnabled || r.Roles != 2 {
		t.Fatalf("unexpected summary: %+v", r)
	}
}

func TestSecurityReportHardenedConfig(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Session.MaxAge = 8 * time.Hour
		cfg.RateLimit.Backend = "redis"
		cfg.Operations = map[string]Operation{
			"transfer": {
				RequiredPermission: "transfers.create",
				Mutating:           true,
				RateLimit:          RateLimitPolicy{MaxRequests: 10, Window: time.Minute},
			},
		}
	})

	r := env.engine.SecurityReport()
	if len(r.Findings) != 0 {
		t.Fatalf("expected no findings, got %+v", r.Findings)
	}
	if r.RateLimitBackend != "redis" || r.RateLimitedOps != 1 || !r.AuditChained {
		t.Fatalf("unexpected summary: %+v", r)
	}
}

func TestSecurityReportModuleGatedOperationIsNotPublic(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Operations = map[string]Operation{
			"treasury_view": {Module: "treasury"},
		}
	})

	if r := env.engine.SecurityReport(); len(r.PublicOps) != 0 {
		t.Fatalf("module-gated op reported public: %v", r.PublicOps)
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if r := e.SecurityReport(); r.Roles != 0 || len(r.Findings) != 0 {
		t.Fatalf("nil engine report = %+v", r)
	}
}
