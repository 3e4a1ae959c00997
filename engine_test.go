package goGuard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/validation"
)

func TestScenarioStandardUserDeniedTreasury(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "u-100", "standard_user")

	res := env.engine.Guard(context.Background(),
		Operation{Name: "treasury_view", RequiredPermission: "treasury_dashboard"},
		RequestContext{IP: "10.1.1.1"},
		ActorContext{AccessToken: s.AccessToken},
	)

	d := requireDenial(t, res, ReasonInsufficientPermission)
	if d.Required != "treasury_dashboard" {
		t.Fatalf("expected required permission on denial, got %q", d.Required)
	}
	if !errors.Is(res.Err, ErrInsufficientPermission) {
		t.Fatalf("expected errors.Is ErrInsufficientPermission")
	}
	ev := requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventAccessDenied || ev.Severity != audit.SeverityMedium {
		t.Fatalf("unexpected event %s/%s", ev.EventType, ev.Severity)
	}
	if ev.Actor.UserID != "u-100" || ev.Actor.Role != "standard_user" {
		t.Fatalf("unexpected event actor %+v", ev.Actor)
	}
}

func TestScenarioSuperAdminAllowedAnyPermission(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "root", "super_admin")

	for _, perm := range []string{"treasury_dashboard", "never.registered.anywhere"} {
		res := env.engine.Guard(context.Background(),
			Operation{Name: "op-" + perm, RequiredPermission: perm},
			RequestContext{},
			ActorContext{SessionID: s.SessionID},
		)
		if !res.Allowed {
			t.Fatalf("super role denied %q: %v", perm, res.Err)
		}
	}
}

func TestScenarioAnonymousNeverReachesRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	op := Operation{
		Name:               "accounts",
		RequiredPermission: "accounts.read",
		RateLimit:          RateLimitPolicy{MaxRequests: 1, Window: time.Minute, Block: time.Minute},
	}

	for i := 0; i < 3; i++ {
		env.sink.Reset()
		res := env.engine.Guard(context.Background(), op, RequestContext{IP: "192.0.2.10"}, ActorContext{})
		requireDenial(t, res, ReasonAuthenticationRequired)
		ev := requireSingleEvent(t, env.sink)
		if ev.EventType != audit.EventAccessDenied || ev.Extra["stage"] != "session" {
			t.Fatalf("unexpected classification %s stage=%s", ev.EventType, ev.Extra["stage"])
		}
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDenyRateLimited]; got != 0 {
		t.Fatalf("anonymous request reached the rate limit stage %d times", got)
	}
}

func TestScenarioMutatingRequiresIntegrityToken(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "u-7", "teller")
	op := Operation{Name: "transfer", RequiredPermission: "transfers.create", Mutating: true}

	for _, tok := range []string{"", "not-a-valid-token"} {
		env.sink.Reset()
		res := env.engine.Guard(context.Background(), op, RequestContext{},
			ActorContext{AccessToken: s.AccessToken, IntegrityToken: tok})
		requireDenial(t, res, ReasonCSRFInvalid)
		ev := requireSingleEvent(t, env.sink)
		if ev.EventType != audit.EventCSRFViolation || ev.Severity != audit.SeverityHigh {
			t.Fatalf("unexpected event %s/%s", ev.EventType, ev.Severity)
		}
	}

	other, err := env.engine.IssueIntegrityToken("some-other-session")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	res := env.engine.Guard(context.Background(), op, RequestContext{},
		ActorContext{AccessToken: s.AccessToken, IntegrityToken: other})
	requireDenial(t, res, ReasonCSRFInvalid)

	res = env.engine.Guard(context.Background(), op, RequestContext{},
		ActorContext{AccessToken: s.AccessToken, IntegrityToken: s.IntegrityToken})
	if !res.Allowed {
		t.Fatalf("expected allow with session integrity token, got %v", res.Err)
	}
}

func TestAnonymousIntegrityToken(t *testing.T) {
	env := newTestEnv(t, nil)
	req := RequestContext{IP: "198.51.100.7", UserAgent: "form-client"}
	tok, err := env.engine.IssueAnonymousIntegrityToken(req)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	op := Operation{Name: "contact", Mutating: true}

	if res := env.engine.Guard(context.Background(), op, req, ActorContext{IntegrityToken: tok}); !res.Allowed {
		t.Fatalf("expected allow, got %v", res.Err)
	}
	moved := req
	moved.IP = "198.51.100.8"
	res := env.engine.Guard(context.Background(), op, moved, ActorContext{IntegrityToken: tok})
	requireDenial(t, res, ReasonCSRFInvalid)
}

func TestAuditTotality(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Guard.SuspiciousThreshold = 0
	})
	ctx := context.Background()
	teller := env.openSession(t, "u-1", "teller")
	idle := env.openSession(t, "u-2", "teller")

	intruder, err := env.engine.jwtManager.CreateAccess(jwt.Identity{UserID: "u-evil", Role: "teller", SessionID: teller.SessionID})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	limited := Operation{Name: "limited", RateLimit: RateLimitPolicy{MaxRequests: 1, Window: time.Minute}}
	if res := env.engine.Guard(ctx, limited, RequestContext{IP: "203.0.113.1"}, ActorContext{}); !res.Allowed {
		t.Fatalf("first limited request denied: %v", res.Err)
	}

	cases := []struct {
		name   string
		op     Operation
		req    RequestContext
		actor  ActorContext
		before func()
		reason DenyReason
		event  audit.EventType
	}{
		{name: "allowed", op: Operation{Name: "read", RequiredPermission: "accounts.read"}, actor: ActorContext{SessionID: teller.SessionID}, event: audit.EventAccessGranted},
		{name: "invalid token", op: Operation{Name: "read"}, actor: ActorContext{AccessToken: "garbage"}, reason: ReasonAuthenticationRequired, event: audit.EventLoginFailed},
		{name: "anonymous", op: Operation{Name: "read", RequiredPermission: "accounts.read"}, reason: ReasonAuthenticationRequired, event: audit.EventAccessDenied},
		{name: "anomalous", op: Operation{Name: "read"}, actor: ActorContext{AccessToken: intruder}, reason: ReasonSessionExpiredOrAnomalous, event: audit.EventSuspiciousActivity},
		{name: "rate limited", op: limited, req: RequestContext{IP: "203.0.113.1"}, reason: ReasonRateLimited, event: audit.EventRateLimitExceeded},
		{name: "csrf", op: Operation{Name: "write", Mutating: true}, actor: ActorContext{SessionID: teller.SessionID}, reason: ReasonCSRFInvalid, event: audit.EventCSRFViolation},
		{name: "permission", op: Operation{Name: "treasury", Module: "treasury"}, actor: ActorContext{SessionID: teller.SessionID}, reason: ReasonInsufficientPermission, event: audit.EventAccessDenied},
		{name: "validation", op: Operation{Name: "pay", Validation: map[string]validation.Rule{"amount": {Kind: validation.KindAmount}}}, req: RequestContext{Fields: map[string]string{"amount": "12.345"}}, reason: ReasonValidationFailed, event: audit.EventValidationFailure},
		{name: "expired", op: Operation{Name: "read"}, actor: ActorContext{SessionID: idle.SessionID}, before: func() { env.clock.Advance(16 * time.Minute) }, reason: ReasonSessionExpiredOrAnomalous, event: audit.EventSessionExpired},
	}

	seen := make(map[string]bool)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env.sink.Reset()
			if tc.before != nil {
				tc.before()
			}
			res := env.engine.Guard(ctx, tc.op, tc.req, tc.actor)
			if tc.reason == "" {
				if !res.Allowed {
					t.Fatalf("expected allow, got %v", res.Err)
				}
			} else {
				d := requireDenial(t, res, tc.reason)
				if d.CorrelationID != res.Context.CorrelationID {
					t.Fatalf("denial and context correlation ids differ")
				}
			}

			ev := requireSingleEvent(t, env.sink)
			if ev.EventType != tc.event {
				t.Fatalf("expected event %s, got %s", tc.event, ev.EventType)
			}
			if ev.CorrelationID != res.Context.CorrelationID {
				t.Fatalf("event correlation id %q != context %q", ev.CorrelationID, res.Context.CorrelationID)
			}
			if seen[ev.CorrelationID] {
				t.Fatalf("correlation id reused: %s", ev.CorrelationID)
			}
			seen[ev.CorrelationID] = true
		})
	}
}

func TestUnavailableFailsClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "u-1", "teller")
	env.mr.Close()

	res := env.engine.Guard(context.Background(),
		Operation{Name: "read", RequiredPermission: "accounts.read"},
		RequestContext{}, ActorContext{SessionID: s.SessionID})

	d := requireDenial(t, res, ReasonUnavailable)
	if strings.Contains(d.Error(), "dial") || strings.Contains(d.Error(), "connect") {
		t.Fatalf("denial leaks internal error text: %q", d.Error())
	}
	ev := requireSingleEvent(t, env.sink)
	if ev.Severity != audit.SeverityHigh {
		t.Fatalf("expected high severity, got %s", ev.Severity)
	}
}

func TestSessionDenialMatchesAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "u-1", "teller")
	env.clock.Advance(20 * time.Minute)

	res := env.engine.Guard(context.Background(), Operation{Name: "read"}, RequestContext{}, ActorContext{SessionID: s.SessionID})
	requireDenial(t, res, ReasonSessionExpiredOrAnomalous)
	if !errors.Is(res.Err, ErrSessionExpiredOrAnomalous) || !errors.Is(res.Err, ErrAuthenticationRequired) {
		t.Fatalf("session denial should match both sentinels")
	}
	if errors.Is(res.Err, ErrRateLimited) {
		t.Fatalf("session denial must not match unrelated sentinels")
	}
}

func TestRateLimitEscalatesToSuspicious(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Guard.SuspiciousThreshold = 2
		cfg.Guard.SuspiciousWindow = time.Minute
	})
	op := Operation{Name: "login", RateLimit: RateLimitPolicy{MaxRequests: 5, Window: 60 * time.Second, Block: 15 * time.Second}}
	req := RequestContext{IP: "203.0.113.50"}

	for i := 0; i < 5; i++ {
		if res := env.engine.Guard(context.Background(), op, req, ActorContext{}); !res.Allowed {
			t.Fatalf("request %d denied: %v", i+1, res.Err)
		}
	}

	env.sink.Reset()
	res := env.engine.Guard(context.Background(), op, req, ActorContext{})
	d := requireDenial(t, res, ReasonRateLimited)
	if d.RetryAfter != 15*time.Second || d.RetryAfterSeconds() != 15 {
		t.Fatalf("expected retry after 15s, got %v", d.RetryAfter)
	}
	ev := requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventRateLimitExceeded || ev.Severity != audit.SeverityMedium {
		t.Fatalf("unexpected first denial event %s/%s", ev.EventType, ev.Severity)
	}

	env.clock.Advance(5 * time.Second)
	env.sink.Reset()
	res = env.engine.Guard(context.Background(), op, req, ActorContext{})
	d = requireDenial(t, res, ReasonRateLimited)
	if d.RetryAfter != 10*time.Second {
		t.Fatalf("expected retry after 10s, got %v", d.RetryAfter)
	}
	ev = requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventSuspiciousActivity || ev.Severity != audit.SeverityHigh {
		t.Fatalf("expected suspicious escalation, got %s/%s", ev.EventType, ev.Severity)
	}
	if env.engine.MetricsSnapshot().Counters[MetricSuspiciousActivity] != 1 {
		t.Fatalf("expected one suspicious activity metric")
	}
}

func TestAuditIsolation(t *testing.T) {
	healthy := newTestEnv(t, nil)
	failing := newTestEnv(t, nil)
	failing.engine.audit = audit.NewRecorder(audit.SinkFunc(func(context.Context, audit.Event) error {
		return errors.New("disk full")
	}), audit.Config{Fallback: discardLogger()})

	ops := []Operation{
		{Name: "public"},
		{Name: "gated", RequiredPermission: "accounts.read"},
		{Name: "write", Mutating: true},
	}
	for _, op := range ops {
		a := healthy.engine.Guard(context.Background(), op, RequestContext{}, ActorContext{})
		b := failing.engine.Guard(context.Background(), op, RequestContext{}, ActorContext{})
		if a.Allowed != b.Allowed {
			t.Fatalf("%s: allowed differs with failing sink (%v vs %v)", op.Name, a.Allowed, b.Allowed)
		}
		if (a.Denial() == nil) != (b.Denial() == nil) || (a.Denial() != nil && a.Denial().Reason != b.Denial().Reason) {
			t.Fatalf("%s: denial differs with failing sink", op.Name)
		}
	}

	business := errors.New("insufficient funds")
	for _, env := range []*testEnv{healthy, failing} {
		res, err := env.engine.Run(context.Background(), Operation{Name: "pay"}, RequestContext{}, ActorContext{},
			func(context.Context, *SecurityContext) error { return business })
		if !res.Allowed || !errors.Is(err, business) {
			t.Fatalf("business result changed: allowed=%v err=%v", res.Allowed, err)
		}
	}
}

func TestHungAuditSinkDoesNotBlockGuard(t *testing.T) {
	env := newTestEnv(t, nil)
	gate := make(chan struct{})
	env.engine.audit = audit.NewRecorder(audit.SinkFunc(func(context.Context, audit.Event) error {
		<-gate
		return nil
	}), audit.Config{WriteTimeout: 50 * time.Millisecond, Fallback: discardLogger()})
	defer close(gate)

	const callers = 3
	results := make(chan GuardResult, callers)
	start := time.Now()
	for i := 0; i < callers; i++ {
		go func() {
			results <- env.engine.Guard(context.Background(), Operation{Name: "public"}, RequestContext{}, ActorContext{})
		}()
	}
	for i := 0; i < callers; i++ {
		select {
		case res := <-results:
			if !res.Allowed {
				t.Fatalf("guard decision changed by hung sink: %+v", res.Denial())
			}
		case <-time.After(2 * time.Second):
			t.Fatal("guard blocked on a hung audit sink")
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("guard calls took %v", elapsed)
	}
}

func TestRecordReturnsSentinelOnPersistenceFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.audit = audit.NewRecorder(audit.SinkFunc(func(context.Context, audit.Event) error {
		return errors.New("disk full")
	}), audit.Config{Fallback: discardLogger()})

	if id := env.engine.Record(context.Background(), audit.Entry{EventType: audit.EventDataAccess}); id != audit.ErrorCorrelationID {
		t.Fatalf("persistence failure returned id %q", id)
	}
}

func TestTokenWithoutSessionIDAuthenticates(t *testing.T) {
	env := newTestEnv(t, nil)
	token, err := env.engine.jwtManager.CreateAccess(jwt.Identity{UserID: "u1", Role: "teller"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	res := env.engine.Guard(context.Background(), Operation{Name: "view", RequiredPermission: "accounts.read"},
		RequestContext{}, ActorContext{AccessToken: token})
	if !res.Allowed {
		t.Fatalf("stateless token denied: %+v", res.Denial())
	}
	if a := res.Context.Actor; !a.Authenticated || a.UserID != "u1" || a.Role != "teller" {
		t.Fatalf("unexpected actor %+v", a)
	}
}

func TestRunRecordsBusinessOutcome(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "u-9", "teller")
	op := Operation{
		Name:               "funds_transfer",
		RequiredPermission: "transfers.create",
		AuditEvent:         audit.EventFundsTransfer,
		AuditSeverity:      audit.SeverityMedium,
		Resource:           "account",
		ResourceIDField:    "account_id",
	}
	req := RequestContext{Fields: map[string]string{"account_id": "ACC-1"}}
	actor := ActorContext{SessionID: s.SessionID}

	res, err := env.engine.Run(context.Background(), op, req, actor, func(ctx context.Context, sc *SecurityContext) error {
		fromCtx, ok := SecurityContextFrom(ctx)
		if !ok || fromCtx != sc {
			t.Fatalf("security context not attached to ctx")
		}
		if !sc.HasPermission("transfers.create") {
			t.Fatalf("security context missing role permissions")
		}
		return nil
	})
	if err != nil || !res.Allowed {
		t.Fatalf("unexpected run result %v %v", res.Err, err)
	}
	ev := requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventFundsTransfer || ev.ResourceID != "ACC-1" {
		t.Fatalf("unexpected success event %s %q", ev.EventType, ev.ResourceID)
	}
	if got := strings.Join(ev.ComplianceFlags, ","); got != "SOX,BSA,AML,OFAC" {
		t.Fatalf("unexpected compliance flags %s", got)
	}

	env.sink.Reset()
	boom := errors.New("ledger offline")
	_, err = env.engine.Run(context.Background(), op, req, actor, func(context.Context, *SecurityContext) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected business error, got %v", err)
	}
	ev = requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventOperationFailed || ev.Extra["error"] != "ledger offline" {
		t.Fatalf("unexpected failure event %s %v", ev.EventType, ev.Extra)
	}

	env.sink.Reset()
	func() {
		defer func() {
			if p := recover(); p != "kaboom" {
				t.Fatalf("expected re-raised panic, got %v", p)
			}
		}()
		_, _ = env.engine.Run(context.Background(), op, req, actor, func(context.Context, *SecurityContext) error { panic("kaboom") })
	}()
	ev = requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventOperationFailed {
		t.Fatalf("panic not recorded as operation failure: %s", ev.EventType)
	}

	env.sink.Reset()
	called := false
	res, err = env.engine.Run(context.Background(), Operation{Name: "treasury", Module: "treasury"}, req, actor,
		func(context.Context, *SecurityContext) error { called = true; return nil })
	if called || err != nil || res.Allowed {
		t.Fatalf("denied run must not call fn (called=%v err=%v)", called, err)
	}
	requireSingleEvent(t, env.sink)
}

func TestRecordAttachesSecurityContext(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.openSession(t, "u-3", "teller")

	var parent string
	_, err := env.engine.Run(context.Background(), Operation{Name: "approve"}, RequestContext{IP: "10.0.0.3"}, ActorContext{SessionID: s.SessionID},
		func(ctx context.Context, sc *SecurityContext) error {
			parent = sc.CorrelationID
			id := env.engine.Record(ctx, audit.Entry{EventType: audit.EventTransactionApprove, Severity: audit.SeverityMedium, Description: "approved"})
			if id == parent || id == audit.ErrorCorrelationID {
				t.Fatalf("unexpected correlation id %q", id)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	events := env.sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected domain event plus outcome event, got %d", len(events))
	}
	domain := events[0]
	if domain.Extra["parent_correlation_id"] != parent || domain.Actor.UserID != "u-3" || domain.Request.IP != "10.0.0.3" {
		t.Fatalf("domain event not enriched: %+v", domain)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	issued, err := env.engine.OpenSession(ctx, SessionRequest{UserID: "u-5", Role: "teller"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if issued.SessionID == "" || issued.AccessToken == "" || issued.IntegrityToken == "" {
		t.Fatalf("incomplete issued session %+v", issued)
	}
	ev := requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventLoginSuccess {
		t.Fatalf("expected login success event, got %s", ev.EventType)
	}

	if _, err := env.engine.OpenSession(ctx, SessionRequest{UserID: "u-5", Role: "anonymous"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}

	env.sink.Reset()
	if err := env.engine.CloseSession(ctx, issued.SessionID, RequestContext{}); err != nil {
		t.Fatalf("close: %v", err)
	}
	ev = requireSingleEvent(t, env.sink)
	if ev.EventType != audit.EventLogout || ev.Actor.UserID != "u-5" {
		t.Fatalf("unexpected logout event %+v", ev)
	}

	res := env.engine.Guard(ctx, Operation{Name: "public"}, RequestContext{}, ActorContext{SessionID: issued.SessionID})
	if !res.Allowed || res.Context.Actor.Authenticated {
		t.Fatalf("closed session should resolve to anonymous")
	}
	if len(res.Context.Anomalies) != 1 || res.Context.Anomalies[0] != "stale_session" {
		t.Fatalf("expected stale_session anomaly, got %v", res.Context.Anomalies)
	}

	if err := env.engine.CloseSession(ctx, issued.SessionID, RequestContext{}); err != nil {
		t.Fatalf("closing twice should succeed: %v", err)
	}

	env.sink.Reset()
	if err := env.engine.CloseSession(ctx, "not a session id", RequestContext{}); err != nil {
		t.Fatalf("malformed id: %v", err)
	}
	if n := len(env.sink.Events()); n != 0 {
		t.Fatalf("malformed id recorded %d events", n)
	}
}

func TestFingerprintDetectOnly(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Session.Fingerprint.IP = true
	})
	s := env.openSession(t, "u-8", "teller")

	res := env.engine.Guard(context.Background(), Operation{Name: "read"}, RequestContext{IP: "172.16.0.9"}, ActorContext{SessionID: s.SessionID})
	if !res.Allowed {
		t.Fatalf("detect-only mismatch should allow: %v", res.Err)
	}
	ev := requireSingleEvent(t, env.sink)
	if ev.Extra["anomalies"] != "fingerprint_mismatch" {
		t.Fatalf("expected anomaly on event, got %v", ev.Extra)
	}
}

func TestClosedEngineFailsClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.Close()
	res := env.engine.Guard(context.Background(), Operation{Name: "public"}, RequestContext{}, ActorContext{})
	requireDenial(t, res, ReasonUnavailable)
	if _, err := env.engine.OpenSession(context.Background(), SessionRequest{UserID: "u", Role: "teller"}); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}

func TestContextDefaultsRequestFacts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.99"), "ctx-agent")
	res := env.engine.Guard(ctx, Operation{Name: "public"}, RequestContext{}, ActorContext{})
	if res.Context.Request.IP != "192.0.2.99" || res.Context.Request.UserAgent != "ctx-agent" {
		t.Fatalf("request facts not taken from ctx: %+v", res.Context.Request)
	}
}

func TestGuardNamed(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Operations = map[string]Operation{
			"view_balance": {RequiredPermission: "accounts.read"},
		}
	})
	if _, err := env.engine.GuardNamed(context.Background(), "missing", RequestContext{}, ActorContext{}); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	res, err := env.engine.GuardNamed(context.Background(), "view_balance", RequestContext{}, ActorContext{})
	if err != nil {
		t.Fatalf("guard named: %v", err)
	}
	requireDenial(t, res, ReasonAuthenticationRequired)
	if res.Context.Operation != "view_balance" {
		t.Fatalf("operation name not propagated: %q", res.Context.Operation)
	}
}

func TestMetricsCountDecisions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.Guard(context.Background(), Operation{Name: "public"}, RequestContext{}, ActorContext{})
	env.engine.Guard(context.Background(), Operation{Name: "gated", RequiredPermission: "x"}, RequestContext{}, ActorContext{})

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricGuardAllowed] != 1 || snap.Counters[MetricDenyAuthentication] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	if snap.Counters[MetricAuditRecorded] < 2 {
		t.Fatalf("expected audit recorded counter, got %d", snap.Counters[MetricAuditRecorded])
	}
	var total uint64
	for _, n := range snap.Histograms[MetricGuardLatency] {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected two latency observations, got %d", total)
	}
}
