package goGuard

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/csrf"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/session"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the guard pipeline entry point. It is safe for concurrent use
// after [Builder.Build].
//
//	Docs: docs/engine.md, docs/guard.md
type Engine struct {
	config       Config
	registry     *permission.Registry
	jwtManager   *jwt.Manager
	sessionStore *session.Store
	limiter      rate.Limiter
	repeats      *limiters.RepeatTracker
	integrity    *csrf.Signer
	audit        *audit.Recorder
	metrics      *Metrics
	logger       logrus.FieldLogger
	tracer       trace.Tracer
	now          func() time.Time

	operations map[string]Operation
	deps       flows.GuardDeps
	closed     atomic.Bool
}

func (e *Engine) guardDeps() flows.GuardDeps {
	cfg := e.config
	d := flows.GuardDeps{
		Now:                e.now,
		SessionTimeout:     cfg.Timeouts.Session,
		MaxIdle:            cfg.Session.MaxIdle,
		MaxAge:             cfg.Session.MaxAge,
		Fingerprint:        cfg.Session.Fingerprint,
		EnforceFingerprint: cfg.Session.EnforceFingerprint,
		Limiter:            e.limiter,
		RateLimitTimeout:   cfg.Timeouts.RateLimit,
		Repeats:            e.repeats,
		Permissions:        e.registry,
		OnTouchError: func(_ string, err error) {
			e.logger.WithError(err).Warn("session touch failed")
		},
	}
	if e.jwtManager != nil {
		d.ParseAccess = e.jwtManager.ParseAccess
	}
	if e.sessionStore != nil {
		d.Sessions = e.sessionStore
	}
	if e.integrity != nil {
		d.VerifyIntegrity = e.integrity.Verify
	}
	return d
}

/*
====================================
GUARD
====================================
*/

// Guard runs op through the pipeline and records exactly one audit event
// for the decision. An audit failure never changes the result.
func (e *Engine) Guard(ctx context.Context, op Operation, req RequestContext, actor ActorContext) GuardResult {
	ctx, span := e.startSpan(ctx, op)
	defer span.End()

	res, fr := e.decide(ctx, op, req, actor)
	if res.Allowed {
		e.recordAllowed(ctx, op, res.Context)
	} else {
		e.recordDenied(ctx, op, res.Context, fr, res.Denial())
	}
	endSpan(span, res, nil)
	return res
}

// Run guards op and, when allowed, calls fn with the SecurityContext. One
// audit event records the business outcome: the operation's event on
// success, operation_failed on error or panic. A panic is re-raised after
// recording. The returned error is fn's error only.
func (e *Engine) Run(ctx context.Context, op Operation, req RequestContext, actor ActorContext, fn func(context.Context, *SecurityContext) error) (res GuardResult, err error) {
	ctx, span := e.startSpan(ctx, op)
	defer span.End()

	res, fr := e.decide(ctx, op, req, actor)
	if !res.Allowed {
		e.recordDenied(ctx, op, res.Context, fr, res.Denial())
		endSpan(span, res, nil)
		return res, nil
	}

	defer func() {
		if p := recover(); p != nil {
			perr := fmt.Errorf("panic: %v", p)
			e.recordOutcome(ctx, op, res.Context, perr)
			endSpan(span, res, perr)
			panic(p)
		}
	}()

	err = fn(WithSecurityContext(ctx, res.Context), res.Context)
	e.recordOutcome(ctx, op, res.Context, err)
	endSpan(span, res, err)
	return res, err
}

// GuardNamed guards the configured operation called name.
func (e *Engine) GuardNamed(ctx context.Context, name string, req RequestContext, actor ActorContext) (GuardResult, error) {
	op, ok := e.Operation(name)
	if !ok {
		return GuardResult{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return e.Guard(ctx, op, req, actor), nil
}

// Operation returns the configured operation called name.
func (e *Engine) Operation(name string) (Operation, bool) {
	if e == nil {
		return Operation{}, false
	}
	op, ok := e.operations[name]
	if !ok {
		return Operation{}, false
	}
	return cloneOperation(op), true
}

func (e *Engine) decide(ctx context.Context, op Operation, req RequestContext, actor ActorContext) (GuardResult, flows.GuardResult) {
	start := e.now()
	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}

	sc := &SecurityContext{
		CorrelationID: audit.NewCorrelationID(),
		Operation:     op.Name,
		Request:       req,
		StartedAt:     start,
	}

	var fr flows.GuardResult
	if e.closed.Load() {
		fr = flows.GuardResult{
			Failure: flows.FailureUnavailable,
			Stage:   "closed",
			Err:     ErrEngineClosed,
			Actor:   flows.GuardActor{Role: permission.RoleAnonymous},
		}
	} else {
		fr = flows.RunGuard(ctx, guardInput(op, req, actor), e.deps)
	}

	sc.Actor = Actor{
		UserID:        fr.Actor.UserID,
		Username:      fr.Actor.Username,
		Role:          fr.Actor.Role,
		SessionID:     fr.Actor.SessionID,
		Authenticated: fr.Actor.Authenticated,
	}
	sc.Permissions = e.registry.Permissions(sc.Actor.Role)
	sc.Anomalies = fr.Anomalies
	for range fr.Anomalies {
		e.metrics.Inc(MetricSessionAnomaly)
	}
	e.metrics.Observe(MetricGuardLatency, e.now().Sub(start))

	if fr.Failure == flows.FailureNone {
		e.metrics.Inc(MetricGuardAllowed)
		return GuardResult{Allowed: true, Context: sc}, fr
	}

	d := denialFor(fr)
	d.CorrelationID = sc.CorrelationID
	e.metrics.Inc(denyMetric(d.Reason))
	if fr.Suspicious {
		e.metrics.Inc(MetricSuspiciousActivity)
	}
	return GuardResult{Context: sc, Err: d}, fr
}

func guardInput(op Operation, req RequestContext, actor ActorContext) flows.GuardInput {
	return flows.GuardInput{
		Operation: flows.GuardOperation{
			Name:               op.Name,
			RequiredPermission: op.RequiredPermission,
			Module:             op.Module,
			RateLimit:          op.RateLimit.policy(),
			RateLimitScope:     op.RateLimitScope,
			Mutating:           op.Mutating,
			Validation:         op.Validation,
		},
		AccessToken:    actor.AccessToken,
		SessionID:      actor.SessionID,
		IntegrityToken: actor.IntegrityToken,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
		AcceptLanguage: req.AcceptLanguage,
		Fields:         req.Fields,
	}
}

func (e *Engine) startSpan(ctx context.Context, op Operation) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return e.tracer.Start(ctx, "goGuard.Guard",
		trace.WithAttributes(attribute.String("guard.operation", op.Name)))
}

func endSpan(span trace.Span, res GuardResult, bizErr error) {
	decision := "denied"
	if res.Allowed {
		decision = "allowed"
	}
	attrs := []attribute.KeyValue{attribute.String("guard.decision", decision)}
	if res.Context != nil {
		attrs = append(attrs, attribute.String("guard.correlation_id", res.Context.CorrelationID))
	}
	if d := res.Denial(); d != nil {
		attrs = append(attrs, attribute.String("guard.reason", string(d.Reason)))
		if d.Reason == ReasonUnavailable {
			span.SetStatus(codes.Error, string(d.Reason))
		}
	}
	span.SetAttributes(attrs...)
	if bizErr != nil {
		span.RecordError(bizErr)
		span.SetStatus(codes.Error, "operation failed")
	}
}

/*
====================================
INTEGRITY TOKENS
====================================
*/

// IssueIntegrityToken returns the integrity token for sessionID.
func (e *Engine) IssueIntegrityToken(sessionID string) (string, error) {
	if e.integrity == nil {
		return "", ErrIntegrityDisabled
	}
	return e.integrity.Issue(csrf.SessionBinding(sessionID))
}

// IssueAnonymousIntegrityToken returns an integrity token bound to the
// fingerprint of req, for mutating operations performed without a session.
func (e *Engine) IssueAnonymousIntegrityToken(req RequestContext) (string, error) {
	if e.integrity == nil {
		return "", ErrIntegrityDisabled
	}
	attrs := session.Attributes{IP: req.IP, UserAgent: req.UserAgent, AcceptLanguage: req.AcceptLanguage}
	return e.integrity.Issue(flows.IntegrityBinding(flows.GuardActor{}, attrs, e.config.Session.Fingerprint))
}

/*
====================================
SESSIONS
====================================
*/

// OpenSession creates a server-side session for an already authenticated
// identity, issues an access token and an integrity token when those are
// configured, and records a login_success event.
func (e *Engine) OpenSession(ctx context.Context, in SessionRequest) (IssuedSession, error) {
	if e.closed.Load() {
		return IssuedSession{}, ErrEngineClosed
	}
	if e.sessionStore == nil {
		return IssuedSession{}, ErrSessionsDisabled
	}
	if in.UserID == "" || in.Role == "" || in.Role == permission.RoleAnonymous {
		return IssuedSession{}, ErrInvalidIdentity
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return IssuedSession{}, err
	}
	now := e.now()

	sess := &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		SessionID:     sid,
		UserID:        in.UserID,
		Username:      in.Username,
		Role:          in.Role,
		CreatedAt:     now.UnixMilli(),
		LastSeen:      now.UnixMilli(),
	}
	if fp := e.config.Session.Fingerprint; fp.Enabled() {
		sess.Fingerprint = session.Fingerprint(fp, session.Attributes{
			IP:             in.Request.IP,
			UserAgent:      in.Request.UserAgent,
			AcceptLanguage: in.Request.AcceptLanguage,
		})
	}

	saveCtx, cancel := e.timeout(ctx, e.config.Timeouts.Session)
	err = e.sessionStore.Save(saveCtx, sess)
	cancel()
	if err != nil {
		return IssuedSession{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := IssuedSession{SessionID: sid, ExpiresAt: now.Add(e.config.Session.TTL)}
	if e.jwtManager != nil {
		token, err := e.jwtManager.CreateAccess(jwt.Identity{
			UserID:    in.UserID,
			Username:  in.Username,
			Role:      in.Role,
			SessionID: sid,
		})
		if err != nil {
			return IssuedSession{}, err
		}
		out.AccessToken = token
		out.ExpiresAt = now.Add(e.config.JWT.AccessTTL)
	}
	if e.integrity != nil {
		tok, err := e.integrity.Issue(csrf.SessionBinding(sid))
		if err != nil {
			return IssuedSession{}, err
		}
		out.IntegrityToken = tok
	}

	e.metrics.Inc(MetricSessionOpened)
	out.CorrelationID = e.audit.Record(ctx, audit.Entry{
		EventType:   audit.EventLoginSuccess,
		Severity:    audit.SeverityLow,
		Description: "session opened",
		Resource:    "session",
		Actor:       audit.Actor{UserID: in.UserID, Username: in.Username, Role: in.Role},
		Request:     auditRequest(in.Request),
	})
	return out, nil
}

// CloseSession deletes sessionID and records a logout event. Closing an
// unknown session is not an error.
func (e *Engine) CloseSession(ctx context.Context, sessionID string, req RequestContext) error {
	if e.sessionStore == nil {
		return ErrSessionsDisabled
	}
	if internal.CheckSessionID(sessionID) != nil {
		return nil
	}

	opCtx, cancel := e.timeout(ctx, e.config.Timeouts.Session)
	defer cancel()

	var actor audit.Actor
	if sess, err := e.sessionStore.Get(opCtx, sessionID); err == nil {
		actor = audit.Actor{UserID: sess.UserID, Username: sess.Username, Role: sess.Role}
	}
	if err := e.sessionStore.Delete(opCtx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.Inc(MetricSessionClosed)
	e.audit.Record(ctx, audit.Entry{
		EventType:   audit.EventLogout,
		Severity:    audit.SeverityLow,
		Description: "session closed",
		Resource:    "session",
		Actor:       actor,
		Request:     auditRequest(req),
	})
	return nil
}

func (e *Engine) timeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

/*
====================================
PERMISSIONS
====================================
*/

// HasPermission reports whether role holds permission.
func (e *Engine) HasPermission(role, permission string) bool {
	return e.registry.HasPermission(role, permission)
}

// Permissions returns a copy of role's permission set.
func (e *Engine) Permissions(role string) []string {
	return e.registry.Permissions(role)
}

// ModuleAccess reports whether role may open module.
func (e *Engine) ModuleAccess(role, module string) bool {
	return e.registry.ModuleAccess(role, module)
}

/*
====================================
LIFECYCLE
====================================
*/

// SweepRateLimits evicts idle in-memory rate limit buckets and returns the
// number removed. It is a no-op for the redis backend.
func (e *Engine) SweepRateLimits() int {
	if e == nil {
		return 0
	}
	if s, ok := e.limiter.(rate.Sweeper); ok {
		return s.Sweep(e.now())
	}
	return 0
}

// Close stops admitting operations and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.Swap(true) {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditChainHead returns the last sealed sequence number and hash.
func (e *Engine) AuditChainHead() (uint64, string) {
	if e == nil || e.audit == nil {
		return 0, ""
	}
	return e.audit.ChainHead()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}
