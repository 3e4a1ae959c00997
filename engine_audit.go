package goGuard

import (
	"context"
	"strings"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
)

// Record writes a caller-supplied audit event. When ctx carries a
// SecurityContext, the actor and request are filled from it and the guard
// decision's correlation id is attached as extra.parent_correlation_id.
// Record never fails; it returns [audit.ErrorCorrelationID] when the event
// could not be recorded.
func (e *Engine) Record(ctx context.Context, entry audit.Entry) string {
	if e == nil || e.audit == nil {
		return audit.ErrorCorrelationID
	}
	if sc, ok := SecurityContextFrom(ctx); ok {
		if entry.Actor == (audit.Actor{}) {
			entry.Actor = auditActor(sc.Actor)
		}
		if entry.Request == (audit.Request{}) {
			entry.Request = auditRequest(sc.Request)
		}
		extra := make(map[string]any, len(entry.Extra)+1)
		for k, v := range entry.Extra {
			extra[k] = v
		}
		extra["parent_correlation_id"] = sc.CorrelationID
		entry.Extra = extra
	}
	return e.audit.Record(ctx, entry)
}

func denialFor(fr flows.GuardResult) *Denial {
	switch fr.Failure {
	case flows.FailureInvalidToken, flows.FailureAnonymous:
		return newDenial(ReasonAuthenticationRequired)
	case flows.FailureSessionExpired, flows.FailureSessionAnomalous:
		return newDenial(ReasonSessionExpiredOrAnomalous)
	case flows.FailureRateLimited:
		return rateLimitedDenial(fr.RetryAfter)
	case flows.FailureIntegrity:
		return newDenial(ReasonCSRFInvalid)
	case flows.FailurePermission:
		d := newDenial(ReasonInsufficientPermission)
		d.Required = fr.Required
		return d
	case flows.FailureValidation:
		return validationDenial(fr.Field, fr.Rule)
	default:
		return newDenial(ReasonUnavailable)
	}
}

// deniedEvent classifies a denial for the audit trail.
func deniedEvent(fr flows.GuardResult) (audit.EventType, audit.Severity, string) {
	switch fr.Failure {
	case flows.FailureInvalidToken:
		return audit.EventLoginFailed, audit.SeverityMedium, "invalid access token"
	case flows.FailureAnonymous:
		return audit.EventAccessDenied, audit.SeverityLow, "authentication required"
	case flows.FailureSessionExpired:
		return audit.EventSessionExpired, audit.SeverityLow, "session expired"
	case flows.FailureSessionAnomalous:
		return audit.EventSuspiciousActivity, audit.SeverityHigh, "session anomaly"
	case flows.FailureRateLimited:
		if fr.Suspicious {
			return audit.EventSuspiciousActivity, audit.SeverityHigh, "repeated rate limit violations"
		}
		return audit.EventRateLimitExceeded, audit.SeverityMedium, "rate limit exceeded"
	case flows.FailureIntegrity:
		return audit.EventCSRFViolation, audit.SeverityHigh, "integrity token invalid"
	case flows.FailurePermission:
		return audit.EventAccessDenied, audit.SeverityMedium, "insufficient permission"
	case flows.FailureValidation:
		return audit.EventValidationFailure, audit.SeverityLow, "input validation failed"
	default:
		return audit.EventAccessDenied, audit.SeverityHigh, "security backend unavailable"
	}
}

func (e *Engine) recordDenied(ctx context.Context, op Operation, sc *SecurityContext, fr flows.GuardResult, d *Denial) string {
	et, sev, desc := deniedEvent(fr)
	entry := e.entry(op, sc, et, sev, desc+": "+op.Name)

	entry.Extra["decision"] = "denied"
	entry.Extra["reason"] = string(d.Reason)
	entry.Extra["stage"] = fr.Stage
	switch fr.Failure {
	case flows.FailureRateLimited:
		entry.Extra["retry_after"] = d.RetryAfter
		entry.Extra["rate_scope"] = fr.RateScope
		if fr.Repeats > 0 {
			entry.Extra["repeats"] = fr.Repeats
		}
	case flows.FailurePermission:
		entry.Extra["required_permission"] = d.Required
	case flows.FailureValidation:
		entry.Extra["field"] = d.Field
		entry.Extra["rule"] = d.Rule
	case flows.FailureUnavailable:
		e.logger.WithError(fr.Err).WithField("stage", fr.Stage).Error("guard failed closed")
	}

	return e.audit.Record(ctx, entry)
}

func (e *Engine) recordAllowed(ctx context.Context, op Operation, sc *SecurityContext) string {
	et := op.AuditEvent
	if et == "" {
		et = audit.EventAccessGranted
	}
	sev := op.AuditSeverity
	if sev == "" {
		sev = audit.SeverityLow
	}
	entry := e.entry(op, sc, et, sev, "access granted: "+op.Name)
	entry.Extra["decision"] = "allowed"
	return e.audit.Record(ctx, entry)
}

// recordOutcome emits the single event of an allowed Run.
func (e *Engine) recordOutcome(ctx context.Context, op Operation, sc *SecurityContext, err error) string {
	if err == nil {
		return e.recordAllowed(ctx, op, sc)
	}
	e.metrics.Inc(MetricOperationFailed)
	entry := e.entry(op, sc, audit.EventOperationFailed, audit.SeverityMedium, "operation failed: "+op.Name)
	entry.Extra["decision"] = "allowed"
	entry.Extra["error"] = err.Error()
	return e.audit.Record(ctx, entry)
}

func (e *Engine) entry(op Operation, sc *SecurityContext, et audit.EventType, sev audit.Severity, desc string) audit.Entry {
	entry := audit.Entry{
		EventType:     et,
		Severity:      sev,
		Description:   desc,
		Resource:      op.Resource,
		Actor:         auditActor(sc.Actor),
		Request:       auditRequest(sc.Request),
		CorrelationID: sc.CorrelationID,
		Extra:         map[string]any{"operation": op.Name},
	}
	if op.ResourceIDField != "" {
		entry.ResourceID = sc.Request.Fields[op.ResourceIDField]
	}
	if len(sc.Anomalies) > 0 {
		entry.Extra["anomalies"] = strings.Join(sc.Anomalies, ",")
	}
	return entry
}

func auditActor(a Actor) audit.Actor {
	return audit.Actor{UserID: a.UserID, Username: a.Username, Role: a.Role}
}

func auditRequest(r RequestContext) audit.Request {
	return audit.Request{
		IP:        r.IP,
		UserAgent: r.UserAgent,
		Method:    r.Method,
		Endpoint:  r.Endpoint,
	}
}
