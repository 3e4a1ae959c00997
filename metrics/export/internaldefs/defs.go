package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one goGuard counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one goGuard histogram for exporters.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricGuardAllowed, Name: "goguard_guard_allowed_total", Help: "Operations allowed by the guard pipeline."},
	{ID: goGuard.MetricDenyAuthentication, Name: "goguard_deny_authentication_required_total", Help: "Denials for missing or invalid credentials."},
	{ID: goGuard.MetricDenySession, Name: "goguard_deny_session_total", Help: "Denials for expired or anomalous sessions."},
	{ID: goGuard.MetricDenyRateLimited, Name: "goguard_deny_rate_limited_total", Help: "Denials by the rate limit stage."},
	{ID: goGuard.MetricDenyCSRF, Name: "goguard_deny_csrf_total", Help: "Denials for missing or invalid integrity tokens."},
	{ID: goGuard.MetricDenyPermission, Name: "goguard_deny_permission_total", Help: "Denials for insufficient permission."},
	{ID: goGuard.MetricDenyValidation, Name: "goguard_deny_validation_total", Help: "Denials by input validation."},
	{ID: goGuard.MetricDenyUnavailable, Name: "goguard_deny_unavailable_total", Help: "Denials because a security backend was unavailable."},
	{ID: goGuard.MetricSuspiciousActivity, Name: "goguard_suspicious_activity_total", Help: "Rate limit denials escalated to suspicious activity."},
	{ID: goGuard.MetricSessionAnomaly, Name: "goguard_session_anomaly_total", Help: "Non-fatal session anomalies."},
	{ID: goGuard.MetricSessionOpened, Name: "goguard_session_opened_total", Help: "Opened sessions."},
	{ID: goGuard.MetricSessionClosed, Name: "goguard_session_closed_total", Help: "Closed sessions."},
	{ID: goGuard.MetricOperationFailed, Name: "goguard_operation_failed_total", Help: "Allowed operations whose business function failed."},
	{ID: goGuard.MetricAuditRecorded, Name: "goguard_audit_recorded_total", Help: "Audit events delivered to the sink."},
	{ID: goGuard.MetricAuditFailed, Name: "goguard_audit_failed_total", Help: "Audit events the sink failed to write."},
}

// HistogramDefs lists the exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricGuardLatency, Name: "goguard_guard_latency_seconds", Help: "Guard pipeline latency."},
}

// DenialDef maps a deny counter to its reason label.
type DenialDef struct {
	ID     goGuard.MetricID
	Reason goGuard.DenyReason
}

// DeniedName is the per-reason denial counter. It carries a "reason" label.
const DeniedName = "goguard_guard_denied_total"

// DenialDefs lists the deny counters aggregated under DeniedName.
var DenialDefs = []DenialDef{
	{ID: goGuard.MetricDenyAuthentication, Reason: goGuard.ReasonAuthenticationRequired},
	{ID: goGuard.MetricDenySession, Reason: goGuard.ReasonSessionExpiredOrAnomalous},
	{ID: goGuard.MetricDenyRateLimited, Reason: goGuard.ReasonRateLimited},
	{ID: goGuard.MetricDenyCSRF, Reason: goGuard.ReasonCSRFInvalid},
	{ID: goGuard.MetricDenyPermission, Reason: goGuard.ReasonInsufficientPermission},
	{ID: goGuard.MetricDenyValidation, Reason: goGuard.ReasonValidationFailed},
	{ID: goGuard.MetricDenyUnavailable, Reason: goGuard.ReasonUnavailable},
}

// AuditDroppedName is rendered from Engine.AuditDropped rather than the
// counter table.
const AuditDroppedName = "goguard_audit_dropped_total"

// HistogramBounds are the upper bounds of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSeconds mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundSeconds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is used where a bound has to appear in a metric name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
