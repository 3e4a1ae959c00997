package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// EventType classifies an audit event. Compliance flags and retention are
// derived from it.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailed        EventType = "login_failed"
	EventLogout             EventType = "logout"
	EventSessionExpired     EventType = "session_expired"
	EventPasswordChange     EventType = "password_change"
	EventAccessGranted      EventType = "access_granted"
	EventAccessDenied       EventType = "access_denied"
	EventPermissionChange   EventType = "permission_change"
	EventRoleAssignment     EventType = "role_assignment"
	EventUserCreate         EventType = "user_create"
	EventUserModify         EventType = "user_modify"
	EventUserDelete         EventType = "user_delete"
	EventAccountOpen        EventType = "account_open"
	EventAccountClose       EventType = "account_close"
	EventTransactionCreate  EventType = "transaction_create"
	EventTransactionModify  EventType = "transaction_modify"
	EventTransactionApprove EventType = "transaction_approve"
	EventFundsTransfer      EventType = "funds_transfer"
	EventDataAccess         EventType = "data_access"
	EventDataExport         EventType = "data_export"
	EventConfigChange       EventType = "config_change"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventCSRFViolation      EventType = "csrf_violation"
	EventValidationFailure  EventType = "validation_failure"
	EventOperationFailed    EventType = "operation_failed"
	EventSecurityIncident   EventType = "security_incident"
	EventSuspiciousActivity EventType = "suspicious_activity"
)

// Severity ranks an event's security relevance.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four defined severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Priority returns the log priority for s. Unknown severities log as
// warnings.
func (s Severity) Priority() string {
	switch s {
	case SeverityLow:
		return "info"
	case SeverityHigh:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "warning"
	}
}

// Actor identifies who performed the audited action.
type Actor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Request carries the transport facts of the audited action.
type Request struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// Entry is the caller-supplied part of an event.
type Entry struct {
	EventType   EventType
	Severity    Severity
	Description string
	Resource    string
	ResourceID  string
	Actor       Actor
	Request     Request
	Extra       map[string]any
	// CorrelationID is reused when set, otherwise a new id is issued.
	CorrelationID string
}

// Event is an immutable audit record. Sequence, PrevHash and Hash are set
// by the chain when the event is delivered.
type Event struct {
	CorrelationID   string            `json:"correlation_id"`
	Sequence        uint64            `json:"sequence,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	EventType       EventType         `json:"event_type"`
	Severity        Severity          `json:"severity"`
	Description     string            `json:"description"`
	Resource        string            `json:"resource,omitempty"`
	ResourceID      string            `json:"resource_id,omitempty"`
	Actor           Actor             `json:"actor"`
	Request         Request           `json:"request"`
	ComplianceFlags []string          `json:"compliance_flags"`
	RetentionPeriod string            `json:"retention_period"`
	Extra           map[string]string `json:"extra,omitempty"`
	PrevHash        string            `json:"prev_hash,omitempty"`
	Hash            string            `json:"hash,omitempty"`
}

// Record flattens e into the sink contract shape. Extra keys are prefixed
// with "extra.".
func (e Event) Record() map[string]any {
	flags := make([]string, len(e.ComplianceFlags))
	copy(flags, e.ComplianceFlags)

	rec := map[string]any{
		"correlation_id":   e.CorrelationID,
		"timestamp":        e.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type":       string(e.EventType),
		"severity":         string(e.Severity),
		"priority":         e.Severity.Priority(),
		"description":      e.Description,
		"resource":         e.Resource,
		"resource_id":      e.ResourceID,
		"user_id":          e.Actor.UserID,
		"username":         e.Actor.Username,
		"role":             e.Actor.Role,
		"ip":               e.Request.IP,
		"user_agent":       e.Request.UserAgent,
		"method":           e.Request.Method,
		"endpoint":         e.Request.Endpoint,
		"compliance_flags": flags,
		"retention_period": e.RetentionPeriod,
	}
	if e.Sequence > 0 {
		rec["sequence"] = e.Sequence
	}
	if e.PrevHash != "" {
		rec["prev_hash"] = e.PrevHash
	}
	if e.Hash != "" {
		rec["hash"] = e.Hash
	}
	for k, v := range e.Extra {
		rec["extra."+k] = v
	}
	return rec
}

// MarshalRecord returns the JSON encoding of e.Record(). Map keys are
// sorted, so the output is canonical.
func (e Event) MarshalRecord() ([]byte, error) {
	return json.Marshal(e.Record())
}

// ExtraKeys returns the sorted keys of e.Extra.
func (e Event) ExtraKeys() []string {
	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringify reduces an arbitrary extra value to its audit string form.
func stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case time.Duration:
		return x.String(), nil
	case EventType:
		return string(x), nil
	case Severity:
		return string(x), nil
	case error:
		return x.Error(), nil
	case fmt.Stringer:
		return x.String(), nil
	case json.Marshaler:
		b, err := x.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("marshal extra value: %w", err)
		}
		return string(b), nil
	default:
		return fmt.Sprint(x), nil
	}
}
