package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
)

type denialBody struct {
	Reason        string `json:"reason"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Required      string `json:"required_permission,omitempty"`
	Field         string `json:"field,omitempty"`
	Rule          string `json:"rule,omitempty"`
	RetryAfter    int    `json:"retry_after,omitempty"`
}

// StatusCode maps a deny reason to its HTTP status.
func StatusCode(reason goGuard.DenyReason) int {
	switch reason {
	case goGuard.ReasonAuthenticationRequired, goGuard.ReasonSessionExpiredOrAnomalous:
		return http.StatusUnauthorized
	case goGuard.ReasonRateLimited:
		return http.StatusTooManyRequests
	case goGuard.ReasonCSRFInvalid, goGuard.ReasonInsufficientPermission:
		return http.StatusForbidden
	case goGuard.ReasonValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// WriteDenial writes d as a JSON error. A nil d is written as unavailable.
func WriteDenial(w http.ResponseWriter, d *goGuard.Denial) {
	if d == nil {
		d = &goGuard.Denial{Reason: goGuard.ReasonUnavailable, Message: "security unavailable"}
	}

	body := denialBody{
		Reason:        string(d.Reason),
		Message:       d.Message,
		CorrelationID: d.CorrelationID,
		Required:      d.Required,
		Field:         d.Field,
		Rule:          d.Rule,
	}
	if d.Reason == goGuard.ReasonRateLimited {
		secs := d.RetryAfterSeconds()
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(StatusCode(d.Reason))
	_ = json.NewEncoder(w).Encode(body)
}
