package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes events as structured log entries. Severity selects
// the level: low is info, medium is warn, high and critical are error.
type LogrusSink struct {
	logger logrus.FieldLogger
}

func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) Write(_ context.Context, event Event) error {
	fields := logrus.Fields{
		"correlation_id":   event.CorrelationID,
		"event_type":       string(event.EventType),
		"severity":         string(event.Severity),
		"priority":         event.Severity.Priority(),
		"compliance_flags": event.ComplianceFlags,
		"retention_period": event.RetentionPeriod,
	}
	if event.Actor.UserID != "" {
		fields["user_id"] = event.Actor.UserID
	}
	if event.Actor.Role != "" {
		fields["role"] = event.Actor.Role
	}
	if event.Request.IP != "" {
		fields["ip"] = event.Request.IP
	}
	if event.Request.Endpoint != "" {
		fields["endpoint"] = event.Request.Endpoint
	}
	if event.Resource != "" {
		fields["resource"] = event.Resource
	}
	if event.Sequence > 0 {
		fields["sequence"] = event.Sequence
	}
	for _, k := range event.ExtraKeys() {
		fields["extra."+k] = event.Extra[k]
	}

	entry := s.logger.WithFields(fields)
	switch LevelFor(event.Severity) {
	case logrus.InfoLevel:
		entry.Info(event.Description)
	case logrus.WarnLevel:
		entry.Warn(event.Description)
	default:
		entry.Error(event.Description)
	}
	return nil
}

// LevelFor maps a severity to its logrus level.
func LevelFor(s Severity) logrus.Level {
	switch s {
	case SeverityLow:
		return logrus.InfoLevel
	case SeverityHigh, SeverityCritical:
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}
