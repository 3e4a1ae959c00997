package audit

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusSinkLevels(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	sink := NewLogrusSink(logger)

	tests := []struct {
		sev  Severity
		want logrus.Level
	}{
		{SeverityLow, logrus.InfoLevel},
		{SeverityMedium, logrus.WarnLevel},
		{SeverityHigh, logrus.ErrorLevel},
		{SeverityCritical, logrus.ErrorLevel},
	}

	for _, tt := range tests {
		hook.Reset()
		require.NoError(t, sink.Write(context.Background(), Event{
			CorrelationID: "c1",
			EventType:     EventAccessDenied,
			Severity:      tt.sev,
			Description:   "denied",
			Actor:         Actor{UserID: "u1", Role: "teller"},
			Extra:         map[string]string{"reason": "permission_denied"},
		}))
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, tt.want, entry.Level, "severity %s", tt.sev)
		assert.Equal(t, "denied", entry.Message)
		assert.Equal(t, "c1", entry.Data["correlation_id"])
		assert.Equal(t, "teller", entry.Data["role"])
		assert.Equal(t, "permission_denied", entry.Data["extra.reason"])
	}
}
