package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/lib/pq"
)

const defaultAuditTable = "security_audit_events"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresSink inserts audit events into a PostgreSQL table. Rows are
// insert-only.
type PostgresSink struct {
	db     *sql.DB
	table  string
	insert string
}

// NewPostgresSink creates the table and indexes if missing. An empty table
// name uses "security_audit_events".
func NewPostgresSink(ctx context.Context, db *sql.DB, table string) (*PostgresSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if table == "" {
		table = defaultAuditTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}

	s := &PostgresSink{db: db, table: table}
	s.insert = fmt.Sprintf(`
		INSERT INTO %s (
			correlation_id, sequence, timestamp, event_type, severity, priority,
			description, resource, resource_id,
			user_id, username, role,
			ip_address, user_agent, method, endpoint,
			compliance_flags, retention_period, extra, prev_hash, hash
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)`, table)

	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure %s table: %w", table, err)
	}
	return s, nil
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGSERIAL PRIMARY KEY,
		correlation_id VARCHAR(100) NOT NULL,
		sequence BIGINT,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		severity VARCHAR(16) NOT NULL,
		priority VARCHAR(16) NOT NULL,
		description TEXT,
		resource VARCHAR(255),
		resource_id VARCHAR(255),
		user_id VARCHAR(255),
		username VARCHAR(255),
		role VARCHAR(64),
		ip_address VARCHAR(45),
		user_agent TEXT,
		method VARCHAR(10),
		endpoint TEXT,
		compliance_flags TEXT[] NOT NULL,
		retention_period VARCHAR(32) NOT NULL,
		extra JSONB,
		prev_hash VARCHAR(64),
		hash VARCHAR(64),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_event_type ON %[1]s(event_type);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_user_id ON %[1]s(user_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_correlation_id ON %[1]s(correlation_id);
	`, s.table)

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Write inserts one row.
func (s *PostgresSink) Write(ctx context.Context, event Event) error {
	var extra []byte
	if len(event.Extra) > 0 {
		var err error
		extra, err = json.Marshal(event.Extra)
		if err != nil {
			return fmt.Errorf("failed to marshal extra: %w", err)
		}
	}

	var seq sql.NullInt64
	if event.Sequence > 0 {
		seq = sql.NullInt64{Int64: int64(event.Sequence), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.insert,
		event.CorrelationID, seq, event.Timestamp.UTC(), string(event.EventType), string(event.Severity), event.Severity.Priority(),
		event.Description, event.Resource, event.ResourceID,
		event.Actor.UserID, event.Actor.Username, event.Actor.Role,
		event.Request.IP, event.Request.UserAgent, event.Request.Method, event.Request.Endpoint,
		pq.Array(event.ComplianceFlags), event.RetentionPeriod, extra, event.PrevHash, event.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
