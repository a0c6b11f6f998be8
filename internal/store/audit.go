// ABOUTME: Append and list operations for the audit_log table
// ABOUTME: Tools and metadata are stored as JSON text; timestamps are UTC

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dexi-gateway/internal/audit"
)

// sqliteTime is fixed-width so text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func (s *AuditStore) timeArg(t time.Time) any {
	if s.dialect == Postgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTime)
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(sqliteTime, t)
	case []byte:
		return time.Parse(sqliteTime, string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// Append inserts r. Generates ID and Timestamp if not set.
func (s *AuditStore) Append(ctx context.Context, r *audit.Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	var toolsJSON, metadataJSON *string
	if len(r.ToolsUsed) > 0 {
		data, err := json.Marshal(r.ToolsUsed)
		if err != nil {
			return fmt.Errorf("marshaling tools used: %w", err)
		}
		str := string(data)
		toolsJSON = &str
	}
	if r.Metadata != nil {
		data, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling audit metadata: %w", err)
		}
		str := string(data)
		metadataJSON = &str
	}

	query := s.rebind(`
		INSERT INTO audit_log (audit_id, user_id, agent_id, request_text, response_text, tools_used_json, pii_redacted, metadata_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.UserID,
		r.AgentID,
		r.Request,
		r.Response,
		toolsJSON,
		r.PIIRedacted,
		metadataJSON,
		s.timeArg(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "id", r.ID, "user", r.UserID, "agent", r.AgentID)
	return nil
}

// List returns records matching f, newest first.
func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	var where []string
	var args []any
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Since != nil {
		where = append(where, "ts >= ?")
		args = append(args, s.timeArg(*f.Since))
	}

	query := `SELECT audit_id, user_id, agent_id, request_text, response_text, tools_used_json, pii_redacted, metadata_json, ts FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, audit.NormalizeLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []audit.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return records, nil
}

// scanRecord scans a row into a Record.
func scanRecord(scanner interface{ Scan(dest ...any) error }) (audit.Record, error) {
	var r audit.Record
	var toolsJSON, metadataJSON *string
	var ts any

	if err := scanner.Scan(
		&r.ID,
		&r.UserID,
		&r.AgentID,
		&r.Request,
		&r.Response,
		&toolsJSON,
		&r.PIIRedacted,
		&metadataJSON,
		&ts,
	); err != nil {
		return r, fmt.Errorf("scanning audit entry: %w", err)
	}

	var err error
	if r.Timestamp, err = parseTime(ts); err != nil {
		return r, fmt.Errorf("parsing timestamp: %w", err)
	}
	if toolsJSON != nil {
		if err := json.Unmarshal([]byte(*toolsJSON), &r.ToolsUsed); err != nil {
			return r, fmt.Errorf("unmarshaling tools used: %w", err)
		}
	}
	if metadataJSON != nil {
		if err := json.Unmarshal([]byte(*metadataJSON), &r.Metadata); err != nil {
			return r, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return r, nil
}
