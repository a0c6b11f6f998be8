// ABOUTME: Tests for audit log store operations on SQLite and the Postgres dialect
// ABOUTME: SQLite runs for real in a temp dir; Postgres statements are checked with sqlmock

package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dexi-gateway/internal/audit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "audit.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAuditStore_Append(t *testing.T) {
	s := setupTestStore(t)

	r := &audit.Record{UserID: "u1", AgentID: "guide", Request: "hi", Response: "hello"}
	require.NoError(t, s.Append(context.Background(), r))

	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Timestamp.IsZero())
}

func TestAuditStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)

	require.NoError(t, s.Append(ctx, &audit.Record{
		ID:          "a1",
		UserID:      "u1",
		AgentID:     "export",
		Request:     "export [REDACTED]",
		Response:    "done",
		ToolsUsed:   []string{"docs-search"},
		PIIRedacted: true,
		Metadata:    map[string]any{"mode": "execution", "latencyMs": float64(42)},
		Timestamp:   ts,
	}))

	records, err := s.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "a1", r.ID)
	assert.True(t, r.PIIRedacted)
	assert.Equal(t, []string{"docs-search"}, r.ToolsUsed)
	assert.Equal(t, "execution", r.Metadata["mode"])
	assert.Equal(t, float64(42), r.Metadata["latencyMs"])
	assert.True(t, ts.Equal(r.Timestamp))
}

func TestAuditStore_ListFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, agent := range []string{"guide", "export", "guide"} {
		require.NoError(t, s.Append(ctx, &audit.Record{
			UserID:    "u1",
			AgentID:   agent,
			Request:   "q",
			Response:  "a",
			Timestamp: base.Add(time.Duration(i) * 10 * time.Minute),
		}))
	}
	require.NoError(t, s.Append(ctx, &audit.Record{UserID: "u2", AgentID: "guide", Request: "q", Response: "a", Timestamp: base}))

	all, err := s.List(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.True(t, all[0].Timestamp.Equal(base.Add(20*time.Minute)), "newest first")

	guides, err := s.List(ctx, audit.Filter{UserID: "u1", AgentID: "guide"})
	require.NoError(t, err)
	assert.Len(t, guides, 2)

	since := base.Add(15 * time.Minute)
	recent, err := s.List(ctx, audit.Filter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	limited, err := s.List(ctx, audit.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditStore_ListEmpty(t *testing.T) {
	records, err := setupTestStore(t).List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestAuditStore_WriterIntegration(t *testing.T) {
	s := setupTestStore(t)
	w := audit.NewWriter(s, testLogger())
	w.Write(context.Background(), audit.Entry{UserID: "u1", AgentID: "guide", Request: "ssn 123-45-6789", Response: "ok"})

	records, err := s.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ssn [REDACTED]", records[0].Request)
	assert.True(t, records[0].PIIRedacted)
}

func setupMockPostgres(t *testing.T) (*AuditStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_log")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_audit_log_ts")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_audit_log_user")).WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewAuditStore(context.Background(), db, Postgres, testLogger())
	require.NoError(t, err)
	return s, mock
}

func TestPostgres_Append(t *testing.T) {
	s, mock := setupMockPostgres(t)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)")).
		WithArgs("a1", "u1", "guide", "hi", "hello", nil, false, `{"mode":"chat"}`, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Append(context.Background(), &audit.Record{
		ID: "a1", UserID: "u1", AgentID: "guide", Request: "hi", Response: "hello",
		Metadata: map[string]any{"mode": "chat"}, Timestamp: ts,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	s, mock := setupMockPostgres(t)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"audit_id", "user_id", "agent_id", "request_text", "response_text", "tools_used_json", "pii_redacted", "metadata_json", "ts"}).
		AddRow("a1", "u1", "guide", "hi", "hello", `["rbac-inspector"]`, true, nil, ts)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_log WHERE user_id = $1 ORDER BY ts DESC LIMIT $2")).
		WithArgs("u1", 100).
		WillReturnRows(rows)

	records, err := s.List(context.Background(), audit.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"rbac-inspector"}, records[0].ToolsUsed)
	assert.True(t, records[0].PIIRedacted)
	assert.True(t, ts.Equal(records[0].Timestamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendError(t *testing.T) {
	s, mock := setupMockPostgres(t)
	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(assert.AnError)

	err := s.Append(context.Background(), &audit.Record{UserID: "u1", AgentID: "guide"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRebind(t *testing.T) {
	s := &AuditStore{dialect: Postgres}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))
	s.dialect = SQLite
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}
