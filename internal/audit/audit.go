// ABOUTME: Audit records for agent interactions and the writer that redacts and persists them
// ABOUTME: Sink failures are logged and never reach the caller

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Entry is an unredacted interaction to audit.
type Entry struct {
	UserID    string
	AgentID   string
	Request   string
	Response  string
	ToolsUsed []string
	Metadata  map[string]any
}

// Record is a redacted, persisted audit entry.
type Record struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	AgentID     string         `json:"agentId"`
	Request     string         `json:"requestMessage"`
	Response    string         `json:"responseMessage"`
	ToolsUsed   []string       `json:"toolsUsed,omitempty"`
	PIIRedacted bool           `json:"piiRedacted"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	UserID  string
	AgentID string
	Since   *time.Time
	Limit   int
}

// Sink persists records.
type Sink interface {
	Append(ctx context.Context, r *Record) error
}

// Lister returns recent records, newest first.
type Lister interface {
	List(ctx context.Context, f Filter) ([]Record, error)
}

// NormalizeLimit applies the default (100) and cap (1000).
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// Writer redacts entries and hands them to a sink.
type Writer struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Writer over sink.
func NewWriter(sink Sink, logger *slog.Logger) *Writer {
	return &Writer{sink: sink, logger: logger, now: time.Now}
}

// Write records e. Errors are logged as audit_log_failed.
func (w *Writer) Write(ctx context.Context, e Entry) *Record {
	request, reqPII := Redact(e.Request)
	response, respPII := Redact(e.Response)

	r := &Record{
		ID:          uuid.New().String(),
		UserID:      e.UserID,
		AgentID:     e.AgentID,
		Request:     request,
		Response:    response,
		ToolsUsed:   e.ToolsUsed,
		PIIRedacted: reqPII || respPII,
		Metadata:    e.Metadata,
		Timestamp:   w.now().UTC(),
	}
	if err := w.sink.Append(ctx, r); err != nil {
		w.logger.Error("audit_log_failed", "audit_id", r.ID, "agent", r.AgentID, "error", err)
	}
	return r
}
