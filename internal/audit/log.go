// ABOUTME: Structured-log audit sink that also keeps a bounded window of recent records
// ABOUTME: Used when no database is configured

package audit

import (
	"context"
	"log/slog"
	"sync"
)

const defaultRecent = 500

// LogSink writes each record as an audit_log line and retains the most recent ones.
type LogSink struct {
	logger *slog.Logger

	mu     sync.Mutex
	recent []Record
	max    int
}

// NewLogSink creates a sink keeping up to keep records for List. keep <= 0 uses 500.
func NewLogSink(logger *slog.Logger, keep int) *LogSink {
	if keep <= 0 {
		keep = defaultRecent
	}
	return &LogSink{logger: logger, max: keep}
}

// Append logs r.
func (s *LogSink) Append(ctx context.Context, r *Record) error {
	s.logger.InfoContext(ctx, "audit_log",
		"audit_id", r.ID,
		"userId", r.UserID,
		"agentId", r.AgentID,
		"requestMessage", r.Request,
		"responseMessage", r.Response,
		"toolsUsed", r.ToolsUsed,
		"piiRedacted", r.PIIRedacted,
		"metadata", r.Metadata,
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, *r)
	if len(s.recent) > s.max {
		s.recent = s.recent[len(s.recent)-s.max:]
	}
	return nil
}

// List returns retained records matching f, newest first.
func (s *LogSink) List(_ context.Context, f Filter) ([]Record, error) {
	limit := NormalizeLimit(f.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Record{}
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.recent[i]
		if !matches(r, f) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func matches(r Record, f Filter) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.AgentID != "" && r.AgentID != f.AgentID {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	return true
}
