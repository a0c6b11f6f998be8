// ABOUTME: Tests for PII redaction, the audit writer and the log sink
// ABOUTME: A failing sink must not surface errors to the writer's caller

package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     string
		detected bool
	}{
		{"email and phone", "Contact me at test@example.com or 555-555-1212", "Contact me at [REDACTED] or [REDACTED]", true},
		{"ssn", "SSN 123-45-6789 on file", "SSN [REDACTED] on file", true},
		{"clean", "nothing to see here", "nothing to see here", false},
		{"partial digits", "call 555-1212", "call 555-1212", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detected := Redact(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.detected, detected)
		})
	}
}

type failingSink struct{}

func (failingSink) Append(context.Context, *Record) error { return errors.New("disk full") }

func TestWriterRedactsAndStamps(t *testing.T) {
	sink := NewLogSink(slog.New(slog.NewTextHandler(io.Discard, nil)), 10)
	w := NewWriter(sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	rec := w.Write(context.Background(), Entry{
		UserID:   "u1",
		AgentID:  "guide",
		Request:  "my email is a@b.io",
		Response: "noted",
		Metadata: map[string]any{"mode": "chat"},
	})
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, fixed, rec.Timestamp)
	assert.Equal(t, "my email is [REDACTED]", rec.Request)
	assert.True(t, rec.PIIRedacted)

	listed, err := sink.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, rec.ID, listed[0].ID)
}

func TestWriterSwallowsSinkErrors(t *testing.T) {
	var logs bytes.Buffer
	w := NewWriter(failingSink{}, slog.New(slog.NewTextHandler(&logs, nil)))

	rec := w.Write(context.Background(), Entry{UserID: "u1", AgentID: "guide", Request: "hi", Response: "hello"})
	require.NotNil(t, rec)
	assert.Contains(t, logs.String(), "audit_log_failed")
	assert.Contains(t, logs.String(), "disk full")
}

func TestLogSinkListFiltersAndBounds(t *testing.T) {
	var logs bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&logs, nil)), 3)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, agent := range []string{"guide", "export", "guide", "trait"} {
		require.NoError(t, sink.Append(ctx, &Record{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			AgentID:   agent,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.Contains(t, logs.String(), `"msg":"audit_log"`)

	all, err := sink.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "d", all[0].ID)

	guides, err := sink.List(ctx, Filter{AgentID: "guide"})
	require.NoError(t, err)
	require.Len(t, guides, 1)
	assert.Equal(t, "c", guides[0].ID)

	since := base.Add(3 * time.Minute)
	recent, err := sink.List(ctx, Filter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)

	limited, err := sink.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 100, NormalizeLimit(0))
	assert.Equal(t, 1000, NormalizeLimit(5000))
	assert.Equal(t, 7, NormalizeLimit(7))
}
