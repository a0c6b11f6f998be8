// ABOUTME: Stream event types and payloads emitted to SSE clients
// ABOUTME: Every payload carries its type and an RFC 3339 timestamp

package stream

import (
	"time"

	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/mode"
)

// Type is the SSE event name.
type Type string

const (
	TypeMode           Type = "mode"
	TypeStepStart      Type = "step_start"
	TypeStepEnd        Type = "step_end"
	TypeToolStart      Type = "tool_start"
	TypeToolResult     Type = "tool_result"
	TypeOutputDelta    Type = "output_delta"
	TypeHeartbeat      Type = "heartbeat"
	TypePlanNarrative  Type = "plan_narrative"
	TypeNarrationDelta Type = "narration_delta"
	TypeSummary        Type = "summary"
	TypeError          Type = "error"
	TypeDone           Type = "done"
)

// Step outcomes reported in step_end.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Event is one frame of a stream. Data is marshaled as the SSE data line.
type Event struct {
	Type Type
	Data any
}

// ModeData announces the resolved mode.
type ModeData struct {
	Type      Type      `json:"type"`
	RunID     string    `json:"run_id"`
	Mode      mode.Mode `json:"mode"`
	Timestamp string    `json:"timestamp"`
}

// StepStartData opens a step.
type StepStartData struct {
	Type      Type   `json:"type"`
	StepID    string `json:"step_id"`
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
}

// StepEndData closes a step.
type StepEndData struct {
	Type      Type   `json:"type"`
	StepID    string `json:"step_id"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// ToolStartData says a tool is about to run.
type ToolStartData struct {
	Type      Type   `json:"type"`
	StepID    string `json:"step_id"`
	ToolName  string `json:"tool_name"`
	Purpose   string `json:"purpose"`
	Timestamp string `json:"timestamp"`
}

// ToolResultData says a tool finished. Raw tool output is never included.
type ToolResultData struct {
	Type              Type   `json:"type"`
	StepID            string `json:"step_id"`
	ToolName          string `json:"tool_name"`
	Summary           string `json:"summary"`
	RedactionsApplied bool   `json:"redactions_applied"`
	Timestamp         string `json:"timestamp"`
}

// OutputData is a chunk of reply text.
type OutputData struct {
	Type      Type   `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// HeartbeatData keeps an idle step alive.
type HeartbeatData struct {
	Type      Type   `json:"type"`
	StepID    string `json:"step_id"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// PlanData carries the plan narrative for a run.
type PlanData struct {
	Type      Type   `json:"type"`
	RunID     string `json:"run_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NarrationData carries a narration line for a step.
type NarrationData struct {
	Type      Type   `json:"type"`
	StepID    string `json:"step_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SummaryData carries the closing summary.
type SummaryData struct {
	Type      Type   `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ErrorData ends a failed stream.
type ErrorData struct {
	Type      Type        `json:"type"`
	Code      apperr.Code `json:"code"`
	Error     string      `json:"error"`
	Timestamp string      `json:"timestamp"`
}

// done has an empty object as its data.
var doneEvent = Event{Type: TypeDone, Data: struct{}{}}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
