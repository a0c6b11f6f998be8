// ABOUTME: Tests for event ordering, confirmation, heartbeats and failure handling
// ABOUTME: A scripted engine stands in for the model; audits land in a log sink

package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dexi-gateway/internal/agent"
	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/audit"
	"github.com/2389/dexi-gateway/internal/engine"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/mode"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/prompts"
)

// scriptEngine replays updates with an optional pause before each one and an
// optional idle period after the last.
type scriptEngine struct {
	updates []engine.Update
	pause   time.Duration
	tail    time.Duration
	err     error

	mu   sync.Mutex
	reqs []engine.Request
}

func (e *scriptEngine) record(req engine.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
}

func (e *scriptEngine) last() engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reqs[len(e.reqs)-1]
}

func (e *scriptEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reqs)
}

func (e *scriptEngine) Run(ctx context.Context, req engine.Request) (string, error) {
	e.record(req)
	if e.err != nil {
		return "", e.err
	}
	var text string
	for _, u := range e.updates {
		if u.Kind == engine.KindText {
			text += u.Text
		}
	}
	return text, nil
}

func (e *scriptEngine) Stream(ctx context.Context, req engine.Request, out chan<- engine.Update) error {
	e.record(req)
	for _, u := range e.updates {
		if e.pause > 0 {
			select {
			case <-time.After(e.pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := engine.Send(ctx, out, u); err != nil {
			return err
		}
	}
	if e.tail > 0 {
		select {
		case <-time.After(e.tail):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return e.err
}

type fixture struct {
	orch   *Orchestrator
	eng    *scriptEngine
	sink   *audit.LogSink
	agents *agent.Catalog
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, eng *scriptEngine, cfg Config) *fixture {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates, err := prompts.NewStore(t.TempDir(), discard)
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sink := audit.NewLogSink(discard, 10)
	n := 0
	orch := NewOrchestrator(mode.NewClassifier(nil, nil), audit.NewWriter(sink, discard), cfg, logger,
		WithIDs(func(prefix string) string {
			n++
			return fmt.Sprintf("%s_%d", prefix, n)
		}),
	)
	return &fixture{
		orch:   orch,
		eng:    eng,
		sink:   sink,
		agents: agent.NewCatalog(eng, templates, discard),
		logs:   &logs,
	}
}

func (f *fixture) request(t *testing.T, agentID, message string, p mode.Policy) Request {
	t.Helper()
	a, err := f.agents.Get(agentID)
	require.NoError(t, err)
	return Request{
		Agent:   a,
		Message: message,
		User:    identity.UserContext{UserID: "u1", Role: policy.Manager, ApplicationID: "nexus"},
		Policy:  p,
	}
}

func collect(ctx context.Context, o *Orchestrator, req Request) []Event {
	out := make(chan Event, 4)
	go o.Stream(ctx, req, out)
	var events []Event
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

func types(events []Event) []Type {
	out := make([]Type, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func (f *fixture) audits(t *testing.T) []audit.Record {
	t.Helper()
	records, err := f.sink.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	return records
}

func TestStreamChat(t *testing.T) {
	eng := &scriptEngine{updates: []engine.Update{
		{Kind: engine.KindText, Text: "Hello"},
		{Kind: engine.KindText, Text: " there"},
		{Kind: engine.KindToolStart, ToolID: "docs-search"},
	}}
	f := newFixture(t, eng, Config{})

	events := collect(context.Background(), f.orch, f.request(t, "guide", "hi", mode.Deny))

	assert.Equal(t, []Type{TypeMode, TypeOutputDelta, TypeOutputDelta, TypeDone}, types(events))
	assert.Equal(t, mode.Chat, events[0].Data.(ModeData).Mode)
	assert.Equal(t, "run_1", events[0].Data.(ModeData).RunID)
	assert.False(t, eng.last().AllowTools)

	records := f.audits(t)
	require.Len(t, records, 1)
	assert.Equal(t, "Hello there", records[0].Response)
	assert.Equal(t, "stream", records[0].Metadata["mode"])
	assert.Equal(t, "chat", records[0].Metadata["execution_mode"])
	assert.Equal(t, OutcomeCompleted, records[0].Metadata["outcome"])
}

func TestStreamConfirmationWhenDenied(t *testing.T) {
	eng := &scriptEngine{}
	f := newFixture(t, eng, Config{})

	events := collect(context.Background(), f.orch, f.request(t, "guide", "search the docs for SSO", mode.Deny))

	require.Equal(t, []Type{TypeMode, TypeOutputDelta, TypeDone}, types(events))
	assert.Equal(t, mode.Chat, events[0].Data.(ModeData).Mode)
	assert.Equal(t, ConfirmationPrompt, events[1].Data.(OutputData).Content)
	assert.Equal(t, 0, eng.calls())

	records := f.audits(t)
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeConfirmationRequired, records[0].Metadata["outcome"])
}

func TestStreamExecution(t *testing.T) {
	eng := &scriptEngine{updates: []engine.Update{
		{Kind: engine.KindPlan, Text: "  Look up\n the docs  "},
		{Kind: engine.KindToolStart, ToolID: "docs-search"},
		{Kind: engine.KindToolResult, ToolID: "docs-search"},
		{Kind: engine.KindNarration, Text: "Found it."},
		{Kind: engine.KindText, Text: "Answer"},
		{Kind: engine.KindSummary, Text: "Done."},
	}}
	f := newFixture(t, eng, Config{})

	req := f.request(t, "guide", "search the docs", mode.Auto)
	req.PerfMode = "deep"
	events := collect(context.Background(), f.orch, req)

	assert.Equal(t, []Type{
		TypeMode, TypeStepStart, TypePlanNarrative, TypeToolStart, TypeToolResult,
		TypeNarrationDelta, TypeOutputDelta, TypeSummary, TypeStepEnd, TypeDone,
	}, types(events))
	assert.True(t, eng.last().AllowTools)

	start := events[1].Data.(StepStartData)
	assert.Equal(t, "step_2", start.StepID)
	assert.Equal(t, "Run guide agent", start.Label)
	assert.Equal(t, "Look up the docs", events[2].Data.(PlanData).Content)
	assert.Equal(t, "run_1", events[2].Data.(PlanData).RunID)
	assert.Equal(t, "Calling docs-search to retrieve documentation.", events[3].Data.(ToolStartData).Purpose)
	assert.Equal(t, "Docs search completed.", events[4].Data.(ToolResultData).Summary)
	assert.Equal(t, "step_2", events[5].Data.(NarrationData).StepID)
	assert.Equal(t, OutcomeSuccess, events[8].Data.(StepEndData).Outcome)

	records := f.audits(t)
	require.Len(t, records, 1)
	assert.Equal(t, "Answer", records[0].Response)
	assert.Equal(t, []string{"docs-search"}, records[0].ToolsUsed)
	assert.Equal(t, "deep", records[0].Metadata["mode"])
	assert.Equal(t, "execution", records[0].Metadata["execution_mode"])
}

func TestStreamHeartbeatWhileIdle(t *testing.T) {
	eng := &scriptEngine{
		updates: []engine.Update{{Kind: engine.KindText, Text: "late"}},
		pause:   120 * time.Millisecond,
	}
	f := newFixture(t, eng, Config{Heartbeat: 20 * time.Millisecond})

	events := collect(context.Background(), f.orch, f.request(t, "guide", "hello", mode.Force))

	var beats int
	for _, ev := range events {
		if ev.Type == TypeHeartbeat {
			beats++
			hb := ev.Data.(HeartbeatData)
			assert.Equal(t, "working", hb.State)
			assert.Equal(t, "step_2", hb.StepID)
		}
	}
	assert.Greater(t, beats, 0)
	assert.Equal(t, TypeStepStart, events[1].Type)
	assert.Equal(t, TypeDone, events[len(events)-1].Type)
}

func TestStreamHeartbeatRestartsAfterEvents(t *testing.T) {
	const interval = 100 * time.Millisecond
	eng := &scriptEngine{
		updates: []engine.Update{{Kind: engine.KindText, Text: "early"}},
		pause:   10 * time.Millisecond,
		tail:    350 * time.Millisecond,
	}
	f := newFixture(t, eng, Config{Heartbeat: interval})

	out := make(chan Event)
	go f.orch.Stream(context.Background(), f.request(t, "guide", "hello", mode.Force), out)

	var (
		events  []Event
		arrived []time.Time
	)
	for ev := range out {
		events = append(events, ev)
		arrived = append(arrived, time.Now())
	}

	var (
		begin, end int
		beats      int
	)
	for i, ev := range events {
		switch ev.Type {
		case TypeStepStart:
			begin = i
		case TypeStepEnd:
			end = i
		case TypeHeartbeat:
			beats++
		}
	}
	require.Greater(t, end, begin)
	assert.GreaterOrEqual(t, beats, 2)

	var widest time.Duration
	for i := begin + 1; i <= end; i++ {
		if gap := arrived[i].Sub(arrived[i-1]); gap > widest {
			widest = gap
		}
	}
	assert.Less(t, widest, interval+interval/2, "longest silence inside the step")
}

func TestStreamFailedToolResult(t *testing.T) {
	eng := &scriptEngine{updates: []engine.Update{
		{Kind: engine.KindToolStart, ToolID: "docs-search"},
		{Kind: engine.KindToolResult, ToolID: "docs-search", Failed: true},
		{Kind: engine.KindText, Text: "Nothing matched."},
	}}
	f := newFixture(t, eng, Config{})

	events := collect(context.Background(), f.orch, f.request(t, "guide", "hello", mode.Force))
	require.Equal(t, TypeToolResult, events[3].Type)
	result := events[3].Data.(ToolResultData)
	assert.Equal(t, "Docs search did not return results.", result.Summary)
	assert.NotContains(t, result.Summary, "completed")
}

func TestStreamNoHeartbeatInChat(t *testing.T) {
	eng := &scriptEngine{
		updates: []engine.Update{{Kind: engine.KindText, Text: "late"}},
		pause:   60 * time.Millisecond,
	}
	f := newFixture(t, eng, Config{Heartbeat: 10 * time.Millisecond})

	events := collect(context.Background(), f.orch, f.request(t, "guide", "hello", mode.Deny))
	assert.Equal(t, []Type{TypeMode, TypeOutputDelta, TypeDone}, types(events))
}

func TestStreamFailure(t *testing.T) {
	eng := &scriptEngine{
		updates: []engine.Update{{Kind: engine.KindText, Text: "partial"}},
		err:     errors.New("upstream said 555-555-1212"),
	}
	f := newFixture(t, eng, Config{})

	events := collect(context.Background(), f.orch, f.request(t, "guide", "run it", mode.Auto))

	assert.Equal(t, []Type{TypeMode, TypeStepStart, TypeOutputDelta, TypeStepEnd, TypeError, TypeDone}, types(events))
	assert.Equal(t, OutcomeFailed, events[3].Data.(StepEndData).Outcome)
	errData := events[4].Data.(ErrorData)
	assert.Equal(t, apperr.CodeUpstream, errData.Code)
	assert.NotContains(t, errData.Error, "555-555-1212")
	assert.Contains(t, f.logs.String(), "stream_failed")

	records := f.audits(t)
	require.Len(t, records, 1)
	assert.Equal(t, "partial", records[0].Response)
	assert.Equal(t, OutcomeError, records[0].Metadata["outcome"])
}

func TestStreamCancelled(t *testing.T) {
	eng := &scriptEngine{
		updates: []engine.Update{{Kind: engine.KindText, Text: "never"}},
		pause:   time.Second,
	}
	f := newFixture(t, eng, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	events := collect(ctx, f.orch, f.request(t, "guide", "hello", mode.Force))

	assert.Equal(t, TypeError, events[len(events)-2].Type)
	assert.Equal(t, TypeDone, events[len(events)-1].Type)
	records := f.audits(t)
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeCancelled, records[0].Metadata["outcome"])
}

func TestRun(t *testing.T) {
	eng := &scriptEngine{updates: []engine.Update{{Kind: engine.KindText, Text: "synced"}}}
	f := newFixture(t, eng, Config{})

	req := f.request(t, "transcript", "summarize this", mode.Auto)
	req.AgentHint = "transcript"
	reply, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, &Reply{Mode: mode.Execution, AgentID: "transcript", Message: "synced"}, reply)

	records := f.audits(t)
	require.Len(t, records, 1)
	assert.Equal(t, "sync", records[0].Metadata["mode"])
}

func TestRunConfirmation(t *testing.T) {
	eng := &scriptEngine{}
	f := newFixture(t, eng, Config{})

	reply, err := f.orch.Run(context.Background(), f.request(t, "guide", "export the dataset", mode.Deny))
	require.NoError(t, err)
	assert.Equal(t, mode.Chat, reply.Mode)
	assert.Equal(t, ConfirmationPrompt, reply.Message)
	assert.Equal(t, 0, eng.calls())
}

func TestRunError(t *testing.T) {
	f := newFixture(t, &scriptEngine{err: errors.New("boom")}, Config{})

	_, err := f.orch.Run(context.Background(), f.request(t, "guide", "hi", mode.Deny))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestLatencyTargetExceeded(t *testing.T) {
	eng := &scriptEngine{updates: []engine.Update{{Kind: engine.KindText, Text: "slow"}}, pause: 20 * time.Millisecond}
	f := newFixture(t, eng, Config{Targets: Targets{Fast: time.Millisecond}})

	req := f.request(t, "guide", "hi", mode.Deny)
	req.PerfMode = "fast"
	collect(context.Background(), f.orch, req)
	assert.Contains(t, f.logs.String(), "latency_target_exceeded")
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, &scriptEngine{}, Config{})
	req := f.request(t, "export", "export", mode.Auto)

	assert.NoError(t, f.orch.Authorize(req))

	req.User.Role = policy.Viewer
	err := f.orch.Authorize(req)
	assert.ErrorIs(t, err, apperr.ErrRBACDenied)
}

func TestToolStrings(t *testing.T) {
	assert.Equal(t, "Calling ui-navigator to fetch navigation steps.", ToolPurpose("ui-navigator"))
	assert.Equal(t, "Permission check completed.", ToolSummary("rbac-inspector"))
	assert.Equal(t, "Calling custom to gather supporting information.", ToolPurpose("custom"))
	assert.Equal(t, "custom completed.", ToolSummary("custom"))
	assert.Equal(t, "Navigation lookup failed.", ToolFailedSummary("ui-navigator"))
	assert.Equal(t, "custom failed.", ToolFailedSummary("custom"))
}

func TestTargetsFor(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, Targets{}.For("fast"))
	assert.Equal(t, 2*time.Second, Targets{}.For(""))
	assert.Equal(t, 10*time.Second, Targets{}.For("deep"))
	assert.Equal(t, time.Second, Targets{Balanced: time.Second}.For("balanced"))
}
