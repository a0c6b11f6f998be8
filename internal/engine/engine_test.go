// ABOUTME: Tests for the stub engine, chunking and the OpenAI engine tool loop
// ABOUTME: The OpenAI engine runs against an httptest server speaking the chat completions API

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func viewer() identity.UserContext {
	return identity.UserContext{UserID: "u1", Role: policy.Viewer, ApplicationID: "nexus"}
}

func collect(t *testing.T, e Engine, req Request) ([]Update, error) {
	t.Helper()
	out := make(chan Update, 64)
	err := e.Stream(context.Background(), req, out)
	close(out)
	var updates []Update
	for u := range out {
		updates = append(updates, u)
	}
	return updates, err
}

func TestChunksPreserveWhitespace(t *testing.T) {
	text := "Dexi (stub):  hello\n world "
	chunks := Chunks(text)
	assert.Equal(t, []string{"Dexi", " ", "(stub):", "  ", "hello", "\n ", "world", " "}, chunks)
	assert.Equal(t, text, strings.Join(chunks, ""))
	assert.Empty(t, Chunks(""))
}

func TestCollapse(t *testing.T) {
	assert.Equal(t, "a b c", Collapse("  a \n\t b   c "))
}

func TestStubRun(t *testing.T) {
	reply, err := Stub{}.Run(context.Background(), Request{Message: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "Dexi (stub): hello there", reply)
}

func TestStubStream(t *testing.T) {
	updates, err := collect(t, Stub{}, Request{Message: "hello there"})
	require.NoError(t, err)

	var b strings.Builder
	for _, u := range updates {
		assert.Equal(t, KindText, u.Kind)
		b.WriteString(u.Text)
	}
	assert.Equal(t, "Dexi (stub): hello there", b.String())
	assert.Greater(t, len(updates), 1)
}

func TestStubStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Stub{}.Stream(ctx, Request{Message: "hello"}, make(chan Update))
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeOpenAI scripts chat completion responses, one per request.
type fakeOpenAI struct {
	mu       sync.Mutex
	requests []map[string]any
	replies  []func(w http.ResponseWriter)
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, body)
	n := len(f.requests)
	f.mu.Unlock()

	if n > len(f.replies) {
		http.Error(w, `{"error":{"message":"unexpected request"}}`, http.StatusInternalServerError)
		return
	}
	f.replies[n-1](w)
}

func (f *fakeOpenAI) request(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeOpenAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func sse(chunks ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}
}

func textChunk(s string) string {
	encoded, _ := json.Marshal(s)
	return `{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":` + string(encoded) + `}}]}`
}

func toolChunk(index int, id, name, args string) string {
	encoded, _ := json.Marshal(args)
	return fmt.Sprintf(`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":%d,"id":%q,"type":"function","function":{"name":%q,"arguments":%s}}]}}]}`,
		index, id, name, string(encoded))
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(testLogger())
	require.NoError(t, reg.Register(tools.Definition{
		ID:           "echo",
		Version:      "1.0.0",
		Description:  "Echo text back.",
		InputSchema:  `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
		OutputSchema: `{"type":"object"}`,
		Roles:        []policy.Role{policy.Viewer},
		Execute: func(_ context.Context, params json.RawMessage, _ identity.UserContext) (any, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, err
			}
			return map[string]string{"echo": in.Text}, nil
		},
	}))
	return reg
}

func newTestOpenAI(t *testing.T, fake *fakeOpenAI, runner ToolRunner, maxTurns int) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", MaxTurns: maxTurns}, runner, testLogger())
}

func TestOpenAIStreamRunsToolsAndNarration(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){
		sse(
			toolChunk(0, "call_plan", "plan_narrative", `{"content":"Look it   up."}`),
			toolChunk(1, "call_echo", "echo", `{"text":`),
			toolChunk(1, "", "", `"hi"}`),
		),
		sse(textChunk("All "), textChunk("done.")),
	}}
	e := newTestOpenAI(t, fake, echoRegistry(t), 4)

	updates, err := collect(t, e, Request{
		AgentID:      "guide",
		Message:      "hi",
		Instructions: "You are a test agent.",
		User:         viewer(),
		AllowTools:   true,
	})
	require.NoError(t, err)

	require.Len(t, updates, 5)
	assert.Equal(t, Update{Kind: KindPlan, Text: "Look it up."}, updates[0])
	assert.Equal(t, Update{Kind: KindToolStart, ToolID: "echo"}, updates[1])
	assert.Equal(t, Update{Kind: KindToolResult, ToolID: "echo"}, updates[2])
	assert.Equal(t, Update{Kind: KindText, Text: "All "}, updates[3])
	assert.Equal(t, Update{Kind: KindText, Text: "done."}, updates[4])

	require.Equal(t, 2, fake.count())
	toolNames := []string{}
	for _, tool := range fake.request(0)["tools"].([]any) {
		fn := tool.(map[string]any)["function"].(map[string]any)
		toolNames = append(toolNames, fn["name"].(string))
	}
	assert.Equal(t, []string{"plan_narrative", "narration", "summary", "echo"}, toolNames)

	second := fake.request(1)["messages"].([]any)
	last := second[len(second)-1].(map[string]any)
	assert.Equal(t, "tool", last["role"])
	assert.Equal(t, "call_echo", last["tool_call_id"])
	assert.JSONEq(t, `{"echo":"hi"}`, last["content"].(string))
}

func TestOpenAIToolFailureIsReportedToModel(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){
		sse(toolChunk(0, "call_1", "echo", `{}`)),
		sse(textChunk("Sorry.")),
	}}
	e := newTestOpenAI(t, fake, echoRegistry(t), 4)

	updates, err := collect(t, e, Request{User: viewer(), AllowTools: true})
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.True(t, updates[1].Failed)

	second := fake.request(1)["messages"].([]any)
	last := second[len(second)-1].(map[string]any)
	assert.Contains(t, last["content"], "tool_input_invalid")
}

func TestOpenAIWithoutToolsSendsNoFunctions(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){sse(textChunk("plain"))}}
	e := newTestOpenAI(t, fake, echoRegistry(t), 4)

	updates, err := collect(t, e, Request{User: viewer(), AllowTools: false})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	_, hasTools := fake.request(0)["tools"]
	assert.False(t, hasTools)
}

func TestOpenAIMaxTurns(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){
		sse(toolChunk(0, "call_1", "summary", `{"content":"x"}`)),
	}}
	e := newTestOpenAI(t, fake, nil, 1)

	_, err := collect(t, e, Request{User: viewer(), AllowTools: true})
	assert.ErrorIs(t, err, ErrMaxTurns)
	assert.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))
}

func TestOpenAIDefaultMaxTurns(t *testing.T) {
	e := NewOpenAI(OpenAIConfig{APIKey: "test"}, nil, testLogger())
	assert.Equal(t, 20, e.maxTurns)
	assert.Equal(t, 3, NewOpenAI(OpenAIConfig{APIKey: "test", MaxTurns: 3}, nil, testLogger()).maxTurns)
}

func TestOpenAIRunAppliesSettings(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){
		func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"},"finish_reason":"stop"}]}`)
		},
	}}
	e := newTestOpenAI(t, fake, nil, 4)

	reply, err := e.Run(context.Background(), Request{
		Message: "hi",
		Model:   "gpt-test",
		User:    viewer(),
		Settings: map[string]any{
			"reasoning":     map[string]any{"effort": "low"},
			"provider_data": map[string]any{"prompt_cache_key": "dexi:nexus:guide:v1.0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)

	req := fake.request(0)
	assert.Equal(t, "gpt-test", req["model"])
	assert.Equal(t, "low", req["reasoning_effort"])
	assert.Equal(t, "dexi:nexus:guide:v1.0", req["user"])
}

func TestOpenAIUpstreamError(t *testing.T) {
	fake := &fakeOpenAI{}
	e := newTestOpenAI(t, fake, nil, 4)

	_, err := e.Run(context.Background(), Request{Message: "hi", User: viewer()})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUpstream, apperr.CodeOf(err))
}
