// ABOUTME: OpenAI chat completions engine with registry tools and narration functions
// ABOUTME: Loops model turns, executing requested tools, until the model answers in text

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/2389/dexi-gateway/internal/apperr"
)

// DefaultModel is used when neither the request nor the template names a model.
const DefaultModel = "gpt-5-mini"

// DefaultMaxTurns bounds model round trips per request.
const DefaultMaxTurns = 20

// Names of the functions the engine handles itself.
const (
	fnPlanNarrative = "plan_narrative"
	fnNarration     = "narration"
	fnSummary       = "summary"
)

var narrationParams = json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}},"required":["content"],"additionalProperties":false}`)

var narrationTools = []openai.Tool{
	{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{
		Name:        fnPlanNarrative,
		Description: "Emit a user-safe narrative plan for the execution.",
		Parameters:  narrationParams,
	}},
	{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{
		Name:        fnNarration,
		Description: "Emit user-safe narration describing what is happening.",
		Parameters:  narrationParams,
	}},
	{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{
		Name:        fnSummary,
		Description: "Emit a concise summary of findings and actions taken.",
		Parameters:  narrationParams,
	}},
}

// OpenAIConfig configures the OpenAI engine.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxTurns int
}

// OpenAI runs agents against the chat completions API.
type OpenAI struct {
	client   *openai.Client
	model    string
	maxTurns int
	tools    ToolRunner
	logger   *slog.Logger
}

// NewOpenAI creates the engine. tools may be nil, which disables tool calling.
func NewOpenAI(cfg OpenAIConfig, tools ToolRunner, logger *slog.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		maxTurns: maxTurns,
		tools:    tools,
		logger:   logger,
	}
}

// emitFunc receives updates produced during a run.
type emitFunc func(Update) error

// turnFunc performs one model call, reporting text through emit.
type turnFunc func(ctx context.Context, req openai.ChatCompletionRequest, emit emitFunc) (string, []openai.ToolCall, error)

// Run returns the reply text. Narration is discarded.
func (e *OpenAI) Run(ctx context.Context, req Request) (string, error) {
	var b strings.Builder
	err := e.loop(ctx, req, e.completeTurn, func(u Update) error {
		if u.Kind == KindText {
			b.WriteString(u.Text)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Stream sends text deltas, tool activity and narration to out.
func (e *OpenAI) Stream(ctx context.Context, req Request, out chan<- Update) error {
	return e.loop(ctx, req, e.streamTurn, func(u Update) error {
		return Send(ctx, out, u)
	})
}

func (e *OpenAI) loop(ctx context.Context, req Request, turn turnFunc, emit emitFunc) error {
	chatReq := e.buildRequest(req)

	for i := 0; i < e.maxTurns; i++ {
		content, calls, err := turn(ctx, chatReq, emit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperr.Wrap(apperr.CodeUpstream, err, "Agent run failed")
		}
		if len(calls) == 0 {
			return nil
		}

		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			output, err := e.callTool(ctx, req, call, emit)
			if err != nil {
				return err
			}
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}
	return apperr.Wrap(apperr.CodeUpstream, ErrMaxTurns, fmt.Sprintf("Agent exceeded %d turns", e.maxTurns))
}

func (e *OpenAI) buildRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = e.model
	}
	input := req.Input
	if input == "" {
		input = req.Message
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instructions},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	}
	applySettings(&chatReq, req.Settings)

	if req.AllowTools {
		chatReq.Tools = append(chatReq.Tools, narrationTools...)
		if e.tools != nil {
			for _, def := range e.tools.ListFor(req.User.Role) {
				chatReq.Tools = append(chatReq.Tools, openai.Tool{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        def.ID,
						Description: def.Description,
						Parameters:  json.RawMessage(def.InputSchema),
					},
				})
			}
		}
	}
	return chatReq
}

// applySettings maps model settings onto request fields the API understands.
func applySettings(chatReq *openai.ChatCompletionRequest, settings map[string]any) {
	if reasoning, ok := settings["reasoning"].(map[string]any); ok {
		if effort, ok := reasoning["effort"].(string); ok {
			chatReq.ReasoningEffort = effort
		}
	}
	// The cache key buckets prompt caching per application and agent version.
	if providerData, ok := settings["provider_data"].(map[string]any); ok {
		if key, ok := providerData["prompt_cache_key"].(string); ok {
			chatReq.User = key
		}
	}
}

func (e *OpenAI) completeTurn(ctx context.Context, chatReq openai.ChatCompletionRequest, emit emitFunc) (string, []openai.ToolCall, error) {
	resp, err := e.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("model returned no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Content != "" {
		if err := emit(Update{Kind: KindText, Text: msg.Content}); err != nil {
			return "", nil, err
		}
	}
	return msg.Content, msg.ToolCalls, nil
}

func (e *OpenAI) streamTurn(ctx context.Context, chatReq openai.ChatCompletionRequest, emit emitFunc) (string, []openai.ToolCall, error) {
	stream, err := e.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var content strings.Builder
	pending := make(map[int]*openai.ToolCall)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if err := emit(Update{Kind: KindText, Text: delta.Content}); err != nil {
				return "", nil, err
			}
		}

		// Tool call fields arrive in fragments keyed by index.
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call, ok := pending[index]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	indexes := make([]int, 0, len(pending))
	for index := range pending {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	calls := make([]openai.ToolCall, 0, len(indexes))
	for _, index := range indexes {
		call := pending[index]
		if call.ID == "" || call.Function.Name == "" {
			continue
		}
		calls = append(calls, *call)
	}
	return content.String(), calls, nil
}

type narrationArgs struct {
	Content string `json:"content"`
}

// callTool runs one requested function and returns the content handed back to the model.
// Tool failures are reported to the model; only cancellation and emit failures abort the run.
func (e *OpenAI) callTool(ctx context.Context, req Request, call openai.ToolCall, emit emitFunc) (string, error) {
	name := call.Function.Name
	switch name {
	case fnPlanNarrative, fnNarration, fnSummary:
		var args narrationArgs
		_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		kind := map[string]Kind{fnPlanNarrative: KindPlan, fnNarration: KindNarration, fnSummary: KindSummary}[name]
		if err := emit(Update{Kind: kind, Text: Collapse(args.Content)}); err != nil {
			return "", err
		}
		return `{"ok":true}`, nil
	}

	if e.tools == nil {
		return toolErrorOutput(apperr.New(apperr.CodeToolNotFound, "Tool not found: "+name)), nil
	}
	if err := emit(Update{Kind: KindToolStart, ToolID: name}); err != nil {
		return "", err
	}

	args := json.RawMessage(call.Function.Arguments)
	if len(strings.TrimSpace(call.Function.Arguments)) == 0 {
		args = json.RawMessage(`{}`)
	}
	res, execErr := e.tools.Execute(ctx, name, args, req.User)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err := emit(Update{Kind: KindToolResult, ToolID: name, Failed: execErr != nil}); err != nil {
		return "", err
	}
	if execErr != nil {
		e.logger.Warn("agent tool call failed", "agent", req.AgentID, "tool", name, "error", execErr)
		return toolErrorOutput(execErr), nil
	}
	return string(res.Value), nil
}

func toolErrorOutput(err error) string {
	body := apperr.ToBody(err)
	encoded, _ := json.Marshal(body)
	return string(encoded)
}
