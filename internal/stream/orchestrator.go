// ABOUTME: Runs one chat or invoke request: mode resolution, agent execution and event emission
// ABOUTME: Streams step, tool and output events with heartbeats, then audits the reply

package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dexi-gateway/internal/agent"
	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/audit"
	"github.com/2389/dexi-gateway/internal/engine"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/mode"
)

// DefaultHeartbeat is the idle interval after which an active step emits a heartbeat.
const DefaultHeartbeat = 2 * time.Second

// Audit outcomes.
const (
	OutcomeCompleted            = "completed"
	OutcomeConfirmationRequired = "confirmation_required"
	OutcomeError                = "error"
	OutcomeCancelled            = "cancelled"
)

// Request is one chat or invoke call.
type Request struct {
	Agent     *agent.Agent
	Message   string
	User      identity.UserContext
	AgentHint string
	Policy    mode.Policy
	// PerfMode is fast, balanced or deep. Empty means balanced.
	PerfMode string
	Model    string
	Settings map[string]any
}

// Reply is the non-streaming response body.
type Reply struct {
	Mode    mode.Mode `json:"mode"`
	AgentID string    `json:"agentId"`
	Message string    `json:"message"`
}

// Observer is told about every finished run.
type Observer interface {
	RunCompleted(agentID string, m mode.Mode, outcome string, latency time.Duration)
}

type nopObserver struct{}

func (nopObserver) RunCompleted(string, mode.Mode, string, time.Duration) {}

// Config tunes an Orchestrator.
type Config struct {
	Heartbeat time.Duration
	Targets   Targets
}

// Orchestrator drives agent runs.
type Orchestrator struct {
	classifier *mode.Classifier
	auditor    *audit.Writer
	heartbeat  time.Duration
	targets    Targets
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
	newID      func(prefix string) string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver reports finished runs to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithIDs overrides run and step id generation.
func WithIDs(newID func(prefix string) string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(classifier *mode.Classifier, auditor *audit.Writer, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	o := &Orchestrator{
		classifier: classifier,
		auditor:    auditor,
		heartbeat:  cfg.Heartbeat,
		targets:    cfg.Targets,
		observer:   nopObserver{},
		logger:     logger,
		now:        time.Now,
		newID:      func(prefix string) string { return prefix + "_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Authorize checks that the caller may invoke the request's agent.
func (o *Orchestrator) Authorize(req Request) error {
	if !req.User.Can(req.Agent.Permission()) {
		return apperr.New(apperr.CodeRBACDenied, "Agent access denied")
	}
	return nil
}

func (o *Orchestrator) classify(req Request) (classification, resolved mode.Mode) {
	classification = o.classifier.Classify(req.Message, req.AgentHint)
	return classification, mode.Resolve(req.Policy, classification)
}

func invocation(req Request, allowTools bool) agent.Invocation {
	return agent.Invocation{
		Message:    req.Message,
		User:       req.User,
		Model:      req.Model,
		Settings:   req.Settings,
		AllowTools: allowTools,
	}
}

// Run executes req and returns the complete reply.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Reply, error) {
	start := o.now()
	classification, resolved := o.classify(req)
	reply := &Reply{Mode: resolved, AgentID: req.Agent.ID}

	if mode.NeedsConfirmation(req.Policy, classification) {
		reply.Message = ConfirmationPrompt
		o.finish(ctx, req, resolved, "sync", OutcomeConfirmationRequired, reply.Message, nil, start)
		return reply, nil
	}

	text, err := req.Agent.Run(ctx, invocation(req, resolved == mode.Execution))
	if err != nil {
		o.finish(ctx, req, resolved, "sync", outcomeOf(err), "", nil, start)
		return nil, classifyErr(err)
	}
	reply.Message = text
	o.finish(ctx, req, resolved, "sync", OutcomeCompleted, text, nil, start)
	return reply, nil
}

// Stream executes req, writing events to out. The first event is mode and the
// last is done. Stream closes out when it returns; the caller must drain it.
func (o *Orchestrator) Stream(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)

	start := o.now()
	classification, resolved := o.classify(req)
	s := &session{o: o, req: req, out: out, runID: o.newID("run")}
	s.emit(TypeMode, ModeData{Type: TypeMode, RunID: s.runID, Mode: resolved, Timestamp: s.ts()})

	outcome := OutcomeCompleted
	var err error
	switch {
	case mode.NeedsConfirmation(req.Policy, classification):
		s.output(ConfirmationPrompt)
		outcome = OutcomeConfirmationRequired
	case resolved == mode.Execution:
		err = s.execute(ctx)
	default:
		err = s.pump(ctx, false)
	}

	if err != nil {
		outcome = outcomeOf(err)
		s.fail(err)
	}
	out <- doneEvent

	o.finish(ctx, req, resolved, "stream", outcome, s.text.String(), s.toolsUsed, start)
}

func (o *Orchestrator) finish(ctx context.Context, req Request, resolved mode.Mode, transport, outcome, response string, toolsUsed []string, start time.Time) {
	latency := o.now().Sub(start)
	latencyMs := latency.Milliseconds()
	requestMode := req.PerfMode
	if requestMode == "" {
		requestMode = transport
	}

	if target := o.targets.For(req.PerfMode); latency > target {
		o.logger.Warn("latency_target_exceeded",
			"latencyMs", latencyMs,
			"target", target.Milliseconds(),
			"agentId", req.Agent.ID,
		)
	}

	// The request context may already be cancelled by a disconnected client.
	o.auditor.Write(context.WithoutCancel(ctx), audit.Entry{
		UserID:    req.User.UserID,
		AgentID:   req.Agent.ID,
		Request:   req.Message,
		Response:  response,
		ToolsUsed: toolsUsed,
		Metadata: map[string]any{
			"latencyMs":      latencyMs,
			"mode":           requestMode,
			"execution_mode": string(resolved),
			"outcome":        outcome,
		},
	})
	o.observer.RunCompleted(req.Agent.ID, resolved, outcome, latency)
}

func outcomeOf(err error) string {
	if errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	return OutcomeError
}

// classifyErr gives unclassified engine errors the agent_error code.
func classifyErr(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Wrap(apperr.CodeUpstream, err, "Agent run failed")
}

// session is the state of one streamed run. Only the Stream goroutine touches it.
type session struct {
	o         *Orchestrator
	req       Request
	out       chan<- Event
	runID     string
	stepID    string
	sent      int
	text      strings.Builder
	toolsUsed []string
}

func (s *session) ts() string {
	return stamp(s.o.now())
}

func (s *session) emit(t Type, data any) {
	s.out <- Event{Type: t, Data: data}
	s.sent++
}

func (s *session) output(content string) {
	s.text.WriteString(content)
	s.emit(TypeOutputDelta, OutputData{Type: TypeOutputDelta, Content: content, Timestamp: s.ts()})
}

func (s *session) execute(ctx context.Context) error {
	s.stepID = s.o.newID("step")
	s.emit(TypeStepStart, StepStartData{Type: TypeStepStart, StepID: s.stepID, Label: StepLabel(s.req.Agent.ID), Timestamp: s.ts()})
	if err := s.pump(ctx, true); err != nil {
		return err
	}
	s.endStep(OutcomeSuccess)
	return nil
}

func (s *session) endStep(outcome string) {
	s.emit(TypeStepEnd, StepEndData{Type: TypeStepEnd, StepID: s.stepID, Outcome: outcome, Timestamp: s.ts()})
	s.stepID = ""
}

// pump runs the agent and translates its updates until it returns or ctx ends.
func (s *session) pump(ctx context.Context, allowTools bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan engine.Update)
	errc := make(chan error, 1)
	go func() {
		errc <- s.req.Agent.RunStream(runCtx, invocation(s.req, allowTools), updates)
	}()

	// The heartbeat timer restarts after every event so a step is never silent
	// for longer than one interval.
	var (
		idle *time.Timer
		tick <-chan time.Time
	)
	if s.stepID != "" {
		idle = time.NewTimer(s.o.heartbeat)
		defer idle.Stop()
		tick = idle.C
	}

	for {
		select {
		case u := <-updates:
			sent := s.sent
			s.handle(u)
			if idle != nil && s.sent != sent {
				idle.Reset(s.o.heartbeat)
			}
		case err := <-errc:
			return err
		case <-tick:
			s.emit(TypeHeartbeat, HeartbeatData{Type: TypeHeartbeat, StepID: s.stepID, State: "working", Timestamp: s.ts()})
			idle.Reset(s.o.heartbeat)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *session) handle(u engine.Update) {
	if u.Kind == engine.KindText {
		if u.Text != "" {
			s.output(u.Text)
		}
		return
	}
	// Progress events belong to a step; chat runs only stream text.
	if s.stepID == "" {
		return
	}
	switch u.Kind {
	case engine.KindToolStart:
		s.useTool(u.ToolID)
		s.emit(TypeToolStart, ToolStartData{Type: TypeToolStart, StepID: s.stepID, ToolName: u.ToolID, Purpose: ToolPurpose(u.ToolID), Timestamp: s.ts()})
	case engine.KindToolResult:
		summary := ToolSummary(u.ToolID)
		if u.Failed {
			summary = ToolFailedSummary(u.ToolID)
		}
		s.emit(TypeToolResult, ToolResultData{Type: TypeToolResult, StepID: s.stepID, ToolName: u.ToolID, Summary: summary, Timestamp: s.ts()})
	case engine.KindPlan:
		if content := engine.Collapse(u.Text); content != "" {
			s.emit(TypePlanNarrative, PlanData{Type: TypePlanNarrative, RunID: s.runID, Content: content, Timestamp: s.ts()})
		}
	case engine.KindNarration:
		if content := engine.Collapse(u.Text); content != "" {
			s.emit(TypeNarrationDelta, NarrationData{Type: TypeNarrationDelta, StepID: s.stepID, Content: content, Timestamp: s.ts()})
		}
	case engine.KindSummary:
		if content := engine.Collapse(u.Text); content != "" {
			s.emit(TypeSummary, SummaryData{Type: TypeSummary, Content: content, Timestamp: s.ts()})
		}
	}
}

func (s *session) useTool(id string) {
	for _, t := range s.toolsUsed {
		if t == id {
			return
		}
	}
	s.toolsUsed = append(s.toolsUsed, id)
}

// fail closes the active step and emits a client-safe error.
func (s *session) fail(err error) {
	if s.stepID != "" {
		s.endStep(OutcomeFailed)
	}
	ae := classifyErr(err)
	if errors.Is(err, context.Canceled) {
		ae = apperr.Wrap(apperr.CodeInternal, err, "request cancelled")
	}
	s.o.logger.Error("stream_failed", "run_id", s.runID, "agent", s.req.Agent.ID, "error", err)

	body := apperr.ToBody(ae)
	message, _ := audit.Redact(body.Error.Message)
	s.emit(TypeError, ErrorData{Type: TypeError, Code: body.Error.Code, Error: message, Timestamp: s.ts()})
}
