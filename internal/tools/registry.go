// ABOUTME: Tool registry: versioned definitions, RBAC gate, result cache and schema checks
// ABOUTME: Execute runs lookup, authorization, cache, validation, execution and caching in order

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
)

// Registration errors.
var (
	ErrDuplicateTool  = errors.New("tool already registered")
	ErrInvalidTool    = errors.New("invalid tool definition")
	ErrRegistryClosed = errors.New("registry is sealed")
)

var tracer = otel.Tracer("github.com/2389/dexi-gateway/internal/tools")

// Executor runs a tool. params has already passed the input schema.
type Executor func(ctx context.Context, params json.RawMessage, user identity.UserContext) (any, error)

// Definition describes a registrable tool.
type Definition struct {
	ID           string
	Version      string
	Description  string
	InputSchema  string
	OutputSchema string
	Roles        []policy.Role
	// CacheTTL enables result caching when positive.
	CacheTTL time.Duration
	// CacheScope, when set, adds a caller-derived component to the cache key for tools
	// whose output depends on who is asking.
	CacheScope func(user identity.UserContext) string
	Execute    Executor
}

// Allows reports whether role may invoke the tool.
func (d Definition) Allows(role policy.Role) bool {
	return slices.Contains(d.Roles, role)
}

// Result is the outcome of a successful Execute.
type Result struct {
	Value     json.RawMessage `json:"result"`
	CacheHit  bool            `json:"cacheHit"`
	LatencyMs int64           `json:"latencyMs"`
}

// Recorder receives per-execution measurements.
type Recorder interface {
	ToolExecuted(toolID, outcome string, cacheHit bool, latency time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ToolExecuted(string, string, bool, time.Duration) {}

type registeredTool struct {
	def    Definition
	input  *jsonschema.Schema
	output *jsonschema.Schema
}

// Registry owns tool definitions and their result cache.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*registeredTool
	order    []string
	sealed   bool
	cache    *Cache
	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used for latency and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:    make(map[string]*registeredTool),
		now:      time.Now,
		logger:   logger,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = NewCache(r.now)
	return r
}

// Register compiles the definition's schemas and adds it.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" || def.Execute == nil {
		return fmt.Errorf("%w: id and executor are required", ErrInvalidTool)
	}
	input, err := compileSchema(def.ID+".input.json", def.InputSchema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTool, err)
	}
	output, err := compileSchema(def.ID+".output.json", def.OutputSchema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTool, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistryClosed
	}
	if _, exists := r.tools[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.ID)
	}
	def.Roles = slices.Clone(def.Roles)
	r.tools[def.ID] = &registeredTool{def: def, input: input, output: output}
	r.order = append(r.order, def.ID)

	r.logger.Info("=== TOOL REGISTERED ===",
		"tool", def.ID,
		"version", def.Version,
		"roles", def.Roles,
		"cache_ttl", def.CacheTTL,
	)
	return nil
}

// Seal stops further registration. Definitions are fixed for the registry's lifetime after this.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	if !ok {
		return Definition{}, false
	}
	return t.def, true
}

// List returns definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id].def)
	}
	return out
}

// ListFor returns the definitions role may invoke.
func (r *Registry) ListFor(role policy.Role) []Definition {
	var out []Definition
	for _, def := range r.List() {
		if def.Allows(role) {
			out = append(out, def)
		}
	}
	return out
}

// Execute invokes toolID with params on behalf of user.
func (r *Registry) Execute(ctx context.Context, toolID string, params json.RawMessage, user identity.UserContext) (*Result, error) {
	ctx, span := tracer.Start(ctx, "tools.execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.id", toolID), attribute.String("user.role", string(user.Role)))

	res, err := r.execute(ctx, toolID, params, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("tool.cache_hit", res.CacheHit), attribute.Int64("tool.latency_ms", res.LatencyMs))
	return res, nil
}

func (r *Registry) execute(ctx context.Context, toolID string, params json.RawMessage, user identity.UserContext) (*Result, error) {
	r.mu.RLock()
	tool, ok := r.tools[toolID]
	r.mu.RUnlock()
	if !ok {
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolNotFound), false, 0)
		return nil, apperr.New(apperr.CodeToolNotFound, "Tool not found: "+toolID)
	}
	def := tool.def

	if !def.Allows(user.Role) {
		r.logger.Warn("tool access denied", "tool", toolID, "role", user.Role, "user", user.UserID)
		r.recorder.ToolExecuted(toolID, string(apperr.CodeRBACDenied), false, 0)
		return nil, apperr.New(apperr.CodeRBACDenied,
			fmt.Sprintf("Role %s cannot access tool %s", user.Role, toolID))
	}

	var cacheKey string
	decoded, err := decodeJSON(params)
	if err == nil && def.CacheTTL > 0 {
		cacheKey, err = r.cacheKey(def, decoded, user)
	}
	if err != nil {
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolInputInvalid), false, 0)
		return nil, apperr.Wrap(apperr.CodeToolInputInvalid, err, "Invalid tool input: malformed JSON")
	}

	if cacheKey != "" {
		if cached, hit := r.cache.Get(cacheKey); hit {
			r.logger.Info("← tool cache hit", "tool", toolID, "cache_hit", true, "latency_ms", 0)
			r.recorder.ToolExecuted(toolID, "success", true, 0)
			return &Result{Value: cached, CacheHit: true, LatencyMs: 0}, nil
		}
	}

	if violations, err := validate(tool.input, decoded); err != nil {
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolInputInvalid), false, 0)
		return nil, apperr.Wrap(apperr.CodeToolInputInvalid, err, "Invalid tool input").WithDetails(violations)
	}

	r.logger.Debug("→ executing tool", "tool", toolID, "version", def.Version, "user", user.UserID)
	start := r.now()
	value, execErr := def.Execute(ctx, params, user)
	latency := r.now().Sub(start)
	latencyMs := latency.Milliseconds()
	if execErr != nil {
		r.logger.Error("tool execution failed", "tool", toolID, "latency_ms", latencyMs, "error", execErr)
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolError), false, latency)
		var classified *apperr.Error
		if errors.As(execErr, &classified) {
			return nil, execErr
		}
		return nil, apperr.Wrap(apperr.CodeToolError, execErr, fmt.Sprintf("Tool %s failed", toolID))
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolOutputInvalid), false, latency)
		return nil, apperr.Wrap(apperr.CodeToolOutputInvalid, err, "Invalid tool output: not serializable")
	}
	outDecoded, err := decodeJSON(encoded)
	if err != nil {
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolOutputInvalid), false, latency)
		return nil, apperr.Wrap(apperr.CodeToolOutputInvalid, err, "Invalid tool output: not serializable")
	}
	if violations, err := validate(tool.output, outDecoded); err != nil {
		r.logger.Error("tool output violates schema", "tool", toolID, "violations", violations)
		r.recorder.ToolExecuted(toolID, string(apperr.CodeToolOutputInvalid), false, latency)
		return nil, apperr.Wrap(apperr.CodeToolOutputInvalid, err, "Invalid tool output").WithDetails(violations)
	}

	if cacheKey != "" {
		r.cache.Set(cacheKey, encoded, def.CacheTTL)
	}

	r.logger.Info("← tool executed", "tool", toolID, "cache_hit", false, "latency_ms", latencyMs)
	r.recorder.ToolExecuted(toolID, "success", false, latency)
	return &Result{Value: encoded, CacheHit: false, LatencyMs: latencyMs}, nil
}

func (r *Registry) cacheKey(def Definition, params any, user identity.UserContext) (string, error) {
	canonical, err := canonicalValue(params)
	if err != nil {
		return "", err
	}
	key := def.ID + ":" + canonical
	if def.CacheScope != nil {
		key = def.ID + "@" + def.CacheScope(user) + ":" + canonical
	}
	return key, nil
}

// CacheLen reports the number of cached entries.
func (r *Registry) CacheLen() int {
	return r.cache.Len()
}
