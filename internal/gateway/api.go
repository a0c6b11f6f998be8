// ABOUTME: HTTP API handlers for chat, agent invocation, tool execution and catalogs
// ABOUTME: Chat and invoke reply with JSON or SSE depending on the stream flag

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/dexi-gateway/internal/agent"
	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/audit"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/mode"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/stream"
)

// InvokeRequest is the JSON body of POST /api/agents/{agentId}/invoke.
type InvokeRequest struct {
	Message         string                `json:"message"`
	Context         *identity.UserContext `json:"context,omitempty"`
	Model           string                `json:"model,omitempty"`
	Mode            string                `json:"mode,omitempty"`
	ExecutionPolicy string                `json:"execution_policy,omitempty"`
	ModelSettings   map[string]any        `json:"model_settings,omitempty"`
	Stream          bool                  `json:"stream,omitempty"`
}

// ChatRequest is the JSON body of POST /api/chat.
type ChatRequest struct {
	InvokeRequest
	AgentHint string `json:"agentHint,omitempty"`
}

// ToolExecuteRequest is the JSON body of POST /api/tools/{toolId}/execute.
type ToolExecuteRequest struct {
	Parameters json.RawMessage       `json:"parameters"`
	Context    *identity.UserContext `json:"context,omitempty"`
}

// ToolExecuteResponse is the JSON response of a tool execution.
type ToolExecuteResponse struct {
	ToolID    string          `json:"toolId"`
	CacheHit  bool            `json:"cacheHit"`
	LatencyMs int64           `json:"latencyMs"`
	Result    json.RawMessage `json:"result"`
}

// ToolInfoResponse describes a tool in GET /api/tools.
type ToolInfoResponse struct {
	ID           string          `json:"id"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema"`
}

// AgentInfoResponse describes an agent in GET /api/agents.
type AgentInfoResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Permission  string `json:"permission"`
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendError writes err as the JSON error envelope and logs server-side failures.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	if apperr.Status(code) >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			"path", r.URL.Path,
			"code", code,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	apperr.WriteJSON(w, err)
}

// caller merges the authenticated identity with the optional body context.
func caller(r *http.Request, client *identity.UserContext) (identity.UserContext, error) {
	trusted, ok := identity.FromContext(r.Context())
	if !ok {
		return identity.UserContext{}, apperr.New(apperr.CodeAuthMissing, "authentication required")
	}
	return identity.Merge(trusted, client), nil
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, g.bodyLimit, chatSchema, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	a := g.agents.Select(req.AgentHint)
	g.runAgent(w, r, a, req.AgentHint, req.InvokeRequest, mode.Deny)
}

func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	a, err := g.agents.Get(agentID)
	if err != nil {
		g.sendError(w, r, apperr.Wrap(apperr.CodeAgentNotFound, err, "Unknown agent "+agentID))
		return
	}
	var req InvokeRequest
	if err := decodeBody(w, r, g.bodyLimit, invokeSchema, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.runAgent(w, r, a, agentID, req, mode.Auto)
}

func (g *Gateway) runAgent(w http.ResponseWriter, r *http.Request, a *agent.Agent, hint string, body InvokeRequest, defaultPolicy mode.Policy) {
	user, err := caller(r, body.Context)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	execPolicy, err := mode.ParsePolicy(body.ExecutionPolicy, defaultPolicy)
	if err != nil {
		g.sendError(w, r, apperr.Wrap(apperr.CodeInvalidRequest, err, err.Error()))
		return
	}

	req := stream.Request{
		Agent:     a,
		Message:   body.Message,
		User:      user,
		AgentHint: hint,
		Policy:    execPolicy,
		PerfMode:  body.Mode,
		Model:     body.Model,
		Settings:  body.ModelSettings,
	}
	if err := g.orchestrator.Authorize(req); err != nil {
		g.sendError(w, r, err)
		return
	}

	if !body.Stream {
		reply, err := g.orchestrator.Run(r.Context(), req)
		if err != nil {
			g.sendError(w, r, err)
			return
		}
		g.sendJSON(w, http.StatusOK, reply)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendError(w, r, apperr.New(apperr.CodeInternal, "streaming not supported"))
		return
	}
	setSSEHeaders(w)
	flusher.Flush()

	events := make(chan stream.Event, 16)
	go g.orchestrator.Stream(r.Context(), req, events)
	g.pipeSSE(w, flusher, events)
}

func (g *Gateway) handleToolExecute(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "toolId")
	var req ToolExecuteRequest
	if err := decodeBody(w, r, g.bodyLimit, toolExecuteSchema, &req); err != nil {
		g.sendError(w, r, err)
		return
	}
	user, err := caller(r, req.Context)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	res, err := g.tools.Execute(r.Context(), toolID, req.Parameters, user)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, ToolExecuteResponse{
		ToolID:    toolID,
		CacheHit:  res.CacheHit,
		LatencyMs: res.LatencyMs,
		Result:    res.Value,
	})
}

func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	user, err := caller(r, nil)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	defs := g.tools.ListFor(user.Role)
	out := make([]ToolInfoResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolInfoResponse{
			ID:           d.ID,
			Version:      d.Version,
			Description:  d.Description,
			InputSchema:  json.RawMessage(d.InputSchema),
			OutputSchema: json.RawMessage(d.OutputSchema),
		})
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	user, err := caller(r, nil)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	agents := g.agents.ListFor(user.Role)
	out := make([]AgentInfoResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, AgentInfoResponse{
			ID:          a.ID,
			Description: a.Description,
			Permission:  string(a.Permission()),
		})
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	user, err := caller(r, nil)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if !policy.IsAtLeast(user.Role, policy.Admin) {
		g.sendError(w, r, apperr.New(apperr.CodeRBACDenied, "Audit access denied"))
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		UserID:  q.Get("userId"),
		AgentID: q.Get("agentId"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			g.sendError(w, r, apperr.Wrap(apperr.CodeInvalidRequest, err, "since must be an RFC 3339 timestamp"))
			return
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			g.sendError(w, r, apperr.New(apperr.CodeInvalidRequest, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	records := []audit.Record{}
	if g.auditLog != nil {
		records, err = g.auditLog.List(r.Context(), filter)
		if err != nil {
			g.sendError(w, r, apperr.Wrap(apperr.CodeInternal, err, "unable to read audit log"))
			return
		}
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"records": records})
}
