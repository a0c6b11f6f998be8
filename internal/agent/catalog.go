// ABOUTME: The fixed catalog of Dexi agents and per-agent request preparation
// ABOUTME: Each agent pairs its prompt template with the shared engine

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/dexi-gateway/internal/engine"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/mode"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/prompts"
)

// ErrAgentNotFound indicates the specified agent does not exist.
var ErrAgentNotFound = errors.New("agent not found")

// Builtin lists every agent in catalog order with its description.
var Builtin = []struct {
	ID          string
	Description string
}{
	{"guide", "Product guide for navigation and how-to questions."},
	{"interview", "Interview design and moderation support."},
	{"transcript", "Transcript review and summarization."},
	{"labeling", "Qualitative coding and response labeling."},
	{"trait", "Trait and persona analysis across participants."},
	{"export", "Dataset export preparation and explanation."},
	{"rationales", "Rationale extraction from participant responses."},
}

// TemplateSource resolves prompt templates by agent id.
type TemplateSource interface {
	Resolve(name string) *prompts.Template
}

// Invocation is one call into an agent.
type Invocation struct {
	Message    string
	User       identity.UserContext
	Model      string
	Settings   map[string]any
	AllowTools bool
}

// Agent is a catalog entry.
type Agent struct {
	ID          string
	Description string

	engine    engine.Engine
	templates TemplateSource
}

// Permission is the permission required to invoke the agent.
func (a *Agent) Permission() policy.Permission {
	return policy.AgentPermission(a.ID)
}

// Prepare builds the engine request for inv.
func (a *Agent) Prepare(inv Invocation) (engine.Request, error) {
	tmpl := a.templates.Resolve(a.ID)

	input, err := tmpl.Render(map[string]any{
		"message":       inv.Message,
		"agentId":       a.ID,
		"userId":        inv.User.UserID,
		"role":          string(inv.User.Role),
		"applicationId": inv.User.ApplicationID,
		"sessionId":     inv.User.SessionID,
		"campaignId":    inv.User.CampaignID,
		"currentRoute":  inv.User.CurrentRoute,
	})
	if err != nil {
		return engine.Request{}, fmt.Errorf("agent %s: %w", a.ID, err)
	}

	model := inv.Model
	if model == "" {
		model = tmpl.Model
	}

	return engine.Request{
		AgentID:      a.ID,
		Message:      inv.Message,
		Input:        input,
		Instructions: tmpl.Instructions,
		Model:        model,
		Settings:     withCacheDefaults(MergeSettings(tmpl.ModelSettings, inv.Settings), a.CacheKey(inv.User.ApplicationID)),
		User:         inv.User,
		AllowTools:   inv.AllowTools,
	}, nil
}

// CacheKey is the prompt cache key for the agent's current template in app.
func (a *Agent) CacheKey(app string) string {
	return fmt.Sprintf("dexi:%s:%s:v%s", app, a.ID, a.templates.Resolve(a.ID).Version)
}

// Run returns the complete reply.
func (a *Agent) Run(ctx context.Context, inv Invocation) (string, error) {
	req, err := a.Prepare(inv)
	if err != nil {
		return "", err
	}
	return a.engine.Run(ctx, req)
}

// RunStream sends engine updates to out until the reply completes.
func (a *Agent) RunStream(ctx context.Context, inv Invocation, out chan<- engine.Update) error {
	req, err := a.Prepare(inv)
	if err != nil {
		return err
	}
	return a.engine.Stream(ctx, req, out)
}

// Catalog holds the agents. It is immutable after construction.
type Catalog struct {
	agents map[string]*Agent
	order  []string
	logger *slog.Logger
}

// NewCatalog builds the fixed agent set around eng and templates.
func NewCatalog(eng engine.Engine, templates TemplateSource, logger *slog.Logger) *Catalog {
	c := &Catalog{
		agents: make(map[string]*Agent, len(Builtin)),
		logger: logger,
	}
	for _, b := range Builtin {
		c.agents[b.ID] = &Agent{ID: b.ID, Description: b.Description, engine: eng, templates: templates}
		c.order = append(c.order, b.ID)

		tmpl := templates.Resolve(b.ID)
		c.logger.Info("=== AGENT REGISTERED ===",
			"agent_id", b.ID,
			"prompt_version", tmpl.Version,
			"builtin_prompt", tmpl.Builtin,
		)
	}
	return c
}

// Get returns the agent with id.
func (c *Catalog) Get(id string) (*Agent, error) {
	a, ok := c.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// Select returns the hinted agent, or the conversational agent when the hint is
// empty or unknown.
func (c *Catalog) Select(hint string) *Agent {
	if a, ok := c.agents[hint]; ok {
		return a
	}
	return c.agents[mode.ConversationalAgent]
}

// List returns every agent in catalog order.
func (c *Catalog) List() []*Agent {
	out := make([]*Agent, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.agents[id])
	}
	return out
}

// ListFor returns the agents role may invoke.
func (c *Catalog) ListFor(role policy.Role) []*Agent {
	var out []*Agent
	for _, a := range c.List() {
		if policy.HasPermission(role, a.Permission()) {
			out = append(out, a)
		}
	}
	return out
}
