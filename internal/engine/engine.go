// ABOUTME: Engine contract shared by the stub and OpenAI backends
// ABOUTME: Streaming engines report progress as Updates on a caller-owned channel

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/tools"
)

// ErrMaxTurns is returned when the model keeps calling tools past the turn limit.
var ErrMaxTurns = errors.New("agent exceeded maximum turns")

// Kind identifies an Update.
type Kind int

const (
	// KindText is a chunk of assistant output.
	KindText Kind = iota
	// KindToolStart is emitted before a registry tool runs.
	KindToolStart
	// KindToolResult is emitted after a registry tool returns.
	KindToolResult
	// KindPlan carries the model's plan narrative.
	KindPlan
	// KindNarration carries a progress narration line.
	KindNarration
	// KindSummary carries the closing summary.
	KindSummary
)

// Update is one unit of engine progress.
type Update struct {
	Kind   Kind
	Text   string
	ToolID string
	Failed bool
}

// Request is one agent turn.
type Request struct {
	AgentID      string
	Message      string
	Input        string
	Instructions string
	Model        string
	Settings     map[string]any
	User         identity.UserContext
	AllowTools   bool
}

// Engine produces an agent reply.
type Engine interface {
	// Run returns the complete reply.
	Run(ctx context.Context, req Request) (string, error)
	// Stream sends updates to out until the reply is complete. It never closes out.
	Stream(ctx context.Context, req Request, out chan<- Update) error
}

// ToolRunner is the tool surface exposed to engines.
type ToolRunner interface {
	ListFor(role policy.Role) []tools.Definition
	Execute(ctx context.Context, toolID string, params json.RawMessage, user identity.UserContext) (*tools.Result, error)
}

// Send delivers u unless ctx ends first.
func Send(ctx context.Context, out chan<- Update, u Update) error {
	select {
	case out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// Chunks splits text into alternating word and whitespace runs. Joining them
// reproduces text exactly.
func Chunks(text string) []string {
	var out []string
	last := 0
	for _, loc := range whitespace.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			out = append(out, text[last:loc[0]])
		}
		out = append(out, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// Collapse folds whitespace runs to single spaces and trims the ends.
func Collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
