// ABOUTME: Chat versus execution classification and execution-policy reconciliation
// ABOUTME: Deterministic substring matching over configurable keyword and tool-hint lists

package mode

import (
	"fmt"
	"strings"
)

// Mode is how a request is handled.
type Mode string

const (
	Chat      Mode = "chat"
	Execution Mode = "execution"
)

// Policy is the caller's execution preference.
type Policy string

const (
	Deny  Policy = "deny"
	Auto  Policy = "auto"
	Force Policy = "force"
)

// ParsePolicy parses s; the empty string yields fallback.
func ParsePolicy(s string, fallback Policy) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return fallback, nil
	case Deny, Auto, Force:
		return p, nil
	default:
		return "", fmt.Errorf("unknown execution policy %q", s)
	}
}

// ConversationalAgent is the agent whose hint does not imply execution.
const ConversationalAgent = "guide"

// DefaultKeywords are action words that imply tool execution.
var DefaultKeywords = []string{
	"search",
	"find",
	"look up",
	"run",
	"simulate",
	"generate",
	"analyze",
	"pull from repo",
	"query",
	"compare",
	"produce cohort",
	"export",
	"dataset",
	"cohort",
	"artifact",
	"report",
	"evaluate",
}

// DefaultToolHints are tool identifiers whose mention implies execution.
var DefaultToolHints = []string{
	"docs-search",
	"docs_search",
	"ui-navigator",
	"ui_navigator",
	"rbac-inspector",
	"rbac_inspector",
}

// Classifier holds the keyword lists used by Classify.
type Classifier struct {
	keywords  []string
	toolHints []string
}

// NewClassifier returns a classifier. Nil lists fall back to the defaults.
func NewClassifier(keywords, toolHints []string) *Classifier {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	if toolHints == nil {
		toolHints = DefaultToolHints
	}
	return &Classifier{
		keywords:  lowerAll(keywords),
		toolHints: lowerAll(toolHints),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Classify decides whether message needs execution.
func (c *Classifier) Classify(message, agentHint string) Mode {
	normalized := strings.ToLower(message)
	if containsAny(normalized, c.toolHints) {
		return Execution
	}
	if containsAny(normalized, c.keywords) {
		return Execution
	}
	if agentHint != "" && agentHint != ConversationalAgent {
		return Execution
	}
	return Chat
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Resolve reconciles policy with classification.
func Resolve(policy Policy, classification Mode) Mode {
	switch policy {
	case Force:
		return Execution
	case Auto:
		return classification
	default:
		return Chat
	}
}

// NeedsConfirmation reports whether the caller should be asked before executing: the
// message wants execution but the policy denies it.
func NeedsConfirmation(policy Policy, classification Mode) bool {
	return policy == Deny && classification == Execution
}
