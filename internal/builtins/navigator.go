// ABOUTME: ui-navigator tool: navigation steps for console workflows
// ABOUTME: Routes come from a YAML or JSON file keyed by application then action

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/tools"
)

const uiNavigatorInput = `{
	"type": "object",
	"properties": {
		"targetAction": {"type": "string"},
		"currentRoute": {"type": ["string", "null"]}
	},
	"required": ["targetAction", "currentRoute"],
	"additionalProperties": false
}`

const uiNavigatorOutput = `{
	"type": "object",
	"properties": {
		"steps": {"type": "array"},
		"warnings": {"type": "array"}
	},
	"required": ["steps", "warnings"],
	"additionalProperties": false
}`

const defaultNavigatorApp = "nexus"

// Step is one navigation instruction.
type Step struct {
	Route       string `json:"route" yaml:"route"`
	Description string `json:"description" yaml:"description"`
}

// Routes maps application to action to steps.
type Routes map[string]map[string][]Step

// LoadRoutes reads a routes file. JSON files parse as YAML.
func LoadRoutes(path string) (Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ui routes: %w", err)
	}
	var routes Routes
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("parsing ui routes: %w", err)
	}
	if routes == nil {
		routes = Routes{}
	}
	return routes, nil
}

var dashboardSteps = []Step{{Route: "/dashboard", Description: "Start from the main dashboard."}}

const unknownRouteWarning = "Current route unknown; starting from dashboard."

type navigatorResult struct {
	Steps    []Step   `json:"steps"`
	Warnings []string `json:"warnings"`
}

// UINavigator defines the ui-navigator tool over routes.
func UINavigator(routes Routes) tools.Definition {
	return tools.Definition{
		ID:           "ui-navigator",
		Version:      "0.2.0",
		Description:  "Provide UI navigation steps for Nexus Console workflows.",
		InputSchema:  uiNavigatorInput,
		OutputSchema: uiNavigatorOutput,
		Roles:        policy.Roles(),
		CacheTTL:     1800 * time.Second,
		CacheScope:   scopeByApplication,
		Execute: func(_ context.Context, params json.RawMessage, user identity.UserContext) (any, error) {
			var in struct {
				TargetAction string  `json:"targetAction"`
				CurrentRoute *string `json:"currentRoute"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("decoding ui-navigator params: %w", err)
			}

			app := user.ApplicationID
			if app == "" {
				app = defaultNavigatorApp
			}

			var steps []Step
			switch {
			case strings.HasPrefix(in.TargetAction, "/"):
				steps = []Step{{Route: in.TargetAction, Description: fmt.Sprintf("Navigate to %s.", in.TargetAction)}}
			case len(routes[app][in.TargetAction]) > 0:
				steps = routes[app][in.TargetAction]
			default:
				steps = dashboardSteps
			}

			warnings := []string{}
			if in.CurrentRoute == nil || *in.CurrentRoute == "" {
				warnings = append(warnings, unknownRouteWarning)
			}
			return navigatorResult{Steps: steps, Warnings: warnings}, nil
		},
	}
}
