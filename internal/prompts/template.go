// ABOUTME: Prompt template type, schema validation and input rendering
// ABOUTME: Templates are decoded from YAML or TOML into one JSON-shaped form before validation

package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Variable documents one value the input template expects.
type Variable struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Template is one agent's prompt definition.
type Template struct {
	Version       string         `json:"version"`
	Description   string         `json:"description"`
	Model         string         `json:"model"`
	Domain        string         `json:"domain"`
	Instructions  string         `json:"instructions"`
	Input         string         `json:"input"`
	Variables     []Variable     `json:"variables"`
	ModelSettings map[string]any `json:"model_settings,omitempty"`

	// Builtin marks the fallback used when no file exists for an agent.
	Builtin bool `json:"-"`

	input *template.Template
}

const templateSchema = `{
	"type": "object",
	"required": ["version", "description", "model", "domain", "instructions", "input", "variables"],
	"properties": {
		"version": {"type": "string", "pattern": "^\\d+\\.\\d+$"},
		"description": {"type": "string", "minLength": 5},
		"model": {"type": "string"},
		"domain": {"type": "string"},
		"instructions": {"type": "string", "minLength": 20},
		"input": {"type": "string", "minLength": 1},
		"variables": {"type": "array"},
		"model_settings": {
			"type": "object",
			"properties": {
				"reasoning": {
					"type": "object",
					"properties": {
						"effort": {"type": ["string", "null"]},
						"summary": {"type": ["string", "null"]}
					}
				},
				"text": {
					"type": "object",
					"properties": {
						"verbosity": {"type": ["string", "null"]}
					}
				},
				"provider_data": {
					"type": "object",
					"properties": {
						"prompt_cache_key": {"type": "string"},
						"prompt_cache_retention": {"type": "string"}
					}
				}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("prompt-template.json", templateSchema)

var funcs = template.FuncMap{
	"join": func(items []any, sep string) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},
}

// Parse decodes and validates a template. format is "yaml" or "toml".
func Parse(name, format string, src []byte) (*Template, error) {
	var raw map[string]any
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(src, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
		}
	case "toml":
		if _, err := toml.Decode(string(src), &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported format %q", ErrInvalidTemplate, name, format)
	}

	// Normalize decoder-specific scalar types into their JSON forms.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}

	var t Template
	if err := json.Unmarshal(encoded, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	if err := t.compile(name); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Template) compile(name string) error {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(t.Input)
	if err != nil {
		return fmt.Errorf("%w: %s: input: %v", ErrInvalidTemplate, name, err)
	}
	t.input = tmpl
	return nil
}

// Render executes the input template against vars.
func (t *Template) Render(vars map[string]any) (string, error) {
	if t.input == nil {
		if err := t.compile("input"); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	if err := t.input.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("rendering prompt input: %w", err)
	}
	return buf.String(), nil
}

// Fallback is the template used for an agent without a template file.
func Fallback(agentID string) *Template {
	t := &Template{
		Version:     "unknown",
		Description: "Built-in " + agentID + " prompt",
		Domain:      agentID,
		Instructions: "You are Dexi, the " + agentID + " assistant. Answer concisely, cite documentation " +
			"when you use it, and never repeat personal data.",
		Input:   "{{.message}}",
		Builtin: true,
	}
	_ = t.compile(agentID)
	return t
}
