// ABOUTME: JSON schemas for API request bodies and the decoder that enforces them
// ABOUTME: Violations become invalid_request errors carrying the flattened causes

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/tools"
)

const contextSchema = `{
	"type": ["object", "null"],
	"properties": {
		"userId": {"type": "string"},
		"role": {"enum": ["admin", "manager", "analyst", "viewer"]},
		"applicationId": {"type": "string"},
		"sessionId": {"type": ["string", "null"]},
		"campaignId": {"type": ["string", "null"]},
		"currentRoute": {"type": ["string", "null"]}
	}
}`

const modelSettingsSchema = `{
	"type": "object",
	"properties": {
		"reasoning": {
			"type": "object",
			"properties": {
				"effort": {"enum": ["none", "minimal", "low", "medium", "high", "xhigh", null]},
				"summary": {"enum": ["auto", "concise", "detailed", null]}
			}
		},
		"text": {
			"type": "object",
			"properties": {
				"verbosity": {"enum": ["low", "medium", "high", null]}
			}
		},
		"provider_data": {
			"type": "object",
			"properties": {
				"prompt_cache_key": {"type": "string"},
				"prompt_cache_retention": {"enum": ["in_memory", "24h"]}
			}
		}
	}
}`

const invokeProperties = `
		"message": {"type": "string", "minLength": 1},
		"context": ` + contextSchema + `,
		"model": {"type": "string"},
		"mode": {"enum": ["fast", "balanced", "deep"]},
		"execution_policy": {"enum": ["deny", "auto", "force"]},
		"model_settings": ` + modelSettingsSchema + `,
		"stream": {"type": "boolean"}`

var (
	chatSchema = jsonschema.MustCompileString("chat.json", `{
	"type": "object",
	"required": ["message"],
	"properties": {`+invokeProperties+`,
		"agentHint": {"type": "string"}
	}
}`)

	invokeSchema = jsonschema.MustCompileString("invoke.json", `{
	"type": "object",
	"required": ["message"],
	"properties": {`+invokeProperties+`
	}
}`)

	toolExecuteSchema = jsonschema.MustCompileString("tool-execute.json", `{
	"type": "object",
	"required": ["parameters"],
	"properties": {
		"parameters": {},
		"context": `+contextSchema+`
	}
}`)
)

// decodeBody reads at most limit bytes, validates them against schema and
// unmarshals into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, schema *jsonschema.Schema, dst any) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "request body too large")
		}
		return apperr.Wrap(apperr.CodeInvalidRequest, err, "unable to read request body")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return apperr.Wrap(apperr.CodeInvalidRequest, err, "invalid JSON body")
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return apperr.Wrap(apperr.CodeInvalidRequest, err, "request body failed validation").WithDetails(tools.Violations(ve))
		}
		return apperr.Wrap(apperr.CodeInvalidRequest, err, "request body failed validation")
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidRequest, err, "invalid JSON body")
	}
	return nil
}
