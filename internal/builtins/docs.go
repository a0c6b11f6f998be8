// ABOUTME: docs-search tool: ranked documentation sections with citations
// ABOUTME: Searches the common collection plus the caller's application collection

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/dexi-gateway/internal/docs"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/tools"
)

const defaultDocsLimit = 5

const docsSearchInput = `{
	"type": "object",
	"properties": {
		"query": {"type": "string"},
		"filters": {
			"type": ["object", "null"],
			"properties": {"app": {"type": ["string", "null"]}},
			"required": ["app"],
			"additionalProperties": false
		},
		"limit": {"type": ["number", "null"]}
	},
	"required": ["query", "filters", "limit"],
	"additionalProperties": false
}`

const docsSearchOutput = `{
	"type": "object",
	"properties": {
		"results": {"type": "array"},
		"totalResults": {"type": "number"}
	},
	"required": ["results", "totalResults"],
	"additionalProperties": false
}`

type docsSearchParams struct {
	Query   string `json:"query"`
	Filters *struct {
		App *string `json:"app"`
	} `json:"filters"`
	Limit *float64 `json:"limit"`
}

type docsSearchResult struct {
	Results      []docs.Hit `json:"results"`
	TotalResults int        `json:"totalResults"`
}

// DocsSearch defines the docs-search tool over idx.
func DocsSearch(idx *docs.Index) tools.Definition {
	return tools.Definition{
		ID:           "docs-search",
		Version:      "0.3.0",
		Description:  "Search Evidexa documentation sources with citations.",
		InputSchema:  docsSearchInput,
		OutputSchema: docsSearchOutput,
		Roles:        policy.Roles(),
		CacheTTL:     600 * time.Second,
		CacheScope:   scopeByApplication,
		Execute: func(_ context.Context, params json.RawMessage, user identity.UserContext) (any, error) {
			var in docsSearchParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("decoding docs-search params: %w", err)
			}
			app := user.ApplicationID
			if in.Filters != nil && in.Filters.App != nil && *in.Filters.App != "" {
				app = *in.Filters.App
			}
			limit := defaultDocsLimit
			if in.Limit != nil && *in.Limit >= 1 {
				limit = int(*in.Limit)
			}

			hits := idx.Search(in.Query, app, limit)
			return docsSearchResult{Results: hits, TotalResults: len(hits)}, nil
		},
	}
}

func scopeByApplication(user identity.UserContext) string {
	return user.ApplicationID
}
