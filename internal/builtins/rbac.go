// ABOUTME: rbac-inspector tool: reports whether the caller holds the permission for an action
// ABOUTME: Cached per role since the answer depends only on the caller's role

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/tools"
)

const rbacInspectorInput = `{
	"type": "object",
	"properties": {
		"requestedAction": {"type": "string"},
		"resource": {"type": ["string", "null"]}
	},
	"required": ["requestedAction", "resource"],
	"additionalProperties": false
}`

const rbacInspectorOutput = `{
	"type": "object",
	"properties": {
		"hasPermission": {"type": "boolean"},
		"requiredPermission": {"type": "string"},
		"explanation": {"type": "string"}
	},
	"required": ["hasPermission", "requiredPermission", "explanation"],
	"additionalProperties": false
}`

// actionPermissions maps friendly action names to permissions. Other actions are
// treated as permission names.
var actionPermissions = map[string]policy.Permission{
	"docs_search": policy.DocsSearch,
	"navigate_ui": policy.UINavigate,
	"export":      policy.ExportData,
}

type rbacResult struct {
	HasPermission      bool   `json:"hasPermission"`
	RequiredPermission string `json:"requiredPermission"`
	Explanation        string `json:"explanation"`
}

// RBACInspector defines the rbac-inspector tool.
func RBACInspector() tools.Definition {
	return tools.Definition{
		ID:           "rbac-inspector",
		Version:      "0.2.0",
		Description:  "Validate whether a user can perform a requested action.",
		InputSchema:  rbacInspectorInput,
		OutputSchema: rbacInspectorOutput,
		Roles:        policy.Roles(),
		CacheTTL:     300 * time.Second,
		CacheScope:   func(user identity.UserContext) string { return string(user.Role) },
		Execute: func(_ context.Context, params json.RawMessage, user identity.UserContext) (any, error) {
			var in struct {
				RequestedAction string `json:"requestedAction"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("decoding rbac-inspector params: %w", err)
			}
			permission, ok := actionPermissions[in.RequestedAction]
			if !ok {
				permission = policy.Permission(in.RequestedAction)
			}

			granted := policy.HasPermission(user.Role, permission)
			verdict := "denied"
			if granted {
				verdict = "granted"
			}
			return rbacResult{
				HasPermission:      granted,
				RequiredPermission: string(permission),
				Explanation:        fmt.Sprintf("Permission %s %s for role %s.", permission, verdict, user.Role),
			}, nil
		},
	}
}
