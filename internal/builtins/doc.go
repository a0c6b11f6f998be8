// Package builtins provides the gateway's built-in tools.
//
// All three tools are open to every role and cached:
//
//   - docs-search (600s, per application): ranked documentation sections.
//   - rbac-inspector (300s, per role): explains whether the caller holds a permission.
//   - ui-navigator (1800s, per application): navigation steps for a console action.
package builtins
