// ABOUTME: Static role to permission table with a total order over roles
// ABOUTME: Every higher role holds a superset of the permissions of the roles below it

package policy

import (
	"slices"
	"strings"
)

// Role is one of the four caller roles.
type Role string

const (
	Viewer  Role = "viewer"
	Analyst Role = "analyst"
	Manager Role = "manager"
	Admin   Role = "admin"
)

// Permission is a dotted capability string such as "docs.search".
type Permission string

const (
	DocsSearch Permission = "docs.search"
	UINavigate Permission = "ui.navigate"
	ExportData Permission = "export.data"
)

// roleOrder lists roles from least to most privileged.
var roleOrder = []Role{Viewer, Analyst, Manager, Admin}

var rolePermissions = buildTable()

func buildTable() map[Role]map[Permission]struct{} {
	viewer := []Permission{DocsSearch, UINavigate, AgentPermission("guide")}
	analyst := append(slices.Clone(viewer), AgentPermission("transcript"))
	manager := append(slices.Clone(analyst),
		ExportData,
		AgentPermission("interview"),
		AgentPermission("labeling"),
		AgentPermission("trait"),
		AgentPermission("export"),
		AgentPermission("rationales"),
	)
	admin := slices.Clone(manager)

	table := make(map[Role]map[Permission]struct{}, len(roleOrder))
	for role, perms := range map[Role][]Permission{
		Viewer:  viewer,
		Analyst: analyst,
		Manager: manager,
		Admin:   admin,
	} {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		table[role] = set
	}
	return table
}

// AgentPermission returns the permission needed to invoke agentID.
func AgentPermission(agentID string) Permission {
	return Permission("agent." + agentID + ".invoke")
}

// Roles returns all roles ordered from least to most privileged.
func Roles() []Role {
	return slices.Clone(roleOrder)
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r.rank() >= 0
}

func (r Role) rank() int {
	return slices.Index(roleOrder, r)
}

// ParseRole matches s case-insensitively against the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// NormalizeRole is ParseRole that falls back to Viewer.
func NormalizeRole(s string) Role {
	if r, ok := ParseRole(s); ok {
		return r
	}
	return Viewer
}

// RoleFromGroups derives a role from group membership, testing admin, then manager,
// then analyst. Anything else is a viewer.
func RoleFromGroups(groups []string) Role {
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		seen[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	for _, candidate := range []Role{Admin, Manager, Analyst} {
		if _, ok := seen[string(candidate)]; ok {
			return candidate
		}
	}
	return Viewer
}

// HasPermission reports whether role is granted permission.
func HasPermission(role Role, permission Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// IsAtLeast reports whether role ranks at or above required. Unknown roles rank below all.
func IsAtLeast(role, required Role) bool {
	rr, qr := role.rank(), required.rank()
	if rr < 0 || qr < 0 {
		return false
	}
	return rr >= qr
}

// Permissions returns the sorted permissions granted to role.
func Permissions(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
