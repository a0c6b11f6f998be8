// ABOUTME: Tests for role ordering, permission monotonicity and role derivation
// ABOUTME: Exercises every pair of roles against every known permission

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func allPermissions() []Permission {
	seen := map[Permission]struct{}{}
	for _, r := range Roles() {
		for _, p := range Permissions(r) {
			seen[p] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

func TestPermissionsMonotonicInRoleOrder(t *testing.T) {
	roles := Roles()
	for i, lower := range roles {
		for _, higher := range roles[i:] {
			for _, p := range allPermissions() {
				if HasPermission(lower, p) {
					assert.True(t, HasPermission(higher, p), "%s has %s but %s does not", lower, p, higher)
				}
			}
		}
	}
}

func TestRoleTable(t *testing.T) {
	assert.True(t, HasPermission(Viewer, DocsSearch))
	assert.True(t, HasPermission(Viewer, UINavigate))
	assert.True(t, HasPermission(Viewer, AgentPermission("guide")))
	assert.False(t, HasPermission(Viewer, ExportData))
	assert.False(t, HasPermission(Viewer, AgentPermission("transcript")))

	assert.True(t, HasPermission(Analyst, AgentPermission("transcript")))
	assert.False(t, HasPermission(Analyst, AgentPermission("export")))

	assert.True(t, HasPermission(Manager, ExportData))
	assert.True(t, HasPermission(Manager, AgentPermission("rationales")))
	assert.ElementsMatch(t, Permissions(Manager), Permissions(Admin))
}

func TestHasPermissionUnknownRole(t *testing.T) {
	assert.False(t, HasPermission(Role("superuser"), DocsSearch))
}

func TestIsAtLeast(t *testing.T) {
	assert.True(t, IsAtLeast(Admin, Viewer))
	assert.True(t, IsAtLeast(Analyst, Analyst))
	assert.False(t, IsAtLeast(Viewer, Analyst))
	assert.False(t, IsAtLeast(Role("root"), Viewer))
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"admin", Admin},
		{" Manager ", Manager},
		{"ANALYST", Analyst},
		{"viewer", Viewer},
		{"owner", Viewer},
		{"", Viewer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRole(tt.in), "NormalizeRole(%q)", tt.in)
	}
}

func TestRoleFromGroups(t *testing.T) {
	assert.Equal(t, Admin, RoleFromGroups([]string{"Analyst", "ADMIN"}))
	assert.Equal(t, Manager, RoleFromGroups([]string{"analyst", "manager"}))
	assert.Equal(t, Analyst, RoleFromGroups([]string{"analyst"}))
	assert.Equal(t, Viewer, RoleFromGroups([]string{"staff"}))
	assert.Equal(t, Viewer, RoleFromGroups(nil))
}
