// ABOUTME: UserContext identity attached to every request and its context.Context carrier
// ABOUTME: Provides WithUser/FromContext and merging of trusted and client-supplied fields

package identity

import (
	"context"

	"github.com/2389/dexi-gateway/internal/policy"
)

// UserContext is the caller identity. It is a value type and is never mutated after
// construction.
type UserContext struct {
	UserID        string      `json:"userId"`
	Role          policy.Role `json:"role"`
	ApplicationID string      `json:"applicationId"`
	SessionID     string      `json:"sessionId,omitempty"`
	CampaignID    string      `json:"campaignId,omitempty"`
	CurrentRoute  string      `json:"currentRoute,omitempty"`
}

// Can reports whether the user's role holds permission.
func (u UserContext) Can(permission policy.Permission) bool {
	return policy.HasPermission(u.Role, permission)
}

// Merge returns trusted with optional fields filled from client where trusted left them
// empty. UserID, Role and ApplicationID always come from trusted.
func Merge(trusted UserContext, client *UserContext) UserContext {
	if client == nil {
		return trusted
	}
	out := trusted
	if out.SessionID == "" {
		out.SessionID = client.SessionID
	}
	if out.CampaignID == "" {
		out.CampaignID = client.CampaignID
	}
	if out.CurrentRoute == "" {
		out.CurrentRoute = client.CurrentRoute
	}
	return out
}

type userContextKey struct{}

// WithUser returns a new context carrying u.
func WithUser(ctx context.Context, u UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// FromContext returns the UserContext stored by WithUser.
func FromContext(ctx context.Context) (UserContext, bool) {
	u, ok := ctx.Value(userContextKey{}).(UserContext)
	return u, ok
}
