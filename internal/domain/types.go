// Package domain defines the core domain types for the MCP gateway and
// control plane.
package domain

import "time"

// IdentityProvider tags how a user authenticates.
type IdentityProvider string

const (
	IdentityProviderEmail  IdentityProvider = "email"
	IdentityProviderGoogle IdentityProvider = "google"
)

// User is a platform account holder.
type User struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	Name          string           `json:"name"`
	PasswordHash  string           `json:"-"`
	Provider      IdentityProvider `json:"provider"`
	EmailVerified bool             `json:"email_verified"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OrgRole is a member's role within one organization.
type OrgRole string

const (
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// Organization is the tenant boundary.
type Organization struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// OrgMembership ties a user to an organization with a role.
type OrgMembership struct {
	OrgID     string    `json:"organization_id"`
	UserID    string    `json:"user_id"`
	Role      OrgRole   `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Team is a sub-grouping of org members used for allowed-team scoping.
type Team struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamMembership ties a user to a team. The user must already be a
// member of team.OrgID; enforced at the storage layer.
type TeamMembership struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ActAs is the organization/role scope a JWT bearer currently operates
// under.
type ActAs struct {
	OrganizationID string  `json:"organization_id"`
	Role           OrgRole `json:"role"`
}

// Principal is the resolved identity of a request after C1 auth.
type Principal struct {
	UserID string
	Email  string
	Name   string
	ActAs  *ActAs
}

// IsAdmin reports whether the principal is acting as an org admin.
func (p *Principal) IsAdmin() bool {
	return p.ActAs != nil && p.ActAs.Role == OrgRoleAdmin
}

// OrgID returns the acting organization id, or empty if the principal
// has no act-as scope.
func (p *Principal) OrgID() string {
	if p.ActAs == nil {
		return ""
	}
	return p.ActAs.OrganizationID
}
