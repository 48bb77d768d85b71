package domain

import "time"

// UserVerification is a single-use, HMAC-digested email verification
// token record. Raw tokens are never persisted.
type UserVerification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// UserRefreshToken is a single-table, hashed refresh token.
type UserRefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	UserAgent string     `json:"user_agent,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// InvitationStatus is the lifecycle state of an OrganizationInvitation.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusRevoked  InvitationStatus = "revoked"
)

// OrganizationInvitation invites an email address to join an org.
type OrganizationInvitation struct {
	ID            string           `json:"id"`
	OrgID         string           `json:"organization_id"`
	Email         string           `json:"email"`
	Role          OrgRole          `json:"role"`
	TokenHash     string           `json:"-"`
	Status        InvitationStatus `json:"status"`
	InvitedBy     string           `json:"invited_by"`
	EmailMetadata map[string]any   `json:"email_metadata,omitempty"`
	ExpiresAt     time.Time        `json:"expires_at"`
	UsedAt        *time.Time       `json:"used_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AuthClaims is the decoded payload of a bearer JWT.
type AuthClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	ActAs  *ActAs `json:"act_as,omitempty"`
}
