// Package auth implements C1: registration, password login, JWT
// access/refresh token issuance, email verification, and organization
// invitations.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/config"
	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
)

var (
	ErrEmailInUse       = errors.New("auth: email already registered")
	ErrInvalidCreds     = errors.New("auth: invalid email or password")
	ErrUnverifiedEmail  = errors.New("auth: email not verified")
	ErrInvalidRefresh   = errors.New("auth: invalid or expired refresh token")
	ErrInvalidVerify    = errors.New("auth: invalid or expired verification token")
	ErrInvalidInvite    = errors.New("auth: invalid, expired, or already-used invitation")
	ErrLastAdmin        = errors.New("auth: cannot remove the organization's last admin")
)

// Service implements registration, login, and session lifecycle on
// top of the postgres store and a TokenService.
type Service struct {
	store   *postgres.Store
	tokens  *TokenService
	cfg     config.SecurityConfig
}

func NewService(store *postgres.Store, cfg config.SecurityConfig) (*Service, error) {
	tokens, err := NewTokenService(cfg.JWTSecret, "mcpgate", cfg.JWTAccessTokenTTL)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, tokens: tokens, cfg: cfg}, nil
}

// Session is the result of a successful login/refresh: an access
// token plus the opaque refresh token to hand back to the client.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *domain.User
}

// Register creates a new user with a bcrypt-hashed password and
// issues (but does not yet mail) an email verification token.
func (s *Service) Register(ctx context.Context, email, name, password string) (*domain.User, string, error) {
	existing, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrEmailInUse
	}

	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Provider:     domain.IdentityProviderEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users.Create(ctx, u); err != nil {
		return nil, "", err
	}

	rawToken, err := s.createVerification(ctx, u.ID, now)
	if err != nil {
		return nil, "", err
	}
	return u, rawToken, nil
}

func (s *Service) createVerification(ctx context.Context, userID string, now time.Time) (string, error) {
	raw, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	v := &domain.UserVerification{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(s.cfg.EmailVerificationTTL),
		CreatedAt: now,
	}
	if err := s.store.Users.CreateVerification(ctx, v); err != nil {
		return "", err
	}
	return raw, nil
}

// VerifyEmail consumes a raw verification token and marks the owning
// user's email verified.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	v, err := s.store.Users.ConsumeVerification(ctx, hashToken(rawToken), time.Now())
	if err != nil {
		return err
	}
	if v == nil {
		return ErrInvalidVerify
	}
	return s.store.Users.SetEmailVerified(ctx, v.UserID)
}

// Login verifies credentials and issues a fresh session. actAs, if
// non-nil, must name an organization the user belongs to; its role is
// resolved from membership, not trusted from the caller.
func (s *Service) Login(ctx context.Context, email, password, userAgent string, actAsOrgID string) (*Session, error) {
	u, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCreds
	}
	if !u.EmailVerified {
		return nil, ErrUnverifiedEmail
	}

	var actAs *domain.ActAs
	if actAsOrgID != "" {
		m, err := s.store.Orgs.GetMembership(ctx, actAsOrgID, u.ID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, apperr.Forbidden("not a member of the requested organization")
		}
		actAs = &domain.ActAs{OrganizationID: m.OrgID, Role: m.Role}
	}

	return s.issueSession(ctx, u, actAs, userAgent)
}

func (s *Service) issueSession(ctx context.Context, u *domain.User, actAs *domain.ActAs, userAgent string) (*Session, error) {
	now := time.Now()
	access, accessExp, err := s.tokens.IssueAccessToken(domain.AuthClaims{
		UserID: u.ID, Email: u.Email, Name: u.Name, ActAs: actAs,
	})
	if err != nil {
		return nil, err
	}

	rawRefresh, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)
	rt := &domain.UserRefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashToken(rawRefresh),
		UserAgent: userAgent,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := s.store.Users.CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rawRefresh,
		RefreshExpiresAt: refreshExp,
		User:             u,
	}, nil
}

// RefreshAccessToken rotates a refresh token: the presented token is
// revoked and a new (access, refresh) pair is issued. actAs carries
// forward unchanged; callers re-authenticate via Login to switch orgs.
func (s *Service) RefreshAccessToken(ctx context.Context, rawRefreshToken, userAgent string, actAs *domain.ActAs) (*Session, error) {
	rt, err := s.store.Users.GetRefreshToken(ctx, hashToken(rawRefreshToken))
	if err != nil {
		return nil, err
	}
	if rt == nil || rt.RevokedAt != nil || time.Now().After(rt.ExpiresAt) {
		return nil, ErrInvalidRefresh
	}

	u, err := s.store.Users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidRefresh
	}

	if err := s.store.Users.RevokeRefreshToken(ctx, rt.ID); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, u, actAs, userAgent)
}

// Logout revokes a single refresh token (one device/session).
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) error {
	rt, err := s.store.Users.GetRefreshToken(ctx, hashToken(rawRefreshToken))
	if err != nil {
		return err
	}
	if rt == nil {
		return nil
	}
	return s.store.Users.RevokeRefreshToken(ctx, rt.ID)
}

// VerifyAccessToken decodes and validates a bearer access token.
func (s *Service) VerifyAccessToken(tokenString string) (*domain.AuthClaims, error) {
	return s.tokens.Verify(tokenString)
}

// CreateInvitation invites email to join orgID with role, issuing a
// raw invitation token for the caller to deliver out of band.
func (s *Service) CreateInvitation(ctx context.Context, orgID, email string, role domain.OrgRole, invitedBy string) (*domain.OrganizationInvitation, string, error) {
	raw, err := newOpaqueToken()
	if err != nil {
		return nil, "", err
	}
	now := time.Now()
	inv := &domain.OrganizationInvitation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Email:     email,
		Role:      role,
		TokenHash: hashToken(raw),
		Status:    domain.InvitationStatusPending,
		InvitedBy: invitedBy,
		ExpiresAt: now.Add(s.cfg.InvitationTTL),
		CreatedAt: now,
	}
	if err := s.store.Orgs.CreateInvitation(ctx, inv); err != nil {
		return nil, "", fmt.Errorf("create invitation: %w", err)
	}
	return inv, raw, nil
}

// AcceptInvitation consumes a raw invitation token, creating the
// membership for an already-registered user whose email matches.
func (s *Service) AcceptInvitation(ctx context.Context, rawToken, userID string) (*domain.OrganizationInvitation, error) {
	inv, err := s.store.Orgs.GetInvitationByToken(ctx, hashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.Status != domain.InvitationStatusPending || time.Now().After(inv.ExpiresAt) {
		return nil, ErrInvalidInvite
	}

	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Email != inv.Email {
		return nil, ErrInvalidInvite
	}

	now := time.Now()
	if err := s.store.Orgs.AddMembership(ctx, &domain.OrgMembership{
		OrgID: inv.OrgID, UserID: userID, Role: inv.Role, CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := s.store.Orgs.SetInvitationStatus(ctx, inv.ID, domain.InvitationStatusAccepted, &now); err != nil {
		return nil, err
	}
	inv.Status = domain.InvitationStatusAccepted
	inv.UsedAt = &now
	return inv, nil
}

// CreateOrganization registers a new organization with creatorUserID
// as its first (and, at creation, only) admin.
func (s *Service) CreateOrganization(ctx context.Context, name, creatorUserID string) (*domain.Organization, error) {
	now := time.Now()
	org := &domain.Organization{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Orgs.Create(ctx, org); err != nil {
		return nil, err
	}
	if err := s.store.Orgs.AddMembership(ctx, &domain.OrgMembership{
		OrgID: org.ID, UserID: creatorUserID, Role: domain.OrgRoleAdmin, CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	return org, nil
}

// RemoveMember drops userID from orgID, rejecting the removal of the
// organization's last admin.
func (s *Service) RemoveMember(ctx context.Context, orgID, userID string) error {
	m, err := s.store.Orgs.GetMembership(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if m.Role == domain.OrgRoleAdmin {
		admins, err := s.store.Orgs.CountAdmins(ctx, orgID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	return s.store.Orgs.RemoveMembership(ctx, orgID, userID)
}

// LoginWithGoogle finds-or-creates a user identified by a Google-
// verified email and issues a session, bypassing password/email-
// verification checks: Google has already verified the address.
func (s *Service) LoginWithGoogle(ctx context.Context, email, name, userAgent string) (*Session, error) {
	u, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		now := time.Now()
		u = &domain.User{
			ID:            uuid.NewString(),
			Email:         email,
			Name:          name,
			Provider:      domain.IdentityProviderGoogle,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.Users.Create(ctx, u); err != nil {
			return nil, err
		}
	}
	return s.issueSession(ctx, u, nil, userAgent)
}
