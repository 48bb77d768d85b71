package httpapi

import (
	"errors"
	"net/http"

	"mcpgate/internal/apperr"
	"mcpgate/internal/auth"
	"mcpgate/internal/domain"
	"mcpgate/internal/mcpsvc/reaper"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, EmailVerified: u.EmailVerified}
}

func (s *Server) handleRegisterEmail(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	u, verifyToken, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailInUse) {
			s.writeError(w, apperr.Conflict("email already registered"))
			return
		}
		s.writeError(w, apperr.Internal(err))
		return
	}

	// The teacher's deployment mails verification links out of band;
	// this API returns the raw token directly since no mail transport
	// is wired in yet.
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"user":                   toUserResponse(u),
		"email_verification_token": verifyToken,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, apperr.Validation("missing token query parameter"))
		return
	}
	if err := s.auth.VerifyEmail(r.Context(), token); err != nil {
		if errors.Is(err, auth.ErrInvalidVerify) {
			s.writeError(w, apperr.Validation("invalid or expired verification token"))
			return
		}
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ActAsOrgID string `json:"act_as_organization_id,omitempty"`
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	ExpiresAt    string       `json:"access_token_expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func toSessionResponse(sess *auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  sess.AccessToken,
		ExpiresAt:    sess.AccessExpiresAt.Format(timeLayout),
		RefreshToken: sess.RefreshToken,
		User:         toUserResponse(sess.User),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func (s *Server) handleLoginEmail(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password, r.Header.Get("User-Agent"), req.ActAsOrgID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) || errors.Is(err, auth.ErrUnverifiedEmail) {
			s.writeError(w, apperr.Unauthorized("invalid email or password"))
			return
		}
		if appErr := apperr.As(err); appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

type refreshRequest struct {
	RefreshToken string         `json:"refresh_token"`
	ActAs        *domain.ActAs  `json:"act_as,omitempty"`
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	sess, err := s.auth.RefreshAccessToken(r.Context(), req.RefreshToken, r.Header.Get("User-Agent"), req.ActAs)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefresh) {
			s.writeError(w, apperr.Unauthorized("invalid or expired refresh token"))
			return
		}
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createOrganizationRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	org, err := s.auth.CreateOrganization(r.Context(), req.Name, p.UserID)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, org)
}

type createInvitationRequest struct {
	Email string        `json:"email"`
	Role  domain.OrgRole `json:"role"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	_, actor, appErr := s.requireOrgActor(r, orgID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceOrganization, OrgID: orgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to invite members"))
		return
	}

	var req createInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	inv, token, err := s.auth.CreateInvitation(r.Context(), orgID, req.Email, req.Role, actor.UserID)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"invitation": inv, "token": token})
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	var req acceptInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	inv, err := s.auth.AcceptInvitation(r.Context(), req.Token, p.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInvite) {
			s.writeError(w, apperr.Validation("invalid, expired, or already-used invitation"))
			return
		}
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	targetUserID := r.PathValue("user_id")
	_, actor, appErr := s.requireOrgActor(r, orgID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceOrganization, OrgID: orgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to remove members"))
		return
	}
	if err := s.auth.RemoveMember(r.Context(), orgID, targetUserID); err != nil {
		if errors.Is(err, auth.ErrLastAdmin) {
			s.writeError(w, apperr.Validation("cannot remove the organization's last admin"))
			return
		}
		s.writeError(w, apperr.Internal(err))
		return
	}

	// A removed member's individual connected accounts and team-scoped
	// bundles outlive the membership unless reaped.
	db := s.store.DB().GetDB()
	tx, err := db.BeginTx(r.Context(), nil)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	if _, err := reaper.OnUserRemovedFromTeam(r.Context(), tx, targetUserID, orgID); err != nil {
		tx.Rollback()
		s.writeError(w, apperr.Internal(err))
		return
	}
	if err := tx.Commit(); err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
