package httpapi

import (
	"net/http"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/oauth2client"
)

// configurationAndServer loads a configuration scoped to orgID along
// with the MCPServer it targets, the pair every connected/ops-account
// handler needs before it can touch oauth2client.
func (s *Server) configurationAndServer(r *http.Request, orgID, configurationID string) (*domain.MCPServerConfiguration, *domain.MCPServer, *apperr.Error) {
	cfg, err := s.store.Configs.GetByID(r.Context(), configurationID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if cfg == nil || cfg.OrgID != orgID {
		return nil, nil, apperr.NotFound("configuration not found")
	}
	srv, err := s.store.Servers.GetByID(r.Context(), cfg.MCPServerID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if srv == nil {
		return nil, nil, apperr.NotFound("mcp server not found")
	}
	return cfg, srv, nil
}

type createConnectedAccountRequest struct {
	ConfigurationID string `json:"configuration_id"`
	APIKey          string `json:"api_key,omitempty"`
}

// handleCreateConnectedAccount handles the api_key variant directly;
// oauth2 configurations must go through the authorize/callback pair
// since they need a browser redirect to the upstream authorization
// server.
func (s *Server) handleCreateConnectedAccount(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(p))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}

	var req createConnectedAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	cfg, _, appErr := s.configurationAndServer(r, actor.OrgID, req.ConfigurationID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if cfg.AuthType != domain.AuthVariantAPIKey {
		s.writeError(w, apperr.Validation("configuration does not use api_key auth; use the oauth2 authorize endpoint"))
		return
	}
	if req.APIKey == "" {
		s.writeError(w, apperr.Validation("api_key is required"))
		return
	}

	ownership, userID := s.ownershipFor(cfg, actor.UserID)
	acc, err := s.creds.Create(r.Context(), userID, cfg.ID, ownership, domain.AuthCredentials{
		Type:   domain.AuthVariantAPIKey,
		APIKey: &domain.APIKeySecret{Secret: req.APIKey},
	})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, acc)
}

// ownershipFor decides whether a newly created connected account is
// individual (bound to the calling user) or shared, per the
// configuration's connected_account_ownership setting.
func (s *Server) ownershipFor(cfg *domain.MCPServerConfiguration, userID string) (domain.ConnectedAccountOwnership, *string) {
	if cfg.ConnectedAccountOwnership == domain.OwnershipIndividual {
		u := userID
		return domain.OwnershipIndividual, &u
	}
	return domain.OwnershipShared, nil
}

func (s *Server) handleDeleteConnectedAccount(w http.ResponseWriter, r *http.Request) {
	_, _, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if err := s.creds.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectedAccountAuthorize(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(p))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}

	configurationID := r.URL.Query().Get("configuration_id")
	cfg, srv, appErr := s.configurationAndServer(r, actor.OrgID, configurationID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if cfg.AuthType != domain.AuthVariantOAuth2 {
		s.writeError(w, apperr.Validation("configuration does not use oauth2 auth"))
		return
	}

	endpoint, err := s.oauth2.EndpointFor(r.Context(), srv)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "oauth2 endpoint resolution failed", err))
		return
	}
	pkce, err := oauth2client.NewPKCE()
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	state, err := s.states.sign(oauthStateClaims{
		Flow: flowConnectedAccount, UserID: actor.UserID, OrgID: actor.OrgID,
		ConfigurationID: configurationID, PKCEVerifier: pkce.Verifier,
	})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	http.Redirect(w, r, endpoint.AuthCodeURL(state, pkce), http.StatusFound)
}

func (s *Server) handleConnectedAccountCallback(w http.ResponseWriter, r *http.Request) {
	s.handleOAuth2Callback(w, r, flowConnectedAccount)
}

type createOpsAccountRequest struct {
	ConfigurationID string `json:"configuration_id"`
}

func (s *Server) handleCreateOpsAccount(w http.ResponseWriter, r *http.Request) {
	// Operational accounts only exist for oauth2 configurations; an
	// api_key configuration's operational credentials are supplied
	// directly as a shared connected account instead.
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	var req createOpsAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	cfg, _, appErr := s.configurationAndServer(r, actor.OrgID, req.ConfigurationID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if cfg.AuthType != domain.AuthVariantOAuth2 {
		s.writeError(w, apperr.Validation("ops accounts are only needed for oauth2 configurations"))
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"next": "GET /ops-accounts/oauth2/authorize?configuration_id=" + cfg.ID,
	})
}

func (s *Server) handleOpsAccountAuthorize(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}

	configurationID := r.URL.Query().Get("configuration_id")
	_, srv, appErr := s.configurationAndServer(r, actor.OrgID, configurationID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}

	endpoint, err := s.oauth2.EndpointFor(r.Context(), srv)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "oauth2 endpoint resolution failed", err))
		return
	}
	pkce, err := oauth2client.NewPKCE()
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	state, err := s.states.sign(oauthStateClaims{
		Flow: flowOpsAccount, OrgID: actor.OrgID, ConfigurationID: configurationID, PKCEVerifier: pkce.Verifier,
	})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	http.Redirect(w, r, endpoint.AuthCodeURL(state, pkce), http.StatusFound)
}

func (s *Server) handleOpsAccountCallback(w http.ResponseWriter, r *http.Request) {
	s.handleOAuth2Callback(w, r, flowOpsAccount)
}

// handleOAuth2Callback is shared between connected-account and
// ops-account redirects: both exchange a code for a token set and
// persist it as a ConnectedAccount, differing only in ownership.
func (s *Server) handleOAuth2Callback(w http.ResponseWriter, r *http.Request, flow oauthFlow) {
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")
	if code == "" || stateParam == "" {
		s.writeError(w, apperr.Validation("missing code or state"))
		return
	}
	claims, err := s.states.verify(stateParam, flow)
	if err != nil {
		s.writeError(w, apperr.Unauthorized("invalid oauth state"))
		return
	}

	cfg, srv, appErr := s.configurationAndServer(r, claims.OrgID, claims.ConfigurationID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	endpoint, err := s.oauth2.EndpointFor(r.Context(), srv)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "oauth2 endpoint resolution failed", err))
		return
	}
	tokenSet, err := endpoint.Exchange(r.Context(), code, &oauth2client.PKCE{Verifier: claims.PKCEVerifier})
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "oauth2 code exchange failed", err))
		return
	}

	var ownership domain.ConnectedAccountOwnership
	var userID *string
	if flow == flowOpsAccount {
		ownership = domain.OwnershipOperational
	} else {
		ownership, userID = s.ownershipFor(cfg, claims.UserID)
	}

	acc, err := s.creds.Create(r.Context(), userID, cfg.ID, ownership, domain.AuthCredentials{
		Type:   domain.AuthVariantOAuth2,
		OAuth2: &tokenSet,
	})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, acc)
}
