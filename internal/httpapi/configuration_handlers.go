package httpapi

import (
	"net/http"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/mcpsvc/bundle"
	"mcpgate/internal/mcpsvc/reaper"
	"mcpgate/internal/rbac"
)

type createConfigurationRequest struct {
	MCPServerID               string                          `json:"mcp_server_id"`
	Name                      string                          `json:"name"`
	Description               string                          `json:"description,omitempty"`
	AuthType                  domain.AuthVariantType           `json:"auth_type"`
	ConnectedAccountOwnership domain.ConnectedAccountOwnership `json:"connected_account_ownership"`
	AllToolsEnabled           bool                              `json:"all_tools_enabled"`
	EnabledTools              []string                          `json:"enabled_tools,omitempty"`
	AllowedTeams              []string                          `json:"allowed_teams,omitempty"`
}

func (s *Server) handleCreateConfiguration(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceConfiguration, OrgID: actor.OrgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to create configurations"))
		return
	}

	var req createConfigurationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	cfg, err := s.bundles.CreateConfiguration(r.Context(), actor.OrgID, bundle.NewConfigurationInput{
		MCPServerID:               req.MCPServerID,
		Name:                      req.Name,
		Description:               req.Description,
		AuthType:                  req.AuthType,
		ConnectedAccountOwnership: req.ConnectedAccountOwnership,
		AllToolsEnabled:           req.AllToolsEnabled,
		EnabledTools:              req.EnabledTools,
		AllowedTeams:              req.AllowedTeams,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	cfgs, err := s.store.Configs.ListByOrg(r.Context(), actor.OrgID)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}

	// Members only see configurations their teams can reach; admins see
	// the whole org.
	if actor.Role == domain.OrgRoleAdmin {
		s.writeJSON(w, http.StatusOK, cfgs)
		return
	}
	visible := make([]*domain.MCPServerConfiguration, 0, len(cfgs))
	for _, cfg := range cfgs {
		resource := domain.Resource{Type: domain.ResourceConfiguration, OrgID: cfg.OrgID, AllowedTeamIDs: cfg.AllowedTeams}
		if s.allow(actor, "read", resource) {
			visible = append(visible, cfg)
		}
	}
	s.writeJSON(w, http.StatusOK, visible)
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	cfg, err := s.store.Configs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	if cfg == nil || cfg.OrgID != actor.OrgID {
		s.writeError(w, apperr.NotFound("configuration not found"))
		return
	}
	resource := domain.Resource{Type: domain.ResourceConfiguration, OrgID: cfg.OrgID, AllowedTeamIDs: cfg.AllowedTeams}
	if !s.allow(actor, "read", resource) {
		s.writeError(w, apperr.Forbidden("not authorized to view this configuration"))
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

type updateConfigurationRequest struct {
	AllowedTeams []string `json:"allowed_teams"`
}

// handleUpdateConfiguration implements allowed_teams updates only:
// every other field stays immutable after creation, and this one
// routes through the reaper since narrowing team access can orphan
// connected accounts and bundle memberships.
func (s *Server) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceConfiguration, OrgID: actor.OrgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to update configurations"))
		return
	}

	var req updateConfigurationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	cfg, err := s.bundles.UpdateAllowedTeams(r.Context(), actor.OrgID, r.PathValue("id"), req.AllowedTeams)
	if err != nil {
		s.writeError(w, err)
		return
	}

	db := s.store.DB().GetDB()
	tx, err := db.BeginTx(r.Context(), nil)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	result, err := reaper.OnConfigurationAllowedTeamsUpdated(r.Context(), tx, cfg)
	if err != nil {
		tx.Rollback()
		s.writeError(w, apperr.Internal(err))
		return
	}
	if err := tx.Commit(); err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"configuration": cfg, "reaped": result})
}

func (s *Server) handleDeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceConfiguration, OrgID: actor.OrgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to delete configurations"))
		return
	}

	configurationID := r.PathValue("id")

	db := s.store.DB().GetDB()
	tx, err := db.BeginTx(r.Context(), nil)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	result, err := reaper.OnConfigurationDeleted(r.Context(), tx, actor.OrgID, configurationID)
	if err != nil {
		tx.Rollback()
		s.writeError(w, apperr.Internal(err))
		return
	}
	if err := s.store.Configs.Delete(r.Context(), configurationID); err != nil {
		tx.Rollback()
		s.writeError(w, apperr.Internal(err))
		return
	}
	if err := tx.Commit(); err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"reaped": result})
}

type createBundleRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	ConfigurationIDs []string `json:"configuration_ids,omitempty"`
}

func (s *Server) handleCreateBundle(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(p))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceBundle, OrgID: actor.OrgID, OwnerUserID: actor.UserID}) {
		s.writeError(w, apperr.Forbidden("not authorized to create bundles"))
		return
	}

	var req createBundleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	b, err := s.bundles.CreateBundle(r.Context(), actor.OrgID, actor.UserID, bundle.NewBundleInput{
		Name:             req.Name,
		Description:      req.Description,
		ConfigurationIDs: req.ConfigurationIDs,
	})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleListBundles(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	bundles, err := s.store.Bundles.ListByOrg(r.Context(), actor.OrgID)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	if actor.Role == domain.OrgRoleAdmin {
		s.writeJSON(w, http.StatusOK, bundles)
		return
	}
	visible := make([]*domain.MCPServerBundle, 0, len(bundles))
	for _, b := range bundles {
		if b.CreatedBy == actor.UserID {
			visible = append(visible, b)
		}
	}
	s.writeJSON(w, http.StatusOK, visible)
}

func (s *Server) bundleOwnedByActor(r *http.Request, actor, bundleID string) (bool, error) {
	b, err := s.store.Bundles.GetByID(r.Context(), bundleID)
	if err != nil {
		return false, err
	}
	return b != nil && b.CreatedBy == actor, nil
}

func (s *Server) handleAddBundleConfiguration(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	bundleID := r.PathValue("id")
	if !s.canManageBundle(r, actor, bundleID) {
		s.writeError(w, apperr.Forbidden("not authorized to modify this bundle"))
		return
	}

	var req struct {
		ConfigurationID string `json:"configuration_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.bundles.AddConfiguration(r.Context(), bundleID, req.ConfigurationID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveBundleConfiguration(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	bundleID := r.PathValue("id")
	if !s.canManageBundle(r, actor, bundleID) {
		s.writeError(w, apperr.Forbidden("not authorized to modify this bundle"))
		return
	}
	if err := s.bundles.RemoveConfiguration(r.Context(), bundleID, r.PathValue("configuration_id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) canManageBundle(r *http.Request, actor rbac.Actor, bundleID string) bool {
	if actor.Role == domain.OrgRoleAdmin {
		return true
	}
	owned, err := s.bundleOwnedByActor(r, actor.UserID, bundleID)
	return err == nil && owned
}
