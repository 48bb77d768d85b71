package httpapi

import (
	"errors"
	"net/http"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/mcpsvc/catalog"
	"mcpgate/internal/mcpsvc/registry"
)

type createMCPServerRequest struct {
	Name        string                     `json:"name"`
	URL         string                     `json:"url"`
	Transport   domain.TransportType       `json:"transport"`
	Description string                     `json:"description,omitempty"`
	Logo        string                     `json:"logo,omitempty"`
	Categories  []string                   `json:"categories,omitempty"`
	AuthConfigs []domain.AuthConfigVariant `json:"auth_configs"`
	Public      bool                       `json:"public,omitempty"`
}

func (s *Server) handleCreateMCPServer(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	var req createMCPServerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	in := s.toNewServerInput(req)

	var srv *domain.MCPServer
	var err error
	if req.Public {
		// Platform-owned servers are normally seeded out of band;
		// requiring an org-scoped actor here at minimum keeps it from
		// being anonymous.
		_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(p))
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		if actor.Role != domain.OrgRoleAdmin {
			s.writeError(w, apperr.Forbidden("only an organization admin may register servers"))
			return
		}
		srv, err = s.registry.CreatePublic(r.Context(), in)
	} else {
		_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(p))
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceMCPServer, OrgID: actor.OrgID}) {
			s.writeError(w, apperr.Forbidden("not authorized to register servers"))
			return
		}
		srv, err = s.registry.CreateCustom(r.Context(), actor.OrgID, in)
	}
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, srv)
}

func (s *Server) toNewServerInput(req createMCPServerRequest) registry.NewServerInput {
	return registry.NewServerInput{
		Name:        req.Name,
		URL:         req.URL,
		Transport:   req.Transport,
		Description: req.Description,
		Logo:        req.Logo,
		Categories:  req.Categories,
		AuthConfigs: req.AuthConfigs,
	}
}

func orgIDOrEmpty(p *domain.Principal) string {
	if p == nil || p.ActAs == nil {
		return ""
	}
	return p.ActAs.OrganizationID
}

func (s *Server) handleListMCPServers(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	servers, err := s.registry.List(r.Context(), orgIDOrEmpty(p))
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleGetMCPServer(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	srv, err := s.registry.Get(r.Context(), r.PathValue("id"), orgIDOrEmpty(p))
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	if srv == nil {
		s.writeError(w, apperr.NotFound("mcp server not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, srv)
}

type updateMCPServerRequest struct {
	Description *string  `json:"description,omitempty"`
	Logo        *string  `json:"logo,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

func (s *Server) handleUpdateMCPServer(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceMCPServer, OrgID: actor.OrgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to update this server"))
		return
	}

	var req updateMCPServerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	srv, err := s.registry.UpdateMetadata(r.Context(), r.PathValue("id"), actor.OrgID, registry.UpdateMetadataInput{
		Description: req.Description,
		Logo:        req.Logo,
		Categories:  req.Categories,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, srv)
}

func (s *Server) handleDeleteMCPServer(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceMCPServer, OrgID: actor.OrgID}) {
		s.writeError(w, apperr.Forbidden("not authorized to delete this server"))
		return
	}
	if err := s.registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshTools(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.Sync(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrTooSoon) {
			s.writeError(w, apperr.New(apperr.CodeRateLimited, "tool catalog was synced too recently"))
			return
		}
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "tool catalog sync failed", err))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type oauth2DiscoveryRequest struct {
	ServerURL string `json:"server_url"`
}

func (s *Server) handleOAuth2Discovery(w http.ResponseWriter, r *http.Request) {
	var req oauth2DiscoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	meta, err := s.oauth2.DiscoverServerAuth(r.Context(), req.ServerURL)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.CodeUpstreamError, "oauth2 discovery failed", err))
		return
	}
	s.writeJSON(w, http.StatusOK, meta)
}
