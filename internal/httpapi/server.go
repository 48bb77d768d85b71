// Package httpapi implements the control-plane HTTP surface: auth,
// organizations, MCP server/configuration/bundle/connected-account
// CRUD, billing, audit-log reads, and the gateway's JSON-RPC endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"mcpgate/internal/apperr"
	"mcpgate/internal/auth"
	"mcpgate/internal/billing"
	"mcpgate/internal/config"
	"mcpgate/internal/credentials"
	"mcpgate/internal/domain"
	"mcpgate/internal/gatewaysvc"
	"mcpgate/internal/mcpsvc/auditlog"
	"mcpgate/internal/mcpsvc/bundle"
	"mcpgate/internal/mcpsvc/catalog"
	"mcpgate/internal/mcpsvc/registry"
	"mcpgate/internal/oauth2client"
	"mcpgate/internal/rbac"
	"mcpgate/internal/storage/postgres"
	"mcpgate/internal/telemetry"
)

// Server wires every control-plane service onto a single mux.
type Server struct {
	cfg        *config.Config
	store      *postgres.Store
	auth       *auth.Service
	registry   *registry.Registry
	bundles    *bundle.Manager
	creds      *credentials.Store
	oauth2     *oauth2client.Manager
	syncer     *catalog.Syncer
	billing    *billing.Service
	auditlog   *auditlog.Logger
	dispatcher *gatewaysvc.Dispatcher
	metrics    *telemetry.Metrics
	logger     telemetry.Logger
	states     *stateSigner
	mux        *http.ServeMux
}

// Deps groups the already-constructed services NewServer wires onto
// routes, matching how cmd/mcpgate/main.go assembles them.
type Deps struct {
	Config     *config.Config
	Store      *postgres.Store
	Auth       *auth.Service
	Registry   *registry.Registry
	Bundles    *bundle.Manager
	Creds      *credentials.Store
	OAuth2     *oauth2client.Manager
	Syncer     *catalog.Syncer
	Billing    *billing.Service
	AuditLog   *auditlog.Logger
	Dispatcher *gatewaysvc.Dispatcher
	Metrics    *telemetry.Metrics
	Logger     telemetry.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:        d.Config,
		store:      d.Store,
		auth:       d.Auth,
		registry:   d.Registry,
		bundles:    d.Bundles,
		creds:      d.Creds,
		oauth2:     d.OAuth2,
		syncer:     d.Syncer,
		billing:    d.Billing,
		auditlog:   d.AuditLog,
		dispatcher: d.Dispatcher,
		metrics:    d.Metrics,
		logger:     d.Logger,
		states:     newStateSigner(d.Config.Security.JWTSecret),
		mux:        http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the top-level HTTP handler, CORS-wrapped.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /auth/register/email", s.handleRegisterEmail)
	s.mux.HandleFunc("POST /auth/login/email", s.handleLoginEmail)
	s.mux.HandleFunc("GET /auth/verify-email", s.handleVerifyEmail)
	s.mux.HandleFunc("POST /auth/token", s.handleRefreshToken)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /auth/google/authorize", s.handleGoogleAuthorize)
	s.mux.HandleFunc("GET /auth/google/callback", s.handleGoogleCallback)

	s.mux.HandleFunc("POST /organizations", s.withPrincipal(s.handleCreateOrganization))
	s.mux.HandleFunc("POST /organizations/{id}/invitations", s.withPrincipal(s.handleCreateInvitation))
	s.mux.HandleFunc("POST /organizations/invitations/accept", s.withPrincipal(s.handleAcceptInvitation))
	s.mux.HandleFunc("DELETE /organizations/{id}/members/{user_id}", s.withPrincipal(s.handleRemoveMember))

	s.mux.HandleFunc("POST /mcp-servers", s.withPrincipal(s.handleCreateMCPServer))
	s.mux.HandleFunc("GET /mcp-servers", s.withPrincipal(s.handleListMCPServers))
	s.mux.HandleFunc("GET /mcp-servers/{id}", s.withPrincipal(s.handleGetMCPServer))
	s.mux.HandleFunc("PATCH /mcp-servers/{id}", s.withPrincipal(s.handleUpdateMCPServer))
	s.mux.HandleFunc("DELETE /mcp-servers/{id}", s.withPrincipal(s.handleDeleteMCPServer))
	s.mux.HandleFunc("POST /mcp-servers/{id}/refresh-tools", s.withPrincipal(s.handleRefreshTools))
	s.mux.HandleFunc("POST /mcp-servers/oauth2-discovery", s.withPrincipal(s.handleOAuth2Discovery))

	s.mux.HandleFunc("POST /mcp-server-configurations", s.withPrincipal(s.handleCreateConfiguration))
	s.mux.HandleFunc("GET /mcp-server-configurations", s.withPrincipal(s.handleListConfigurations))
	s.mux.HandleFunc("GET /mcp-server-configurations/{id}", s.withPrincipal(s.handleGetConfiguration))
	s.mux.HandleFunc("PATCH /mcp-server-configurations/{id}", s.withPrincipal(s.handleUpdateConfiguration))
	s.mux.HandleFunc("DELETE /mcp-server-configurations/{id}", s.withPrincipal(s.handleDeleteConfiguration))

	s.mux.HandleFunc("POST /mcp-server-bundles", s.withPrincipal(s.handleCreateBundle))
	s.mux.HandleFunc("GET /mcp-server-bundles", s.withPrincipal(s.handleListBundles))
	s.mux.HandleFunc("POST /mcp-server-bundles/{id}/configurations", s.withPrincipal(s.handleAddBundleConfiguration))
	s.mux.HandleFunc("DELETE /mcp-server-bundles/{id}/configurations/{configuration_id}", s.withPrincipal(s.handleRemoveBundleConfiguration))

	s.mux.HandleFunc("POST /connected-accounts", s.withPrincipal(s.handleCreateConnectedAccount))
	s.mux.HandleFunc("DELETE /connected-accounts/{id}", s.withPrincipal(s.handleDeleteConnectedAccount))
	s.mux.HandleFunc("GET /connected-accounts/oauth2/authorize", s.withPrincipal(s.handleConnectedAccountAuthorize))
	s.mux.HandleFunc("GET /connected-accounts/oauth2/callback", s.handleConnectedAccountCallback)

	s.mux.HandleFunc("POST /ops-accounts", s.withPrincipal(s.handleCreateOpsAccount))
	s.mux.HandleFunc("GET /ops-accounts/oauth2/authorize", s.withPrincipal(s.handleOpsAccountAuthorize))
	s.mux.HandleFunc("GET /ops-accounts/oauth2/callback", s.handleOpsAccountCallback)

	s.mux.HandleFunc("GET /logs/tool-calls", s.withPrincipal(s.handleListToolCallLogs))

	s.mux.HandleFunc("GET /organizations/{id}/subscription-status", s.withPrincipal(s.handleSubscriptionStatus))
	s.mux.HandleFunc("POST /organizations/{id}/change-subscription", s.withPrincipal(s.handleChangeSubscription))
	s.mux.HandleFunc("POST /organizations/{id}/cancel-subscription", s.withPrincipal(s.handleCancelSubscription))
	s.mux.HandleFunc("POST /subscription/stripe/webhook", s.handleStripeWebhook)

	if s.dispatcher != nil {
		s.mux.HandleFunc("POST /mcp/{bundle_key}", s.dispatcher.ServeHTTP)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", telemetry.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type principalContextKey struct{}

// withPrincipal resolves the bearer JWT into a domain.Principal and
// stores it on the request context before calling next. A missing or
// invalid token is always rejected here; callers that need optional
// auth don't exist in this API.
func (s *Server) withPrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			s.writeError(w, apperr.Unauthorized("missing bearer token"))
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := s.auth.VerifyAccessToken(tokenStr)
		if err != nil {
			s.writeError(w, apperr.Unauthorized("invalid or expired access token"))
			return
		}

		p := &domain.Principal{UserID: claims.UserID, Email: claims.Email, Name: claims.Name, ActAs: claims.ActAs}
		ctx := context.WithValue(r.Context(), principalContextKey{}, p)
		next(w, r.WithContext(ctx))
	}
}

func principalFrom(r *http.Request) *domain.Principal {
	p, _ := r.Context().Value(principalContextKey{}).(*domain.Principal)
	return p
}

// requireOrgActor resolves the current principal's org-scoped rbac
// Actor, rejecting requests that aren't currently acting as orgID.
// act_as is always taken from the verified JWT claims (strict mode),
// never from the URL or body.
func (s *Server) requireOrgActor(r *http.Request, orgID string) (*domain.Principal, rbac.Actor, *apperr.Error) {
	p := principalFrom(r)
	if p == nil || p.ActAs == nil {
		return nil, rbac.Actor{}, apperr.Forbidden("request requires an organization-scoped session")
	}
	if p.ActAs.OrganizationID != orgID {
		return nil, rbac.Actor{}, apperr.Forbidden("not acting as the requested organization")
	}
	teamIDs, err := s.store.Orgs.TeamIDsForUser(r.Context(), orgID, p.UserID)
	if err != nil {
		return nil, rbac.Actor{}, apperr.Internal(err)
	}
	actor := rbac.Actor{UserID: p.UserID, OrgID: orgID, Role: p.ActAs.Role, MemberTeamIDs: teamIDs}
	return p, actor, nil
}

func (s *Server) allow(actor rbac.Actor, action domain.Action, resource domain.Resource) bool {
	return rbac.Allow(rbac.DefaultPolicies, actor, action, resource)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the wire shape for error bodies, built from
// apperr's Code/Title/Detail taxonomy.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	appErr := apperr.As(err)
	if appErr == nil {
		appErr = apperr.Internal(err)
	}
	if appErr.Code == apperr.CodeInternal && s.logger != nil {
		s.logger.Error("httpapi: internal error", "error", appErr.Error())
	}
	s.writeJSON(w, appErr.HTTPStatus, errorResponse{Error: errorBody{
		Code:    string(appErr.Code),
		Message: appErr.Title,
	}})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid JSON body").WithDetail(err.Error())
	}
	return nil
}
