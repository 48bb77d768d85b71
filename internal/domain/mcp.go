package domain

import "time"

// TransportType is the wire transport an upstream MCP server speaks.
type TransportType string

const (
	TransportStreamableHTTP TransportType = "streamable_http"
	TransportSSE            TransportType = "sse"
)

// AuthVariantType discriminates MCPServer.AuthConfigs entries.
type AuthVariantType string

const (
	AuthVariantNoAuth AuthVariantType = "no_auth"
	AuthVariantAPIKey AuthVariantType = "api_key"
	AuthVariantOAuth2 AuthVariantType = "oauth2"
)

// APIKeyLocation is where an api_key auth variant injects its secret.
type APIKeyLocation string

const (
	APIKeyLocationHeader APIKeyLocation = "header"
	APIKeyLocationQuery  APIKeyLocation = "query"
)

// APIKeyAuthConfig is the api_key auth-config variant.
type APIKeyAuthConfig struct {
	HeaderName string         `json:"header_name,omitempty"`
	Location   APIKeyLocation `json:"location"`
}

// OAuth2AuthConfig is the oauth2 auth-config variant.
type OAuth2AuthConfig struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret,omitempty"`
	Scopes                []string `json:"scopes,omitempty"`
	AuthorizeURL           string   `json:"authorize_url"`
	AccessTokenURL         string   `json:"access_token_url"`
	RefreshTokenURL        string   `json:"refresh_token_url,omitempty"`
	TokenEndpointAuthMethod string  `json:"token_endpoint_auth_method,omitempty"`
	RegistrationURL        string   `json:"registration_url,omitempty"`
}

// AuthConfigVariant is a tagged union over a server's supported auth
// methods, discriminated by Type. Exactly one of the variant-specific
// pointer fields is non-nil for the matching Type (APIKey nil for
// no_auth/oauth2, etc.).
type AuthConfigVariant struct {
	Type   AuthVariantType    `json:"type"`
	APIKey *APIKeyAuthConfig  `json:"api_key,omitempty"`
	OAuth2 *OAuth2AuthConfig  `json:"oauth2,omitempty"`
}

// MCPServer is a registered remote tool provider.
type MCPServer struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"` // upper snake-case, unique
	URL            string              `json:"url"`
	Transport      TransportType       `json:"transport"`
	Description    string              `json:"description,omitempty"`
	Logo           string              `json:"logo,omitempty"`
	Categories     []string            `json:"categories,omitempty"`
	AuthConfigs    []AuthConfigVariant `json:"auth_configs"`
	OrganizationID *string             `json:"organization_id,omitempty"` // nil => public
	LastSyncedAt   *time.Time          `json:"last_synced_at,omitempty"`
	Embedding      []float32           `json:"-"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// IsPublic reports whether the server is platform-owned (no org).
func (s *MCPServer) IsPublic() bool { return s.OrganizationID == nil }

// HasAuthType reports whether the server declares the given auth
// variant type among its auth_configs.
func (s *MCPServer) HasAuthType(t AuthVariantType) bool {
	for _, v := range s.AuthConfigs {
		if v.Type == t {
			return true
		}
	}
	return false
}

// ToolMetadata carries the canonical identity used to decide whether a
// synced tool needs re-embedding.
type ToolMetadata struct {
	CanonicalToolName               string `json:"canonical_tool_name"`
	CanonicalToolDescriptionHash    string `json:"canonical_tool_description_hash"`
	CanonicalToolInputSchemaHash    string `json:"canonical_tool_input_schema_hash"`
}

// MCPTool is one tool belonging to exactly one MCPServer.
type MCPTool struct {
	ID           string         `json:"id"`
	ServerID     string         `json:"server_id"`
	Name         string         `json:"name"` // {SERVER}__{SANITIZED_CANONICAL}
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema"`
	Metadata     ToolMetadata   `json:"tool_metadata"`
	Embedding    []float32      `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ConnectedAccountOwnership controls who may use a configuration's
// connected account(s).
type ConnectedAccountOwnership string

const (
	OwnershipIndividual  ConnectedAccountOwnership = "individual"
	OwnershipShared      ConnectedAccountOwnership = "shared"
	OwnershipOperational ConnectedAccountOwnership = "operational"
)

// MCPServerConfiguration configures how an org's members reach one
// MCPServer.
type MCPServerConfiguration struct {
	ID                        string                    `json:"id"`
	OrgID                     string                    `json:"organization_id"`
	MCPServerID               string                    `json:"mcp_server_id"`
	Name                      string                    `json:"name"`
	Description               string                    `json:"description,omitempty"`
	AuthType                  AuthVariantType           `json:"auth_type"`
	ConnectedAccountOwnership ConnectedAccountOwnership `json:"connected_account_ownership"`
	AllToolsEnabled           bool                      `json:"all_tools_enabled"`
	EnabledTools              []string                  `json:"enabled_tools"`
	AllowedTeams              []string                  `json:"allowed_teams"`
	CreatedAt                 time.Time                 `json:"created_at"`
	UpdatedAt                 time.Time                 `json:"updated_at"`
}

// Validate checks shape invariants against the configuration's owning
// server. Callers must look the server up first; this only checks
// shape, not cross-entity uniqueness.
func (c *MCPServerConfiguration) Validate(server *MCPServer) error {
	if !server.HasAuthType(c.AuthType) {
		return ErrInvalidAuthTypeForServer
	}
	if c.AllToolsEnabled && len(c.EnabledTools) != 0 {
		return ErrAllToolsEnabledConflict
	}
	if !c.AllToolsEnabled && len(c.EnabledTools) == 0 {
		// Not itself invalid (a configuration may start with zero tools
		// enabled), invariant 2 is an equivalence on the true branch only.
		_ = struct{}{}
	}
	return nil
}

// OAuth2TokenSet is the oauth2 variant of ConnectedAccount credentials.
type OAuth2TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// APIKeySecret is the api_key variant of ConnectedAccount credentials.
type APIKeySecret struct {
	Secret string `json:"secret"`
}

// AuthCredentials is a tagged union over the credential material a
// ConnectedAccount holds, discriminated by Type.
type AuthCredentials struct {
	Type   AuthVariantType `json:"type"`
	APIKey *APIKeySecret   `json:"api_key,omitempty"`
	OAuth2 *OAuth2TokenSet `json:"oauth2,omitempty"`
}

// ConnectedAccount materializes a credential a configuration uses to
// reach its upstream server.
type ConnectedAccount struct {
	ID              string                    `json:"id"`
	UserID          *string                   `json:"user_id,omitempty"` // set only for individual
	ConfigurationID string                    `json:"configuration_id"`
	Credentials     AuthCredentials           `json:"-"`
	Ownership       ConnectedAccountOwnership `json:"ownership"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// MCPServerBundle groups configurations under an opaque capability key.
type MCPServerBundle struct {
	ID              string    `json:"id"`
	OrgID           string    `json:"organization_id"`
	CreatedBy       string    `json:"created_by"`
	BundleKey       string    `json:"bundle_key"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	ConfigurationIDs []string `json:"configuration_ids"` // order-preserving, de-duplicated
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MCPSession is a live gateway session bound to one bundle.
type MCPSession struct {
	ID                  string            `json:"id"`
	BundleID            string            `json:"bundle_id"`
	ExternalMCPSessions map[string]string `json:"external_mcp_sessions"` // mcp_server_id -> upstream session id
	Deleted             bool              `json:"-"`
	LastAccessedAt      time.Time         `json:"last_accessed_at"`
	CreatedAt           time.Time         `json:"created_at"`
}

// SessionIdleTTL is the idle timeout for MCPSession.
const SessionIdleTTL = time.Hour

// Expired reports whether the session has been idle past SessionIdleTTL.
func (s *MCPSession) Expired(now time.Time) bool {
	return s.Deleted || now.Sub(s.LastAccessedAt) > SessionIdleTTL
}

// ToolCallStatus is the outcome of one proxied tool call.
type ToolCallStatus string

const (
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// MCPToolCallLog is one append-only, denormalized audit-log row.
type MCPToolCallLog struct {
	ID               string          `json:"id"`
	OrgID            string          `json:"organization_id"`
	OrgName          string          `json:"organization_name"`
	UserID           string          `json:"user_id"`
	UserEmail        string          `json:"user_email"`
	BundleID         string          `json:"bundle_id"`
	BundleName       string          `json:"bundle_name"`
	MCPServerID      string          `json:"mcp_server_id"`
	MCPServerName    string          `json:"mcp_server_name"`
	MCPToolID        string          `json:"mcp_tool_id"`
	MCPToolName      string          `json:"mcp_tool_name"`
	ConfigurationID  string          `json:"configuration_id"`
	Status           ToolCallStatus  `json:"status"`
	ViaExecuteTool   bool            `json:"via_execute_tool"`
	JSONRPCPayload   string          `json:"jsonrpc_payload"`
	Arguments        string          `json:"arguments"` // free text, not re-serialized
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	DurationMs       int64           `json:"duration_ms"`
}

// ToolCallLogCursor identifies a position in the (started_at DESC, id
// DESC) ordering used by cursor pagination.
type ToolCallLogCursor struct {
	StartedAt time.Time `json:"started_at"`
	ID        string    `json:"id"`
}

// ToolCallLogFilter narrows a cursor-paginated read. UserID, when set,
// restricts to one user's own logs (members see only their own;
// admins see the whole org and leave it empty).
type ToolCallLogFilter struct {
	MCPToolName string
	UserID      string
	StartTime   *time.Time
	EndTime     *time.Time
}
