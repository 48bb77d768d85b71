package gatewaysvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/mcpclient"
	"mcpgate/internal/telemetry"
)

const (
	toolSearchTool  = "SEARCH_TOOLS"
	toolExecuteTool = "EXECUTE_TOOL"
)

// listMetaTools returns the two static meta-tool schemas exposed by
// every bundle.
func listMetaTools() map[string]any {
	return map[string]any{
		"tools": []map[string]any{
			{
				"name":        toolSearchTool,
				"description": "Search the tools reachable through this bundle by natural-language intent.",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"intent":         map[string]any{"type": "string"},
						"mcp_server_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"limit":          map[string]any{"type": "integer"},
						"offset":         map[string]any{"type": "integer"},
					},
				},
			},
			{
				"name":        toolExecuteTool,
				"description": "Invoke one tool reachable through this bundle by its platform name.",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tool_name": map[string]any{"type": "string"},
						"arguments": map[string]any{"type": "object"},
					},
					"required": []string{"tool_name", "arguments"},
				},
			},
		},
	}
}

type searchToolsParams struct {
	Intent       string   `json:"intent"`
	MCPServerIDs []string `json:"mcp_server_ids"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
}

type executeToolParams struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// handleToolsCall routes a tools/call JSON-RPC request (already bound
// to a live session) to the named meta-tool.
func (d *Dispatcher) handleToolsCall(ctx context.Context, bundle *domain.MCPServerBundle, sess *domain.MCPSession, raw json.RawMessage, log telemetry.Logger) (any, *rpcError) {
	var envelope struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "invalid params"}
	}

	switch envelope.Name {
	case toolSearchTool:
		var p searchToolsParams
		if len(envelope.Arguments) > 0 {
			if err := json.Unmarshal(envelope.Arguments, &p); err != nil {
				return nil, &rpcError{Code: rpcInvalidParams, Message: "invalid params"}
			}
		}
		result, err := d.searchTools(ctx, bundle, p)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil
	case toolExecuteTool:
		var p executeToolParams
		if err := json.Unmarshal(envelope.Arguments, &p); err != nil {
			return nil, &rpcError{Code: rpcInvalidParams, Message: "invalid params"}
		}
		result, err := d.executeTool(ctx, bundle, sess, p, log)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil
	default:
		return nil, &rpcError{Code: rpcInvalidParams, Message: "unknown tool: " + envelope.Name}
	}
}

// accessibleConfigurations returns the configurations a bundle
// currently references. The bundle's configuration_ids list is the
// ground truth for "accessible" — the reaper (C8) is what keeps it
// pruned to configurations the bundle owner can still reach.
func (d *Dispatcher) accessibleConfigurations(ctx context.Context, bundle *domain.MCPServerBundle) ([]*domain.MCPServerConfiguration, error) {
	configs := make([]*domain.MCPServerConfiguration, 0, len(bundle.ConfigurationIDs))
	for _, id := range bundle.ConfigurationIDs {
		cfg, err := d.store.Configs.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("gatewaysvc: load configuration %s: %w", id, err)
		}
		if cfg != nil {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// searchTools implements SEARCH_TOOLS.
func (d *Dispatcher) searchTools(ctx context.Context, bundle *domain.MCPServerBundle, p searchToolsParams) (any, error) {
	configs, err := d.accessibleConfigurations(ctx, bundle)
	if err != nil {
		return nil, err
	}

	serverFilter := make(map[string]bool, len(p.MCPServerIDs))
	for _, id := range p.MCPServerIDs {
		serverFilter[id] = true
	}

	seen := make(map[string]bool)
	var candidates []*domain.MCPTool
	for _, cfg := range configs {
		if len(serverFilter) > 0 && !serverFilter[cfg.MCPServerID] {
			continue
		}
		names, err := d.enabledToolNames(ctx, cfg)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if name == toolSearchTool || name == toolExecuteTool || seen[name] {
				continue
			}
			seen[name] = true
			tool, err := d.store.Tools.GetByName(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("gatewaysvc: load tool %s: %w", name, err)
			}
			if tool != nil {
				candidates = append(candidates, tool)
			}
		}
	}

	ranked, err := d.ranker.Rank(ctx, candidates, p.Intent, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		mode := "alphabetical"
		switch {
		case p.Intent != "" && d.embedder != nil:
			mode = "embedding"
		case p.Intent != "":
			mode = "fuzzy"
		}
		d.metrics.RecordSearchTools(mode)
	}

	out := make([]map[string]any, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	return map[string]any{"tools": out}, nil
}

// enabledToolNames resolves a configuration's enabled_tools: either
// its explicit set, or (when all_tools_enabled) every tool currently
// catalogued for its server.
func (d *Dispatcher) enabledToolNames(ctx context.Context, cfg *domain.MCPServerConfiguration) ([]string, error) {
	if !cfg.AllToolsEnabled {
		return cfg.EnabledTools, nil
	}
	tools, err := d.store.Tools.ListByServer(ctx, cfg.MCPServerID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names, nil
}

// executeTool implements EXECUTE_TOOL.
func (d *Dispatcher) executeTool(ctx context.Context, bundle *domain.MCPServerBundle, sess *domain.MCPSession, p executeToolParams, log telemetry.Logger) (result any, err error) {
	started := time.Now()
	argsJSON, _ := json.Marshal(p.Arguments)

	entry := &domain.MCPToolCallLog{
		ID:             uuid.NewString(),
		OrgID:          bundle.OrgID,
		BundleID:       bundle.ID,
		BundleName:     bundle.Name,
		UserID:         bundle.CreatedBy,
		MCPToolName:    p.ToolName,
		ViaExecuteTool: true,
		Arguments:      string(argsJSON),
		StartedAt:      started,
	}
	defer func() {
		entry.EndedAt = time.Now()
		entry.DurationMs = entry.EndedAt.Sub(started).Milliseconds()
		if err != nil {
			entry.Status = domain.ToolCallError
		} else {
			entry.Status = domain.ToolCallSuccess
		}
		d.enrichLogIdentity(ctx, entry)
		d.auditlog.Record(ctx, entry)
	}()

	tool, cfg, err := d.resolveExecutableTool(ctx, bundle, p.ToolName)
	if err != nil {
		return nil, err
	}
	entry.MCPToolID = tool.ID
	entry.MCPServerID = tool.ServerID
	entry.ConfigurationID = cfg.ID

	server, err := d.store.Servers.GetByID(ctx, tool.ServerID)
	if err != nil {
		return nil, fmt.Errorf("gatewaysvc: load server %s: %w", tool.ServerID, err)
	}
	if server == nil {
		return nil, apperr.NotFound("mcp server not found")
	}
	entry.MCPServerName = server.Name

	canonical := canonicalToolName(server.Name, tool.Name)

	entry.JSONRPCPayload = mustMarshal(map[string]any{
		"method": "tools/call",
		"params": map[string]any{"name": canonical, "arguments": p.Arguments},
	})

	callResult, err := d.callUpstream(ctx, server, cfg, bundle, sess, canonical, p.Arguments, log)
	if err != nil {
		var statusErr *mcpclient.HTTPStatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == 401 || statusErr.StatusCode == 403) {
			callResult, err = d.retryAfterRefresh(ctx, server, cfg, bundle, sess, canonical, p.Arguments, log)
		}
	}
	if err != nil {
		var rpcErr *mcpclient.RPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		if d.metrics != nil {
			d.metrics.RecordToolCallError(server.Name, "upstream_unavailable")
		}
		return nil, apperr.Wrap(apperr.CodeUpstreamError, "upstream_unavailable", err)
	}

	if d.metrics != nil {
		d.metrics.RecordToolCall(server.Name, tool.Name, "success", time.Since(started))
	}
	return map[string]any{
		"content": callResult.Content,
		"isError": callResult.IsError,
	}, nil
}

// resolveExecutableTool finds tool_name among the configurations the
// bundle exposes, the first step of EXECUTE_TOOL resolution.
func (d *Dispatcher) resolveExecutableTool(ctx context.Context, bundle *domain.MCPServerBundle, toolName string) (*domain.MCPTool, *domain.MCPServerConfiguration, error) {
	tool, err := d.store.Tools.GetByName(ctx, toolName)
	if err != nil {
		return nil, nil, fmt.Errorf("gatewaysvc: load tool %s: %w", toolName, err)
	}
	if tool == nil {
		return nil, nil, apperr.NotFound("tool_not_found_or_forbidden")
	}

	configs, err := d.accessibleConfigurations(ctx, bundle)
	if err != nil {
		return nil, nil, err
	}
	for _, cfg := range configs {
		if cfg.MCPServerID != tool.ServerID {
			continue
		}
		names, err := d.enabledToolNames(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range names {
			if n == tool.Name {
				return tool, cfg, nil
			}
		}
	}
	return nil, nil, apperr.NotFound("tool_not_found_or_forbidden")
}

// callUpstream resolves credentials, opens or reuses the upstream MCP
// session, and forwards tools/call.
func (d *Dispatcher) callUpstream(ctx context.Context, server *domain.MCPServer, cfg *domain.MCPServerConfiguration, bundle *domain.MCPServerBundle, sess *domain.MCPSession, canonicalToolName string, arguments map[string]any, log telemetry.Logger) (*mcpclient.CallToolResult, error) {
	_, injector, err := d.resolveCredentials(ctx, server, cfg, bundle.CreatedBy)
	if err != nil {
		return nil, err
	}

	client := mcpclient.New(server.URL, injector)

	upstreamSessionID, ok := d.sessions.upstreamSessionID(sess, server.ID)
	if !ok {
		_, newSessionID, err := client.Initialize(ctx, mcpclient.ClientInfo{Name: "mcpgate", Version: protocolVersion})
		if err != nil {
			return nil, fmt.Errorf("gatewaysvc: upstream initialize: %w", err)
		}
		if err := client.NotifyInitialized(ctx, newSessionID); err != nil {
			return nil, fmt.Errorf("gatewaysvc: upstream notify initialized: %w", err)
		}
		if err := d.sessions.recordUpstreamSession(ctx, sess, server.ID, newSessionID); err != nil {
			return nil, err
		}
		upstreamSessionID = newSessionID
	}

	return client.CallTool(ctx, upstreamSessionID, canonicalToolName, arguments)
}

// resolveCredentials honors configuration.connected_account_ownership:
// individual resolution treats the bundle's creator as the acting
// user, since the bundle capability stands in for them; GetForExecution
// falls back to the shared or operational account when no individual
// one matches.
func (d *Dispatcher) resolveCredentials(ctx context.Context, server *domain.MCPServer, cfg *domain.MCPServerConfiguration, actingUserID string) (*domain.ConnectedAccount, mcpclient.AuthInjector, error) {
	if cfg.AuthType == domain.AuthVariantNoAuth {
		return nil, nil, nil
	}

	var refresher func(context.Context, domain.OAuth2TokenSet) (domain.OAuth2TokenSet, error)
	if cfg.AuthType == domain.AuthVariantOAuth2 && d.oauth2 != nil {
		endpoint, err := d.oauth2.EndpointFor(ctx, server)
		if err == nil {
			refresher = endpoint.Refresh
		}
	}

	var account *domain.ConnectedAccount
	var err error
	if cfg.ConnectedAccountOwnership == domain.OwnershipOperational {
		account, err = d.creds.ResolveOperational(ctx, cfg.ID)
	} else {
		account, err = d.creds.Resolve(ctx, cfg.ID, actingUserID, refresher)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("gatewaysvc: resolve credentials: %w", err)
	}
	if account == nil {
		return nil, nil, apperr.NotFound("no connected account for configuration")
	}

	var apiKeyConfig *domain.APIKeyAuthConfig
	for _, v := range server.AuthConfigs {
		if v.Type == domain.AuthVariantAPIKey && v.APIKey != nil {
			apiKeyConfig = v.APIKey
			break
		}
	}
	return account, mcpclient.AuthInjectorFor(cfg.AuthType, apiKeyConfig, account.Credentials), nil
}

// retryAfterRefresh implements the 401/403 failure class: attempt a
// single OAuth2 refresh via C3 and retry once.
func (d *Dispatcher) retryAfterRefresh(ctx context.Context, server *domain.MCPServer, cfg *domain.MCPServerConfiguration, bundle *domain.MCPServerBundle, sess *domain.MCPSession, canonicalToolName string, arguments map[string]any, log telemetry.Logger) (*mcpclient.CallToolResult, error) {
	if cfg.AuthType != domain.AuthVariantOAuth2 || d.oauth2 == nil {
		return nil, errors.New("gatewaysvc: upstream rejected credentials and no refresh is possible")
	}
	log.Info("gatewaysvc: retrying tool call after oauth2 refresh", "mcp_server", server.Name)
	return d.callUpstream(ctx, server, cfg, bundle, sess, canonicalToolName, arguments, log)
}

// canonicalToolName strips the "{SERVER}__" platform prefix the
// catalog sync applies, since upstream servers only know their own
// tool names.
func canonicalToolName(serverName, platformName string) string {
	prefix := serverName + "__"
	if len(platformName) > len(prefix) && platformName[:len(prefix)] == prefix {
		return platformName[len(prefix):]
	}
	return platformName
}

// enrichLogIdentity fills in the denormalized org/user display names
// MCPToolCallLog carries, best-effort (a lookup failure here must not
// block the fire-and-forget log write).
func (d *Dispatcher) enrichLogIdentity(ctx context.Context, entry *domain.MCPToolCallLog) {
	if org, err := d.store.Orgs.GetByID(ctx, entry.OrgID); err == nil && org != nil {
		entry.OrgName = org.Name
	}
	if user, err := d.store.Users.GetByID(ctx, entry.UserID); err == nil && user != nil {
		entry.UserEmail = user.Email
	}
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
