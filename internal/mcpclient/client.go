// Package mcpclient is a minimal JSON-RPC 2.0 client for talking to
// upstream MCP servers over streamable HTTP, used by catalog sync
// (C6) and the gateway dispatcher (C9) to perform initialize,
// tools/list, and tools/call against a remote server.
package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mcpgate/internal/domain"
)

const (
	protocolVersion   = "2024-11-05"
	mcpSessionHeader  = "Mcp-Session-Id"
	protocolHeader    = "MCP-Protocol-Version"
)

// JSONRPCRequest is the wire request envelope.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      any         `json:"id"`
	Method  string      `json:"method"`
	Params  any         `json:"params,omitempty"`
}

// JSONRPCResponse is the wire response envelope.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("mcpclient: rpc error %d: %s", e.Code, e.Message) }

// HTTPStatusError wraps a non-2xx transport-level response, distinct
// from an RPCError (which is a 200 response carrying a JSON-RPC error
// object). Callers use this to detect 401/403 for the EXECUTE_TOOL
// refresh-once-and-retry path.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("mcpclient: upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ClientInfo     `json:"serverInfo"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []ToolDefinition `json:"tools"`
}

type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AuthInjector attaches per-request credentials to an outbound HTTP
// request (bearer token, api key header/query, or nothing).
type AuthInjector func(*http.Request)

// Client speaks JSON-RPC to a single upstream MCP server over
// streamable HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	auth    AuthInjector
}

func New(baseURL string, auth AuthInjector) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 20 * time.Second,
			},
		},
		auth: auth,
	}
}

// Initialize performs the MCP handshake, returning the upstream
// session id from the Mcp-Session-Id response header (empty if the
// server doesn't issue one).
func (c *Client) Initialize(ctx context.Context, clientInfo ClientInfo) (*InitializeResult, string, error) {
	var result InitializeResult
	sessionID, err := c.call(ctx, "", "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      clientInfo,
	}, &result)
	if err != nil {
		return nil, "", err
	}
	return &result, sessionID, nil
}

// ListTools calls tools/list against an already-initialized session.
func (c *Client) ListTools(ctx context.Context, upstreamSessionID string) ([]ToolDefinition, error) {
	var result ListToolsResult
	if _, err := c.call(ctx, upstreamSessionID, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool proxies tools/call for one tool name against an
// already-initialized session.
func (c *Client) CallTool(ctx context.Context, upstreamSessionID, toolName string, arguments map[string]any) (*CallToolResult, error) {
	var result CallToolResult
	if _, err := c.call(ctx, upstreamSessionID, "tools/call", map[string]any{
		"name":      toolName,
		"arguments": arguments,
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// NotifyInitialized sends the initialize-complete notification (no
// response expected).
func (c *Client) NotifyInitialized(ctx context.Context, upstreamSessionID string) error {
	req := JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"}
	_, err := c.do(ctx, upstreamSessionID, req, nil)
	return err
}

// call wraps do with an auto-incrementing id and returns the
// upstream-issued session id (if the response carried one).
func (c *Client) call(ctx context.Context, upstreamSessionID, method string, params any, out any) (string, error) {
	req := JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	return c.do(ctx, upstreamSessionID, req, out)
}

func (c *Client) do(ctx context.Context, upstreamSessionID string, req JSONRPCRequest, out any) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("mcpclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(protocolHeader, protocolVersion)
	if upstreamSessionID != "" {
		httpReq.Header.Set(mcpSessionHeader, upstreamSessionID)
	}
	if c.auth != nil {
		c.auth(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("mcpclient: request to upstream: %w", err)
	}
	defer resp.Body.Close()

	respSessionID := resp.Header.Get(mcpSessionHeader)

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return respSessionID, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	if req.Method == "notifications/initialized" {
		return respSessionID, nil
	}

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&rpcResp); err != nil {
		return respSessionID, fmt.Errorf("mcpclient: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return respSessionID, rpcResp.Error
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return respSessionID, fmt.Errorf("mcpclient: unmarshal result: %w", err)
		}
	}
	return respSessionID, nil
}

// AuthInjectorFor builds the AuthInjector matching a server's
// negotiated auth variant and a resolved ConnectedAccount's
// credentials.
func AuthInjectorFor(variant domain.AuthVariantType, apiKeyConfig *domain.APIKeyAuthConfig, creds domain.AuthCredentials) AuthInjector {
	switch variant {
	case domain.AuthVariantAPIKey:
		if creds.APIKey == nil || apiKeyConfig == nil {
			return nil
		}
		return func(r *http.Request) {
			if apiKeyConfig.Location == domain.APIKeyLocationQuery {
				q := r.URL.Query()
				q.Set(apiKeyConfig.HeaderName, creds.APIKey.Secret)
				r.URL.RawQuery = q.Encode()
				return
			}
			headerName := apiKeyConfig.HeaderName
			if headerName == "" {
				headerName = "Authorization"
			}
			r.Header.Set(headerName, creds.APIKey.Secret)
		}
	case domain.AuthVariantOAuth2:
		if creds.OAuth2 == nil {
			return nil
		}
		return func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+creds.OAuth2.AccessToken)
		}
	default:
		return nil
	}
}
