package gatewaysvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/credentials"
	"mcpgate/internal/domain"
	"mcpgate/internal/embedder"
	"mcpgate/internal/mcpsvc/auditlog"
	"mcpgate/internal/mcpsvc/search"
	"mcpgate/internal/oauth2client"
	"mcpgate/internal/storage/postgres"
	"mcpgate/internal/telemetry"
)

const protocolVersion = "2024-11-05"

const (
	rpcParseError     = -32700
	rpcInvalidParams  = -32602
	rpcMethodNotFound = -32601
	rpcInternalError  = -32603
)

// jsonrpcRequest and jsonrpcResponse mirror the wire shapes of
// mcpclient's, kept separate because this is the gateway's
// server-facing side rather than its upstream-facing client.
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Dispatcher is the front door for POST /mcp/{bundle_key} (C9):
// bundle resolution, session lifecycle, JSON-RPC routing to
// initialize/tools/list/tools/call, and fan-out to the two
// meta-tools (C10).
type Dispatcher struct {
	store    *postgres.Store
	creds    *credentials.Store
	oauth2   *oauth2client.Manager
	ranker   *search.Ranker
	embedder embedder.Embedder
	auditlog *auditlog.Logger
	metrics  *telemetry.Metrics
	logger   telemetry.Logger
	sessions sessions
}

func NewDispatcher(
	store *postgres.Store,
	creds *credentials.Store,
	oauth2Mgr *oauth2client.Manager,
	ranker *search.Ranker,
	emb embedder.Embedder,
	auditLogger *auditlog.Logger,
	metrics *telemetry.Metrics,
	logger telemetry.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:    store,
		creds:    creds,
		oauth2:   oauth2Mgr,
		ranker:   ranker,
		embedder: emb,
		auditlog: auditLogger,
		metrics:  metrics,
		logger:   logger,
		sessions: sessions{store: store},
	}
}

// ServeHTTP implements POST /mcp/{bundle_key}. The HTTP response is
// always 200 unless the body can't be parsed as JSON-RPC at all;
// transport- and application-level failures surface as JSON-RPC error
// objects instead, via the handleJSONRPC/writeJSONRPCError split.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bundleKey := r.PathValue("bundle_key")
	requestID := uuid.NewString()
	log := d.logger.With("request_id", requestID)

	bundle, err := d.store.Bundles.GetByKey(r.Context(), bundleKey)
	if err != nil {
		log.Error("gatewaysvc: bundle lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if bundle == nil {
		http.NotFound(w, r)
		return
	}

	var req jsonrpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, nil, rpcParseError, "parse error", nil)
		return
	}

	// A request with no id is a notification: the client doesn't want
	// (and mustn't receive) a JSON-RPC response body.
	if req.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	result, rpcErr := d.dispatch(r.Context(), w, r, bundle, req, log)
	if rpcErr != nil {
		d.writeError(w, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (d *Dispatcher) dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, bundle *domain.MCPServerBundle, req jsonrpcRequest, log telemetry.Logger) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return d.handleInitialize(ctx, w, bundle)
	case "notifications/initialized":
		return map[string]any{}, nil
	case "tools/list":
		return listMetaTools(), nil
	case "tools/call":
		sess, err := d.requireSession(ctx, r, bundle.ID)
		if err != nil {
			return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
		}
		return d.handleToolsCall(ctx, bundle, sess, req.Params, log)
	default:
		return nil, &rpcError{Code: rpcMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (d *Dispatcher) handleInitialize(ctx context.Context, w http.ResponseWriter, bundle *domain.MCPServerBundle) (any, *rpcError) {
	sess, err := d.sessions.create(ctx, bundle.ID)
	if err != nil {
		return nil, &rpcError{Code: rpcInternalError, Message: "failed to create session"}
	}
	w.Header().Set("Mcp-Session-Id", sess.ID)
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    "mcpgate",
			"version": protocolVersion,
		},
		"instructions": "Call tools/list to see SEARCH_TOOLS and EXECUTE_TOOL. " +
			"Use SEARCH_TOOLS to discover tools by intent, then EXECUTE_TOOL to invoke one by name.",
	}, nil
}

// requireSession resolves a non-deleted session bound to this bundle,
// identified by the Mcp-Session-Id header.
func (d *Dispatcher) requireSession(ctx context.Context, r *http.Request, bundleID string) (*domain.MCPSession, error) {
	id := r.Header.Get("Mcp-Session-Id")
	if id == "" {
		return nil, errors.New("missing Mcp-Session-Id header")
	}
	sess, err := d.sessions.resolve(ctx, id, bundleID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New("session not found or expired")
	}
	return sess, nil
}

func (d *Dispatcher) writeError(w http.ResponseWriter, id any, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	})
}

func toRPCError(err error) *rpcError {
	if appErr := apperr.As(err); appErr != nil {
		return &rpcError{Code: rpcInternalError, Message: appErr.Title, Data: string(appErr.Code)}
	}
	return &rpcError{Code: rpcInternalError, Message: err.Error()}
}
