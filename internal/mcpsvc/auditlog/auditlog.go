// Package auditlog implements C11: recording MCPToolCallLog rows and
// serving cursor-paginated reads with member/admin visibility scoping.
package auditlog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
	"mcpgate/internal/telemetry"
)

// DefaultLimit and MaxLimit bound a single page of results.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Logger writes MCPToolCallLog rows and serves paginated reads.
type Logger struct {
	store  *postgres.Store
	logger telemetry.Logger
}

func NewLogger(store *postgres.Store, logger telemetry.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// Record writes one log row. This is fire-and-forget relative to the
// caller's user-visible outcome: a write failure is logged but never
// returned as an error to EXECUTE_TOOL's caller, so this method
// swallows its own error after logging it.
func (l *Logger) Record(ctx context.Context, entry *domain.MCPToolCallLog) {
	if err := l.store.AuditLog.Insert(ctx, entry); err != nil {
		l.logger.Error("auditlog: failed to record tool call",
			"error", err, "organization_id", entry.OrgID, "mcp_tool_name", entry.MCPToolName)
	}
}

// Page is one cursor-paginated slice of log entries.
type Page struct {
	Entries    []*domain.MCPToolCallLog
	NextCursor string // "" when there is no further page
}

// ListRequest is the caller-supplied shape for List.
type ListRequest struct {
	ActorIsAdmin bool
	ActorUserID  string
	Filter       domain.ToolCallLogFilter
	Cursor       string
	Limit        int
}

// List returns one page of logs visible to the actor: admins see the
// whole org, members see only their own entries.
func (l *Logger) List(ctx context.Context, orgID string, req ListRequest) (Page, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var cursor *domain.ToolCallLogCursor
	if req.Cursor != "" {
		c, err := decodeCursor(req.Cursor)
		if err != nil {
			return Page{}, err
		}
		cursor = c
	}

	filter := req.Filter
	if !req.ActorIsAdmin {
		filter.UserID = req.ActorUserID
	}

	rows, err := l.store.AuditLog.List(ctx, orgID, filter, cursor, limit)
	if err != nil {
		return Page{}, err
	}

	var next string
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		next, err = encodeCursor(domain.ToolCallLogCursor{StartedAt: last.StartedAt, ID: last.ID})
		if err != nil {
			return Page{}, err
		}
	}
	return Page{Entries: rows, NextCursor: next}, nil
}

func encodeCursor(c domain.ToolCallLogCursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("auditlog: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeCursor(s string) (*domain.ToolCallLogCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("auditlog: invalid cursor: %w", err)
	}
	var c domain.ToolCallLogCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("auditlog: invalid cursor: %w", err)
	}
	return &c, nil
}
