package postgres

import (
	"context"
	"fmt"

	"mcpgate/internal/domain"
)

// AuditLogStore persists the append-only MCPToolCallLog and serves
// cursor-paginated reads in strict (started_at DESC, id DESC) order.
type AuditLogStore struct{ db *DB }

func (s *AuditLogStore) Insert(ctx context.Context, l *domain.MCPToolCallLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_tool_call_logs
			(id, organization_id, organization_name, user_id, user_email, bundle_id, bundle_name,
			 mcp_server_id, mcp_server_name, mcp_tool_id, mcp_tool_name, configuration_id,
			 status, via_execute_tool, jsonrpc_payload, arguments, started_at, ended_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		l.ID, l.OrgID, l.OrgName, l.UserID, l.UserEmail, l.BundleID, l.BundleName,
		l.MCPServerID, l.MCPServerName, l.MCPToolID, l.MCPToolName, l.ConfigurationID,
		l.Status, l.ViaExecuteTool, l.JSONRPCPayload, l.Arguments, l.StartedAt, l.EndedAt, l.DurationMs)
	return err
}

// List returns up to limit+1 rows matching filter, strictly ordered
// (started_at DESC, id DESC), starting after cursor (exclusive). The
// limit+1 fetch lets the caller detect whether another page follows
// without a separate count query.
func (s *AuditLogStore) List(ctx context.Context, orgID string, filter domain.ToolCallLogFilter, cursor *domain.ToolCallLogCursor, limit int) ([]*domain.MCPToolCallLog, error) {
	query := `
		SELECT id, organization_id, organization_name, user_id, user_email, bundle_id, bundle_name,
		       mcp_server_id, mcp_server_name, mcp_tool_id, mcp_tool_name, configuration_id,
		       status, via_execute_tool, jsonrpc_payload, arguments, started_at, ended_at, duration_ms
		FROM mcp_tool_call_logs
		WHERE organization_id = $1`
	args := []any{orgID}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.MCPToolName != "" {
		args = append(args, "%"+filter.MCPToolName+"%")
		query += fmt.Sprintf(" AND mcp_tool_name ILIKE $%d", len(args))
	}
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		query += fmt.Sprintf(" AND started_at >= $%d", len(args))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		query += fmt.Sprintf(" AND started_at <= $%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.StartedAt, cursor.ID)
		query += fmt.Sprintf(" AND (started_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tool call logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.MCPToolCallLog
	for rows.Next() {
		var l domain.MCPToolCallLog
		if err := rows.Scan(&l.ID, &l.OrgID, &l.OrgName, &l.UserID, &l.UserEmail, &l.BundleID, &l.BundleName,
			&l.MCPServerID, &l.MCPServerName, &l.MCPToolID, &l.MCPToolName, &l.ConfigurationID,
			&l.Status, &l.ViaExecuteTool, &l.JSONRPCPayload, &l.Arguments, &l.StartedAt, &l.EndedAt, &l.DurationMs); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes rows past an org's log retention window,
// used by the billing entitlement enforcer.
func (s *AuditLogStore) DeleteOlderThan(ctx context.Context, orgID string, cutoffDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mcp_tool_call_logs WHERE organization_id = $1 AND started_at < now() - ($2 || ' days')::interval`,
		orgID, cutoffDays)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
