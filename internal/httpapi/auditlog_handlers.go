package httpapi

import (
	"net/http"
	"strconv"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/mcpsvc/auditlog"
)

// handleListToolCallLogs serves a cursor-paginated page of tool-call
// logs, scoped to the caller's org and visibility: admins see every
// member's calls, members only their own.
func (s *Server) handleListToolCallLogs(w http.ResponseWriter, r *http.Request) {
	_, actor, appErr := s.requireOrgActor(r, orgIDOrEmpty(principalFrom(r)))
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	page, err := s.auditlog.List(r.Context(), actor.OrgID, auditlog.ListRequest{
		ActorIsAdmin: actor.Role == domain.OrgRoleAdmin,
		ActorUserID:  actor.UserID,
		Filter:       domain.ToolCallLogFilter{MCPToolName: q.Get("mcp_tool_name")},
		Cursor:       q.Get("cursor"),
		Limit:        limit,
	})
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries":     page.Entries,
		"next_cursor": page.NextCursor,
	})
}
