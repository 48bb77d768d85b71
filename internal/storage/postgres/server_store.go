package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mcpgate/internal/domain"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ServerStore persists MCPServer rows, public (org_id NULL) or
// org-owned.
type ServerStore struct{ db *DB }

func (s *ServerStore) Create(ctx context.Context, srv *domain.MCPServer) error {
	authConfigs, err := json.Marshal(srv.AuthConfigs)
	if err != nil {
		return fmt.Errorf("marshal auth_configs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers
			(id, name, url, transport, description, logo, categories, auth_configs, organization_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		srv.ID, srv.Name, srv.URL, srv.Transport, srv.Description, srv.Logo,
		pq.Array(srv.Categories), authConfigs, srv.OrganizationID, srv.CreatedAt, srv.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("mcp server name %q already registered: %w", srv.Name, err)
	}
	return err
}

func (s *ServerStore) GetByID(ctx context.Context, id string) (*domain.MCPServer, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, serverSelect+` WHERE id = $1`, id))
}

func (s *ServerStore) GetByName(ctx context.Context, name string) (*domain.MCPServer, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, serverSelect+` WHERE name = $1`, name))
}

// ListVisible returns public servers plus servers owned by orgID.
func (s *ServerStore) ListVisible(ctx context.Context, orgID string) ([]*domain.MCPServer, error) {
	rows, err := s.db.QueryContext(ctx,
		serverSelect+` WHERE organization_id IS NULL OR organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var out []*domain.MCPServer
	for rows.Next() {
		srv, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// Update replaces srv's mutable descriptive fields (name/url/transport
// and auth_configs are immutable after creation — registry.Registry
// never calls this to change them).
func (s *ServerStore) Update(ctx context.Context, srv *domain.MCPServer) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mcp_servers
		SET description = $2, logo = $3, categories = $4, updated_at = $5
		WHERE id = $1`,
		srv.ID, srv.Description, srv.Logo, pq.Array(srv.Categories), srv.UpdatedAt)
	return err
}

func (s *ServerStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	v := pgvector.NewVector(embedding)
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET embedding = $2, updated_at = now() WHERE id = $1`, id, v)
	return err
}

func (s *ServerStore) MarkSynced(ctx context.Context, id string, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET last_synced_at = $2 WHERE id = $1`, id, syncedAt)
	return err
}

func (s *ServerStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = $1`, id)
	return err
}

const serverSelect = `
	SELECT id, name, url, transport, description, logo, categories, auth_configs,
	       organization_id, last_synced_at, created_at, updated_at
	FROM mcp_servers`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ServerStore) scanOne(row *sql.Row) (*domain.MCPServer, error) {
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return srv, err
}

func (s *ServerStore) scanRow(rows *sql.Rows) (*domain.MCPServer, error) {
	return scanServer(rows)
}

func scanServer(row rowScanner) (*domain.MCPServer, error) {
	var srv domain.MCPServer
	var authConfigs []byte
	var orgID sql.NullString
	var lastSynced sql.NullTime

	err := row.Scan(&srv.ID, &srv.Name, &srv.URL, &srv.Transport, &srv.Description, &srv.Logo,
		pq.Array(&srv.Categories), &authConfigs, &orgID, &lastSynced, &srv.CreatedAt, &srv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(authConfigs, &srv.AuthConfigs); err != nil {
		return nil, fmt.Errorf("unmarshal auth_configs: %w", err)
	}
	if orgID.Valid {
		srv.OrganizationID = &orgID.String
	}
	if lastSynced.Valid {
		srv.LastSyncedAt = &lastSynced.Time
	}
	return &srv, nil
}
