package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"mcpgate/internal/domain"

	"github.com/lib/pq"
)

// ConfigurationStore persists MCPServerConfiguration rows.
type ConfigurationStore struct{ db *DB }

func (s *ConfigurationStore) Create(ctx context.Context, c *domain.MCPServerConfiguration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_server_configurations
			(id, organization_id, mcp_server_id, name, description, auth_type,
			 connected_account_ownership, all_tools_enabled, enabled_tools, allowed_teams,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.OrgID, c.MCPServerID, c.Name, c.Description, c.AuthType,
		c.ConnectedAccountOwnership, c.AllToolsEnabled, pq.Array(c.EnabledTools), pq.Array(c.AllowedTeams),
		c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("configuration name %q already exists in org: %w", c.Name, err)
	}
	return err
}

func (s *ConfigurationStore) Update(ctx context.Context, c *domain.MCPServerConfiguration) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mcp_server_configurations SET
			name = $2, description = $3, auth_type = $4, connected_account_ownership = $5,
			all_tools_enabled = $6, enabled_tools = $7, allowed_teams = $8, updated_at = $9
		WHERE id = $1`,
		c.ID, c.Name, c.Description, c.AuthType, c.ConnectedAccountOwnership,
		c.AllToolsEnabled, pq.Array(c.EnabledTools), pq.Array(c.AllowedTeams), c.UpdatedAt)
	return err
}

func (s *ConfigurationStore) GetByID(ctx context.Context, id string) (*domain.MCPServerConfiguration, error) {
	c, err := scanConfiguration(s.db.QueryRowContext(ctx, configurationSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *ConfigurationStore) ListByOrg(ctx context.Context, orgID string) ([]*domain.MCPServerConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, configurationSelect+` WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	var out []*domain.MCPServerConfiguration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByServer returns every configuration (across all orgs) pointed
// at serverID, used by catalog sync to find the operational
// configuration for a server.
func (s *ConfigurationStore) ListByServer(ctx context.Context, serverID string) ([]*domain.MCPServerConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, configurationSelect+` WHERE mcp_server_id = $1 ORDER BY created_at`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list configurations by server: %w", err)
	}
	defer rows.Close()

	var out []*domain.MCPServerConfiguration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConfigurationStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_server_configurations WHERE id = $1`, id)
	return err
}

const configurationSelect = `
	SELECT id, organization_id, mcp_server_id, name, description, auth_type,
	       connected_account_ownership, all_tools_enabled, enabled_tools, allowed_teams,
	       created_at, updated_at
	FROM mcp_server_configurations`

func scanConfiguration(row rowScanner) (*domain.MCPServerConfiguration, error) {
	var c domain.MCPServerConfiguration
	err := row.Scan(&c.ID, &c.OrgID, &c.MCPServerID, &c.Name, &c.Description, &c.AuthType,
		&c.ConnectedAccountOwnership, &c.AllToolsEnabled, pq.Array(&c.EnabledTools), pq.Array(&c.AllowedTeams),
		&c.CreatedAt, &c.UpdatedAt)
	return &c, err
}
