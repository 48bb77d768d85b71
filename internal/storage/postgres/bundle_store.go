package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"mcpgate/internal/domain"

	"github.com/lib/pq"
)

// BundleStore persists MCPServerBundle rows.
type BundleStore struct{ db *DB }

func (s *BundleStore) Create(ctx context.Context, b *domain.MCPServerBundle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_server_bundles
			(id, organization_id, created_by, bundle_key, name, description, configuration_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.OrgID, b.CreatedBy, b.BundleKey, b.Name, b.Description,
		pq.Array(b.ConfigurationIDs), b.CreatedAt, b.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("bundle_key collision: %w", err)
	}
	return err
}

func (s *BundleStore) GetByID(ctx context.Context, id string) (*domain.MCPServerBundle, error) {
	b, err := scanBundle(s.db.QueryRowContext(ctx, bundleSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *BundleStore) GetByKey(ctx context.Context, bundleKey string) (*domain.MCPServerBundle, error) {
	b, err := scanBundle(s.db.QueryRowContext(ctx, bundleSelect+` WHERE bundle_key = $1`, bundleKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *BundleStore) ListByOrg(ctx context.Context, orgID string) ([]*domain.MCPServerBundle, error) {
	rows, err := s.db.QueryContext(ctx, bundleSelect+` WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []*domain.MCPServerBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BundleStore) UpdateConfigurations(ctx context.Context, id string, configurationIDs []string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_server_bundles SET configuration_ids = $2, updated_at = now() WHERE id = $1`,
		id, pq.Array(configurationIDs))
	return err
}

func (s *BundleStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_server_bundles WHERE id = $1`, id)
	return err
}

const bundleSelect = `
	SELECT id, organization_id, created_by, bundle_key, name, description, configuration_ids, created_at, updated_at
	FROM mcp_server_bundles`

func scanBundle(row rowScanner) (*domain.MCPServerBundle, error) {
	var b domain.MCPServerBundle
	err := row.Scan(&b.ID, &b.OrgID, &b.CreatedBy, &b.BundleKey, &b.Name, &b.Description,
		pq.Array(&b.ConfigurationIDs), &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}
