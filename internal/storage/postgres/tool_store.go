package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"mcpgate/internal/domain"

	"github.com/pgvector/pgvector-go"
)

// ToolStore persists MCPTool rows, synced from upstream servers'
// tools/list results, including their embedding for SEARCH_TOOLS.
type ToolStore struct{ db *DB }

func (s *ToolStore) Upsert(ctx context.Context, t *domain.MCPTool) error {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input_schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_tools
			(id, server_id, name, description, input_schema,
			 canonical_tool_name, canonical_tool_description_hash, canonical_tool_input_schema_hash,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (server_id, canonical_tool_name) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			input_schema = EXCLUDED.input_schema,
			canonical_tool_description_hash = EXCLUDED.canonical_tool_description_hash,
			canonical_tool_input_schema_hash = EXCLUDED.canonical_tool_input_schema_hash,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.ServerID, t.Name, t.Description, schema,
		t.Metadata.CanonicalToolName, t.Metadata.CanonicalToolDescriptionHash, t.Metadata.CanonicalToolInputSchemaHash,
		t.CreatedAt, t.UpdatedAt)
	return err
}

// ListByServer returns every tool currently catalogued for serverID,
// keyed by canonical_tool_name, for the catalog-sync diff.
func (s *ToolStore) ListByServer(ctx context.Context, serverID string) ([]*domain.MCPTool, error) {
	rows, err := s.db.QueryContext(ctx, toolSelect+` WHERE server_id = $1`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()
	return scanTools(rows)
}

func (s *ToolStore) GetByID(ctx context.Context, id string) (*domain.MCPTool, error) {
	t, err := scanTool(s.db.QueryRowContext(ctx, toolSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *ToolStore) GetByName(ctx context.Context, name string) (*domain.MCPTool, error) {
	t, err := scanTool(s.db.QueryRowContext(ctx, toolSelect+` WHERE name = $1`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *ToolStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	v := pgvector.NewVector(embedding)
	_, err := s.db.ExecContext(ctx, `UPDATE mcp_tools SET embedding = $2, updated_at = now() WHERE id = $1`, id, v)
	return err
}

func (s *ToolStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_tools WHERE id = ANY($1)`, pqStringArray(ids))
	return err
}

// SearchByVector ranks the tools of serverIDs by cosine similarity to
// embedding, using pgvector's <=> operator, returning at most limit
// results above minSimilarity.
func (s *ToolStore) SearchByVector(ctx context.Context, serverIDs []string, embedding []float32, limit int, minSimilarity float64) ([]*domain.MCPTool, error) {
	if len(serverIDs) == 0 {
		return nil, nil
	}
	v := pgvector.NewVector(embedding)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_id, name, description, input_schema,
		       canonical_tool_name, canonical_tool_description_hash, canonical_tool_input_schema_hash,
		       created_at, updated_at
		FROM mcp_tools
		WHERE server_id = ANY($1)
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`,
		pqStringArray(serverIDs), v, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	return scanTools(rows)
}

const toolSelect = `
	SELECT id, server_id, name, description, input_schema,
	       canonical_tool_name, canonical_tool_description_hash, canonical_tool_input_schema_hash,
	       created_at, updated_at
	FROM mcp_tools`

func scanTool(row rowScanner) (*domain.MCPTool, error) {
	var t domain.MCPTool
	var schema []byte
	err := row.Scan(&t.ID, &t.ServerID, &t.Name, &t.Description, &schema,
		&t.Metadata.CanonicalToolName, &t.Metadata.CanonicalToolDescriptionHash, &t.Metadata.CanonicalToolInputSchemaHash,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schema, &t.InputSchema); err != nil {
		return nil, fmt.Errorf("unmarshal input_schema: %w", err)
	}
	return &t, nil
}

func scanTools(rows *sql.Rows) ([]*domain.MCPTool, error) {
	var out []*domain.MCPTool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
