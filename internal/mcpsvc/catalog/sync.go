package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/credentials"
	"mcpgate/internal/domain"
	"mcpgate/internal/embedder"
	"mcpgate/internal/mcpclient"
	"mcpgate/internal/storage/postgres"
	"mcpgate/internal/telemetry"
)

// MinSyncInterval is the rate limit on repeated syncs of the same
// server.
const MinSyncInterval = 60 * time.Second

// ErrTooSoon is returned (apperr-wrapped as 429) when a sync is
// requested before MinSyncInterval has elapsed since the last one.
var ErrTooSoon = apperr.New(apperr.CodeRateLimited, "catalog sync requested too soon")

// Syncer performs C6: upstream tools/list, diff against the stored
// catalog, and apply create/update/delete in one pass.
type Syncer struct {
	store    *postgres.Store
	creds    *credentials.Store
	embedder embedder.Embedder
	metrics  *telemetry.Metrics
}

func NewSyncer(store *postgres.Store, creds *credentials.Store, emb embedder.Embedder, metrics *telemetry.Metrics) *Syncer {
	return &Syncer{store: store, creds: creds, embedder: emb, metrics: metrics}
}

// Result summarizes what Sync did, for the HTTP handler's response.
type Result struct {
	Created   int
	Updated   int
	Removed   int
	Unchanged int
	Skipped   int // invalid input_schema, not persisted
}

// Sync fetches server's upstream tool list and reconciles the stored
// catalog. A session-level advisory lock keyed on serverID serializes
// concurrent sync requests for the same server; it's released when
// conn is returned to the pool.
func (s *Syncer) Sync(ctx context.Context, serverID string) (result Result, err error) {
	started := time.Now()
	status := "ok"
	defer func() {
		s.metrics.RecordCatalogSync(serverID, status, time.Since(started))
	}()

	server, err := s.store.Servers.GetByID(ctx, serverID)
	if err != nil {
		status = "error"
		return Result{}, err
	}
	if server == nil {
		status = "error"
		return Result{}, apperr.NotFound("mcp server not found")
	}
	if server.LastSyncedAt != nil && time.Since(*server.LastSyncedAt) < MinSyncInterval {
		s.metrics.CatalogSyncSkipped.Inc()
		status = "rate_limited"
		return Result{}, ErrTooSoon
	}

	conn, err := s.store.DB().Conn(ctx)
	if err != nil {
		status = "error"
		return Result{}, fmt.Errorf("catalog: acquire connection: %w", err)
	}
	defer conn.Close()

	var locked bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, serverID).Scan(&locked); err != nil {
		status = "error"
		return Result{}, fmt.Errorf("catalog: acquire sync lock: %w", err)
	}
	if !locked {
		status = "rate_limited"
		return Result{}, ErrTooSoon
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, serverID)

	cfg, account, err := s.operationalAccess(ctx, serverID)
	if err != nil {
		status = "error"
		return Result{}, err
	}

	upstream, err := s.fetchUpstreamTools(ctx, server, cfg, account)
	if err != nil {
		status = "error"
		return Result{}, err
	}

	existing, err := s.store.Tools.ListByServer(ctx, serverID)
	if err != nil {
		status = "error"
		return Result{}, err
	}

	result, err = s.reconcile(ctx, server, existing, upstream)
	if err != nil {
		status = "error"
		return Result{}, err
	}

	if err := s.store.Servers.MarkSynced(ctx, serverID, time.Now()); err != nil {
		status = "error"
		return Result{}, err
	}
	return result, nil
}

// operationalAccess finds the server's operational configuration and
// connected account; both must exist or this 404s.
func (s *Syncer) operationalAccess(ctx context.Context, serverID string) (*domain.MCPServerConfiguration, *domain.ConnectedAccount, error) {
	configs, err := s.store.Configs.ListByServer(ctx, serverID)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range configs {
		if c.ConnectedAccountOwnership != domain.OwnershipOperational {
			continue
		}
		acc, err := s.creds.ResolveOperational(ctx, c.ID)
		if err != nil {
			return nil, nil, err
		}
		if acc != nil {
			return c, acc, nil
		}
	}
	return nil, nil, apperr.NotFound("no operational configuration/connected account for this server")
}

func (s *Syncer) fetchUpstreamTools(ctx context.Context, server *domain.MCPServer, cfg *domain.MCPServerConfiguration, account *domain.ConnectedAccount) ([]mcpclient.ToolDefinition, error) {
	var apiKeyConfig *domain.APIKeyAuthConfig
	for _, v := range server.AuthConfigs {
		if v.Type == cfg.AuthType {
			apiKeyConfig = v.APIKey
			break
		}
	}
	client := mcpclient.New(server.URL, mcpclient.AuthInjectorFor(cfg.AuthType, apiKeyConfig, account.Credentials))

	_, sessionID, err := client.Initialize(ctx, mcpclient.ClientInfo{Name: "mcpgate-catalog-sync", Version: "1.0"})
	if err != nil {
		return nil, fmt.Errorf("catalog: upstream initialize: %w", err)
	}
	tools, err := client.ListTools(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("catalog: upstream tools/list: %w", err)
	}
	return tools, nil
}

// reconcile diffs existing against upstream by sanitized+prefixed
// name and applies create/update/delete.
func (s *Syncer) reconcile(ctx context.Context, server *domain.MCPServer, existing []*domain.MCPTool, upstream []mcpclient.ToolDefinition) (Result, error) {
	byName := make(map[string]*domain.MCPTool, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	seen := make(map[string]bool, len(upstream))
	var result Result

	for _, u := range upstream {
		canonical := SanitizeCanonicalToolName(u.Name)
		if canonical == "" {
			continue
		}
		platformName := server.Name + "__" + canonical
		seen[platformName] = true

		if err := validateInputSchema(u.InputSchema); err != nil {
			// Leave any existing row untouched rather than persist a
			// schema gojsonschema can't even compile.
			result.Skipped++
			continue
		}

		descHash := normalizeAndHashContent(u.Description)
		schemaHash, err := hashCanonicalJSON(u.InputSchema)
		if err != nil {
			return result, fmt.Errorf("catalog: hash input schema for %s: %w", platformName, err)
		}

		current, existed := byName[platformName]
		needsEmbedding := !existed ||
			current.Metadata.CanonicalToolName != canonical ||
			current.Metadata.CanonicalToolDescriptionHash != descHash ||
			current.Metadata.CanonicalToolInputSchemaHash != schemaHash

		tool := &domain.MCPTool{
			ID:          toolID(current),
			ServerID:    server.ID,
			Name:        platformName,
			Description: u.Description,
			InputSchema: u.InputSchema,
			Metadata: domain.ToolMetadata{
				CanonicalToolName:            canonical,
				CanonicalToolDescriptionHash: descHash,
				CanonicalToolInputSchemaHash: schemaHash,
			},
			CreatedAt: toolCreatedAt(current),
			UpdatedAt: time.Now(),
		}

		if err := s.store.Tools.Upsert(ctx, tool); err != nil {
			return result, fmt.Errorf("catalog: upsert tool %s: %w", platformName, err)
		}

		if needsEmbedding && s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, canonical+" "+u.Description)
			if err != nil {
				return result, fmt.Errorf("catalog: embed tool %s: %w", platformName, err)
			}
			if err := s.store.Tools.SetEmbedding(ctx, tool.ID, vec); err != nil {
				return result, fmt.Errorf("catalog: store embedding for %s: %w", platformName, err)
			}
		}

		switch {
		case !existed:
			result.Created++
		case needsEmbedding:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	var toRemove []string
	for name, t := range byName {
		if !seen[name] {
			toRemove = append(toRemove, t.ID)
		}
	}
	if len(toRemove) > 0 {
		if err := s.store.Tools.DeleteByIDs(ctx, toRemove); err != nil {
			return result, fmt.Errorf("catalog: delete removed tools: %w", err)
		}
		result.Removed = len(toRemove)
	}
	return result, nil
}

func toolID(existing *domain.MCPTool) string {
	if existing != nil {
		return existing.ID
	}
	return uuid.NewString()
}

func toolCreatedAt(existing *domain.MCPTool) time.Time {
	if existing != nil {
		return existing.CreatedAt
	}
	return time.Now()
}
