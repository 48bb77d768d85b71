// Package registry implements C5: CRUD for MCP servers — public
// servers seeded via admin CLI, org-custom servers created by org
// admins — and the embedding computed over their identity for
// SEARCH_TOOLS-adjacent discovery.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/embedder"
	"mcpgate/internal/storage/postgres"
)

// maxNameRetries bounds the canonical-name uniqueness retry loop.
const maxNameRetries = 10

var base32Encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Registry manages MCPServer rows.
type Registry struct {
	store    *postgres.Store
	embedder embedder.Embedder
}

func NewRegistry(store *postgres.Store, emb embedder.Embedder) *Registry {
	return &Registry{store: store, embedder: emb}
}

// NewServerInput is the caller-supplied shape for CreatePublic and
// CreateCustom; ID, canonical Name, and embedding are computed here.
type NewServerInput struct {
	Name        string // base name; the stored canonical name derives from this
	URL         string
	Transport   domain.TransportType
	Description string
	Logo        string
	Categories  []string
	AuthConfigs []domain.AuthConfigVariant
}

// CreatePublic registers a platform-owned server (organization_id
// NULL), as done by the admin seeding CLI.
func (r *Registry) CreatePublic(ctx context.Context, in NewServerInput) (*domain.MCPServer, error) {
	return r.create(ctx, in, nil)
}

// CreateCustom registers an org-owned server on behalf of orgID. The
// caller is responsible for verifying the actor is an org admin
// before calling this (RBAC is evaluated at the httpapi boundary).
func (r *Registry) CreateCustom(ctx context.Context, orgID string, in NewServerInput) (*domain.MCPServer, error) {
	return r.create(ctx, in, &orgID)
}

func (r *Registry) create(ctx context.Context, in NewServerInput, orgID *string) (*domain.MCPServer, error) {
	if err := validateTransport(in.Transport); err != nil {
		return nil, err
	}

	now := time.Now()
	srv := &domain.MCPServer{
		ID:             uuid.NewString(),
		URL:            in.URL,
		Transport:      in.Transport,
		Description:    in.Description,
		Logo:           in.Logo,
		Categories:     in.Categories,
		AuthConfigs:    in.AuthConfigs,
		OrganizationID: orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var lastErr error
	for attempt := 0; attempt < maxNameRetries; attempt++ {
		name, err := canonicalServerName(in.Name)
		if err != nil {
			return nil, err
		}
		srv.Name = name

		if err := r.store.Servers.Create(ctx, srv); err != nil {
			if isDuplicateName(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, apperr.Wrap(apperr.CodeConflict, "could not generate a unique server name", lastErr)
	}

	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, embeddingText(srv))
		if err != nil {
			return nil, fmt.Errorf("registry: embed server %s: %w", srv.Name, err)
		}
		if err := r.store.Servers.SetEmbedding(ctx, srv.ID, vec); err != nil {
			return nil, err
		}
		srv.Embedding = vec
	}
	return srv, nil
}

// canonicalServerName builds <NAME>_<8-char base32> from base, upper
// snake-cased. The suffix changes on every call so repeated retries
// after a name collision try a fresh candidate.
func canonicalServerName(base string) (string, error) {
	sanitized := sanitizeBaseName(base)
	if sanitized == "" {
		return "", apperr.New(apperr.CodeValidation, "server name must contain at least one alphanumeric character")
	}
	suffix, err := randomBase32(8)
	if err != nil {
		return "", fmt.Errorf("registry: generate name suffix: %w", err)
	}
	return sanitized + "_" + suffix, nil
}

func sanitizeBaseName(base string) string {
	upper := strings.ToUpper(strings.TrimSpace(base))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func randomBase32(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base32Encoding.EncodeToString(buf)
	if len(encoded) < n {
		return encoded, nil
	}
	return encoded[:n], nil
}

func validateTransport(t domain.TransportType) error {
	switch t {
	case domain.TransportStreamableHTTP, domain.TransportSSE:
		return nil
	default:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("unsupported transport %q", t))
	}
}

// embeddingText is the identity text an MCPServer's discovery
// embedding is computed over.
func embeddingText(srv *domain.MCPServer) string {
	return strings.Join([]string{
		srv.Name, srv.URL, srv.Description, strings.Join(srv.Categories, " "),
	}, " ")
}

func isDuplicateName(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already registered")
}

// Get returns a server visible to orgID (public or org-owned); nil
// if not found or not visible.
func (r *Registry) Get(ctx context.Context, id, orgID string) (*domain.MCPServer, error) {
	srv, err := r.store.Servers.GetByID(ctx, id)
	if err != nil || srv == nil {
		return srv, err
	}
	if srv.OrganizationID != nil && *srv.OrganizationID != orgID {
		return nil, nil
	}
	return srv, nil
}

// List returns every server visible to orgID: public plus org-owned.
func (r *Registry) List(ctx context.Context, orgID string) ([]*domain.MCPServer, error) {
	return r.store.Servers.ListVisible(ctx, orgID)
}

// Delete removes a server; the database FK cascade handles dependent
// configurations/connected accounts.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.Servers.Delete(ctx, id)
}

// UpdateMetadataInput is the caller-supplied shape for UpdateMetadata;
// a nil field leaves the corresponding server field unchanged.
type UpdateMetadataInput struct {
	Description *string
	Logo        *string
	Categories  []string // nil leaves categories unchanged
}

// UpdateMetadata patches a server's descriptive fields. Name, URL,
// transport, and auth_configs are immutable after creation: changing
// them would invalidate every configuration and connected account
// already built against this server's identity.
func (r *Registry) UpdateMetadata(ctx context.Context, id, orgID string, in UpdateMetadataInput) (*domain.MCPServer, error) {
	srv, err := r.Get(ctx, id, orgID)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, apperr.NotFound("mcp server not found")
	}
	if in.Description != nil {
		srv.Description = *in.Description
	}
	if in.Logo != nil {
		srv.Logo = *in.Logo
	}
	if in.Categories != nil {
		srv.Categories = in.Categories
	}
	srv.UpdatedAt = time.Now()
	if err := r.store.Servers.Update(ctx, srv); err != nil {
		return nil, err
	}
	return srv, nil
}
