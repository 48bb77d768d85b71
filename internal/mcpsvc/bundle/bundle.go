// Package bundle implements C7: configuration creation/update (admin
// gated) and bundle management, including the opaque bundle_key and
// the order-preserving, de-duplicated configuration list.
package bundle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
)

// Manager manages MCPServerConfiguration and MCPServerBundle rows.
type Manager struct {
	store *postgres.Store
}

func NewManager(store *postgres.Store) *Manager {
	return &Manager{store: store}
}

// NewConfigurationInput is the caller-supplied shape for
// CreateConfiguration.
type NewConfigurationInput struct {
	MCPServerID               string
	Name                      string
	Description               string
	AuthType                  domain.AuthVariantType
	ConnectedAccountOwnership domain.ConnectedAccountOwnership
	AllToolsEnabled           bool
	EnabledTools              []string
	AllowedTeams              []string
}

// CreateConfiguration creates a configuration. The caller must have
// already verified the actor is an org admin (RBAC is evaluated at
// the httpapi boundary, not here); this enforces the data invariants
// owned by the manager itself: auth_type must be one the server
// declares, and allowed_teams must all belong to orgID.
func (m *Manager) CreateConfiguration(ctx context.Context, orgID string, in NewConfigurationInput) (*domain.MCPServerConfiguration, error) {
	server, err := m.store.Servers.GetByID(ctx, in.MCPServerID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, apperr.NotFound("mcp server not found")
	}

	now := time.Now()
	cfg := &domain.MCPServerConfiguration{
		ID:                        uuid.NewString(),
		OrgID:                     orgID,
		MCPServerID:               in.MCPServerID,
		Name:                      in.Name,
		Description:               in.Description,
		AuthType:                  in.AuthType,
		ConnectedAccountOwnership: in.ConnectedAccountOwnership,
		AllToolsEnabled:           in.AllToolsEnabled,
		EnabledTools:              in.EnabledTools,
		AllowedTeams:              in.AllowedTeams,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := cfg.Validate(server); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "invalid configuration", err)
	}
	if err := m.validateAllowedTeams(ctx, orgID, cfg.AllowedTeams); err != nil {
		return nil, err
	}

	if err := m.store.Configs.Create(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateAllowedTeams replaces cfg's allowed_teams, validating
// membership, and returns the updated configuration. The caller is
// responsible for invoking the reaper afterward.
func (m *Manager) UpdateAllowedTeams(ctx context.Context, orgID, configurationID string, allowedTeams []string) (*domain.MCPServerConfiguration, error) {
	cfg, err := m.store.Configs.GetByID(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.OrgID != orgID {
		return nil, apperr.NotFound("configuration not found")
	}
	if err := m.validateAllowedTeams(ctx, orgID, allowedTeams); err != nil {
		return nil, err
	}
	cfg.AllowedTeams = allowedTeams
	cfg.UpdatedAt = time.Now()
	if err := m.store.Configs.Update(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) validateAllowedTeams(ctx context.Context, orgID string, teamIDs []string) error {
	if len(teamIDs) == 0 {
		return nil
	}
	orgTeams, err := m.store.Orgs.ListTeams(ctx, orgID)
	if err != nil {
		return err
	}
	valid := make(map[string]bool, len(orgTeams))
	for _, t := range orgTeams {
		valid[t.ID] = true
	}
	for _, id := range teamIDs {
		if !valid[id] {
			return apperr.New(apperr.CodeValidation, fmt.Sprintf("team %s does not belong to this organization", id))
		}
	}
	return nil
}

// NewBundleInput is the caller-supplied shape for CreateBundle.
type NewBundleInput struct {
	Name             string
	Description      string
	ConfigurationIDs []string
}

// CreateBundle generates a fresh bundle_key and persists the bundle,
// with its configuration list order-preserved and de-duplicated.
func (m *Manager) CreateBundle(ctx context.Context, orgID, createdBy string, in NewBundleInput) (*domain.MCPServerBundle, error) {
	key, err := newBundleKey()
	if err != nil {
		return nil, fmt.Errorf("bundle: generate bundle_key: %w", err)
	}
	now := time.Now()
	b := &domain.MCPServerBundle{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		CreatedBy:        createdBy,
		BundleKey:        key,
		Name:             in.Name,
		Description:      in.Description,
		ConfigurationIDs: dedupePreserveOrder(in.ConfigurationIDs),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.Bundles.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// AddConfiguration appends configurationID to the bundle if not
// already present; idempotent.
func (m *Manager) AddConfiguration(ctx context.Context, bundleID, configurationID string) error {
	b, err := m.store.Bundles.GetByID(ctx, bundleID)
	if err != nil {
		return err
	}
	if b == nil {
		return apperr.NotFound("bundle not found")
	}
	updated := dedupePreserveOrder(append(append([]string{}, b.ConfigurationIDs...), configurationID))
	return m.store.Bundles.UpdateConfigurations(ctx, bundleID, updated)
}

// RemoveConfiguration drops configurationID from the bundle if
// present; idempotent.
func (m *Manager) RemoveConfiguration(ctx context.Context, bundleID, configurationID string) error {
	b, err := m.store.Bundles.GetByID(ctx, bundleID)
	if err != nil {
		return err
	}
	if b == nil {
		return apperr.NotFound("bundle not found")
	}
	updated := removePreserveOrder(b.ConfigurationIDs, configurationID)
	return m.store.Bundles.UpdateConfigurations(ctx, bundleID, updated)
}

// dedupePreserveOrder is the single helper every bundle edit goes
// through, preserving insertion order while removing duplicates.
func dedupePreserveOrder(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func removePreserveOrder(ids []string, remove string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != remove {
			out = append(out, id)
		}
	}
	return out
}

// newBundleKey generates an opaque, non-guessable capability key. It
// is stored verbatim (not hashed): it's the lookup key for every
// gateway request, not a password.
func newBundleKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "bk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
