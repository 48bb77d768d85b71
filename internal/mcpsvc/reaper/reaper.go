// Package reaper implements C8: pure, testable cleanup of orphaned
// connected accounts and bundle configuration references whenever a
// configuration's allowed_teams changes, a configuration is deleted,
// or a user is removed from a team. Every entry point runs inside the
// caller's transaction, so its effects commit or roll back atomically
// with whatever triggered it.
package reaper

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"mcpgate/internal/domain"
	"mcpgate/internal/rbac"
)

// BundleConfigRemoval identifies one configuration reference dropped
// from one bundle.
type BundleConfigRemoval struct {
	BundleID        string
	ConfigurationID string
}

// Result is the uniform return shape for all three entry points:
// pure, testable returns with no side effects beyond tx.
type Result struct {
	ConnectedAccountsRemoved    []string
	BundlesConfigurationsRemoved []BundleConfigRemoval
}

// OnConfigurationAllowedTeamsUpdated re-evaluates every individual
// connected account on cfg against the now-current allowed_teams, and
// drops the configuration from any org bundle whose owner lost access.
func OnConfigurationAllowedTeamsUpdated(ctx context.Context, tx *sql.Tx, cfg *domain.MCPServerConfiguration) (Result, error) {
	var result Result

	owners, err := individualAccountOwners(ctx, tx, cfg.ID)
	if err != nil {
		return result, err
	}
	for _, owner := range owners {
		ok, err := hasAccess(ctx, tx, cfg, owner.userID)
		if err != nil {
			return result, err
		}
		if ok {
			continue
		}
		if err := deleteConnectedAccount(ctx, tx, owner.accountID); err != nil {
			return result, err
		}
		result.ConnectedAccountsRemoved = append(result.ConnectedAccountsRemoved, owner.accountID)
	}

	removed, err := sweepBundlesForConfiguration(ctx, tx, cfg.OrgID, cfg.ID, func(bundleOwnerID string) (bool, error) {
		return hasAccess(ctx, tx, cfg, bundleOwnerID)
	})
	if err != nil {
		return result, err
	}
	result.BundlesConfigurationsRemoved = append(result.BundlesConfigurationsRemoved, removed...)
	return result, nil
}

// OnConfigurationDeleted sweeps every bundle in orgID that references
// configurationID. The connected accounts themselves are left to the
// database's FK cascade.
func OnConfigurationDeleted(ctx context.Context, tx *sql.Tx, orgID, configurationID string) (Result, error) {
	var result Result
	removed, err := sweepBundlesForConfiguration(ctx, tx, orgID, configurationID, func(string) (bool, error) {
		return false, nil
	})
	if err != nil {
		return result, err
	}
	result.BundlesConfigurationsRemoved = removed
	return result, nil
}

// OnUserRemovedFromTeam re-evaluates userID's individual connected
// accounts across orgID and strips now-inaccessible configurations
// from userID's bundles.
func OnUserRemovedFromTeam(ctx context.Context, tx *sql.Tx, userID, orgID string) (Result, error) {
	var result Result

	accounts, err := individualAccountsForUser(ctx, tx, orgID, userID)
	if err != nil {
		return result, err
	}
	for _, a := range accounts {
		ok, err := hasAccess(ctx, tx, a.cfg, userID)
		if err != nil {
			return result, err
		}
		if ok {
			continue
		}
		if err := deleteConnectedAccount(ctx, tx, a.accountID); err != nil {
			return result, err
		}
		result.ConnectedAccountsRemoved = append(result.ConnectedAccountsRemoved, a.accountID)
	}

	bundles, err := bundlesOwnedBy(ctx, tx, orgID, userID)
	if err != nil {
		return result, err
	}
	for _, b := range bundles {
		var keep []string
		for _, configID := range b.configurationIDs {
			cfg, err := configurationByID(ctx, tx, configID)
			if err != nil {
				return result, err
			}
			if cfg == nil {
				continue
			}
			ok, err := hasAccess(ctx, tx, cfg, userID)
			if err != nil {
				return result, err
			}
			if ok {
				keep = append(keep, configID)
				continue
			}
			result.BundlesConfigurationsRemoved = append(result.BundlesConfigurationsRemoved,
				BundleConfigRemoval{BundleID: b.id, ConfigurationID: configID})
		}
		if len(keep) != len(b.configurationIDs) {
			if err := updateBundleConfigurations(ctx, tx, b.id, keep); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// hasAccess re-evaluates the same_org:allowed_team RBAC criterion a
// member needs to use cfg, via the shared rbac.Allow decision rather
// than reimplementing the overlap check here.
func hasAccess(ctx context.Context, tx *sql.Tx, cfg *domain.MCPServerConfiguration, userID string) (bool, error) {
	teamIDs, err := teamIDsForUser(ctx, tx, cfg.OrgID, userID)
	if err != nil {
		return false, err
	}
	actor := rbac.Actor{UserID: userID, OrgID: cfg.OrgID, Role: domain.OrgRoleMember, MemberTeamIDs: teamIDs}
	resource := domain.Resource{
		Type:           domain.ResourceConfiguration,
		OrgID:          cfg.OrgID,
		AllowedTeamIDs: cfg.AllowedTeams,
	}
	return rbac.Allow(rbac.DefaultPolicies, actor, "use", resource), nil
}

type ownedAccount struct {
	accountID string
	userID    string
}

func individualAccountOwners(ctx context.Context, tx *sql.Tx, configurationID string) ([]ownedAccount, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id FROM connected_accounts
		WHERE configuration_id = $1 AND ownership = 'individual' AND user_id IS NOT NULL`, configurationID)
	if err != nil {
		return nil, fmt.Errorf("reaper: list individual accounts: %w", err)
	}
	defer rows.Close()

	var out []ownedAccount
	for rows.Next() {
		var a ownedAccount
		if err := rows.Scan(&a.accountID, &a.userID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type userAccount struct {
	accountID string
	cfg       *domain.MCPServerConfiguration
}

func individualAccountsForUser(ctx context.Context, tx *sql.Tx, orgID, userID string) ([]userAccount, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT ca.id, ca.configuration_id FROM connected_accounts ca
		JOIN mcp_server_configurations cfg ON cfg.id = ca.configuration_id
		WHERE cfg.organization_id = $1 AND ca.user_id = $2 AND ca.ownership = 'individual'`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("reaper: list user accounts: %w", err)
	}
	defer rows.Close()

	var pairs []struct{ accountID, configID string }
	for rows.Next() {
		var p struct{ accountID, configID string }
		if err := rows.Scan(&p.accountID, &p.configID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]userAccount, 0, len(pairs))
	for _, p := range pairs {
		cfg, err := configurationByID(ctx, tx, p.configID)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			continue
		}
		out = append(out, userAccount{accountID: p.accountID, cfg: cfg})
	}
	return out, nil
}

func deleteConnectedAccount(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM connected_accounts WHERE id = $1`, id)
	return err
}

func configurationByID(ctx context.Context, tx *sql.Tx, id string) (*domain.MCPServerConfiguration, error) {
	var c domain.MCPServerConfiguration
	err := tx.QueryRowContext(ctx, `
		SELECT id, organization_id, mcp_server_id, name, description, auth_type,
		       connected_account_ownership, all_tools_enabled, enabled_tools, allowed_teams,
		       created_at, updated_at
		FROM mcp_server_configurations WHERE id = $1`, id).
		Scan(&c.ID, &c.OrgID, &c.MCPServerID, &c.Name, &c.Description, &c.AuthType,
			&c.ConnectedAccountOwnership, &c.AllToolsEnabled, pq.Array(&c.EnabledTools), pq.Array(&c.AllowedTeams),
			&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reaper: get configuration: %w", err)
	}
	return &c, nil
}

type ownedBundle struct {
	id               string
	configurationIDs []string
}

func bundlesOwnedBy(ctx context.Context, tx *sql.Tx, orgID, userID string) ([]ownedBundle, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, configuration_ids FROM mcp_server_bundles
		WHERE organization_id = $1 AND created_by = $2`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("reaper: list user bundles: %w", err)
	}
	defer rows.Close()

	var out []ownedBundle
	for rows.Next() {
		var b ownedBundle
		if err := rows.Scan(&b.id, pq.Array(&b.configurationIDs)); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// sweepBundlesForConfiguration drops configurationID from every
// bundle in orgID that references it, unless keep reports the bundle
// owner still has access (used by OnConfigurationAllowedTeamsUpdated;
// OnConfigurationDeleted passes a keep that always drops).
func sweepBundlesForConfiguration(ctx context.Context, tx *sql.Tx, orgID, configurationID string, keep func(bundleOwnerID string) (bool, error)) ([]BundleConfigRemoval, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, created_by, configuration_ids FROM mcp_server_bundles
		WHERE organization_id = $1 AND $2 = ANY(configuration_ids)`, orgID, configurationID)
	if err != nil {
		return nil, fmt.Errorf("reaper: list bundles referencing configuration: %w", err)
	}
	type row struct {
		id, createdBy    string
		configurationIDs []string
	}
	var bundles []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.createdBy, pq.Array(&r.configurationIDs)); err != nil {
			rows.Close()
			return nil, err
		}
		bundles = append(bundles, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var removed []BundleConfigRemoval
	for _, b := range bundles {
		stillAccessible, err := keep(b.createdBy)
		if err != nil {
			return nil, err
		}
		if stillAccessible {
			continue
		}
		var kept []string
		for _, id := range b.configurationIDs {
			if id != configurationID {
				kept = append(kept, id)
			}
		}
		if err := updateBundleConfigurations(ctx, tx, b.id, kept); err != nil {
			return nil, err
		}
		removed = append(removed, BundleConfigRemoval{BundleID: b.id, ConfigurationID: configurationID})
	}
	return removed, nil
}

func updateBundleConfigurations(ctx context.Context, tx *sql.Tx, bundleID string, configurationIDs []string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE mcp_server_bundles SET configuration_ids = $2, updated_at = now() WHERE id = $1`,
		bundleID, pq.Array(configurationIDs))
	return err
}

func teamIDsForUser(ctx context.Context, tx *sql.Tx, orgID, userID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT tm.team_id FROM team_memberships tm
		JOIN teams t ON t.id = tm.team_id
		WHERE t.organization_id = $1 AND tm.user_id = $2`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("reaper: list user teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
