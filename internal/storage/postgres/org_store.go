package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mcpgate/internal/domain"

	"github.com/lib/pq"
)

// OrgStore persists organizations, memberships, teams, and invitations.
type OrgStore struct{ db *DB }

func (s *OrgStore) Create(ctx context.Context, o *domain.Organization) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		o.ID, o.Name, o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *OrgStore) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	var o domain.Organization
	var deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, deleted_at, created_at, updated_at FROM organizations
		WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&o.ID, &o.Name, &deletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if deletedAt.Valid {
		o.DeletedAt = &deletedAt.Time
	}
	return &o, nil
}

func (s *OrgStore) AddMembership(ctx context.Context, m *domain.OrgMembership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_memberships (organization_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.OrgID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (s *OrgStore) GetMembership(ctx context.Context, orgID, userID string) (*domain.OrgMembership, error) {
	var m domain.OrgMembership
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, user_id, role, created_at FROM org_memberships
		WHERE organization_id = $1 AND user_id = $2`, orgID, userID).
		Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

func (s *OrgStore) ListMemberships(ctx context.Context, userID string) ([]*domain.OrgMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_id, user_id, role, created_at FROM org_memberships
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*domain.OrgMembership
	for rows.Next() {
		var m domain.OrgMembership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *OrgStore) RemoveMembership(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM org_memberships WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	return err
}

// CountAdmins counts orgID's current admin members, used to enforce
// that an organization always keeps at least one admin.
func (s *OrgStore) CountAdmins(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM org_memberships WHERE organization_id = $1 AND role = $2`,
		orgID, domain.OrgRoleAdmin).Scan(&n)
	return n, err
}

func (s *OrgStore) CreateTeam(ctx context.Context, t *domain.Team) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (id, organization_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.OrgID, t.Name, t.CreatedAt)
	return err
}

func (s *OrgStore) ListTeams(ctx context.Context, orgID string) ([]*domain.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, name, created_at FROM teams WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *OrgStore) AddTeamMembership(ctx context.Context, m *domain.TeamMembership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_memberships (team_id, user_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, m.TeamID, m.UserID, m.CreatedAt)
	return err
}

// TeamIDsForUser returns the team ids within orgID that userID belongs
// to, used to evaluate same_org:allowed_team RBAC criteria.
func (s *OrgStore) TeamIDsForUser(ctx context.Context, orgID, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.team_id FROM team_memberships tm
		JOIN teams t ON t.id = tm.team_id
		WHERE t.organization_id = $1 AND tm.user_id = $2`, orgID, userID)
	if err != nil {
		return nil, err
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

func (s *OrgStore) CreateInvitation(ctx context.Context, inv *domain.OrganizationInvitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_invitations
			(id, organization_id, email, role, token_hash, status, invited_by, email_metadata, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.ID, inv.OrgID, inv.Email, inv.Role, inv.TokenHash, inv.Status, inv.InvitedBy,
		jsonMetadata(inv.EmailMetadata), inv.ExpiresAt, inv.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("pending invitation already exists for %s: %w", inv.Email, err)
	}
	return err
}

func (s *OrgStore) GetInvitationByToken(ctx context.Context, tokenHash string) (*domain.OrganizationInvitation, error) {
	var inv domain.OrganizationInvitation
	var usedAt sql.NullTime
	var meta []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, role, token_hash, status, invited_by, email_metadata, expires_at, used_at, created_at
		FROM organization_invitations WHERE token_hash = $1`, tokenHash).
		Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.TokenHash, &inv.Status, &inv.InvitedBy,
			&meta, &inv.ExpiresAt, &usedAt, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	inv.EmailMetadata = unmarshalMetadata(meta)
	return &inv, nil
}

func (s *OrgStore) SetInvitationStatus(ctx context.Context, id string, status domain.InvitationStatus, usedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE organization_invitations SET status = $2, used_at = $3 WHERE id = $1`, id, status, usedAt)
	return err
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
