package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"mcpgate/internal/domain"
)

// BillingStore persists subscription plans, org subscriptions,
// entitlement overrides, and processed Stripe webhook event ids.
type BillingStore struct{ db *DB }

func (s *BillingStore) GetPlan(ctx context.Context, planCode string) (*domain.SubscriptionPlan, error) {
	var p domain.SubscriptionPlan
	var maxServers, logDays sql.NullInt64
	var archivedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_code, display_name, is_free, is_public, stripe_price_id, min_seats, max_seats,
		       max_custom_mcp_servers, log_retention_days, archived_at
		FROM subscription_plans WHERE plan_code = $1`, planCode).
		Scan(&p.PlanCode, &p.DisplayName, &p.IsFree, &p.IsPublic, &p.StripePriceID, &p.MinSeats, &p.MaxSeats,
			&maxServers, &logDays, &archivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if maxServers.Valid {
		v := int(maxServers.Int64)
		p.MaxCustomMCPServers = &v
	}
	if logDays.Valid {
		v := int(logDays.Int64)
		p.LogRetentionDays = &v
	}
	if archivedAt.Valid {
		p.ArchivedAt = &archivedAt.Time
	}
	return &p, nil
}

func (s *BillingStore) ListPublicPlans(ctx context.Context) ([]*domain.SubscriptionPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_code, display_name, is_free, is_public, stripe_price_id, min_seats, max_seats,
		       max_custom_mcp_servers, log_retention_days, archived_at
		FROM subscription_plans WHERE is_public AND archived_at IS NULL ORDER BY min_seats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SubscriptionPlan
	for rows.Next() {
		var p domain.SubscriptionPlan
		var maxServers, logDays sql.NullInt64
		var archivedAt sql.NullTime
		if err := rows.Scan(&p.PlanCode, &p.DisplayName, &p.IsFree, &p.IsPublic, &p.StripePriceID,
			&p.MinSeats, &p.MaxSeats, &maxServers, &logDays, &archivedAt); err != nil {
			return nil, err
		}
		if maxServers.Valid {
			v := int(maxServers.Int64)
			p.MaxCustomMCPServers = &v
		}
		if logDays.Valid {
			v := int(logDays.Int64)
			p.LogRetentionDays = &v
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *BillingStore) GetSubscription(ctx context.Context, orgID string) (*domain.OrganizationSubscription, error) {
	var sub domain.OrganizationSubscription
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, plan_code, seat_count, stripe_customer_id, stripe_subscription_id,
		       period_start, period_end, cancel_at_period_end, created_at, updated_at
		FROM organization_subscriptions WHERE organization_id = $1`, orgID).
		Scan(&sub.OrgID, &sub.PlanCode, &sub.SeatCount, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
			&sub.PeriodStart, &sub.PeriodEnd, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// GetSubscriptionByStripeID looks up the org subscription row that
// references a given Stripe subscription or customer id — used by
// webhook reconciliation, which must resolve the owning org without
// trusting anything in the event payload beyond those ids.
func (s *BillingStore) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID, stripeCustomerID string) (*domain.OrganizationSubscription, error) {
	var sub domain.OrganizationSubscription
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, plan_code, seat_count, stripe_customer_id, stripe_subscription_id,
		       period_start, period_end, cancel_at_period_end, created_at, updated_at
		FROM organization_subscriptions
		WHERE stripe_subscription_id = $1 OR (stripe_customer_id = $2 AND $2 != '')`,
		stripeSubscriptionID, stripeCustomerID).
		Scan(&sub.OrgID, &sub.PlanCode, &sub.SeatCount, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
			&sub.PeriodStart, &sub.PeriodEnd, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return &sub, nil
}

// UpsertSubscription reconciles the local subscription row with
// Stripe's view after webhook verification.
func (s *BillingStore) UpsertSubscription(ctx context.Context, sub *domain.OrganizationSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_subscriptions
			(organization_id, plan_code, seat_count, stripe_customer_id, stripe_subscription_id,
			 period_start, period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id) DO UPDATE SET
			plan_code = EXCLUDED.plan_code,
			seat_count = EXCLUDED.seat_count,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = EXCLUDED.updated_at`,
		sub.OrgID, sub.PlanCode, sub.SeatCount, sub.StripeCustomerID, sub.StripeSubscriptionID,
		sub.PeriodStart, sub.PeriodEnd, sub.CancelAtPeriodEnd, sub.CreatedAt, sub.UpdatedAt)
	return err
}

// DeleteSubscription removes orgID's subscription row outright,
// reverting it to the free plan's default entitlement. Used when a
// reconciled Stripe subscription reaches a terminal canceled/expired
// state rather than merely updating in place.
func (s *BillingStore) DeleteSubscription(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_subscriptions WHERE organization_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *BillingStore) GetEntitlementOverride(ctx context.Context, orgID string) (*domain.OrganizationEntitlementOverride, error) {
	var o domain.OrganizationEntitlementOverride
	var seats, maxServers, logDays sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, seat_count, max_custom_mcp_servers, log_retention_days, expires_at
		FROM organization_entitlement_overrides WHERE organization_id = $1`, orgID).
		Scan(&o.OrgID, &seats, &maxServers, &logDays, &o.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entitlement override: %w", err)
	}
	if seats.Valid {
		v := int(seats.Int64)
		o.SeatCount = &v
	}
	if maxServers.Valid {
		v := int(maxServers.Int64)
		o.MaxCustomMCPServers = &v
	}
	if logDays.Valid {
		v := int(logDays.Int64)
		o.LogRetentionDays = &v
	}
	return &o, nil
}

// RecordWebhookEvent inserts the Stripe event id, returning false
// (without error) if it was already processed — the idempotency gate
// the webhook handler checks before reconciling.
func (s *BillingStore) RecordWebhookEvent(ctx context.Context, ev *domain.StripeWebhookEvent) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stripe_webhook_events (id, stripe_event_id, event_type, received_at)
		VALUES ($1, $2, $3, $4)`, ev.ID, ev.StripeEventID, ev.EventType, ev.ReceivedAt)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return true, nil
}

func (s *BillingStore) CountCustomServers(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM mcp_servers WHERE organization_id = $1`, orgID).Scan(&n)
	return n, err
}

func (s *BillingStore) CountSeats(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM org_memberships WHERE organization_id = $1`, orgID).Scan(&n)
	return n, err
}
