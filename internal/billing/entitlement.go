package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/apperr"
	"mcpgate/internal/domain"
	"mcpgate/internal/storage/postgres"
)

// Service resolves effective entitlements and applies subscription
// changes, reconciling the result with Stripe (C12).
type Service struct {
	store      *postgres.Store
	stripe     *StripeClient
	webhookKey string
	publicBase string // used to build Checkout success/cancel URLs
}

func NewService(store *postgres.Store, stripeAPIKey, stripeWebhookSecret, publicBaseURL string) *Service {
	return &Service{
		store:      store,
		stripe:     NewStripeClient(stripeAPIKey),
		webhookKey: stripeWebhookSecret,
		publicBase: publicBaseURL,
	}
}

// Effective returns the org's current entitlement: plan fields
// overridden field-wise by a non-expired OrganizationEntitlementOverride.
func (s *Service) Effective(ctx context.Context, orgID string) (domain.Entitlement, error) {
	sub, err := s.store.Billing.GetSubscription(ctx, orgID)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("get subscription: %w", err)
	}

	planCode := "FREE"
	if sub != nil {
		planCode = sub.PlanCode
	}
	plan, err := s.store.Billing.GetPlan(ctx, planCode)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("get plan: %w", err)
	}
	if plan == nil {
		return domain.Entitlement{}, apperr.New(apperr.CodePlanNotAvailable, "subscription plan not found")
	}

	override, err := s.store.Billing.GetEntitlementOverride(ctx, orgID)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("get entitlement override: %w", err)
	}

	return domain.Resolve(plan, sub, override, time.Now()), nil
}

// ChangeRequest is the caller-supplied shape for ChangeSubscription.
type ChangeRequest struct {
	PlanCode          string
	SeatCount         int
	AdminEmail        string // used as the Checkout customer_email on free→paid
	SuccessURL        string
	CancelURL         string
}

// ChangeResult reports what ChangeSubscription did: either a Checkout
// URL to redirect the admin to (free→paid), or nothing further to do
// (paid→paid updates apply immediately; Stripe's webhook will confirm).
type ChangeResult struct {
	CheckoutURL string
}

// ChangeSubscription validates and applies a subscription plan/seat
// change for an org.
func (s *Service) ChangeSubscription(ctx context.Context, orgID string, req ChangeRequest) (*ChangeResult, error) {
	newPlan, err := s.store.Billing.GetPlan(ctx, req.PlanCode)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if newPlan == nil || !newPlan.IsPublic || newPlan.ArchivedAt != nil {
		return nil, apperr.New(apperr.CodePlanNotAvailable, "subscription plan not available")
	}

	seatCount := req.SeatCount
	if newPlan.IsFree {
		seatCount = newPlan.MaxSeats
	}

	memberCount, err := s.store.Billing.CountSeats(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("count seats: %w", err)
	}
	serverCount, err := s.store.Billing.CountCustomServers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("count custom servers: %w", err)
	}
	if seatCount < memberCount {
		return nil, apperr.New(apperr.CodeSubscriptionInvalid,
			fmt.Sprintf("seat_count %d is below the current member count %d", seatCount, memberCount))
	}
	if newPlan.MaxCustomMCPServers != nil && *newPlan.MaxCustomMCPServers < serverCount {
		return nil, apperr.New(apperr.CodeSubscriptionInvalid,
			fmt.Sprintf("max_custom_mcp_servers %d is below the current custom server count %d", *newPlan.MaxCustomMCPServers, serverCount))
	}

	current, err := s.store.Billing.GetSubscription(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	if newPlan.IsFree {
		now := time.Now()
		sub := &domain.OrganizationSubscription{
			OrgID:     orgID,
			PlanCode:  newPlan.PlanCode,
			SeatCount: seatCount,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if current != nil {
			sub.StripeCustomerID = current.StripeCustomerID
			sub.StripeSubscriptionID = current.StripeSubscriptionID
			sub.PeriodStart = current.PeriodStart
			sub.PeriodEnd = current.PeriodEnd
			sub.CreatedAt = current.CreatedAt
		}
		if err := s.store.Billing.UpsertSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("upsert subscription: %w", err)
		}
		return &ChangeResult{}, nil
	}

	if newPlan.StripePriceID == "" {
		return nil, apperr.New(apperr.CodeStripeError, "plan has no stripe_price_id configured")
	}

	if current == nil || current.StripeSubscriptionID == "" {
		// free -> paid: create a Checkout Session; the webhook
		// reconciles the subscription once checkout completes.
		session, err := s.stripe.CreateCheckoutSession(ctx, orgID, req.AdminEmail, newPlan.StripePriceID, seatCount, req.SuccessURL, req.CancelURL)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeStripeError, "failed to create checkout session", err)
		}
		return &ChangeResult{CheckoutURL: session.URL}, nil
	}

	// paid -> paid: update the existing subscription item in place.
	remote, err := s.stripe.GetSubscription(ctx, current.StripeSubscriptionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStripeError, "failed to fetch subscription", err)
	}
	itemID := remote.FirstItemID()
	if itemID == "" {
		return nil, apperr.New(apperr.CodeStripeError, "subscription has no line items")
	}
	updated, err := s.stripe.UpdateSubscriptionItem(ctx, current.StripeSubscriptionID, itemID, newPlan.StripePriceID, seatCount)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStripeError, "failed to update subscription", err)
	}

	sub := &domain.OrganizationSubscription{
		OrgID:                orgID,
		PlanCode:             newPlan.PlanCode,
		SeatCount:            seatCount,
		StripeCustomerID:     current.StripeCustomerID,
		StripeSubscriptionID: updated.ID,
		PeriodStart:          updated.PeriodStart(),
		PeriodEnd:            updated.PeriodEnd(),
		CancelAtPeriodEnd:    updated.CancelAtPeriodEnd,
		CreatedAt:            current.CreatedAt,
		UpdatedAt:            time.Now(),
	}
	if err := s.store.Billing.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return &ChangeResult{}, nil
}

// CancelSubscription sets cancel_at_period_end=true on the org's live
// Stripe subscription. The row itself is updated when Stripe's
// terminal webhook event arrives, not here.
func (s *Service) CancelSubscription(ctx context.Context, orgID string) error {
	current, err := s.store.Billing.GetSubscription(ctx, orgID)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	if current == nil || current.StripeSubscriptionID == "" {
		return apperr.Validation("organization has no active paid subscription to cancel")
	}
	if _, err := s.stripe.CancelAtPeriodEnd(ctx, current.StripeSubscriptionID); err != nil {
		return apperr.Wrap(apperr.CodeStripeError, "failed to cancel subscription", err)
	}
	return nil
}

// newWebhookEventID generates the local row id for a recorded Stripe
// webhook event.
func newWebhookEventID() string { return uuid.NewString() }
