package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mcpgate/internal/domain"
	"mcpgate/internal/telemetry"
)

// signatureTolerance bounds how stale a Stripe-Signature timestamp
// may be, guarding against replay of a captured payload.
const signatureTolerance = 5 * time.Minute

// webhookEnvelope is the subset of Stripe's event envelope needed to
// identify and dispatch the event; the embedded object itself is
// never trusted — HandleWebhook re-fetches authoritative state.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			Subscription      string `json:"subscription"`       // checkout.session.*
			ClientReferenceID string `json:"client_reference_id"` // checkout.session.*, set to orgID at creation
			Customer          string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// subscriptionEventTypes are the Stripe event types this handler
// reconciles against organization_subscriptions. Other event types
// (e.g. invoice.* ) are recorded for idempotency but otherwise
// ignored.
var subscriptionEventTypes = map[string]bool{
	"checkout.session.completed":  true,
	"customer.subscription.created": true,
	"customer.subscription.updated": true,
	"customer.subscription.deleted": true,
}

// HandleWebhook verifies the Stripe-Signature header, records the
// event for idempotency, and — for subscription-shaped events — pulls
// the referenced subscription from Stripe and reconciles the local
// row. Only a signature failure returns a non-2xx status; everything
// else (including an internal reconciliation error) is swallowed
// after the event is recorded, so Stripe does not endlessly redeliver
// a payload the gateway failed to process once.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string, log telemetry.Logger) error {
	if !verifyStripeSignature(payload, sigHeader, s.webhookKey, signatureTolerance, time.Now()) {
		return errSignatureInvalid
	}

	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Error("stripe webhook: malformed payload", "error", err)
		return nil
	}

	fresh, err := s.store.Billing.RecordWebhookEvent(ctx, &domain.StripeWebhookEvent{
		ID:            newWebhookEventID(),
		StripeEventID: env.ID,
		EventType:     env.Type,
		ReceivedAt:    time.Now(),
	})
	if err != nil {
		log.Error("stripe webhook: failed to record event", "stripe_event_id", env.ID, "error", err)
		return nil
	}
	if !fresh {
		log.Info("stripe webhook: duplicate delivery ignored", "stripe_event_id", env.ID)
		return nil
	}

	if !subscriptionEventTypes[env.Type] {
		return nil
	}

	var subscriptionID, orgHint string
	if env.Type == "checkout.session.completed" {
		subscriptionID = env.Data.Object.Subscription
		orgHint = env.Data.Object.ClientReferenceID
	} else {
		subscriptionID = env.Data.Object.ID
	}
	if subscriptionID == "" {
		return nil
	}

	if err := s.reconcileSubscription(ctx, subscriptionID, orgHint); err != nil {
		log.Error("stripe webhook: reconciliation failed", "stripe_event_id", env.ID, "subscription_id", subscriptionID, "error", err)
	}
	return nil
}

// errSignatureInvalid is the sentinel the HTTP layer maps to 400; it
// is the only case where the webhook responds with a non-2xx status.
var errSignatureInvalid = fmt.Errorf("stripe webhook: signature verification failed")

// errUnexpectedSubscriptionStatus is returned for a remote status this
// product never expects to see (unpaid, paused, trialing); reconciling
// it is rejected rather than silently applied.
var errUnexpectedSubscriptionStatus = fmt.Errorf("stripe webhook: unexpected subscription status")

// reconcileSubscription pulls subscriptionID's authoritative state
// from Stripe and branches on its status, resolving which org it
// belongs to via the locally-stored stripe_customer_id on the existing
// subscription row; the org-to-customer mapping is assigned when the
// org's Checkout Session is created and never taken from the webhook
// body.
//
// State machine on the pulled status:
//   - active | past_due            -> upsert row with those fields.
//   - canceled | incomplete_expired -> delete row (org falls back to free).
//   - incomplete                   -> ignore (not yet billable).
//   - unpaid | paused | trialing   -> reject (unexpected for this product).
func (s *Service) reconcileSubscription(ctx context.Context, subscriptionID, orgHint string) error {
	remote, err := s.stripe.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription: %w", err)
	}

	orgID, existing, err := s.findSubscriptionOwner(ctx, subscriptionID, remote.Customer)
	if err != nil {
		return err
	}
	if orgID == "" {
		// No local row references this subscription or customer yet.
		// The only trustworthy source for the org on first linkage is
		// client_reference_id set on the Checkout Session at creation;
		// the webhook body's own fields are never trusted for anything
		// beyond resolving *which* subscription to pull.
		orgID = orgHint
	}
	if orgID == "" {
		return nil
	}

	switch remote.Status {
	case "active", "past_due":
		// fall through to upsert below
	case "canceled", "incomplete_expired":
		return s.store.Billing.DeleteSubscription(ctx, orgID)
	case "incomplete":
		return nil
	default:
		// unpaid, paused, trialing, or anything else Stripe might send.
		return fmt.Errorf("%w: %s", errUnexpectedSubscriptionStatus, remote.Status)
	}

	sub := &domain.OrganizationSubscription{
		OrgID:                orgID,
		StripeCustomerID:     remote.Customer,
		StripeSubscriptionID: remote.ID,
		PeriodStart:          remote.PeriodStart(),
		PeriodEnd:            remote.PeriodEnd(),
		CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
		UpdatedAt:            time.Now(),
	}
	if existing != nil {
		sub.PlanCode = existing.PlanCode
		sub.SeatCount = existing.SeatCount
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.CreatedAt = time.Now()
	}
	if len(remote.Items.Data) > 0 {
		sub.SeatCount = remote.Items.Data[0].Quantity
	}

	return s.store.Billing.UpsertSubscription(ctx, sub)
}

// findSubscriptionOwner resolves which org a Stripe subscription/
// customer belongs to by looking up the org whose stored subscription
// already references either id. Returns an empty orgID if none does.
func (s *Service) findSubscriptionOwner(ctx context.Context, subscriptionID, customerID string) (string, *domain.OrganizationSubscription, error) {
	existing, err := s.store.Billing.GetSubscriptionByStripeID(ctx, subscriptionID, customerID)
	if err != nil {
		return "", nil, fmt.Errorf("lookup subscription owner: %w", err)
	}
	if existing != nil {
		return existing.OrgID, existing, nil
	}
	return "", nil, nil
}
