package domain

import "time"

// SubscriptionPlan is a purchasable (or free) plan tier.
type SubscriptionPlan struct {
	PlanCode            string     `json:"plan_code"`
	DisplayName         string     `json:"display_name"`
	IsFree              bool       `json:"is_free"`
	IsPublic            bool       `json:"is_public"`
	StripePriceID       string     `json:"stripe_price_id,omitempty"`
	MinSeats            int        `json:"min_seats"`
	MaxSeats            int        `json:"max_seats"`
	MaxCustomMCPServers *int       `json:"max_custom_mcp_servers,omitempty"` // nil => unlimited
	LogRetentionDays    *int       `json:"log_retention_days,omitempty"`     // nil => unlimited
	ArchivedAt          *time.Time `json:"archived_at,omitempty"`
}

// OrganizationSubscription is the one active subscription row per org.
type OrganizationSubscription struct {
	OrgID               string     `json:"organization_id"`
	PlanCode            string     `json:"plan_code"`
	SeatCount           int        `json:"seat_count"`
	StripeCustomerID    string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	PeriodStart         time.Time  `json:"period_start"`
	PeriodEnd           time.Time  `json:"period_end"`
	CancelAtPeriodEnd   bool       `json:"cancel_at_period_end"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// OrganizationEntitlementOverride overrides one or more plan fields
// for an org until ExpiresAt.
type OrganizationEntitlementOverride struct {
	OrgID               string     `json:"organization_id"`
	SeatCount           *int       `json:"seat_count,omitempty"`
	MaxCustomMCPServers *int       `json:"max_custom_mcp_servers,omitempty"`
	LogRetentionDays    *int       `json:"log_retention_days,omitempty"`
	ExpiresAt           time.Time  `json:"expires_at"`
}

// Entitlement is the resolved numeric caps for an org: plan fields
// overridden field-wise by a non-expired override.
type Entitlement struct {
	SeatCount           int
	MaxCustomMCPServers *int // nil => unlimited
	LogRetentionDays    *int // nil => unlimited
}

// Resolve computes the effective entitlement from a plan and an
// optional, possibly-expired override.
func Resolve(plan *SubscriptionPlan, sub *OrganizationSubscription, override *OrganizationEntitlementOverride, now time.Time) Entitlement {
	ent := Entitlement{
		MaxCustomMCPServers: plan.MaxCustomMCPServers,
		LogRetentionDays:    plan.LogRetentionDays,
	}
	if plan.IsFree {
		ent.SeatCount = plan.MaxSeats
	} else if sub != nil {
		ent.SeatCount = sub.SeatCount
	} else {
		ent.SeatCount = plan.MaxSeats
	}

	if override != nil && now.Before(override.ExpiresAt) {
		if override.SeatCount != nil {
			ent.SeatCount = *override.SeatCount
		}
		if override.MaxCustomMCPServers != nil {
			ent.MaxCustomMCPServers = override.MaxCustomMCPServers
		}
		if override.LogRetentionDays != nil {
			ent.LogRetentionDays = override.LogRetentionDays
		}
	}
	return ent
}

// StripeSubscriptionStatus mirrors the subset of Stripe subscription
// statuses this product reacts to.
type StripeSubscriptionStatus string

const (
	StripeStatusActive           StripeSubscriptionStatus = "active"
	StripeStatusPastDue          StripeSubscriptionStatus = "past_due"
	StripeStatusCanceled         StripeSubscriptionStatus = "canceled"
	StripeStatusIncompleteExpired StripeSubscriptionStatus = "incomplete_expired"
	StripeStatusIncomplete       StripeSubscriptionStatus = "incomplete"
	StripeStatusUnpaid           StripeSubscriptionStatus = "unpaid"
	StripeStatusPaused           StripeSubscriptionStatus = "paused"
	StripeStatusTrialing         StripeSubscriptionStatus = "trialing"
)

// StripeWebhookEvent records one delivered Stripe event for idempotent
// processing, keyed uniquely by StripeEventID.
type StripeWebhookEvent struct {
	ID            string    `json:"id"`
	StripeEventID string    `json:"stripe_event_id"`
	EventType     string    `json:"event_type"`
	ReceivedAt    time.Time `json:"received_at"`
}
