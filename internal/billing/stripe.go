// Package billing resolves organization entitlements against
// subscription plans and reconciles them with Stripe.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient is a minimal hand-rolled client for the Stripe REST
// API: Checkout Session creation, subscription item updates, and
// subscription lookups. Stripe's API is form-encoded, not JSON.
type StripeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewStripeClient constructs a client using apiKey as the bearer
// (Stripe accepts the secret key as HTTP basic auth username with an
// empty password, or as a bearer token; we use the bearer form).
func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    stripeAPIBase,
	}
}

// CheckoutSession is the subset of Stripe's checkout.session object
// this client cares about.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a free→paid upgrade: a hosted Checkout
// page that, on completion, Stripe will report back through the
// webhook as a subscription creation event.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, orgID, customerEmail, priceID string, quantity int, successURL, cancelURL string) (*CheckoutSession, error) {
	form := url.Values{
		"mode":                     {"subscription"},
		"success_url":              {successURL},
		"cancel_url":               {cancelURL},
		"client_reference_id":      {orgID},
		"line_items[0][price]":     {priceID},
		"line_items[0][quantity]": {strconv.Itoa(quantity)},
	}
	if customerEmail != "" {
		form.Set("customer_email", customerEmail)
	}

	var out CheckoutSession
	if err := c.post(ctx, "/checkout/sessions", form, &out); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &out, nil
}

// Subscription is the subset of Stripe's subscription object this
// client cares about.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			ID       string `json:"id"`
			Price    struct {
				ID string `json:"id"`
			} `json:"price"`
			Quantity int `json:"quantity"`
		} `json:"data"`
	} `json:"items"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// PeriodStart returns the subscription's current period start.
func (s *Subscription) PeriodStart() time.Time { return time.Unix(s.CurrentPeriodStart, 0).UTC() }

// PeriodEnd returns the subscription's current period end.
func (s *Subscription) PeriodEnd() time.Time { return time.Unix(s.CurrentPeriodEnd, 0).UTC() }

// FirstItemID returns the subscription's first line item id, used to
// target updates (Stripe subscriptions are updated item-by-item, not
// wholesale).
func (s *Subscription) FirstItemID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].ID
}

// GetSubscription fetches the authoritative subscription state from
// Stripe by id. The webhook handler calls this instead of trusting
// the event payload's embedded object.
func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var out Subscription
	if err := c.get(ctx, "/subscriptions/"+url.PathEscape(subscriptionID), &out); err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &out, nil
}

// UpdateSubscriptionItem changes an existing paid subscription's
// price/seat quantity with proration_behavior=always_invoice, per the
// paid→paid change policy.
func (c *StripeClient) UpdateSubscriptionItem(ctx context.Context, subscriptionID, itemID, priceID string, quantity int) (*Subscription, error) {
	form := url.Values{
		"proration_behavior":  {"always_invoice"},
		"items[0][id]":        {itemID},
		"items[0][price]":     {priceID},
		"items[0][quantity]":  {strconv.Itoa(quantity)},
	}
	var out Subscription
	if err := c.post(ctx, "/subscriptions/"+url.PathEscape(subscriptionID), form, &out); err != nil {
		return nil, fmt.Errorf("update subscription item: %w", err)
	}
	return &out, nil
}

// CancelAtPeriodEnd sets cancel_at_period_end=true. Stripe emits the
// terminal customer.subscription.deleted (or updated) event at the
// period boundary; we don't act on cancellation locally until that
// webhook arrives.
func (c *StripeClient) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	form := url.Values{"cancel_at_period_end": {"true"}}
	var out Subscription
	if err := c.post(ctx, "/subscriptions/"+url.PathEscape(subscriptionID), form, &out); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	return &out, nil
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.apiKey, "")
	return c.do(req, out)
}

func (c *StripeClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.apiKey, "")
	return c.do(req, out)
}

func (c *StripeClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		json.Unmarshal(body, &apiErr)
		if apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s: %s", resp.Status, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe %s: %s", resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// verifyStripeSignature checks a Stripe-Signature header of the form
// "t=<timestamp>,v1=<hexhmac>,..." against payload using secret,
// rejecting signatures older than tolerance. Stripe signs
// "<timestamp>.<payload>" with HMAC-SHA256.
func verifyStripeSignature(payload []byte, sigHeader, secret string, tolerance time.Duration, now time.Time) bool {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}
