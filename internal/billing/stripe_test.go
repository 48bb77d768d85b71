package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signedHeader(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeSignature_AcceptsValidSignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	now := time.Unix(1_700_000_000, 0)
	header := signedHeader(secret, "1700000000", payload)

	if !verifyStripeSignature(payload, header, secret, 5*time.Minute, now) {
		t.Error("expected a correctly-signed payload to verify")
	}
}

func TestVerifyStripeSignature_RejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1_700_000_000, 0)
	header := signedHeader("whsec_actual", "1700000000", payload)

	if verifyStripeSignature(payload, header, "whsec_wrong", 5*time.Minute, now) {
		t.Error("expected signature verification to fail with the wrong secret")
	}
}

func TestVerifyStripeSignature_RejectsTamperedPayload(t *testing.T) {
	secret := "whsec_test"
	now := time.Unix(1_700_000_000, 0)
	header := signedHeader(secret, "1700000000", []byte(`{"id":"evt_1"}`))

	if verifyStripeSignature([]byte(`{"id":"evt_2"}`), header, secret, 5*time.Minute, now) {
		t.Error("expected signature verification to fail for a payload different from the one signed")
	}
}

func TestVerifyStripeSignature_RejectsStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	header := signedHeader(secret, "1700000000", payload)
	farFuture := time.Unix(1_700_000_000, 0).Add(time.Hour)

	if verifyStripeSignature(payload, header, secret, 5*time.Minute, farFuture) {
		t.Error("expected a signature outside the tolerance window to be rejected")
	}
}

func TestVerifyStripeSignature_RejectsMalformedHeader(t *testing.T) {
	if verifyStripeSignature([]byte("{}"), "not-a-valid-header", "secret", 5*time.Minute, time.Now()) {
		t.Error("expected a malformed Stripe-Signature header to be rejected")
	}
	if verifyStripeSignature([]byte("{}"), "", "secret", 5*time.Minute, time.Now()) {
		t.Error("expected an empty Stripe-Signature header to be rejected")
	}
}
