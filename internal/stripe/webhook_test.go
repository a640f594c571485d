package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromapicker/license-server/internal/store"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func checkoutEventJSON(sessionID, email, paymentStatus string) string {
	return fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": %q,
				"object": "checkout.session",
				"payment_status": %q,
				"customer_details": {"email": %q}
			}
		}
	}`, sessionID, sessionID, paymentStatus, email)
}

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookIssuesLicenseForPaidCheckout(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler(testSecret, NewIssuer(st))

	req := signedWebhookRequest(t, testSecret, checkoutEventJSON("cs_wh_1", "hook@example.com", "paid"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp webhookReceivedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received {
		t.Error("expected received=true")
	}

	license, err := st.GetByStripeSessionID("cs_wh_1")
	if err != nil {
		t.Fatal(err)
	}
	if license == nil {
		t.Fatal("expected a license record")
	}
	if license.Email != "hook@example.com" {
		t.Errorf("Email = %q, want %q", license.Email, "hook@example.com")
	}
	if !store.KeyPattern.MatchString(license.LicenseKey) {
		t.Errorf("key %q does not match XXXX-XXXX-XXXX-XXXX", license.LicenseKey)
	}
}

func TestWebhookDuplicateDeliveryCreatesNoSecondLicense(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler(testSecret, NewIssuer(st))

	eventJSON := checkoutEventJSON("cs_wh_dup", "dup@example.com", "paid")

	for i := 0; i < 3; i++ {
		req := signedWebhookRequest(t, testSecret, eventJSON)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status=%d, want=%d, body=%q", i+1, rec.Code, http.StatusOK, rec.Body.String())
		}
	}

	licenses, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(licenses) != 1 {
		t.Fatalf("expected exactly 1 license after redeliveries, got %d", len(licenses))
	}
}

func TestWebhookSkipsUnpaidCheckout(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler(testSecret, NewIssuer(st))

	req := signedWebhookRequest(t, testSecret, checkoutEventJSON("cs_wh_unpaid", "nope@example.com", "unpaid"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusOK)
	}

	licenses, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(licenses) != 0 {
		t.Errorf("expected no licenses for unpaid checkout, got %d", len(licenses))
	}
}

func TestWebhookAcksMalformedCheckoutPayload(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler(testSecret, NewIssuer(st))

	// Signature-valid event whose object shape does not decode. A non-2xx
	// response would make Stripe redeliver it forever.
	eventJSON := `{
		"id": "evt_malformed",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_malformed", "payment_status": 123}}
	}`
	req := signedWebhookRequest(t, testSecret, eventJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp webhookReceivedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received {
		t.Error("expected received=true for malformed payload")
	}

	licenses, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(licenses) != 0 {
		t.Errorf("malformed payload must not create a license, got %d", len(licenses))
	}
}

func TestWebhookIgnoresUnhandledEventTypes(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler(testSecret, NewIssuer(st))

	eventJSON := `{"id":"evt_other","object":"event","type":"invoice.paid","data":{"object":{"id":"in_123"}}}`
	req := signedWebhookRequest(t, testSecret, eventJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler(testSecret, NewIssuer(st))

	// Signed with the wrong secret.
	req := signedWebhookRequest(t, "whsec_wrong_secret", checkoutEventJSON("cs_wh_forged", "evil@example.com", "paid"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusBadRequest)
	}

	licenses, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(licenses) != 0 {
		t.Errorf("forged event must not create a license, got %d", len(licenses))
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	handler := NewWebhookHandler(testSecret, NewIssuer(newTestStore(t)))

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook",
		bytes.NewReader([]byte(checkoutEventJSON("cs_wh_nosig", "a@example.com", "paid"))))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebhookRejectsNonPost(t *testing.T) {
	handler := NewWebhookHandler(testSecret, NewIssuer(newTestStore(t)))

	req := httptest.NewRequest(http.MethodGet, "/api/stripe/webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebhookRequiresConfiguredSecret(t *testing.T) {
	handler := NewWebhookHandler("", NewIssuer(newTestStore(t)))

	req := signedWebhookRequest(t, testSecret, checkoutEventJSON("cs_wh_nosecret", "a@example.com", "paid"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusServiceUnavailable)
	}
}
