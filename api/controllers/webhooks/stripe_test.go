package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/internal/fulfillment"
	stripewebhook "github.com/angelmondragon/kiggyshop-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/idempotency"
)

const testSecret = "whsec_test"

func TestStripeWebhook_FulfillsOnceAndAcksReplays(t *testing.T) {
	payload, header := buildSignedCheckoutEvent(t, "checkout.session.completed", "paid")
	fulfiller := &fakeFulfiller{}
	metrics := &outcomeCounter{}
	handler := newHandler(t, fulfiller, metrics)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if fulfiller.calls != 1 {
		t.Fatalf("expected fulfiller called once, got %d", fulfiller.calls)
	}

	rec2 := post(handler, payload, header)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if fulfiller.calls != 1 {
		t.Fatalf("expected replay to skip fulfillment, call count %d", fulfiller.calls)
	}
	if metrics.counts["fulfilled"] != 1 || metrics.counts["duplicate"] != 1 {
		t.Fatalf("unexpected outcomes %v", metrics.counts)
	}
}

func TestStripeWebhook_InvalidSignatureNeverFulfills(t *testing.T) {
	payload, _ := buildSignedCheckoutEvent(t, "checkout.session.completed", "paid")
	fulfiller := &fakeFulfiller{}
	handler := newHandler(t, fulfiller, nil)

	rec := post(handler, payload, "t=1,v1=invalid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeInvalidSignature) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeInvalidSignature, code)
	}
	if fulfiller.calls != 0 {
		t.Fatalf("fulfiller should not be invoked on invalid signature")
	}
}

func TestStripeWebhook_IgnoresUnrelatedEvents(t *testing.T) {
	payload, header := buildSignedCheckoutEvent(t, "customer.created", "paid")
	fulfiller := &fakeFulfiller{}
	handler := newHandler(t, fulfiller, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fulfiller.calls != 0 {
		t.Fatalf("unrelated events must not fulfill")
	}
}

func TestStripeWebhook_UnpaidCompletionWaitsForAsyncSuccess(t *testing.T) {
	fulfiller := &fakeFulfiller{}
	handler := newHandler(t, fulfiller, nil)

	payload, header := buildSignedCheckoutEvent(t, "checkout.session.completed", "unpaid")
	if rec := post(handler, payload, header); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fulfiller.calls != 0 {
		t.Fatalf("unpaid completion must not fulfill")
	}

	payload, header = buildSignedCheckoutEvent(t, "checkout.session.async_payment_succeeded", "paid")
	if rec := post(handler, payload, header); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fulfiller.calls != 1 {
		t.Fatalf("expected async success to fulfill, got %d calls", fulfiller.calls)
	}
}

func TestStripeWebhook_FailureReleasesGuardForRedelivery(t *testing.T) {
	payload, header := buildSignedCheckoutEvent(t, "checkout.session.completed", "paid")
	fulfiller := &fakeFulfiller{errs: []error{pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "fulfill checkout")}}
	handler := newHandler(t, fulfiller, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	rec = post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery to succeed, got %d (%s)", rec.Code, rec.Body.String())
	}
	if fulfiller.calls != 2 {
		t.Fatalf("expected two attempts, got %d", fulfiller.calls)
	}
}

func TestStripeWebhook_DuplicateFulfillmentIsAcknowledged(t *testing.T) {
	payload, header := buildSignedCheckoutEvent(t, "checkout.session.completed", "paid")
	fulfiller := &fakeFulfiller{errs: []error{fmt.Errorf("%w: already recorded", fulfillment.ErrDuplicateFulfillment)}}
	handler := newHandler(t, fulfiller, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate fulfillment, got %d", rec.Code)
	}
}

func TestStripeWebhook_MalformedCheckoutIsClientError(t *testing.T) {
	object := checkoutObject(uuid.New(), "paid")
	delete(object, "customer_details")
	payload, header := signedEvent(t, "checkout.session.completed", object)
	fulfiller := &fakeFulfiller{}
	handler := newHandler(t, fulfiller, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeMalformedPayload) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeMalformedPayload, code)
	}
	if fulfiller.calls != 0 {
		t.Fatalf("fulfiller should not be invoked on malformed payload")
	}
}

func TestStripeWebhook_UnshippableAddressFlagsSession(t *testing.T) {
	sessionID := uuid.New()
	object := checkoutObject(sessionID, "paid")
	shipping := object["collected_information"].(map[string]any)["shipping_details"].(map[string]any)
	shipping["address"].(map[string]any)["state"] = "PR"
	payload, header := signedEvent(t, "checkout.session.completed", object)
	fulfiller := &fakeFulfiller{}
	metrics := &outcomeCounter{}
	handler := newHandler(t, fulfiller, metrics)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if fulfiller.calls != 0 {
		t.Fatalf("unshippable checkout must not fulfill")
	}
	if len(fulfiller.flagged) != 1 || fulfiller.flagged[0] != sessionID {
		t.Fatalf("expected session %s flagged once, got %v", sessionID, fulfiller.flagged)
	}
	if metrics.counts["needs_attention"] != 1 {
		t.Fatalf("unexpected outcomes %v", metrics.counts)
	}
}

func TestStripeWebhook_MissingFieldsDoNotFlag(t *testing.T) {
	object := checkoutObject(uuid.New(), "paid")
	delete(object, "collected_information")
	payload, header := signedEvent(t, "checkout.session.completed", object)
	fulfiller := &fakeFulfiller{}
	handler := newHandler(t, fulfiller, nil)

	if rec := post(handler, payload, header); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(fulfiller.flagged) != 0 {
		t.Fatalf("incomplete payloads are not flagged, got %v", fulfiller.flagged)
	}
}

func newHandler(t *testing.T, fulfiller *fakeFulfiller, metrics *outcomeCounter) http.HandlerFunc {
	t.Helper()
	verifier, err := stripewebhook.NewVerifier(testSecret, 0)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	manager, err := idempotency.NewManager(newInMemoryStore(), time.Minute)
	if err != nil {
		t.Fatalf("idempotency setup: %v", err)
	}
	guard, err := manager.Scope("stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	if metrics == nil {
		metrics = &outcomeCounter{}
	}
	return StripeWebhook(verifier, fulfiller, guard, metrics, nil)
}

func post(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func checkoutObject(checkoutSessionID uuid.UUID, paymentStatus string) map[string]any {
	return map[string]any{
		"id":                  "cs_test_" + uuid.NewString(),
		"object":              "checkout.session",
		"client_reference_id": checkoutSessionID.String(),
		"metadata":            map[string]string{"checkout_session_id": checkoutSessionID.String()},
		"payment_status":      paymentStatus,
		"amount_total":        2400,
		"currency":            "usd",
		"customer_details": map[string]any{
			"email": "ada@example.com",
			"name":  "Ada Park",
		},
		"collected_information": map[string]any{
			"shipping_details": map[string]any{
				"name": "Ada Park",
				"address": map[string]any{
					"line1":       "1208 Juniper Hollow Rd",
					"city":        "Springfield",
					"state":       "IL",
					"postal_code": "62701",
					"country":     "US",
				},
			},
		},
	}
}

func buildSignedCheckoutEvent(t *testing.T, eventType, paymentStatus string) ([]byte, string) {
	return signedEvent(t, eventType, checkoutObject(uuid.New(), paymentStatus))
}

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_" + uuid.NewString(),
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, buildStripeSignatureHeader(payload, testSecret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeFulfiller struct {
	calls   int
	errs    []error
	flagged []uuid.UUID
}

func (f *fakeFulfiller) FlagUnshippable(_ context.Context, in *fulfillment.UnshippableError) error {
	f.flagged = append(f.flagged, in.CheckoutSessionID)
	return nil
}

func (f *fakeFulfiller) Fulfill(_ context.Context, in fulfillment.CheckoutCompleted) (*fulfillment.Result, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fulfillment.Result{OrderID: uuid.New(), CheckoutSessionID: in.CheckoutSessionID, TotalCents: in.AmountTotalCents}, nil
}

type outcomeCounter struct {
	counts map[string]int
}

func (o *outcomeCounter) WebhookEvent(outcome string) {
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome]++
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("ks:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
