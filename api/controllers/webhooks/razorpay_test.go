package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	razorpaywebhook "github.com/fabrevive/pickup-payments/internal/webhooks/razorpay"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

const testSecret = "whsec_test"

type staticSecret struct {
	secret string
}

func (s staticSecret) WebhookSecret() (string, error) {
	if s.secret == "" {
		return "", pkgerrors.New(pkgerrors.CodeMisconfigured, "SERVER_MISCONFIG: missing PICKUP_RAZORPAY_WEBHOOK_SECRET")
	}
	return s.secret, nil
}

type fakeReconciler struct {
	calls  int
	events []*razorpaywebhook.Event
	err    error
	result razorpaywebhook.Result
}

func (f *fakeReconciler) Reconcile(_ context.Context, event *razorpaywebhook.Event, _ string) (razorpaywebhook.Result, error) {
	f.calls++
	f.events = append(f.events, event)
	if f.err != nil {
		return razorpaywebhook.Result{}, f.err
	}
	return f.result, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Duration
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{keys: map[string]time.Duration{}}
}

func (s *inMemoryStore) ttl(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl, ok := s.keys[key]
	return ttl, ok
}

func (s *inMemoryStore) Get(context.Context, string) (string, error) { return "", nil }

func (s *inMemoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = ttl
	return true, nil
}

func (s *inMemoryStore) Set(_ context.Context, key string, _ any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = ttl
	return nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return "pickup:idempotency:" + scope + ":" + id
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}

var paidEvent = []byte(`{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"id":"plink_1","reference_id":"pickup:abc123","notes":[]}}}}`)

func send(handler http.Handler, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRazorpayWebhook_SuccessAndIdempotent(t *testing.T) {
	reconciler := &fakeReconciler{result: razorpaywebhook.Result{Outcome: razorpaywebhook.OutcomeReconciled, DocID: "abc123"}}
	store := newInMemoryStore()
	guard, err := razorpaywebhook.NewDeliveryGuard(store, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := RazorpayWebhook(RazorpayParams{
		Secrets:    staticSecret{secret: testSecret},
		Reconciler: reconciler,
		Guard:      guard,
		Logger:     logger.Nop(),
	})
	headers := map[string]string{
		"X-Razorpay-Signature": razorpaywebhook.Sign(paidEvent, testSecret),
		"X-Razorpay-Event-Id":  "evt_1",
	}

	rec := send(handler, paidEvent, headers)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 200, got %d (%q)", rec.Code, rec.Body.String())
	}
	if reconciler.calls != 1 || reconciler.events[0].DocID() != "abc123" {
		t.Fatalf("unexpected reconcile calls %d", reconciler.calls)
	}
	if ttl, _ := store.ttl("pickup:idempotency:razorpay-webhook:evt_1"); ttl != time.Hour {
		t.Fatalf("reconciled delivery should be kept for the retention window, got %v", ttl)
	}

	rec = send(handler, paidEvent, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	if reconciler.calls != 1 {
		t.Fatalf("duplicate should not reconcile again, got %d", reconciler.calls)
	}
}

func TestRazorpayWebhook_FallbackSignatureHeader(t *testing.T) {
	reconciler := &fakeReconciler{}
	handler := RazorpayWebhook(RazorpayParams{Secrets: staticSecret{secret: testSecret}, Reconciler: reconciler})

	rec := send(handler, paidEvent, map[string]string{"X-Signature": razorpaywebhook.Sign(paidEvent, testSecret)})
	if rec.Code != http.StatusOK || reconciler.calls != 1 {
		t.Fatalf("expected reconciled 200, got %d calls=%d", rec.Code, reconciler.calls)
	}
}

func TestRazorpayWebhook_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		secret  string
		body    []byte
		headers map[string]string
		status  int
	}{
		{
			name:    "missing secret",
			body:    paidEvent,
			headers: map[string]string{"X-Razorpay-Signature": razorpaywebhook.Sign(paidEvent, "")},
			status:  http.StatusInternalServerError,
		},
		{
			name:   "missing signature",
			secret: testSecret,
			body:   paidEvent,
			status: http.StatusBadRequest,
		},
		{
			name:    "wrong signature",
			secret:  testSecret,
			body:    paidEvent,
			headers: map[string]string{"X-Razorpay-Signature": razorpaywebhook.Sign(paidEvent, "other")},
			status:  http.StatusBadRequest,
		},
		{
			name:    "tampered body",
			secret:  testSecret,
			body:    bytes.Replace(paidEvent, []byte("abc123"), []byte("abc124"), 1),
			headers: map[string]string{"X-Razorpay-Signature": razorpaywebhook.Sign(paidEvent, testSecret)},
			status:  http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reconciler := &fakeReconciler{}
			handler := RazorpayWebhook(RazorpayParams{Secrets: staticSecret{secret: tc.secret}, Reconciler: reconciler, Logger: logger.Nop()})
			rec := send(handler, tc.body, tc.headers)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Fatalf("webhook responses must be empty, got %q", rec.Body.String())
			}
			if reconciler.calls != 0 {
				t.Fatalf("reconciler must not run")
			}
		})
	}
}

func TestRazorpayWebhook_MalformedJSONIsAcknowledged(t *testing.T) {
	body := []byte(`{"event":"payment_link.paid",`)
	reconciler := &fakeReconciler{}
	handler := RazorpayWebhook(RazorpayParams{Secrets: staticSecret{secret: testSecret}, Reconciler: reconciler, Logger: logger.Nop()})

	rec := send(handler, body, map[string]string{"X-Razorpay-Signature": razorpaywebhook.Sign(body, testSecret)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reconciler.calls != 0 {
		t.Fatalf("reconciler must not run on malformed payload")
	}
}

func TestRazorpayWebhook_FailureReleasesGuard(t *testing.T) {
	reconciler := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeInternal, "merge booking")}
	store := newInMemoryStore()
	guard, _ := razorpaywebhook.NewDeliveryGuard(store, time.Minute, time.Hour)
	handler := RazorpayWebhook(RazorpayParams{
		Secrets:    staticSecret{secret: testSecret},
		Reconciler: reconciler,
		Guard:      guard,
		Logger:     logger.Nop(),
	})
	headers := map[string]string{
		"X-Razorpay-Signature": razorpaywebhook.Sign(paidEvent, testSecret),
		"X-Razorpay-Event-Id":  "evt_2",
	}

	if rec := send(handler, paidEvent, headers); rec.Code != http.StatusInternalServerError || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 500, got %d (%q)", rec.Code, rec.Body.String())
	}
	if _, held := store.ttl("pickup:idempotency:razorpay-webhook:evt_2"); held {
		t.Fatal("failed delivery must not keep its claim")
	}

	reconciler.err = nil
	if rec := send(handler, paidEvent, headers); rec.Code != http.StatusOK {
		t.Fatalf("retry should succeed, got %d", rec.Code)
	}
	if reconciler.calls != 2 {
		t.Fatalf("retry should reach the reconciler, got %d calls", reconciler.calls)
	}
}

type ttlObservingReconciler struct {
	store *inMemoryStore
	seen  time.Duration
}

func (b *ttlObservingReconciler) Reconcile(_ context.Context, _ *razorpaywebhook.Event, eventID string) (razorpaywebhook.Result, error) {
	b.seen, _ = b.store.ttl("pickup:idempotency:razorpay-webhook:" + eventID)
	return razorpaywebhook.Result{Outcome: razorpaywebhook.OutcomeReconciled}, nil
}

func TestRazorpayWebhook_ClaimIsShortUntilReconciled(t *testing.T) {
	store := newInMemoryStore()
	guard, _ := razorpaywebhook.NewDeliveryGuard(store, 2*time.Minute, 72*time.Hour)
	reconciler := &ttlObservingReconciler{store: store}
	handler := RazorpayWebhook(RazorpayParams{
		Secrets:    staticSecret{secret: testSecret},
		Reconciler: reconciler,
		Guard:      guard,
		Logger:     logger.Nop(),
	})

	rec := send(handler, paidEvent, map[string]string{
		"X-Razorpay-Signature": razorpaywebhook.Sign(paidEvent, testSecret),
		"X-Razorpay-Event-Id":  "evt_3",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reconciler.seen != 2*time.Minute {
		t.Fatalf("in-flight claim should use the short ttl, got %v", reconciler.seen)
	}
	if ttl, _ := store.ttl("pickup:idempotency:razorpay-webhook:evt_3"); ttl != 72*time.Hour {
		t.Fatalf("expected processed ttl after reconcile, got %v", ttl)
	}
}

func TestRazorpayWebhook_NotConfigured(t *testing.T) {
	rec := send(RazorpayWebhook(RazorpayParams{}), paidEvent, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
