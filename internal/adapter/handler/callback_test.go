package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/E5GEN2/highbid.ai/internal/core/security"
)

const testSecret = "test-ipn-secret"

type settleCall struct {
	accountID string
	paymentID string
	amount    int64
}

type failCall struct {
	accountID   string
	paymentID   string
	amount      int64
	description string
}

// mockStore implements CallbackStore for testing.
type mockStore struct {
	SettleFunc func(ctx context.Context, accountID, paymentID string, amount int64) (bool, int64, error)
	FailFunc   func(ctx context.Context, accountID, paymentID string, amount int64, description string) error

	settleCalls []settleCall
	failCalls   []failCall
	queuedURLs  []string
	queuedBody  [][]byte
}

func (m *mockStore) SettlePayment(ctx context.Context, accountID, paymentID string, amount int64) (bool, int64, error) {
	m.settleCalls = append(m.settleCalls, settleCall{accountID, paymentID, amount})
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, accountID, paymentID, amount)
	}
	return true, amount, nil
}

func (m *mockStore) FailPayment(ctx context.Context, accountID, paymentID string, amount int64, description string) error {
	m.failCalls = append(m.failCalls, failCall{accountID, paymentID, amount, description})
	if m.FailFunc != nil {
		return m.FailFunc(ctx, accountID, paymentID, amount, description)
	}
	return nil
}

func (m *mockStore) QueueEvent(_ context.Context, url string, payload []byte) error {
	m.queuedURLs = append(m.queuedURLs, url)
	m.queuedBody = append(m.queuedBody, payload)
	return nil
}

func newCallbackApp(h *CallbackHandler) *fiber.App {
	app := fiber.New()
	app.Post("/v1/payments/nowpayments/callback", h.HandleCallback)
	return app
}

func postCallback(t *testing.T, app *fiber.App, body []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/nowpayments/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-nowpayments-sig", signature)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func notificationBody(t *testing.T, overrides map[string]interface{}) []byte {
	t.Helper()
	n := map[string]interface{}{
		"payment_id":        "p1",
		"payment_status":    "finished",
		"pay_address":       "bc1qtestaddr",
		"price_amount":      50,
		"price_currency":    "usd",
		"pay_amount":        0.002,
		"pay_currency":      "btc",
		"order_id":          "topup-1700000000000-user42",
		"order_description": "Balance top-up: $50",
		"created_at":        "2025-01-10T10:00:00Z",
		"updated_at":        "2025-01-10T10:05:00Z",
	}
	for k, v := range overrides {
		n[k] = v
	}
	body, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return out
}

func TestCallbackSettled(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, nil)
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := decodeResponse(t, resp); got["status"] != "received" {
		t.Errorf(`response = %v, want {"status":"received"}`, got)
	}

	if len(store.settleCalls) != 1 {
		t.Fatalf("settle calls = %d, want 1", len(store.settleCalls))
	}
	call := store.settleCalls[0]
	if call.accountID != "user42" || call.paymentID != "p1" || call.amount != 5000 {
		t.Errorf("settle call = %+v, want user42/p1/5000", call)
	}
	if len(store.failCalls) != 0 {
		t.Errorf("fail calls = %d, want 0", len(store.failCalls))
	}
}

func TestCallbackSettledConfirmedStatus(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, map[string]interface{}{"payment_status": "confirmed"})
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.settleCalls) != 1 {
		t.Errorf("settle calls = %d, want 1", len(store.settleCalls))
	}
}

func TestCallbackMalformedOrderID(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, map[string]interface{}{"order_id": "malformed-id"})
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	// Provider contract: still acknowledged.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 || len(store.failCalls) != 0 {
		t.Errorf("mutations attempted for malformed order id: %d settles, %d fails",
			len(store.settleCalls), len(store.failCalls))
	}
}

func TestCallbackTamperedSignature(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, nil)
	sig := security.SignIPN(body, testSecret)
	tampered := "0" + sig[1:]
	if tampered == sig {
		tampered = "1" + sig[1:]
	}

	resp := postCallback(t, app, body, tampered)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 || len(store.failCalls) != 0 {
		t.Error("mutation attempted despite signature mismatch")
	}
}

func TestCallbackMissingSignature(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	resp := postCallback(t, app, notificationBody(t, nil), "")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 {
		t.Error("mutation attempted despite missing signature")
	}
}

func TestCallbackUnconfiguredSecret(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: ""})

	body := notificationBody(t, nil)
	resp := postCallback(t, app, body, security.SignIPN(body, "whatever"))

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 {
		t.Error("mutation attempted despite unconfigured secret")
	}
}

func TestCallbackUnparseableBody(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := []byte(`{"payment_id":`)
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 || len(store.failCalls) != 0 {
		t.Error("mutation attempted for unparseable body")
	}
}

func TestCallbackUnrecognizedStatus(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, map[string]interface{}{"payment_status": "waiting"})
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := decodeResponse(t, resp); got["status"] != "received" {
		t.Errorf(`response = %v, want {"status":"received"}`, got)
	}
	if len(store.settleCalls) != 0 || len(store.failCalls) != 0 {
		t.Errorf("mutations for status waiting: %d settles, %d fails",
			len(store.settleCalls), len(store.failCalls))
	}
}

func TestCallbackOverflowingAmount(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, map[string]interface{}{"price_amount": 1e17})
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	// Still acknowledged; the amount is logged and dropped, never wrapped
	// into a bogus credit.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 || len(store.failCalls) != 0 {
		t.Errorf("mutations for overflowing amount: %d settles, %d fails",
			len(store.settleCalls), len(store.failCalls))
	}
}

func TestCallbackFailedStatus(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, map[string]interface{}{"payment_status": "failed"})
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.settleCalls) != 0 {
		t.Errorf("settle calls = %d, want 0", len(store.settleCalls))
	}
	if len(store.failCalls) != 1 {
		t.Fatalf("fail calls = %d, want 1", len(store.failCalls))
	}
	call := store.failCalls[0]
	if call.accountID != "user42" || call.paymentID != "p1" || call.amount != 5000 {
		t.Errorf("fail call = %+v, want user42/p1/5000", call)
	}
	if call.description != "Failed top-up via BTC" {
		t.Errorf("description = %q", call.description)
	}
}

func TestCallbackRefundedStatus(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, map[string]interface{}{"payment_status": "refunded"})
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.failCalls) != 1 {
		t.Errorf("fail calls = %d, want 1", len(store.failCalls))
	}
}

func TestCallbackReplayIsAcknowledgedNoOp(t *testing.T) {
	store := &mockStore{
		SettleFunc: func(context.Context, string, string, int64) (bool, int64, error) {
			return false, 0, nil // pending -> completed already happened
		},
	}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, nil)
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := decodeResponse(t, resp); got["status"] != "received" {
		t.Errorf(`response = %v, want {"status":"received"}`, got)
	}
}

func TestCallbackStoreErrorStillAcknowledged(t *testing.T) {
	store := &mockStore{
		SettleFunc: func(context.Context, string, string, int64) (bool, int64, error) {
			return false, 0, errors.New("db down")
		},
	}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, nil)
	resp := postCallback(t, app, body, security.SignIPN(body, testSecret))

	// The provider must not retry a confirmed payment.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCallbackQueuesOpsEvent(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{
		Store:         store,
		IPNSecret:     testSecret,
		OpsWebhookURL: "https://ops.example.com/hooks/payments",
	})

	body := notificationBody(t, nil)
	postCallback(t, app, body, security.SignIPN(body, testSecret))

	if len(store.queuedURLs) != 1 {
		t.Fatalf("queued events = %d, want 1", len(store.queuedURLs))
	}
	if store.queuedURLs[0] != "https://ops.example.com/hooks/payments" {
		t.Errorf("queued url = %q", store.queuedURLs[0])
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			PaymentID string `json:"payment_id"`
			AccountID string `json:"account_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(store.queuedBody[0], &event); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if event.Event != "topup.settled" || event.Data.PaymentID != "p1" || event.Data.AccountID != "user42" {
		t.Errorf("event = %+v", event)
	}
}

func TestCallbackNoOpsEventWithoutURL(t *testing.T) {
	store := &mockStore{}
	app := newCallbackApp(&CallbackHandler{Store: store, IPNSecret: testSecret})

	body := notificationBody(t, nil)
	postCallback(t, app, body, security.SignIPN(body, testSecret))

	if len(store.queuedURLs) != 0 {
		t.Errorf("queued events = %d, want 0", len(store.queuedURLs))
	}
}
