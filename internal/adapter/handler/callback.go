package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/E5GEN2/highbid.ai/internal/core/domain"
	"github.com/E5GEN2/highbid.ai/internal/core/security"
)

var (
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Provider payment callbacks processed, by provider status and outcome",
	}, []string{"payment_status", "outcome"})

	callbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_callback_duration_seconds",
		Help:    "Callback handling latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

// PaymentNotification is the IPN body NowPayments POSTs for every payment
// status change.
type PaymentNotification struct {
	PaymentID        string  `json:"payment_id"`
	PaymentStatus    string  `json:"payment_status"`
	PayAddress       string  `json:"pay_address"`
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayAmount        float64 `json:"pay_amount"`
	PayCurrency      string  `json:"pay_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	PurchaseID       string  `json:"purchase_id,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	OutcomeAmount    float64 `json:"outcome_amount,omitempty"`
	OutcomeCurrency  string  `json:"outcome_currency,omitempty"`
}

// CallbackStore is the slice of the ledger the callback handler needs.
type CallbackStore interface {
	SettlePayment(ctx context.Context, accountID, paymentID string, amount int64) (credited bool, newBalance int64, err error)
	FailPayment(ctx context.Context, accountID, paymentID string, amount int64, description string) error
	QueueEvent(ctx context.Context, url string, payload []byte) error
}

// CallbackHandler reconciles asynchronous payment-status notifications from
// NowPayments with the ledger.
type CallbackHandler struct {
	Store     CallbackStore
	IPNSecret string

	// Operator alert webhook; events are dropped when the URL is empty.
	OpsWebhookURL string
}

// HandleCallback authenticates and applies one provider notification.
//
// Response contract per the provider: 200 acknowledges receipt and stops
// retries, so every authenticated, parseable notification gets a 200 even
// when the resulting mutation fails internally. Only an unparseable body, a
// missing/invalid signature, or an unconfigured secret produce non-200s.
func (h *CallbackHandler) HandleCallback(c *fiber.Ctx) error {
	timer := prometheus.NewTimer(callbackDuration)
	defer timer.ObserveDuration()

	body := c.Body()

	// Fail closed: without the shared secret no callback can be trusted.
	if h.IPNSecret == "" {
		slog.Error("❌ IPN secret not configured, rejecting callback")
		callbacksTotal.WithLabelValues("unknown", "config_error").Inc()
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "IPN secret not configured"})
	}

	signature := c.Get("x-nowpayments-sig")
	if signature == "" {
		slog.Warn("🚫 Callback without signature header rejected")
		callbacksTotal.WithLabelValues("unknown", "unsigned").Inc()
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Missing signature"})
	}

	if !security.VerifyIPN(body, signature, h.IPNSecret) {
		slog.Warn("🚫 Invalid callback signature")
		callbacksTotal.WithLabelValues("unknown", "bad_signature").Inc()
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
	}

	var n PaymentNotification
	if err := json.Unmarshal(body, &n); err != nil {
		slog.Error("❌ Unparseable callback body", "error", err)
		callbacksTotal.WithLabelValues("unknown", "unparseable").Inc()
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	slog.Info("📥 Payment callback received",
		"payment_id", n.PaymentID,
		"payment_status", n.PaymentStatus,
		"order_id", n.OrderID,
		"price_amount", n.PriceAmount,
		"pay_currency", n.PayCurrency,
	)

	switch n.PaymentStatus {
	case "finished", "confirmed":
		h.processSettled(c.Context(), n)
	case "failed", "refunded":
		h.processFailed(c.Context(), n)
	default:
		// waiting, confirming, sending, partially_paid... nothing to apply.
		slog.Info("Callback with non-terminal status dropped", "payment_id", n.PaymentID, "payment_status", n.PaymentStatus)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "ignored").Inc()
	}

	return c.JSON(fiber.Map{"status": "received"})
}

func (h *CallbackHandler) processSettled(ctx context.Context, n PaymentNotification) {
	accountID, ok := domain.ParseOrderID(n.OrderID)
	if !ok {
		slog.Error("❌ Could not extract account from order_id", "order_id", n.OrderID, "payment_id", n.PaymentID)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "bad_order_id").Inc()
		return
	}

	// Credit is applied from price_amount; outcome_amount is the provider's
	// post-conversion figure and only gets logged when it diverges.
	amount, err := domain.FromUSD(n.PriceAmount)
	if err != nil {
		slog.Error("❌ Unusable price_amount", "error", err, "payment_id", n.PaymentID, "price_amount", n.PriceAmount)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "bad_amount").Inc()
		return
	}
	if n.OutcomeAmount != 0 && n.OutcomeAmount != n.PriceAmount {
		slog.Warn("Outcome amount diverges from price amount",
			"payment_id", n.PaymentID,
			"price_amount", n.PriceAmount,
			"outcome_amount", n.OutcomeAmount,
			"outcome_currency", n.OutcomeCurrency,
		)
	}

	credited, newBalance, err := h.Store.SettlePayment(ctx, accountID, n.PaymentID, amount.Amount)
	if err != nil {
		slog.Error("❌ Settlement failed", "error", err, "payment_id", n.PaymentID, "account_id", accountID)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "error").Inc()
		return
	}
	if !credited {
		// Replay of an already-settled payment, or no pending record.
		slog.Info("🛑 Settlement skipped, no pending transaction", "payment_id", n.PaymentID, "account_id", accountID)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "duplicate").Inc()
		return
	}

	slog.Info("💰 Top-up settled",
		"payment_id", n.PaymentID,
		"account_id", accountID,
		"amount", amount.Amount,
		"new_balance", newBalance,
	)
	callbacksTotal.WithLabelValues(n.PaymentStatus, "settled").Inc()

	h.queueOpsEvent(ctx, "topup.settled", accountID, n, newBalance)
}

func (h *CallbackHandler) processFailed(ctx context.Context, n PaymentNotification) {
	accountID, ok := domain.ParseOrderID(n.OrderID)
	if !ok {
		slog.Error("❌ Could not extract account from order_id", "order_id", n.OrderID, "payment_id", n.PaymentID)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "bad_order_id").Inc()
		return
	}

	amount, err := domain.FromUSD(n.PriceAmount)
	if err != nil {
		slog.Error("❌ Unusable price_amount", "error", err, "payment_id", n.PaymentID, "price_amount", n.PriceAmount)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "bad_amount").Inc()
		return
	}
	description := "Failed top-up via " + strings.ToUpper(n.PayCurrency)

	if err := h.Store.FailPayment(ctx, accountID, n.PaymentID, amount.Amount, description); err != nil {
		slog.Error("❌ Recording failed payment failed", "error", err, "payment_id", n.PaymentID, "account_id", accountID)
		callbacksTotal.WithLabelValues(n.PaymentStatus, "error").Inc()
		return
	}

	slog.Info("⚠️ Top-up failed",
		"payment_id", n.PaymentID,
		"account_id", accountID,
		"amount", amount.Amount,
		"payment_status", n.PaymentStatus,
	)
	callbacksTotal.WithLabelValues(n.PaymentStatus, "failed").Inc()

	h.queueOpsEvent(ctx, "topup.failed", accountID, n, 0)
}

func (h *CallbackHandler) queueOpsEvent(ctx context.Context, event, accountID string, n PaymentNotification, newBalance int64) {
	if h.OpsWebhookURL == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"payment_id":     n.PaymentID,
			"payment_status": n.PaymentStatus,
			"account_id":     accountID,
			"price_amount":   n.PriceAmount,
			"pay_currency":   n.PayCurrency,
			"new_balance":    newBalance,
			"timestamp":      time.Now().UTC(),
		},
	})
	if err != nil {
		slog.Error("❌ Failed to marshal ops event", "error", err, "event", event)
		return
	}

	if err := h.Store.QueueEvent(ctx, h.OpsWebhookURL, payload); err != nil {
		slog.Error("❌ Ops event enqueue failed", "error", err, "event", event, "payment_id", n.PaymentID)
	}
}
