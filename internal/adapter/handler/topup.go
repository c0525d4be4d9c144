package handler

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/E5GEN2/highbid.ai/internal/adapter/storage"
	"github.com/E5GEN2/highbid.ai/internal/core/domain"
)

type TopupHandler struct {
	Repo *storage.LedgerRepository
}

// TopupRequest initiates a crypto top-up. The client has already created the
// provider invoice; we record the optimistic pending credit the callback
// will later resolve.
type TopupRequest struct {
	Amount      float64 `json:"amount"` // USD
	PayCurrency string  `json:"pay_currency"`
	PaymentID   string  `json:"payment_id"`
	PaymentURL  string  `json:"payment_url"`
}

const minTopupUSD = 5

func (h *TopupHandler) InitiateTopup(c *fiber.Ctx) error {
	var req TopupRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid top-up body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	accountID, _ := c.Locals("account_id").(string)
	if accountID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	if req.Amount < minTopupUSD {
		slog.Warn("❌ Top-up rejected: amount too low", "amount", req.Amount, "account_id", accountID)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Amount too low. Minimum top-up is $%d.", minTopupUSD),
		})
	}
	if req.PaymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_id is required"})
	}

	amount, err := domain.FromUSD(req.Amount)
	if err != nil {
		slog.Warn("❌ Top-up rejected: unusable amount", "error", err, "account_id", accountID)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid amount"})
	}

	orderID := domain.BuildOrderID(time.Now(), accountID)
	description := fmt.Sprintf("Crypto top-up: $%.2f (%s)", req.Amount, strings.ToUpper(req.PayCurrency))

	txn, err := h.Repo.CreatePendingTopup(c.Context(), accountID, req.PaymentID, amount.Amount, description, req.PaymentURL)
	if err != nil {
		slog.Error("❌ Failed to create pending top-up", "error", err, "account_id", accountID, "payment_id", req.PaymentID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not record top-up"})
	}

	slog.Info("🪙 Top-up initiated",
		"account_id", accountID,
		"payment_id", req.PaymentID,
		"order_id", orderID,
		"amount", amount.Amount,
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"transaction": txn,
		"order_id":    orderID,
	})
}
