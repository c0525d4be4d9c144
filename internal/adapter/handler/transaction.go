package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/E5GEN2/highbid.ai/internal/adapter/storage"
	"github.com/E5GEN2/highbid.ai/internal/core/domain"
)

// LedgerStore is the slice of the ledger the transaction handler needs.
type LedgerStore interface {
	Spend(ctx context.Context, accountID string, amount int64, description string) (*domain.Transaction, error)
	GetHistory(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
}

type TransactionHandler struct {
	Repo LedgerStore
}

// GetHistory returns the authenticated account's recent transactions.
func (h *TransactionHandler) GetHistory(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)

	limit := c.QueryInt("limit", 20)
	history, err := h.Repo.GetHistory(c.Context(), accountID, limit)
	if err != nil {
		slog.Error("Failed to fetch history", "error", err, "account_id", accountID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch history"})
	}

	return c.JSON(fiber.Map{"transactions": history})
}

// GenerateRequest is a paid image generation call. The model invocation
// itself lives elsewhere; this endpoint charges for it.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

// Flat per-image price in cents. Sizes other than the default cost the same
// for now.
const generationCostCents = 25

func (h *TransactionHandler) Generate(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Prompt is required"})
	}

	accountID, _ := c.Locals("account_id").(string)

	description := fmt.Sprintf("Image generation (%d chars prompt)", len(req.Prompt))
	txn, err := h.Repo.Spend(c.Context(), accountID, generationCostCents, description)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			slog.Warn("❌ Generation rejected: insufficient balance", "account_id", accountID)
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "Insufficient balance. Top up to keep generating.",
			})
		}
		slog.Error("Failed to charge generation", "error", err, "account_id", accountID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Charge failed"})
	}

	slog.Info("🎨 Generation charged", "account_id", accountID, "amount", generationCostCents)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":      "charged",
		"cost":        domain.NewMoney(generationCostCents, domain.USD).Dollars(),
		"transaction": txn,
	})
}
