package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/E5GEN2/highbid.ai/internal/adapter/storage"
	"github.com/E5GEN2/highbid.ai/internal/core/domain"
	"github.com/E5GEN2/highbid.ai/internal/core/security"
)

type AccountHandler struct {
	Repo *storage.AccountRepository
}

// CreateAccountRequest defines what the user sends us
type CreateAccountRequest struct {
	OwnerName string `json:"owner_name"`
	Email     string `json:"email"`
	Currency  string `json:"currency"`
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid account body", "error", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.OwnerName == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Owner Name is required"})
	}
	if req.Email == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Email is required"})
	}
	if req.Currency == "" {
		req.Currency = string(domain.USD)
	}
	if req.Currency != string(domain.USD) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency. Balances are held in USD"})
	}

	account, err := h.Repo.CreateAccount(c.Context(), req.OwnerName, req.Email, domain.Currency(req.Currency))
	if err != nil {
		slog.Error("Failed to create account", "error", err, "owner", req.OwnerName)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create account"})
	}

	slog.Info("✅ Account Created", "id", account.ID, "owner", req.OwnerName)

	return c.Status(http.StatusCreated).JSON(account)
}

// GetMe returns the authenticated account's balance.
func (h *AccountHandler) GetMe(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)

	account, err := h.Repo.GetAccountByID(c.Context(), accountID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Account not found"})
	}

	return c.JSON(account)
}

type CreateTokenRequest struct {
	Name string `json:"name"`
}

// CreateToken issues a named API token for the authenticated account. The
// plaintext is returned exactly once.
func (h *AccountHandler) CreateToken(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	return h.issueToken(c, accountID)
}

// BootstrapToken issues the account's first token without auth, keyed by the
// account id from signup.
func (h *AccountHandler) BootstrapToken(c *fiber.Ctx) error {
	accountID := c.Params("id")
	if _, err := h.Repo.GetAccountByID(c.Context(), accountID); err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Account not found"})
	}
	return h.issueToken(c, accountID)
}

func (h *AccountHandler) issueToken(c *fiber.Ctx, accountID string) error {
	var req CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Token name is required"})
	}

	realKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		slog.Error("Crypto error generating key", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Crypto error"})
	}

	key, err := h.Repo.SaveAPIKey(c.Context(), accountID, req.Name, keyHash, security.KeyPrefix)
	if err != nil {
		slog.Error("Failed to save API key", "error", err, "account_id", accountID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save key"})
	}

	slog.Info("🔑 API Token Created", "account_id", accountID, "name", req.Name)

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"token":   key,
		"api_key": realKey,
		"warning": "Save this now! We won't show it again.",
	})
}

// ListTokens returns token metadata, never the secrets.
func (h *AccountHandler) ListTokens(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)

	keys, err := h.Repo.ListAPIKeys(c.Context(), accountID)
	if err != nil {
		slog.Error("Failed to list API keys", "error", err, "account_id", accountID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch tokens"})
	}

	return c.JSON(fiber.Map{"tokens": keys})
}

// RevokeToken revokes one of the authenticated account's tokens.
func (h *AccountHandler) RevokeToken(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)

	keyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid token ID"})
	}

	if err := h.Repo.RevokeAPIKey(c.Context(), accountID, keyID); err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Token not found"})
	}

	slog.Info("🗑️ API Token Revoked", "account_id", accountID, "token_id", keyID)

	return c.JSON(fiber.Map{"status": "revoked"})
}
