package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/E5GEN2/highbid.ai/internal/core/security"
)

// Protected authenticates requests with a bearer API token. Only the hash of
// the token is ever stored or compared.
func Protected(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization") // "Bearer hb_live_..."
		if authHeader == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Missing API token"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Header Format"})
		}

		hashedKey := security.HashKey(parts[1])

		var accountID string
		err := db.QueryRow(c.Context(),
			`SELECT account_id FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
			hashedKey).Scan(&accountID)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid API token"})
		}

		// Best effort; auth does not depend on it.
		db.Exec(c.Context(), `UPDATE api_keys SET last_used_at = NOW() WHERE key_hash = $1`, hashedKey)

		c.Locals("account_id", accountID)

		return c.Next()
	}
}
