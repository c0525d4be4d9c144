package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Idempotency caches responses per Idempotency-Key header so that a retried
// top-up initiation does not create a second pending transaction. Requests
// without the header pass through.
func Idempotency(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("Idempotency-Key")
		if key == "" {
			return c.Next()
		}

		var status int
		var body []byte
		err := db.QueryRow(c.Context(),
			"SELECT response_status, response_body FROM idempotency_keys WHERE key_id = $1",
			key).Scan(&status, &body)
		if err == nil {
			slog.Info("🛑 Idempotency hit, returning cached response", "key", key)
			c.Set("X-Idempotency-Hit", "true")
			c.Set("Content-Type", "application/json")
			return c.Status(status).Send(body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		resStatus := c.Response().StatusCode()
		resBody := c.Response().Body()

		// A transient 5xx must stay retryable; pinning it to the key would
		// turn one DB hiccup into a permanent failure for this top-up.
		if !cacheable(resStatus) {
			return nil
		}

		_, insertErr := db.Exec(c.Context(),
			"INSERT INTO idempotency_keys (key_id, response_status, response_body) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
			key, resStatus, resBody)
		if insertErr != nil {
			slog.Error("❌ Failed to save idempotency key", "error", insertErr, "key", key)
		}

		return nil
	}
}

// cacheable reports whether a response is a stable outcome worth replaying:
// successes and client errors are; server errors are not.
func cacheable(status int) bool {
	return status < fiber.StatusInternalServerError
}
