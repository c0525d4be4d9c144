package notifications

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/E5GEN2/highbid.ai/internal/core/security"
)

// SendWebhook POSTs a signed JSON payload to the operator's alert URL. The
// receiver can verify X-Highbid-Signature the same way we verify inbound
// IPNs.
func SendWebhook(url string, payload []byte, secret string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Highbid-Webhook/1.0")
	if secret != "" {
		req.Header.Set("X-Highbid-Signature", security.SignEvent(payload, secret))
	}

	// Don't let a slow receiver block the worker.
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("webhook receiver returned error: %d", resp.StatusCode)
}
