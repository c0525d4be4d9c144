package domain

import (
	"fmt"
	"strings"
	"time"
)

// Order identifiers tie a provider payment back to the account it credits.
// Format: "topup-<unixMillis>-<accountID>", exactly three hyphen-separated
// segments. Account IDs never contain hyphens (see NewAccountID), so the
// split is unambiguous.

const orderPrefix = "topup"

// BuildOrderID produces the order identifier sent to the payment provider
// when a top-up is initiated.
func BuildOrderID(now time.Time, accountID string) string {
	return fmt.Sprintf("%s-%d-%s", orderPrefix, now.UnixMilli(), accountID)
}

// ParseOrderID recovers the account ID from an order identifier. The second
// return is false for anything that is not a well-formed top-up order id:
// wrong segment count, wrong literal prefix, or an empty account segment.
func ParseOrderID(orderID string) (string, bool) {
	parts := strings.Split(orderID, "-")
	if len(parts) != 3 || parts[0] != orderPrefix {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
