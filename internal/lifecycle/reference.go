package lifecycle

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewOrderID returns a fresh order identifier.
func NewOrderID() string {
	return uuid.NewString()
}

// NewDepositReffID returns a reference id for a single deposit attempt.
func NewDepositReffID() string {
	return "DEP-" + compact(uuid.NewString())
}

// TransactionReffID derives the reference id for the given transaction attempt of
// an order. Attempts are 1-based; the same attempt always yields the same id so a
// duplicate submission is rejected by the provider instead of fulfilled twice.
func TransactionReffID(orderID string, attempt int) string {
	return fmt.Sprintf("TRX-%s-%d", compact(orderID), attempt)
}

func compact(id string) string {
	return strings.ToUpper(strings.ReplaceAll(id, "-", ""))
}
