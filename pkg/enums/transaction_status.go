package enums

import (
	"fmt"
	"strings"
)

// TransactionStatus is the normalized gateway result recorded against an
// order's payment transaction.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusCompleted,
	TransactionStatusPending,
	TransactionStatusFailed,
	TransactionStatusRefunded,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// CountsTowardBalance reports whether the transaction reduces balance due.
func (t TransactionStatus) CountsTowardBalance() bool {
	return t == TransactionStatusCompleted
}

// ParseTransactionStatus normalizes gateway status strings (including Square's
// upper-case COMPLETED/APPROVED/FAILED) into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "completed", "approved", "captured":
		return TransactionStatusCompleted, nil
	case "pending":
		return TransactionStatusPending, nil
	case "failed", "canceled", "cancelled":
		return TransactionStatusFailed, nil
	case "refunded":
		return TransactionStatusRefunded, nil
	default:
		return "", fmt.Errorf("invalid transaction status %q", value)
	}
}
