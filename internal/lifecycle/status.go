package lifecycle

import "strings"

// Status is the reconciliation state of an order. Values outside the known set are
// provider-introduced statuses stored verbatim (upper-cased).
type Status string

const (
	StatusPendingPayment            Status = "PENDING_PAYMENT"
	StatusPaymentProcessing         Status = "PAYMENT_PROCESSING"
	StatusPaymentSuccessful         Status = "PAYMENT_SUCCESSFUL_PROCESSING_ORDER"
	StatusPaymentExpired            Status = "PAYMENT_EXPIRED"
	StatusPaymentFailed             Status = "PAYMENT_FAILED"
	StatusPaymentCancel             Status = "PAYMENT_CANCEL"
	StatusPaymentCancelled          Status = "PAYMENT_CANCELLED"
	StatusOrderProcessing           Status = "ORDER_PROCESSING"
	StatusOrderCompleted            Status = "ORDER_COMPLETED"
	StatusOrderFailed               Status = "ORDER_FAILED"
	StatusTransactionCreationFailed Status = "TRANSACTION_CREATION_FAILED"
	StatusTransactionCreationError  Status = "TRANSACTION_CREATION_ERROR"
)

// Provider-side status values, compared after upper-casing.
const (
	providerSuccess = "SUCCESS"
	providerPending = "PENDING"
	providerExpired = "EXPIRED"
	providerFailed  = "FAILED"
	providerCancel  = "CANCEL"
	providerError   = "ERROR"
)

// Normalize upper-cases and trims a raw provider status.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Terminal reports whether no further reconciliation is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusOrderCompleted, StatusOrderFailed,
		StatusPaymentExpired, StatusPaymentFailed,
		StatusPaymentCancel, StatusPaymentCancelled:
		return true
	default:
		return false
	}
}

// AwaitingPayment reports whether the deposit has not settled yet. Only these
// states may be cancelled.
func (s Status) AwaitingPayment() bool {
	return s == StatusPendingPayment || s == StatusPaymentProcessing
}

// NeedsTransaction reports whether a transaction should be (re)created when
// the order has no provider transaction id.
func (s Status) NeedsTransaction() bool {
	switch s {
	case StatusPaymentSuccessful, StatusTransactionCreationFailed, StatusTransactionCreationError:
		return true
	default:
		return false
	}
}

// Known reports whether s is one of the statuses this service defines itself.
func (s Status) Known() bool {
	switch s {
	case StatusPendingPayment, StatusPaymentProcessing, StatusPaymentSuccessful,
		StatusPaymentExpired, StatusPaymentFailed, StatusPaymentCancel, StatusPaymentCancelled,
		StatusOrderProcessing, StatusOrderCompleted, StatusOrderFailed,
		StatusTransactionCreationFailed, StatusTransactionCreationError:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
