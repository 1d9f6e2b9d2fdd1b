package lifecycle

// Action is the single provider interaction a reconcile pass performs.
type Action int

const (
	ActionNone Action = iota
	ActionPollDeposit
	ActionCreateTransaction
	ActionPollTransaction
)

func (a Action) String() string {
	switch a {
	case ActionPollDeposit:
		return "poll_deposit"
	case ActionCreateTransaction:
		return "create_transaction"
	case ActionPollTransaction:
		return "poll_transaction"
	default:
		return "none"
	}
}

// Plan decides what a reconcile pass must do for an order in status s.
// Terminal orders and orders missing the provider ids a step needs are left alone.
func Plan(s Status, hasDeposit, hasTransaction bool) Action {
	switch {
	case s.Terminal():
		return ActionNone
	case s.AwaitingPayment():
		if !hasDeposit {
			return ActionNone
		}
		return ActionPollDeposit
	case hasTransaction:
		// ORDER_PROCESSING, PAYMENT_SUCCESSFUL_PROCESSING_ORDER, TRANSACTION_CREATION_FAILED
		// and any pass-through provider status once a transaction exists.
		return ActionPollTransaction
	case s.NeedsTransaction():
		return ActionCreateTransaction
	default:
		return ActionNone
	}
}

// NextFromDeposit maps a polled deposit status onto the order status.
func NextFromDeposit(depositStatus string) Status {
	switch st := Normalize(depositStatus); st {
	case providerSuccess:
		return StatusPaymentSuccessful
	case providerExpired, providerFailed, providerCancel:
		return Status("PAYMENT_" + st)
	case providerPending:
		return StatusPendingPayment
	default:
		return StatusPaymentProcessing
	}
}

// NextFromTransactionCreated maps the status returned by a successful transaction
// creation. Unknown statuses pass through upper-cased.
func NextFromTransactionCreated(providerStatus string) Status {
	switch st := Normalize(providerStatus); st {
	case "", providerPending:
		return StatusOrderProcessing
	default:
		return Status(st)
	}
}

// NextFromTransaction maps a polled transaction status onto the order status.
// Unknown statuses pass through upper-cased.
func NextFromTransaction(txStatus string) Status {
	switch st := Normalize(txStatus); st {
	case providerSuccess:
		return StatusOrderCompleted
	case providerFailed, providerError:
		return StatusOrderFailed
	case providerPending:
		return StatusOrderProcessing
	case "":
		return StatusOrderProcessing
	default:
		return Status(st)
	}
}

// MergeDetails returns a new map holding base overlaid with update. Neither input is mutated.
func MergeDetails(base, update map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}
