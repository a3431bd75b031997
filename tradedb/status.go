package tradedb

// TradeStatus is the lifecycle state of a trade record. Trades are created
// pending and advance monotonically into one of the terminal states; a
// terminal status is sticky and can never change again.
type TradeStatus uint8

const (
	// StatusPendingAccept is a maker offer awaiting a counterparty.
	StatusPendingAccept TradeStatus = 0

	// StatusPendingConfirm is a taken offer whose aggregated bundle has
	// been pushed but not yet observed settling on the ledger.
	StatusPendingConfirm TradeStatus = 1

	// StatusPendingCancel is a maker offer whose escrowed coins are being
	// spent back to ourselves.
	StatusPendingCancel TradeStatus = 2

	// StatusCancelled is a terminal status: the offer was cancelled,
	// either by forgetting it or once the safe-cancel self-spend
	// confirmed.
	StatusCancelled TradeStatus = 3

	// StatusConfirmed is a terminal status: the trade settled on the
	// ledger.
	StatusConfirmed TradeStatus = 4

	// StatusFailed is a terminal status: a primary coin was consumed
	// without the trade settling.
	StatusFailed TradeStatus = 5
)

// Valid reports whether the status is a known one.
func (s TradeStatus) Valid() bool {
	return s <= StatusFailed
}

// IsFinal reports whether the status is terminal.
func (s TradeStatus) IsFinal() bool {
	switch s {
	case StatusCancelled, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// IsPending reports whether the trade still awaits an on-ledger resolution.
func (s TradeStatus) IsPending() bool {
	switch s {
	case StatusPendingAccept, StatusPendingConfirm, StatusPendingCancel:
		return true
	}
	return false
}

// String returns a human readable name for the status.
func (s TradeStatus) String() string {
	switch s {
	case StatusPendingAccept:
		return "PendingAccept"
	case StatusPendingConfirm:
		return "PendingConfirm"
	case StatusPendingCancel:
		return "PendingCancel"
	case StatusCancelled:
		return "Cancelled"
	case StatusConfirmed:
		return "Confirmed"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// PendingStatuses returns the set of non-terminal statuses.
func PendingStatuses() []TradeStatus {
	return []TradeStatus{
		StatusPendingAccept,
		StatusPendingConfirm,
		StatusPendingCancel,
	}
}
