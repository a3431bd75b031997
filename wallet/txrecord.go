package wallet

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/ledger"
)

// TransactionType categorizes a transaction record within a wallet's
// history.
type TransactionType uint8

const (
	// TxIncoming is a plain receive.
	TxIncoming TransactionType = 0

	// TxOutgoing is a plain send.
	TxOutgoing TransactionType = 1

	// TxCoinbaseReward is a block reward payout.
	TxCoinbaseReward TransactionType = 2

	// TxFeeReward is a fee reward payout.
	TxFeeReward TransactionType = 3

	// TxIncomingTrade is value received through a settled trade.
	TxIncomingTrade TransactionType = 4

	// TxOutgoingTrade is value that left the wallet through a settled
	// trade.
	TxOutgoingTrade TransactionType = 5
)

// String returns a human readable name for the transaction type.
func (t TransactionType) String() string {
	switch t {
	case TxIncoming:
		return "incoming"
	case TxOutgoing:
		return "outgoing"
	case TxCoinbaseReward:
		return "coinbase_reward"
	case TxFeeReward:
		return "fee_reward"
	case TxIncomingTrade:
		return "incoming_trade"
	case TxOutgoingTrade:
		return "outgoing_trade"
	default:
		return "unknown"
	}
}

// TransactionRecord is a single row of a wallet's transaction history. Rows
// carrying a bundle are broadcast by the wallet push pipeline; rows without
// one are history-only.
type TransactionRecord struct {
	// Name is the row's stable identity.
	Name chainhash.Hash

	// ConfirmedAtHeight is the height the transaction confirmed at, zero
	// while unconfirmed.
	ConfirmedAtHeight uint32

	// CreatedAt is when the row was created.
	CreatedAt time.Time

	// ToPuzzleHash is the destination. All zeros is a sentinel meaning
	// the value left the wallet without a local recipient.
	ToPuzzleHash chainhash.Hash

	// Amount is the value moved.
	Amount uint64

	// FeeAmount is the fee paid.
	FeeAmount uint64

	// Confirmed is true once the transaction is on the ledger.
	Confirmed bool

	// Sent counts broadcast attempts.
	Sent uint32

	// Bundle is the spend bundle to broadcast, nil for history-only
	// rows.
	Bundle *ledger.SpendBundle

	// Additions are the coins the bundle creates.
	Additions []ledger.Coin

	// Removals are the coins the bundle consumes.
	Removals []ledger.Coin

	// WalletID is the wallet this row belongs to.
	WalletID uint32

	// TradeID links the row to a trade record, if any.
	TradeID *chainhash.Hash

	// Type categorizes the row.
	Type TransactionType

	// Memos carries the memos of the bundle's created coins, keyed by
	// coin id.
	Memos map[chainhash.Hash][][]byte
}

// WalletCoinRecord binds a confirmed coin to the wallet that owns it.
type WalletCoinRecord struct {
	Coin ledger.Coin

	// WalletID is the owning wallet.
	WalletID uint32

	// ConfirmedHeight is the height the coin was created at.
	ConfirmedHeight uint32

	// Spent is true once the coin has been consumed.
	Spent bool
}
