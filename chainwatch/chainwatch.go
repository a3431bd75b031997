package chainwatch

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/ledger"
)

// CoinState is the ledger's view of a single coin: the coin itself, the
// height it was created at (nil if unknown to the ledger), and the height it
// was spent at (nil while unspent).
type CoinState struct {
	Coin ledger.Coin

	CreatedHeight *uint32
	SpentHeight   *uint32
}

// CoinNotifier represents a trusted source to receive notifications
// concerning targeted coin events on the ledger. The interface specification
// is intentionally general in order to support a wide array of notification
// implementations: full-node websockets, wallet protocol subscriptions,
// light-client filters, etc.
//
// Concrete implementations of CoinNotifier should be able to support
// multiple concurrent client requests, as well as multiple concurrent
// notification events.
type CoinNotifier interface {
	// RegisterCoinNtfn registers an intent to be notified whenever one
	// of the target coins is created or spent within a confirmed block.
	// The returned CoinStateEvent will receive a send on States for each
	// observed state change.
	RegisterCoinNtfn(coinIDs []chainhash.Hash) (*CoinStateEvent, error)

	// Start the CoinNotifier. Once started, the implementation should be
	// ready, and able to receive notification registrations from
	// clients.
	Start() error

	// Stop the concrete CoinNotifier. Once stopped, the CoinNotifier
	// should disallow any future requests from potential clients.
	// Additionally, all pending client notifications will be cancelled
	// by closing the related channels on the *Event's.
	Stop() error
}

// CoinStateEvent encapsulates an on-going stream of coin state
// notifications. Its only field States will be sent upon for each state
// change observed for a registered coin.
type CoinStateEvent struct {
	States chan *CoinState // MUST be buffered.
}
