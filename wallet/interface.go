package wallet

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/chainwatch"
	"github.com/tradenetwork/tnd/ledger"
)

// ErrNoSuchWallet is an error denoting that no wallet matching the queried
// coin, asset or puzzle hash is known to the state manager.
var ErrNoSuchWallet = errors.New("no wallet matches the target query")

// Type is an enum-like type which denotes the possible wallet kinds a node
// can hold.
type Type uint8

const (
	// TypeBase is a wallet holding the ledger's base asset.
	TypeBase Type = iota

	// TypeColored is a wallet tracking a single colored asset.
	TypeColored

	// TypeOther is any other wallet kind. Wallets of this type cannot
	// participate in trades.
	TypeOther
)

// String returns a human readable name for the wallet type.
func (t Type) String() string {
	switch t {
	case TypeBase:
		return "base"
	case TypeColored:
		return "colored"
	default:
		return "other"
	}
}

// Wallet defines the abstract interface the trade manager requires from a
// single wallet. Implementors control key material, coin selection and
// signature generation; the trade manager only ever supplies destinations
// and coin sets. A wallet obtained through a StateManager must not be
// retained across operations; it is a capability handle resolved at call
// time.
type Wallet interface {
	// ID returns the wallet's stable numeric id.
	ID() uint32

	// Type returns the kind of asset the wallet holds.
	Type() Type

	// AssetID returns the 32-byte id of the colored asset the wallet
	// tracks. It errs for non-colored wallets.
	AssetID() (chainhash.Hash, error)

	// NewPuzzleHash derives a fresh receive puzzle hash from the wallet.
	NewPuzzleHash() (chainhash.Hash, error)

	// ConfirmedBalance returns the wallet's spendable confirmed balance.
	ConfirmedBalance() (uint64, error)

	// SelectCoins selects confirmed coins totalling at least the passed
	// amount, reserving them against concurrent selection. It fails with
	// ErrInsufficientFunds or ErrCoinSelectionFailed.
	SelectCoins(amount uint64) ([]ledger.Coin, error)

	// GenerateSignedTransaction produces signed transactions paying the
	// passed amounts to the passed puzzle hashes, spending exactly the
	// given coins. The fee is taken from the spent value. If
	// ignoreMaxSend is true, the wallet's send limit is bypassed.
	GenerateSignedTransaction(amounts []uint64,
		puzzleHashes []chainhash.Hash, fee uint64,
		coins []ledger.Coin,
		ignoreMaxSend bool) ([]*TransactionRecord, error)

	// ConvertPuzzleHash maps an on-ledger puzzle hash to the wallet's
	// inner view of it. Colored wallets unwrap the asset wrapper; base
	// wallets are the identity.
	ConvertPuzzleHash(ph chainhash.Hash) (chainhash.Hash, error)
}

// StateManager defines the abstract interface the trade manager requires
// from the wallet-state manager owning all wallets and the node's ledger
// view.
type StateManager interface {
	// Wallets returns all wallets keyed by wallet id.
	Wallets() map[uint32]Wallet

	// MainWallet returns the base-asset wallet.
	MainWallet() Wallet

	// CoinRecords returns the wallet coin records for the passed coin
	// ids, omitting ids that do not belong to any wallet.
	CoinRecords(coinIDs []chainhash.Hash) ([]*WalletCoinRecord, error)

	// CoinStates returns the ledger's current view of the passed coin
	// ids, omitting ids the ledger has never seen.
	CoinStates(coinIDs []chainhash.Hash) ([]*chainwatch.CoinState, error)

	// WalletForCoin returns the wallet owning the coin with the passed
	// id, or ErrNoSuchWallet.
	WalletForCoin(coinID chainhash.Hash) (Wallet, error)

	// WalletForAsset returns the wallet tracking the passed colored
	// asset, or ErrNoSuchWallet.
	WalletForAsset(assetID chainhash.Hash) (Wallet, error)

	// WalletIDForPuzzleHash returns the id of the wallet a puzzle hash
	// belongs to. The boolean is false if the hash is not ours.
	WalletIDForPuzzleHash(ph chainhash.Hash) (uint32, bool, error)

	// AddPendingTransaction persists the passed transaction and queues
	// its bundle for broadcast.
	AddPendingTransaction(tx *TransactionRecord) error

	// AddTransaction persists the passed transaction without queueing a
	// broadcast.
	AddTransaction(tx *TransactionRecord) error

	// CreateAssetWallet creates a wallet tracking the passed colored
	// asset, backed by the main wallet.
	CreateAssetWallet(assetID chainhash.Hash) (Wallet, error)
}
