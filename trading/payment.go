package trading

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/ledger"
)

// Payment is a requested output: where to pay, how much, and any memos to
// carry with the created coin.
type Payment struct {
	PuzzleHash chainhash.Hash
	Amount     uint64
	Memos      [][]byte
}

// NotarizedPayment is a payment bound by nonce to the exact set of coins
// offered on the opposite side. A notarized payment is only satisfiable in
// the bundle it was notarized for; any change to the offered coin set yields
// a different nonce and invalidates the commitment.
type NotarizedPayment struct {
	Payment

	// Nonce is the tree hash of the sorted offered-coin id list.
	Nonce chainhash.Hash
}

// Hash returns the tree-hash commitment to the notarized payment, in its
// canonical list form (nonce, puzzle hash, amount, memos).
func (np *NotarizedPayment) Hash() chainhash.Hash {
	return ledger.HashList([]chainhash.Hash{
		ledger.HashAtom(np.Nonce[:]),
		ledger.HashAtom(np.PuzzleHash[:]),
		ledger.HashAtom(ledger.CanonicalInt(np.Amount)),
		ledger.HashAtomList(np.Memos),
	})
}

// Announcement returns the announcement id a settlement spend of the given
// asset makes when it satisfies this payment.
func (np *NotarizedPayment) Announcement(asset AssetKey) chainhash.Hash {
	return ledger.PaymentAnnouncement(asset.SettlementPuzzleHash(), np.Hash())
}
