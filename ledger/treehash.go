package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Tree hashing follows the canonical binary-tree commitment used by the
// ledger rules: atoms hash under a 0x01 domain prefix, pairs under 0x02, and
// lists are right-folded pairs terminated by the empty atom. The result is a
// total, injective commitment over structured data that both sides of an
// offer can derive independently.

// HashAtom returns the tree hash of a leaf atom.
func HashAtom(atom []byte) chainhash.Hash {
	buf := make([]byte, 0, 1+len(atom))
	buf = append(buf, 0x01)
	buf = append(buf, atom...)
	return chainhash.HashH(buf)
}

// HashPair returns the tree hash of an interior node with the given left and
// right subtree hashes.
func HashPair(left, right chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 1+2*chainhash.HashSize)
	buf = append(buf, 0x02)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return chainhash.HashH(buf)
}

// HashList returns the tree hash of a proper list whose elements have the
// passed subtree hashes.
func HashList(items []chainhash.Hash) chainhash.Hash {
	// The empty atom terminates every proper list.
	h := HashAtom(nil)
	for i := len(items) - 1; i >= 0; i-- {
		h = HashPair(items[i], h)
	}
	return h
}

// HashAtomList returns the tree hash of a list of leaf atoms.
func HashAtomList(atoms [][]byte) chainhash.Hash {
	items := make([]chainhash.Hash, len(atoms))
	for i, atom := range atoms {
		items[i] = HashAtom(atom)
	}
	return HashList(items)
}

// HashIDList returns the tree hash of a list of 32-byte ids, each committed
// as a leaf atom.
func HashIDList(ids []chainhash.Hash) chainhash.Hash {
	atoms := make([][]byte, len(ids))
	for i := range ids {
		atoms[i] = ids[i][:]
	}
	return HashAtomList(atoms)
}

// HashCoin returns the tree hash of a coin in its canonical list form
// (parent id, puzzle hash, amount).
func HashCoin(c *Coin) chainhash.Hash {
	return HashList([]chainhash.Hash{
		HashAtom(c.ParentCoinID[:]),
		HashAtom(c.PuzzleHash[:]),
		HashAtom(CanonicalInt(c.Amount)),
	})
}

// HashCoinList returns the tree hash of a list of coins, each in canonical
// list form.
func HashCoinList(coins []Coin) chainhash.Hash {
	items := make([]chainhash.Hash, len(coins))
	for i := range coins {
		items[i] = HashCoin(&coins[i])
	}
	return HashList(items)
}
