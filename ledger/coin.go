package ledger

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Big endian is the preferred byte order for all fixed-width integers
// committed to hashes or written to the wire, due to cursor scans over
// integer keys iterating in order.
var byteOrder = binary.BigEndian

// Coin is a single unspent output on the ledger. A coin is uniquely
// identified by the hash of its three fields, and is immutable once created.
type Coin struct {
	// ParentCoinID is the id of the coin whose spend created this coin.
	ParentCoinID chainhash.Hash

	// PuzzleHash commits to the program that authorizes spending this
	// coin.
	PuzzleHash chainhash.Hash

	// Amount is the value held by the coin, in base units.
	Amount uint64
}

// ID returns the unique identifier of the coin. The amount is committed in
// its canonical integer atom form rather than a fixed-width encoding, so two
// ledgers deriving the id independently always agree.
func (c *Coin) ID() chainhash.Hash {
	var b bytes.Buffer
	b.Write(c.ParentCoinID[:])
	b.Write(c.PuzzleHash[:])
	b.Write(CanonicalInt(c.Amount))
	return chainhash.HashH(b.Bytes())
}

// CanonicalInt encodes v as a minimal-length big-endian two's complement
// atom: no redundant leading bytes, a single zero byte prepended only when
// needed to keep the sign bit clear, and the empty atom for zero.
func CanonicalInt(v uint64) []byte {
	if v == 0 {
		return nil
	}

	var buf [9]byte
	byteOrder.PutUint64(buf[1:], v)

	start := 1
	for start < 8 && buf[start] == 0 {
		start++
	}

	// A set high bit would flip the sign, so retain one zero byte.
	if buf[start]&0x80 != 0 {
		start--
	}

	return buf[start:]
}

// WriteCoin serializes a coin to the passed io.Writer using the canonical
// fixed-width wire encoding.
func WriteCoin(w io.Writer, c *Coin) error {
	if _, err := w.Write(c.ParentCoinID[:]); err != nil {
		return err
	}
	if _, err := w.Write(c.PuzzleHash[:]); err != nil {
		return err
	}

	var amt [8]byte
	byteOrder.PutUint64(amt[:], c.Amount)
	_, err := w.Write(amt[:])
	return err
}

// ReadCoin deserializes a coin from the passed io.Reader.
func ReadCoin(r io.Reader, c *Coin) error {
	if _, err := io.ReadFull(r, c.ParentCoinID[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, c.PuzzleHash[:]); err != nil {
		return err
	}

	var amt [8]byte
	if _, err := io.ReadFull(r, amt[:]); err != nil {
		return err
	}
	c.Amount = byteOrder.Uint64(amt[:])

	return nil
}

// CoinIDs maps a set of coins to their ids, preserving order.
func CoinIDs(coins []Coin) []chainhash.Hash {
	ids := make([]chainhash.Hash, len(coins))
	for i := range coins {
		ids[i] = coins[i].ID()
	}
	return ids
}

// SortCoinIDs sorts the passed ids in place by raw byte order and returns
// the slice for convenience.
func SortCoinIDs(ids []chainhash.Hash) []chainhash.Hash {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
