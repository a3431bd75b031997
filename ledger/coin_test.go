package ledger

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// TestCanonicalInt asserts the minimal two's complement encoding of
// amounts: no redundant leading bytes, and a zero byte only when needed to
// keep the sign bit clear.
func TestCanonicalInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value uint64
		want  []byte
	}{
		{value: 0, want: nil},
		{value: 1, want: []byte{0x01}},
		{value: 127, want: []byte{0x7f}},
		{value: 128, want: []byte{0x00, 0x80}},
		{value: 255, want: []byte{0x00, 0xff}},
		{value: 256, want: []byte{0x01, 0x00}},
		{value: 0x7fff, want: []byte{0x7f, 0xff}},
		{value: 0x8000, want: []byte{0x00, 0x80, 0x00}},
		{
			value: 1 << 63,
			want: []byte{
				0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00,
			},
		},
	}

	for _, test := range tests {
		require.Equal(t, test.want, CanonicalInt(test.value),
			"value %d", test.value)
	}
}

// TestCoinID asserts that coin ids are deterministic over content and
// sensitive to every field.
func TestCoinID(t *testing.T) {
	t.Parallel()

	coin := Coin{
		ParentCoinID: chainhash.HashH([]byte("parent")),
		PuzzleHash:   chainhash.HashH([]byte("puzzle")),
		Amount:       1000,
	}

	same := coin
	require.Equal(t, coin.ID(), same.ID())

	diffAmount := coin
	diffAmount.Amount = 1001
	require.NotEqual(t, coin.ID(), diffAmount.ID())

	diffParent := coin
	diffParent.ParentCoinID = chainhash.HashH([]byte("other parent"))
	require.NotEqual(t, coin.ID(), diffParent.ID())

	diffPuzzle := coin
	diffPuzzle.PuzzleHash = chainhash.HashH([]byte("other puzzle"))
	require.NotEqual(t, coin.ID(), diffPuzzle.ID())
}

// TestCoinSerialization asserts the fixed-width wire encoding round trips.
func TestCoinSerialization(t *testing.T) {
	t.Parallel()

	coin := Coin{
		ParentCoinID: chainhash.HashH([]byte("parent")),
		PuzzleHash:   chainhash.HashH([]byte("puzzle")),
		Amount:       1<<40 + 7,
	}

	var b bytes.Buffer
	require.NoError(t, WriteCoin(&b, &coin))
	require.Equal(t, 72, b.Len())

	var decoded Coin
	require.NoError(t, ReadCoin(&b, &decoded))
	require.Equal(t, coin, decoded)
}

// TestSortCoinIDs asserts ids sort by raw byte order regardless of input
// order.
func TestSortCoinIDs(t *testing.T) {
	t.Parallel()

	a := chainhash.HashH([]byte("a"))
	b := chainhash.HashH([]byte("b"))
	c := chainhash.HashH([]byte("c"))

	first := SortCoinIDs([]chainhash.Hash{a, b, c})
	second := SortCoinIDs([]chainhash.Hash{c, a, b})
	require.Equal(t, first, second)

	for i := 0; i < len(first)-1; i++ {
		require.True(t, bytes.Compare(first[i][:], first[i+1][:]) < 0)
	}
}

// TestTreeHash asserts the structural properties of the tree hashing
// scheme: lists are right-folded pairs, and distinct structures commit to
// distinct hashes.
func TestTreeHash(t *testing.T) {
	t.Parallel()

	atomA := HashAtom([]byte("a"))
	atomB := HashAtom([]byte("b"))

	// A single-element list is the element paired with the empty atom.
	singleton := HashList([]chainhash.Hash{atomA})
	require.Equal(t, HashPair(atomA, HashAtom(nil)), singleton)

	// A two-element list folds from the right.
	pairList := HashList([]chainhash.Hash{atomA, atomB})
	require.Equal(t, HashPair(atomA, HashPair(atomB, HashAtom(nil))),
		pairList)

	// Order matters.
	require.NotEqual(t, pairList, HashList([]chainhash.Hash{atomB, atomA}))

	// Atoms and lists never collide.
	require.NotEqual(t, atomA, HashList([]chainhash.Hash{atomA}))
}

// TestAssetPuzzleHash asserts that wrapping is the identity for the base
// asset and injective over asset ids otherwise.
func TestAssetPuzzleHash(t *testing.T) {
	t.Parallel()

	inner := chainhash.HashH([]byte("inner"))
	require.Equal(t, inner, AssetPuzzleHash(nil, inner))

	assetA := chainhash.HashH([]byte("asset a"))
	assetB := chainhash.HashH([]byte("asset b"))

	wrappedA := AssetPuzzleHash(&assetA, inner)
	wrappedB := AssetPuzzleHash(&assetB, inner)

	require.NotEqual(t, inner, wrappedA)
	require.NotEqual(t, wrappedA, wrappedB)

	// Wrapping is deterministic.
	require.Equal(t, wrappedA, AssetPuzzleHash(&assetA, inner))
}
