package ledger

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func testSpend(seed string, amount uint64, outputs ...CreatedCoin) CoinSpend {
	coin := Coin{
		ParentCoinID: chainhash.HashH([]byte(seed + "-parent")),
		PuzzleHash:   chainhash.HashH([]byte(seed + "-puzzle")),
		Amount:       amount,
	}
	return CoinSpend{
		Coin:         coin,
		PuzzleReveal: []byte(seed),
		Outputs:      outputs,
	}
}

// TestAggregateSignatures asserts that the infinity signature is the
// identity element and that aggregation is commutative.
func TestAggregateSignatures(t *testing.T) {
	t.Parallel()

	infinity := InfinitySignature()

	// The empty aggregate is the infinity point.
	agg, err := AggregateSignatures()
	require.NoError(t, err)
	require.Equal(t, infinity, agg)

	// Infinity aggregates to itself.
	agg, err = AggregateSignatures(infinity, infinity)
	require.NoError(t, err)
	require.Equal(t, infinity, agg)

	// A corrupt signature is rejected.
	var bogus Signature
	bogus[0] = 0x01
	_, err = AggregateSignatures(bogus)
	require.Error(t, err)
}

// TestParseSignature asserts the codec-level signature validation.
func TestParseSignature(t *testing.T) {
	t.Parallel()

	infinity := InfinitySignature()
	parsed, err := ParseSignature(infinity[:])
	require.NoError(t, err)
	require.Equal(t, infinity, parsed)

	_, err = ParseSignature(make([]byte, 12))
	require.Error(t, err)

	garbage := make([]byte, SignatureSize)
	garbage[0] = 0xff
	_, err = ParseSignature(garbage)
	require.Error(t, err)
}

// TestBundleCanonicalOrder asserts that two bundles over the same spends
// serialize identically regardless of aggregation order.
func TestBundleCanonicalOrder(t *testing.T) {
	t.Parallel()

	spendA := testSpend("a", 10)
	spendB := testSpend("b", 20)

	bundleAB, err := AggregateBundles(
		NewSpendBundle([]CoinSpend{spendA}, InfinitySignature()),
		NewSpendBundle([]CoinSpend{spendB}, InfinitySignature()),
	)
	require.NoError(t, err)

	bundleBA, err := AggregateBundles(
		NewSpendBundle([]CoinSpend{spendB}, InfinitySignature()),
		NewSpendBundle([]CoinSpend{spendA}, InfinitySignature()),
	)
	require.NoError(t, err)

	require.Equal(t, bundleAB.ID(), bundleBA.ID())
}

// TestBundleAdditions asserts the derivation of additions, removals and
// ephemeral filtering.
func TestBundleAdditions(t *testing.T) {
	t.Parallel()

	payment := CreatedCoin{
		PuzzleHash: chainhash.HashH([]byte("destination")),
		Amount:     10,
	}
	spendA := testSpend("a", 10, payment)

	bundle := NewSpendBundle([]CoinSpend{spendA}, InfinitySignature())

	adds := bundle.Additions()
	require.Len(t, adds, 1)
	require.Equal(t, spendA.Coin.ID(), adds[0].ParentCoinID)
	require.Equal(t, payment.PuzzleHash, adds[0].PuzzleHash)

	require.Equal(t, []Coin{spendA.Coin}, bundle.Removals())

	// Spend the created coin within the same bundle: it becomes
	// ephemeral.
	spendB := CoinSpend{
		Coin:         adds[0],
		PuzzleReveal: []byte("b"),
	}
	bundle = NewSpendBundle(
		[]CoinSpend{spendA, spendB}, InfinitySignature(),
	)
	require.Empty(t, bundle.NotEphemeralAdditions())
}

// TestBundleSerialization asserts the bundle codec round trips, including
// asset tags, memos and announcement assertions.
func TestBundleSerialization(t *testing.T) {
	t.Parallel()

	assetID := chainhash.HashH([]byte("asset"))
	spend := testSpend("a", 50, CreatedCoin{
		PuzzleHash: chainhash.HashH([]byte("destination")),
		Amount:     50,
		Memos:      [][]byte{[]byte("hint")},
	})
	spend.AssetID = &assetID
	spend.Asserts = []chainhash.Hash{chainhash.HashH([]byte("ann"))}

	bundle := NewSpendBundle([]CoinSpend{spend}, InfinitySignature())

	var b bytes.Buffer
	require.NoError(t, bundle.Encode(&b))

	decoded, err := DecodeSpendBundle(&b)
	require.NoError(t, err)
	require.Equal(t, bundle, decoded)
	require.Equal(t, bundle.ID(), decoded.ID())
}

// TestBundleMemos asserts memo extraction is keyed by created coin id.
func TestBundleMemos(t *testing.T) {
	t.Parallel()

	memo := []byte("receiver hint")
	spend := testSpend("a", 50, CreatedCoin{
		PuzzleHash: chainhash.HashH([]byte("destination")),
		Amount:     50,
		Memos:      [][]byte{memo},
	})

	bundle := NewSpendBundle([]CoinSpend{spend}, InfinitySignature())

	adds := bundle.Additions()
	memos := bundle.Memos()
	require.Len(t, memos, 1)
	require.Equal(t, [][]byte{memo}, memos[adds[0].ID()])
}
