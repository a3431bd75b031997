package trading

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/tradenetwork/tnd/ledger"
)

// testSwap builds the two complementary partial offers of a base-for-
// colored swap: the maker escrows 100 base units and requests 50 units of
// the colored asset, the taker escrows 50 colored units and requests the
// 100 base units.
type testSwap struct {
	asset AssetKey

	makerCoin ledger.Coin
	takerCoin ledger.Coin

	makerPH chainhash.Hash
	takerPH chainhash.Hash

	maker *Offer
	taker *Offer
}

func newTestSwap(t *testing.T) *testSwap {
	t.Helper()

	assetID := chainhash.HashH([]byte("test asset"))
	s := &testSwap{
		asset:   ColoredAsset(assetID),
		makerPH: chainhash.HashH([]byte("maker receive")),
		takerPH: chainhash.HashH([]byte("taker receive")),
	}

	// The maker spends a single base coin of 100 into escrow.
	s.makerCoin = ledger.Coin{
		ParentCoinID: chainhash.HashH([]byte("maker parent")),
		PuzzleHash:   chainhash.HashH([]byte("maker puzzle")),
		Amount:       100,
	}
	makerBundle := ledger.NewSpendBundle([]ledger.CoinSpend{{
		Coin:         s.makerCoin,
		PuzzleReveal: []byte("maker reveal"),
		Outputs: []ledger.CreatedCoin{{
			PuzzleHash: ledger.SettlementPuzzleHash,
			Amount:     100,
		}},
	}}, ledger.InfinitySignature())

	makerRequested := NotarizePayments(map[AssetKey][]Payment{
		s.asset: {{
			PuzzleHash: s.makerPH,
			Amount:     50,
			Memos:      [][]byte{s.makerPH[:]},
		}},
	}, []ledger.Coin{s.makerCoin})

	s.maker = NewOffer(makerRequested, makerBundle)

	// The taker spends a single colored coin of 50 into wrapped escrow.
	s.takerCoin = ledger.Coin{
		ParentCoinID: chainhash.HashH([]byte("taker parent")),
		PuzzleHash: ledger.AssetPuzzleHash(
			&assetID, chainhash.HashH([]byte("taker puzzle")),
		),
		Amount: 50,
	}
	takerBundle := ledger.NewSpendBundle([]ledger.CoinSpend{{
		Coin:         s.takerCoin,
		PuzzleReveal: []byte("taker reveal"),
		AssetID:      &assetID,
		Outputs: []ledger.CreatedCoin{{
			PuzzleHash: s.asset.SettlementPuzzleHash(),
			Amount:     50,
		}},
	}}, ledger.InfinitySignature())

	takerRequested := NotarizePayments(map[AssetKey][]Payment{
		BaseAsset(): {{
			PuzzleHash: s.takerPH,
			Amount:     100,
		}},
	}, []ledger.Coin{s.takerCoin})

	s.taker = NewOffer(takerRequested, takerBundle)

	return s
}

// TestOfferRoundTrip asserts that parse(serialize(O)) reproduces O for
// builder-shaped offers.
func TestOfferRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	for _, offer := range []*Offer{s.maker, s.taker} {
		blob := offer.Bytes()

		decoded, err := ParseOffer(blob)
		require.NoError(t, err)

		require.Equal(t, offer.Bytes(), decoded.Bytes())
		require.Equal(t, offer.ID(), decoded.ID())
		require.Equal(t, offer.Arbitrage(), decoded.Arbitrage())
		require.NoError(t, decoded.VerifySelfConsistent())
	}
}

// TestOfferIdentity asserts the identity hash is deterministic over
// content and distinguishes distinct offers.
func TestOfferIdentity(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	reparsed, err := ParseOffer(s.maker.Bytes())
	require.NoError(t, err)
	require.Equal(t, s.maker.ID(), reparsed.ID())

	require.NotEqual(t, s.maker.ID(), s.taker.ID())
}

// TestParseRejectsGarbage asserts malformed blobs surface ErrParse.
func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseOffer([]byte("not an offer"))
	require.ErrorIs(t, err, ErrParse)

	// Trailing bytes are rejected too.
	s := newTestSwap(t)
	blob := append(s.maker.Bytes(), 0xde, 0xad)
	_, err = ParseOffer(blob)
	require.ErrorIs(t, err, ErrParse)
}

// TestArbitrage asserts the per-asset delta of a partial offer mirrors its
// construction inputs.
func TestArbitrage(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	arbitrage := s.maker.Arbitrage()
	require.Equal(t, int64(100), arbitrage[BaseAsset()])
	require.Equal(t, int64(-50), arbitrage[s.asset])
	require.False(t, s.maker.IsValid())

	arbitrage = s.taker.Arbitrage()
	require.Equal(t, int64(-100), arbitrage[BaseAsset()])
	require.Equal(t, int64(50), arbitrage[s.asset])
}

// TestNotarizationBinding asserts that altering the offered coin set
// yields a different nonce, invalidating the original notarized payments.
func TestNotarizationBinding(t *testing.T) {
	t.Parallel()

	coin1 := ledger.Coin{
		ParentCoinID: chainhash.HashH([]byte("c1")),
		PuzzleHash:   chainhash.HashH([]byte("p1")),
		Amount:       10,
	}
	coin2 := ledger.Coin{
		ParentCoinID: chainhash.HashH([]byte("c2")),
		PuzzleHash:   chainhash.HashH([]byte("p2")),
		Amount:       20,
	}
	coin2Prime := coin2
	coin2Prime.Amount = 21

	requested := map[AssetKey][]Payment{
		BaseAsset(): {{
			PuzzleHash: chainhash.HashH([]byte("dest")),
			Amount:     30,
		}},
	}

	original := NotarizePayments(
		requested, []ledger.Coin{coin1, coin2},
	)
	altered := NotarizePayments(
		requested, []ledger.Coin{coin1, coin2Prime},
	)

	require.NotEqual(t,
		original[BaseAsset()][0].Nonce,
		altered[BaseAsset()][0].Nonce,
	)

	// The nonce is independent of input order.
	reordered := NotarizePayments(
		requested, []ledger.Coin{coin2, coin1},
	)
	require.Equal(t,
		original[BaseAsset()][0].Nonce,
		reordered[BaseAsset()][0].Nonce,
	)
}

// TestVerifySelfConsistent asserts the notarization check catches offers
// whose bundle no longer matches their payments.
func TestVerifySelfConsistent(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)
	require.NoError(t, s.maker.VerifySelfConsistent())

	// Swap in a bundle spending a different coin: the nonce no longer
	// matches.
	otherCoin := s.makerCoin
	otherCoin.Amount = 99
	bogusBundle := ledger.NewSpendBundle([]ledger.CoinSpend{{
		Coin:         otherCoin,
		PuzzleReveal: []byte("maker reveal"),
		Outputs: []ledger.CreatedCoin{{
			PuzzleHash: ledger.SettlementPuzzleHash,
			Amount:     99,
		}},
	}}, ledger.InfinitySignature())

	bogus := NewOffer(map[AssetKey][]NotarizedPayment{
		s.asset: s.maker.RequestedPayments(s.asset),
	}, bogusBundle)

	require.ErrorIs(t, bogus.VerifySelfConsistent(), ErrNotSelfConsistent)
}

// TestAggregateCommutes asserts R2: aggregation is order-independent up to
// the canonical bundle form.
func TestAggregateCommutes(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	forward, err := Aggregate(s.maker, s.taker)
	require.NoError(t, err)

	backward, err := Aggregate(s.taker, s.maker)
	require.NoError(t, err)

	require.Equal(t, forward.Bytes(), backward.Bytes())
	require.Equal(t, forward.ID(), backward.ID())

	require.True(t, forward.IsValid())
}

// TestOfferedAndInvolvedCoins asserts the derived coin views of a partial
// offer.
func TestOfferedAndInvolvedCoins(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	offered := s.maker.OfferedCoins()
	require.Len(t, offered, 1)
	require.Len(t, offered[BaseAsset()], 1)
	require.Equal(t, s.makerCoin.ID(),
		offered[BaseAsset()][0].ParentCoinID)
	require.Equal(t, ledger.SettlementPuzzleHash,
		offered[BaseAsset()][0].PuzzleHash)

	require.Equal(t, []ledger.Coin{s.makerCoin}, s.maker.PrimaryCoins())

	involved := s.maker.InvolvedCoins()
	require.Len(t, involved, 2)
}

// TestToValidSpend asserts promotion injects settlement spends that
// consume every offered coin and create every requested payment.
func TestToValidSpend(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	// A partial offer cannot be promoted.
	_, err := s.maker.ToValidSpend()
	require.ErrorIs(t, err, ErrInvalidAggregate)

	complete, err := Aggregate(s.maker, s.taker)
	require.NoError(t, err)

	final, err := complete.ToValidSpend()
	require.NoError(t, err)

	// Every offered coin is consumed within the bundle.
	removed := make(map[chainhash.Hash]struct{})
	for _, coin := range final.Removals() {
		removed[coin.ID()] = struct{}{}
	}
	for _, coins := range complete.OfferedCoins() {
		for i := range coins {
			_, ok := removed[coins[i].ID()]
			require.True(t, ok)
		}
	}

	// The surviving additions are exactly the two requested payments:
	// the taker's base payment and the maker's wrapped colored payment.
	assetID, _ := s.asset.ID()
	wantPHs := map[chainhash.Hash]uint64{
		s.takerPH: 100,
		ledger.AssetPuzzleHash(&assetID, s.makerPH): 50,
	}

	survivors := final.NotEphemeralAdditions()
	require.Len(t, survivors, 2)
	for _, coin := range survivors {
		amount, ok := wantPHs[coin.PuzzleHash]
		require.True(t, ok)
		require.Equal(t, amount, coin.Amount)
	}

	// The colored payment carries its receiver hint through the
	// wrapper.
	memos := final.Memos()
	require.Len(t, memos, 1)
}

// TestCalculateAnnouncements asserts one announcement per notarized
// payment, distinct across assets.
func TestCalculateAnnouncements(t *testing.T) {
	t.Parallel()

	s := newTestSwap(t)

	makerAnns := CalculateAnnouncements(map[AssetKey][]NotarizedPayment{
		s.asset: s.maker.RequestedPayments(s.asset),
	})
	require.Len(t, makerAnns, 1)

	takerAnns := CalculateAnnouncements(map[AssetKey][]NotarizedPayment{
		BaseAsset(): s.taker.RequestedPayments(BaseAsset()),
	})
	require.Len(t, takerAnns, 1)

	require.NotEqual(t, makerAnns[0], takerAnns[0])
}
