package trading

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/tradenetwork/tnd/ledger"
)

const (
	// pver is the protocol version passed to the var-int/var-bytes
	// primitives. The offer encoding is version-less.
	pver = 0

	// maxMemoSize bounds the size of a single payment memo.
	maxMemoSize = 1 << 10
)

// Offer is one side of an atomic swap: the payments this side requests,
// against a partially-signed bundle whose outputs escrow this side's value
// with the settlement puzzle. An offer built locally is self-consistent but
// not complete; aggregating it with a complementary offer yields a balanced
// offer that can be promoted to a ledger-ready spend.
type Offer struct {
	requested map[AssetKey][]NotarizedPayment
	bundle    *ledger.SpendBundle
}

// NewOffer wraps the passed notarized payments and bundle as an offer.
func NewOffer(requested map[AssetKey][]NotarizedPayment,
	bundle *ledger.SpendBundle) *Offer {

	return &Offer{
		requested: requested,
		bundle:    bundle,
	}
}

// NotarizePayments binds the passed requested payments to the flat list of
// coins being offered. Every asset key shares one nonce, the tree hash of
// the sorted list of ALL offered-coin ids, so each payment transitively
// commits to every coin on the offering side.
func NotarizePayments(requested map[AssetKey][]Payment,
	offered []ledger.Coin) map[AssetKey][]NotarizedPayment {

	nonce := ledger.HashIDList(
		ledger.SortCoinIDs(ledger.CoinIDs(offered)),
	)

	notarized := make(map[AssetKey][]NotarizedPayment, len(requested))
	for key, payments := range requested {
		nps := make([]NotarizedPayment, len(payments))
		for i, payment := range payments {
			nps[i] = NotarizedPayment{
				Payment: payment,
				Nonce:   nonce,
			}
		}
		notarized[key] = nps
	}

	return notarized
}

// CalculateAnnouncements returns the announcement ids the opposite side's
// spends must assert, one per notarized payment, in canonical key order.
func CalculateAnnouncements(
	notarized map[AssetKey][]NotarizedPayment) []chainhash.Hash {

	var announcements []chainhash.Hash
	for _, key := range sortedKeys(notarized) {
		for i := range notarized[key] {
			announcements = append(
				announcements, notarized[key][i].Announcement(key),
			)
		}
	}
	return announcements
}

// Bundle returns the offer's spend bundle.
func (o *Offer) Bundle() *ledger.SpendBundle {
	return o.bundle
}

// RequestedPayments returns the notarized payments under the given asset
// key.
func (o *Offer) RequestedPayments(key AssetKey) []NotarizedPayment {
	return o.requested[key]
}

// RequestedAssets returns the asset keys with requested payments, in
// canonical order.
func (o *Offer) RequestedAssets() []AssetKey {
	return sortedKeys(o.requested)
}

// PrimaryCoins returns the coins being spent by the offer's bundle, the
// inputs escrowed by the side(s) that built it.
func (o *Offer) PrimaryCoins() []ledger.Coin {
	return o.bundle.Removals()
}

// OfferedCoins returns, per asset key, the bundle outputs paying to the
// settlement puzzle (or its asset-wrapped form). These are the coins the
// opposite side's notarized payments will be satisfied from.
func (o *Offer) OfferedCoins() map[AssetKey][]ledger.Coin {
	offered := make(map[AssetKey][]ledger.Coin)
	for i := range o.bundle.CoinSpends {
		spend := &o.bundle.CoinSpends[i]

		key := AssetFromTag(spend.AssetID)
		settlementPH := key.SettlementPuzzleHash()

		parent := spend.Coin.ID()
		for _, out := range spend.Outputs {
			if out.PuzzleHash != settlementPH {
				continue
			}
			offered[key] = append(offered[key], ledger.Coin{
				ParentCoinID: parent,
				PuzzleHash:   out.PuzzleHash,
				Amount:       out.Amount,
			})
		}
	}
	return offered
}

// offeredCoinsFlat returns every offered coin across all asset keys, in
// canonical key order.
func (o *Offer) offeredCoinsFlat() []ledger.Coin {
	offered := o.OfferedCoins()

	var coins []ledger.Coin
	for _, key := range sortedKeys(offered) {
		coins = append(coins, offered[key]...)
	}
	return coins
}

// InvolvedCoins returns the union of the offer's primary and offered coins.
func (o *Offer) InvolvedCoins() []ledger.Coin {
	coins := o.PrimaryCoins()
	coins = append(coins, o.offeredCoinsFlat()...)
	return coins
}

// Arbitrage returns, per asset key, the signed difference between what the
// offer's bundle escrows and what it requests. An all-zero arbitrage means
// the offer is balanced and can settle.
func (o *Offer) Arbitrage() map[AssetKey]int64 {
	arbitrage := make(map[AssetKey]int64)
	for key, coins := range o.OfferedCoins() {
		for _, coin := range coins {
			arbitrage[key] += int64(coin.Amount)
		}
	}
	for key, payments := range o.requested {
		for i := range payments {
			arbitrage[key] -= int64(payments[i].Amount)
		}
	}
	return arbitrage
}

// VerifySelfConsistent checks that a partial offer's notarization commits to
// the coins it offers: every requested payment's nonce must equal the tree
// hash of the sorted id list of all coins the bundle spends, and the bundle
// signature must be a valid encoding. Aggregated offers interleave nonces
// from both sides and are instead validated via IsValid.
func (o *Offer) VerifySelfConsistent() error {
	nonce := ledger.HashIDList(
		ledger.SortCoinIDs(ledger.CoinIDs(o.PrimaryCoins())),
	)

	for key, payments := range o.requested {
		for i := range payments {
			if payments[i].Nonce == nonce {
				continue
			}
			return fmt.Errorf("%w: payment %d under asset %v "+
				"has nonce %x, want %x", ErrNotSelfConsistent,
				i, key, payments[i].Nonce, nonce)
		}
	}

	if _, err := ledger.ParseSignature(
		o.bundle.AggregatedSignature[:],
	); err != nil {
		return fmt.Errorf("%w: %v", ErrNotSelfConsistent, err)
	}

	return nil
}

// IsValid reports whether the offer is complete: balanced to zero on every
// asset key.
func (o *Offer) IsValid() bool {
	for _, delta := range o.Arbitrage() {
		if delta != 0 {
			return false
		}
	}
	return true
}

// Aggregate combines the passed offers into one: unions of requested
// payments, canonical aggregation of bundles. The result is independent of
// argument order unless several offers request payments under the same
// asset key; those payments are appended in argument order.
func Aggregate(offers ...*Offer) (*Offer, error) {
	requested := make(map[AssetKey][]NotarizedPayment)
	bundles := make([]*ledger.SpendBundle, 0, len(offers))

	for _, offer := range offers {
		for _, key := range offer.RequestedAssets() {
			requested[key] = append(
				requested[key], offer.requested[key]...,
			)
		}
		bundles = append(bundles, offer.bundle)
	}

	bundle, err := ledger.AggregateBundles(bundles...)
	if err != nil {
		return nil, err
	}

	return NewOffer(requested, bundle), nil
}

// ToValidSpend promotes a complete offer to a ledger-ready bundle by
// injecting the settlement spends that consume every offered coin and create
// the requested payments. Settlement spends require no key signature, so the
// injected bundle carries the infinity signature.
func (o *Offer) ToValidSpend() (*ledger.SpendBundle, error) {
	if !o.IsValid() {
		return nil, ErrInvalidAggregate
	}

	offered := o.OfferedCoins()

	var spends []ledger.CoinSpend
	for _, key := range sortedKeys(offered) {
		tag := key.Tag()
		reveal := ledger.AssetSettlementReveal(tag)

		for i, coin := range offered[key] {
			spend := ledger.CoinSpend{
				Coin:         coin,
				PuzzleReveal: reveal,
				AssetID:      tag,
			}

			// The first settlement coin of each asset group
			// creates all of the group's payments; the rest only
			// contribute value. The group balances because the
			// offer's arbitrage is zero.
			if i == 0 {
				for _, np := range o.requested[key] {
					spend.Outputs = append(spend.Outputs,
						ledger.CreatedCoin{
							PuzzleHash: ledger.AssetPuzzleHash(
								tag, np.PuzzleHash,
							),
							Amount: np.Amount,
							Memos:  np.Memos,
						})
				}
			}

			spends = append(spends, spend)
		}
	}

	settlement := ledger.NewSpendBundle(
		spends, ledger.InfinitySignature(),
	)

	return ledger.AggregateBundles(o.bundle, settlement)
}

// ID returns the offer's canonical identity, the hash of its serialization.
func (o *Offer) ID() chainhash.Hash {
	return chainhash.HashH(o.Bytes())
}

// Bytes returns the offer's canonical serialization.
func (o *Offer) Bytes() []byte {
	var b bytes.Buffer

	// Writing to a buffer never fails.
	_ = o.Encode(&b)

	return b.Bytes()
}

// Encode serializes the offer to the passed io.Writer: the bundle in its
// canonical form, followed by the requested payments with asset keys in
// canonical order and payments in construction order.
func (o *Offer) Encode(w io.Writer) error {
	if err := o.bundle.Encode(w); err != nil {
		return err
	}

	keys := sortedKeys(o.requested)
	if err := wire.WriteVarInt(w, pver, uint64(len(keys))); err != nil {
		return err
	}

	for _, key := range keys {
		if err := writeAssetKey(w, key); err != nil {
			return err
		}

		payments := o.requested[key]
		err := wire.WriteVarInt(w, pver, uint64(len(payments)))
		if err != nil {
			return err
		}
		for i := range payments {
			if err := writeNotarizedPayment(w, &payments[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

// DecodeOffer deserializes an offer from the passed io.Reader.
func DecodeOffer(r io.Reader) (*Offer, error) {
	bundle, err := ledger.DecodeSpendBundle(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	numKeys, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	requested := make(map[AssetKey][]NotarizedPayment, numKeys)
	for i := uint64(0); i < numKeys; i++ {
		key, err := readAssetKey(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if _, ok := requested[key]; ok {
			return nil, fmt.Errorf("%w: duplicate asset key %v",
				ErrParse, key)
		}

		numPayments, err := wire.ReadVarInt(r, pver)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		var payments []NotarizedPayment
		if numPayments > 0 {
			payments = make([]NotarizedPayment, numPayments)
		}
		for j := range payments {
			err := readNotarizedPayment(r, &payments[j])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
		}
		requested[key] = payments
	}

	return NewOffer(requested, bundle), nil
}

// ParseOffer deserializes an offer from its canonical blob form.
func ParseOffer(blob []byte) (*Offer, error) {
	r := bytes.NewReader(blob)

	offer, err := DecodeOffer(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrParse,
			r.Len())
	}

	return offer, nil
}

func writeAssetKey(w io.Writer, key AssetKey) error {
	id, colored := key.ID()
	if !colored {
		_, err := w.Write([]byte{0x00})
		return err
	}

	if _, err := w.Write([]byte{0x01}); err != nil {
		return err
	}
	_, err := w.Write(id[:])
	return err
}

func readAssetKey(r io.Reader) (AssetKey, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return AssetKey{}, err
	}

	switch marker[0] {
	case 0x00:
		return BaseAsset(), nil
	case 0x01:
		var id chainhash.Hash
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return AssetKey{}, err
		}
		return ColoredAsset(id), nil
	default:
		return AssetKey{}, fmt.Errorf("invalid asset key marker: %x",
			marker[0])
	}
}

func writeNotarizedPayment(w io.Writer, np *NotarizedPayment) error {
	if _, err := w.Write(np.Nonce[:]); err != nil {
		return err
	}
	if _, err := w.Write(np.PuzzleHash[:]); err != nil {
		return err
	}

	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], np.Amount)
	if _, err := w.Write(amt[:]); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, pver, uint64(len(np.Memos))); err != nil {
		return err
	}
	for _, memo := range np.Memos {
		if err := wire.WriteVarBytes(w, pver, memo); err != nil {
			return err
		}
	}

	return nil
}

func readNotarizedPayment(r io.Reader, np *NotarizedPayment) error {
	if _, err := io.ReadFull(r, np.Nonce[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, np.PuzzleHash[:]); err != nil {
		return err
	}

	var amt [8]byte
	if _, err := io.ReadFull(r, amt[:]); err != nil {
		return err
	}
	np.Amount = binary.BigEndian.Uint64(amt[:])

	numMemos, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if numMemos > 0 {
		np.Memos = make([][]byte, numMemos)
		for i := range np.Memos {
			np.Memos[i], err = wire.ReadVarBytes(
				r, pver, maxMemoSize, "memo",
			)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
