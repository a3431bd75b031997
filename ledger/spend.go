package ledger

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// pver is the protocol version passed to the var-int/var-bytes
	// primitives. The encoding is version-less; the constant only
	// satisfies their signatures.
	pver = 0

	// maxRevealSize bounds the size of a single puzzle reveal.
	maxRevealSize = 1 << 20

	// maxMemoSize bounds the size of a single payment memo.
	maxMemoSize = 1 << 10
)

// CreatedCoin is a single output created by a coin spend: the puzzle hash
// and amount of the new coin, plus optional memos carried alongside it
// (colored-asset outputs hint their inner puzzle hash this way).
type CreatedCoin struct {
	PuzzleHash chainhash.Hash
	Amount     uint64
	Memos      [][]byte
}

// CoinSpend spends a single coin. The reveal commits to the coin's puzzle
// hash and is validated by the ledger rules; the outputs the spend creates
// and the announcements it asserts are carried explicitly so that observers
// need not execute the reveal to derive them.
type CoinSpend struct {
	// Coin is the coin being consumed.
	Coin Coin

	// PuzzleReveal is the serialized program whose hash is the coin's
	// puzzle hash (or its unwrapped inner form for colored coins).
	PuzzleReveal []byte

	// AssetID tags the asset the spend operates under. Nil for the base
	// asset.
	AssetID *chainhash.Hash

	// Outputs are the coins created by this spend.
	Outputs []CreatedCoin

	// Asserts is the set of announcement ids this spend requires to be
	// made elsewhere in the same bundle.
	Asserts []chainhash.Hash
}

// Additions returns the coins created by this spend.
func (cs *CoinSpend) Additions() []Coin {
	parent := cs.Coin.ID()
	adds := make([]Coin, len(cs.Outputs))
	for i, out := range cs.Outputs {
		adds[i] = Coin{
			ParentCoinID: parent,
			PuzzleHash:   out.PuzzleHash,
			Amount:       out.Amount,
		}
	}
	return adds
}

// SpendBundle is an aggregate of coin spends with their combined signature,
// the unit of ledger acceptance.
type SpendBundle struct {
	// CoinSpends is the set of spends, kept sorted by coin id so two
	// independently aggregated bundles of the same spends are
	// byte-identical.
	CoinSpends []CoinSpend

	// AggregatedSignature is the combined signature over all spends.
	AggregatedSignature Signature
}

// NewSpendBundle returns a bundle over the passed spends, canonicalizing
// their order.
func NewSpendBundle(spends []CoinSpend, sig Signature) *SpendBundle {
	sb := &SpendBundle{
		CoinSpends:          spends,
		AggregatedSignature: sig,
	}
	sb.sortSpends()
	return sb
}

func (sb *SpendBundle) sortSpends() {
	sort.Slice(sb.CoinSpends, func(i, j int) bool {
		iID := sb.CoinSpends[i].Coin.ID()
		jID := sb.CoinSpends[j].Coin.ID()
		return bytes.Compare(iID[:], jID[:]) < 0
	})
}

// AggregateBundles combines the passed bundles into a single bundle carrying
// the sum of their signatures.
func AggregateBundles(bundles ...*SpendBundle) (*SpendBundle, error) {
	var (
		spends []CoinSpend
		sigs   []Signature
	)
	for _, bundle := range bundles {
		spends = append(spends, bundle.CoinSpends...)
		sigs = append(sigs, bundle.AggregatedSignature)
	}

	sig, err := AggregateSignatures(sigs...)
	if err != nil {
		return nil, err
	}

	return NewSpendBundle(spends, sig), nil
}

// Removals returns the coins consumed by the bundle.
func (sb *SpendBundle) Removals() []Coin {
	coins := make([]Coin, len(sb.CoinSpends))
	for i := range sb.CoinSpends {
		coins[i] = sb.CoinSpends[i].Coin
	}
	return coins
}

// Additions returns every coin created by the bundle, including ephemeral
// ones that are also consumed within it.
func (sb *SpendBundle) Additions() []Coin {
	var coins []Coin
	for i := range sb.CoinSpends {
		coins = append(coins, sb.CoinSpends[i].Additions()...)
	}
	return coins
}

// NotEphemeralAdditions returns the coins created by the bundle that survive
// it, excluding any addition that another spend in the same bundle consumes.
func (sb *SpendBundle) NotEphemeralAdditions() []Coin {
	removed := make(map[chainhash.Hash]struct{}, len(sb.CoinSpends))
	for i := range sb.CoinSpends {
		removed[sb.CoinSpends[i].Coin.ID()] = struct{}{}
	}

	var coins []Coin
	for _, coin := range sb.Additions() {
		if _, ok := removed[coin.ID()]; ok {
			continue
		}
		coins = append(coins, coin)
	}
	return coins
}

// Memos returns the memos attached to each addition of the bundle, keyed by
// the created coin's id. Ephemeral additions are not filtered out.
func (sb *SpendBundle) Memos() map[chainhash.Hash][][]byte {
	memos := make(map[chainhash.Hash][][]byte)
	for i := range sb.CoinSpends {
		parent := sb.CoinSpends[i].Coin.ID()
		for _, out := range sb.CoinSpends[i].Outputs {
			if len(out.Memos) == 0 {
				continue
			}
			coin := Coin{
				ParentCoinID: parent,
				PuzzleHash:   out.PuzzleHash,
				Amount:       out.Amount,
			}
			memos[coin.ID()] = out.Memos
		}
	}
	return memos
}

// ID returns the bundle's identity, the hash of its canonical serialization.
func (sb *SpendBundle) ID() chainhash.Hash {
	var b bytes.Buffer

	// The buffer never fails to write.
	_ = sb.Encode(&b)

	return chainhash.HashH(b.Bytes())
}

// Encode serializes the bundle to the passed io.Writer in its canonical
// form.
func (sb *SpendBundle) Encode(w io.Writer) error {
	if err := wire.WriteVarInt(w, pver, uint64(len(sb.CoinSpends))); err != nil {
		return err
	}
	for i := range sb.CoinSpends {
		if err := writeCoinSpend(w, &sb.CoinSpends[i]); err != nil {
			return err
		}
	}

	_, err := w.Write(sb.AggregatedSignature[:])
	return err
}

// DecodeSpendBundle deserializes a bundle from the passed io.Reader,
// validating the signature encoding.
func DecodeSpendBundle(r io.Reader) (*SpendBundle, error) {
	numSpends, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}

	sb := &SpendBundle{}
	if numSpends > 0 {
		sb.CoinSpends = make([]CoinSpend, numSpends)
	}
	for i := range sb.CoinSpends {
		if err := readCoinSpend(r, &sb.CoinSpends[i]); err != nil {
			return nil, err
		}
	}

	var rawSig [SignatureSize]byte
	if _, err := io.ReadFull(r, rawSig[:]); err != nil {
		return nil, err
	}
	sb.AggregatedSignature, err = ParseSignature(rawSig[:])
	if err != nil {
		return nil, err
	}

	return sb, nil
}

func writeCoinSpend(w io.Writer, cs *CoinSpend) error {
	if err := WriteCoin(w, &cs.Coin); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, cs.PuzzleReveal); err != nil {
		return err
	}

	if err := writeOptionalHash(w, cs.AssetID); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, pver, uint64(len(cs.Outputs))); err != nil {
		return err
	}
	for i := range cs.Outputs {
		if err := writeCreatedCoin(w, &cs.Outputs[i]); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, pver, uint64(len(cs.Asserts))); err != nil {
		return err
	}
	for i := range cs.Asserts {
		if _, err := w.Write(cs.Asserts[i][:]); err != nil {
			return err
		}
	}

	return nil
}

func readCoinSpend(r io.Reader, cs *CoinSpend) error {
	if err := ReadCoin(r, &cs.Coin); err != nil {
		return err
	}

	reveal, err := wire.ReadVarBytes(r, pver, maxRevealSize, "puzzle reveal")
	if err != nil {
		return err
	}
	cs.PuzzleReveal = reveal

	cs.AssetID, err = readOptionalHash(r)
	if err != nil {
		return err
	}

	numOutputs, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if numOutputs > 0 {
		cs.Outputs = make([]CreatedCoin, numOutputs)
	}
	for i := range cs.Outputs {
		if err := readCreatedCoin(r, &cs.Outputs[i]); err != nil {
			return err
		}
	}

	numAsserts, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if numAsserts > 0 {
		cs.Asserts = make([]chainhash.Hash, numAsserts)
	}
	for i := range cs.Asserts {
		if _, err := io.ReadFull(r, cs.Asserts[i][:]); err != nil {
			return err
		}
	}

	return nil
}

func writeCreatedCoin(w io.Writer, out *CreatedCoin) error {
	if _, err := w.Write(out.PuzzleHash[:]); err != nil {
		return err
	}

	var amt [8]byte
	byteOrder.PutUint64(amt[:], out.Amount)
	if _, err := w.Write(amt[:]); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, pver, uint64(len(out.Memos))); err != nil {
		return err
	}
	for _, memo := range out.Memos {
		if err := wire.WriteVarBytes(w, pver, memo); err != nil {
			return err
		}
	}

	return nil
}

func readCreatedCoin(r io.Reader, out *CreatedCoin) error {
	if _, err := io.ReadFull(r, out.PuzzleHash[:]); err != nil {
		return err
	}

	var amt [8]byte
	if _, err := io.ReadFull(r, amt[:]); err != nil {
		return err
	}
	out.Amount = byteOrder.Uint64(amt[:])

	numMemos, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if numMemos > 0 {
		out.Memos = make([][]byte, numMemos)
		for i := range out.Memos {
			out.Memos[i], err = wire.ReadVarBytes(
				r, pver, maxMemoSize, "memo",
			)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func writeOptionalHash(w io.Writer, h *chainhash.Hash) error {
	if h == nil {
		_, err := w.Write([]byte{0x00})
		return err
	}

	if _, err := w.Write([]byte{0x01}); err != nil {
		return err
	}
	_, err := w.Write(h[:])
	return err
}

func readOptionalHash(r io.Reader) (*chainhash.Hash, error) {
	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return nil, err
	}

	switch present[0] {
	case 0x00:
		return nil, nil
	case 0x01:
		var h chainhash.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, err
		}
		return &h, nil
	default:
		return nil, fmt.Errorf("invalid optional hash marker: %x",
			present[0])
	}
}
