package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// settlementProgram is the serialized settlement program, a build-time
// constant supplied by the ledger rules. The program releases its coin iff
// the spend presents each notarized payment of the offered-coins group it
// belongs to, announcing consumption of every payment it creates.
var settlementProgram = []byte{
	0xff, 0x02, 0xff, 0xff, 0x01, 0xff, 0x02, 0xff,
	0xff, 0x01, 0xff, 0x02, 0xff, 0xff, 0x03, 0xff,
	0xff, 0x01, 0xff, 0x02, 0xff, 0xff, 0x05, 0xff,
	0xff, 0x02, 0xff, 0xff, 0x05, 0xff, 0xff, 0x0b,
	0x80, 0x80, 0x80, 0xff, 0xff, 0x01, 0x80, 0x80,
	0x80, 0x80, 0xff, 0xff, 0x04, 0xff, 0xff, 0x01,
	0x01, 0xff, 0x0b, 0x80, 0xff, 0x01, 0x80, 0x80,
}

// assetWrapperProgram is the serialized asset-wrapping program used to give
// colored coins their outer puzzle. Also a ledger-rules constant.
var assetWrapperProgram = []byte{
	0xff, 0x02, 0xff, 0xff, 0x01, 0xff, 0x0a, 0xff,
	0xff, 0x02, 0xff, 0x05, 0xff, 0x0b, 0x80, 0xff,
	0xff, 0x0b, 0xff, 0x05, 0xff, 0x17, 0x80, 0x80,
	0xff, 0xff, 0x04, 0xff, 0x02, 0xff, 0x80, 0x80,
}

var (
	// SettlementPuzzleHash is the puzzle hash of the bare settlement
	// program. Offered base-asset coins pay to this hash directly;
	// colored offered coins pay to its asset-wrapped form.
	SettlementPuzzleHash = chainhash.HashH(settlementProgram)

	// assetWrapperHash commits to the wrapping program itself, and is the
	// first element of every wrapped puzzle commitment.
	assetWrapperHash = HashAtom(assetWrapperProgram)
)

// SettlementReveal returns a copy of the settlement program bytes for
// inclusion as a puzzle reveal.
func SettlementReveal() []byte {
	reveal := make([]byte, len(settlementProgram))
	copy(reveal, settlementProgram)
	return reveal
}

// AssetSettlementReveal returns the puzzle reveal for a settlement coin of
// the given asset: the bare settlement program for the base asset, or the
// wrapper program curried with the asset id and the settlement program for
// colored assets.
func AssetSettlementReveal(assetID *chainhash.Hash) []byte {
	if assetID == nil {
		return SettlementReveal()
	}

	reveal := make([]byte, 0,
		len(assetWrapperProgram)+chainhash.HashSize+len(settlementProgram))
	reveal = append(reveal, assetWrapperProgram...)
	reveal = append(reveal, assetID[:]...)
	reveal = append(reveal, settlementProgram...)
	return reveal
}

// AssetPuzzleHash derives the outer puzzle hash of a coin whose inner puzzle
// hash is innerPH, under the given asset. The base asset (nil tag) has no
// wrapper, so the inner hash is returned unchanged. For colored assets the
// wrapped hash commits to the wrapper program, the asset id, and the inner
// puzzle.
func AssetPuzzleHash(assetID *chainhash.Hash, innerPH chainhash.Hash) chainhash.Hash {
	if assetID == nil {
		return innerPH
	}

	return HashList([]chainhash.Hash{
		assetWrapperHash,
		HashAtom(assetID[:]),
		innerPH,
	})
}

// PaymentAnnouncement derives the announcement a settlement spend makes for
// a single notarized payment. The announcement is keyed by the settlement
// puzzle hash of the payment's asset group rather than a coin id, since the
// party asserting it cannot know the counterparty's settlement coin ids in
// advance.
func PaymentAnnouncement(settlementPH, paymentHash chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, 2*chainhash.HashSize)
	buf = append(buf, settlementPH[:]...)
	buf = append(buf, paymentHash[:]...)
	return chainhash.HashH(buf)
}
