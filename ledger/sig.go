package ledger

import (
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
)

// SignatureSize is the length of a compressed BLS12-381 G2 signature.
const SignatureSize = bls12381.SizeOfG2AffineCompressed

// Signature is an aggregatable BLS12-381 G2 signature in its compressed
// serialized form. The zero value is NOT a valid signature; use
// InfinitySignature for the additive identity.
type Signature [SignatureSize]byte

// InfinitySignature returns the point-at-infinity signature, the identity
// element under aggregation. A bundle whose spends require no key signatures
// (such as settlement spends) carries this signature.
func InfinitySignature() Signature {
	var sig Signature
	sig[0] = 0xc0
	return sig
}

// ParseSignature decodes and validates a compressed G2 signature, including
// the subgroup membership check. It is used by codecs to reject bundles whose
// signatures could never verify.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("signature must be %d bytes, got %d",
			SignatureSize, len(b))
	}

	var point bls12381.G2Affine
	if _, err := point.SetBytes(b); err != nil {
		return sig, fmt.Errorf("invalid G2 signature encoding: %v", err)
	}

	copy(sig[:], b)
	return sig, nil
}

// AggregateSignatures combines the passed signatures into one via G2 point
// addition. Aggregating zero signatures yields the infinity signature.
func AggregateSignatures(sigs ...Signature) (Signature, error) {
	var agg bls12381.G2Jac
	for _, sig := range sigs {
		var point bls12381.G2Affine
		if _, err := point.SetBytes(sig[:]); err != nil {
			return Signature{}, fmt.Errorf("unable to aggregate "+
				"signature: %v", err)
		}
		agg.AddMixed(&point)
	}

	var affine bls12381.G2Affine
	affine.FromJacobian(&agg)

	return Signature(affine.Bytes()), nil
}
