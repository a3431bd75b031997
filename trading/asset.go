package trading

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/ledger"
)

// AssetKey identifies the asset a payment or offered coin settles: either
// the ledger's base asset, or a colored asset named by its 32-byte id. The
// zero value is the base asset. AssetKey is comparable and usable as a map
// key.
type AssetKey struct {
	colored bool
	id      chainhash.Hash
}

// BaseAsset returns the key for the ledger's base asset.
func BaseAsset() AssetKey {
	return AssetKey{}
}

// ColoredAsset returns the key for the colored asset with the given id.
func ColoredAsset(id chainhash.Hash) AssetKey {
	return AssetKey{colored: true, id: id}
}

// AssetFromTag converts an optional asset tag (nil meaning base) into an
// AssetKey.
func AssetFromTag(tag *chainhash.Hash) AssetKey {
	if tag == nil {
		return BaseAsset()
	}
	return ColoredAsset(*tag)
}

// IsBase reports whether the key names the base asset.
func (k AssetKey) IsBase() bool {
	return !k.colored
}

// ID returns the colored asset id, and false if the key is the base asset.
func (k AssetKey) ID() (chainhash.Hash, bool) {
	return k.id, k.colored
}

// Tag returns the key as an optional hash pointer, nil for the base asset.
// The returned pointer references a copy.
func (k AssetKey) Tag() *chainhash.Hash {
	if !k.colored {
		return nil
	}
	id := k.id
	return &id
}

// SettlementPuzzleHash returns the puzzle hash offered coins of this asset
// pay to: the bare settlement hash for the base asset, its wrapped form for
// colored assets.
func (k AssetKey) SettlementPuzzleHash() chainhash.Hash {
	return ledger.AssetPuzzleHash(k.Tag(), ledger.SettlementPuzzleHash)
}

// Less orders asset keys canonically: base first, then colored ids by raw
// byte order.
func (k AssetKey) Less(other AssetKey) bool {
	if k.colored != other.colored {
		return !k.colored
	}
	return bytes.Compare(k.id[:], other.id[:]) < 0
}

// String returns "base" or the hex asset id.
func (k AssetKey) String() string {
	if !k.colored {
		return "base"
	}
	return k.id.String()
}

// sortAssetKeys sorts keys in place into canonical order and returns the
// slice.
func sortAssetKeys(keys []AssetKey) []AssetKey {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})
	return keys
}

// sortedKeys returns the canonically ordered keys of the passed map.
func sortedKeys[V any](m map[AssetKey]V) []AssetKey {
	keys := make([]AssetKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return sortAssetKeys(keys)
}
