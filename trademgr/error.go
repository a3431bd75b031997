package trademgr

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/wallet"
)

// ErrUnknownWallet is returned when an offer spec names a wallet id the
// state manager does not know.
type ErrUnknownWallet struct {
	WalletID uint32
}

// Error returns a human readable string describing the error.
func (e *ErrUnknownWallet) Error() string {
	return fmt.Sprintf("no wallet with id %d exists", e.WalletID)
}

// ErrUnsupportedAsset is returned when an offer spec names a wallet whose
// type cannot participate in trades.
type ErrUnsupportedAsset struct {
	WalletID   uint32
	WalletType wallet.Type
}

// Error returns a human readable string describing the error.
func (e *ErrUnsupportedAsset) Error() string {
	return fmt.Sprintf("offers are not implemented for %v wallet %d",
		e.WalletType, e.WalletID)
}

// ErrInsufficientBalance is returned when a wallet's confirmed balance
// cannot cover the amount an offer spec parts with.
type ErrInsufficientBalance struct {
	WalletID uint32
	Balance  uint64
	Required uint64
}

// Error returns a human readable string describing the error.
func (e *ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %d: have %d, "+
		"need %d", e.WalletID, e.Balance, e.Required)
}

// ErrAssetNotHeld is returned when taking an offer requires a colored-asset
// wallet we do not have.
type ErrAssetNotHeld struct {
	AssetID chainhash.Hash
}

// Error returns a human readable string describing the error.
func (e *ErrAssetNotHeld) Error() string {
	return fmt.Sprintf("do not have a colored asset of asset ID: %x to "+
		"fulfill offer", e.AssetID[:])
}
