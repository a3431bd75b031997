package wallet

import (
	"fmt"
	"sort"

	"github.com/tradenetwork/tnd/ledger"
)

// ErrInsufficientFunds is a type matching the error interface which is
// returned when coin selection fails due to having an insufficient amount
// of confirmed funds.
type ErrInsufficientFunds struct {
	AmountAvailable uint64
	AmountRequired  uint64
}

// Error returns a human readable string describing the error.
func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("not enough confirmed coins to cover requested "+
		"amount, need %v only have %v available",
		e.AmountRequired, e.AmountAvailable)
}

// ErrCoinSelectionFailed is returned when the wallet holds sufficient funds
// but cannot assemble a coin set covering the requested amount.
type ErrCoinSelectionFailed struct {
	Reason string
}

// Error returns a human readable string describing the error.
func (e *ErrCoinSelectionFailed) Error() string {
	return fmt.Sprintf("coin selection failed: %v", e.Reason)
}

// SelectCoins attempts to select a sufficient amount of coins from the
// passed candidate set to cover the requested amount. Candidates are
// considered largest first, which keeps the selected set small. The total
// value of the selection is returned so the caller can properly handle
// change.
func SelectCoins(amount uint64, coins []ledger.Coin) ([]ledger.Coin, uint64,
	error) {

	sorted := make([]ledger.Coin, len(coins))
	copy(sorted, coins)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})

	var selected uint64
	for i := range sorted {
		selected += sorted[i].Amount
		if selected >= amount {
			return sorted[:i+1], selected, nil
		}
	}

	return nil, 0, &ErrInsufficientFunds{
		AmountAvailable: selected,
		AmountRequired:  amount,
	}
}
