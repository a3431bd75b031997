package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/tradenetwork/tnd/ledger"
)

func testCoin(seed string, amount uint64) ledger.Coin {
	return ledger.Coin{
		ParentCoinID: chainhash.HashH([]byte(seed + "-parent")),
		PuzzleHash:   chainhash.HashH([]byte(seed + "-puzzle")),
		Amount:       amount,
	}
}

// TestSelectCoins asserts largest-first selection and the insufficient
// funds error.
func TestSelectCoins(t *testing.T) {
	t.Parallel()

	coins := []ledger.Coin{
		testCoin("a", 10),
		testCoin("b", 50),
		testCoin("c", 25),
	}

	// A single large coin covers the request.
	selected, total, err := SelectCoins(40, coins)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	require.Equal(t, uint64(50), total)
	require.Equal(t, uint64(50), selected[0].Amount)

	// Larger requests accumulate coins largest first.
	selected, total, err = SelectCoins(60, coins)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Equal(t, uint64(75), total)

	// Exact coverage of the full set.
	selected, total, err = SelectCoins(85, coins)
	require.NoError(t, err)
	require.Len(t, selected, 3)
	require.Equal(t, uint64(85), total)

	// Requests beyond the available total fail.
	_, _, err = SelectCoins(86, coins)
	var insufficientErr *ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficientErr)
	require.Equal(t, uint64(85), insufficientErr.AmountAvailable)
	require.Equal(t, uint64(86), insufficientErr.AmountRequired)
}

// TestMockWalletReservation asserts selected coins stay reserved until the
// wallet is told otherwise, preventing double-inclusion across concurrent
// offers.
func TestMockWalletReservation(t *testing.T) {
	t.Parallel()

	wsm := NewMockStateManager()
	base := wsm.MainWallet().(*MockWallet)
	wsm.FundCoin(base, 100)

	first, err := base.SelectCoins(100)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The only coin is now reserved.
	_, err = base.SelectCoins(1)
	var insufficientErr *ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficientErr)
}
