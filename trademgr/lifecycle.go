package trademgr

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tradenetwork/tnd/chainwatch"
	"github.com/tradenetwork/tnd/ledger"
	"github.com/tradenetwork/tnd/tradedb"
	"github.com/tradenetwork/tnd/trading"
	"github.com/tradenetwork/tnd/wallet"
)

// CoinsOfInterestSpent advances a trade's state machine in response to an
// on-ledger coin event.
//
// The outcome is read from the settlement coins on our side of the offer.
// If any of them has been spent, the trade executed successfully and
// confirms at that height. Otherwise a watched coin was consumed without
// our side settling: a trade in StatusPendingCancel finishes cancelled (our
// self-spend landed), while one in StatusPendingAccept or
// StatusPendingConfirm fails.
//
// The handler is idempotent: re-invocation once the trade is terminal is a
// no-op.
func (m *TradeManager) CoinsOfInterestSpent(state *chainwatch.CoinState) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	trade, err := m.GetTradeByCoin(state.Coin)
	if err != nil {
		return err
	}
	if trade == nil {
		log.Errorf("Coin %v is not part of any trade",
			state.Coin.ID())
		return nil
	}

	// An unspent coin merely appeared, which has no bearing on the
	// trade's state.
	if state.SpentHeight == nil {
		log.Debugf("Coin %v has not been spent, trade %v remains "+
			"valid", state.Coin.ID(), trade.TradeID)
		return nil
	}

	if trade.Status.IsFinal() {
		return nil
	}

	offer, err := m.decodeOffer(trade)
	if err != nil {
		return err
	}

	// Filter the offer down to the settlement coins on OUR side: the
	// offered coins whose parents we own.
	primaryIDs := ledger.CoinIDs(offer.PrimaryCoins())
	ourRecords, err := m.cfg.StateManager.CoinRecords(primaryIDs)
	if err != nil {
		return err
	}

	ourPrimary := mapset.NewSet[chainhash.Hash]()
	for _, record := range ourRecords {
		ourPrimary.Add(record.Coin.ID())
	}

	var ourSettlementIDs []chainhash.Hash
	for _, coins := range offer.OfferedCoins() {
		for i := range coins {
			if !ourPrimary.Contains(coins[i].ParentCoinID) {
				continue
			}
			ourSettlementIDs = append(
				ourSettlementIDs, coins[i].ID(),
			)
		}
	}

	states, err := m.cfg.StateManager.CoinStates(ourSettlementIDs)
	if err != nil {
		return err
	}

	var spentHeight *uint32
	for _, settlementState := range states {
		if settlementState.SpentHeight != nil {
			spentHeight = settlementState.SpentHeight
			break
		}
	}

	// If any of our settlement coins was spent, this offer was a
	// success.
	if spentHeight != nil {
		if err := m.maybeCreateWallets(offer); err != nil {
			return err
		}

		err := m.cfg.DB.SetStatus(
			trade.TradeID, tradedb.StatusConfirmed, *spentHeight,
		)
		if errors.Is(err, tradedb.ErrTradeFinal) {
			return nil
		}
		if err != nil {
			return err
		}

		log.Infof("Trade with id %v confirmed at height %d",
			trade.TradeID, *spentHeight)
		return nil
	}

	// Our settlement coins never settled, yet a watched coin was spent:
	// a primary input was consumed outside the trade.
	var next tradedb.TradeStatus
	switch trade.Status {
	case tradedb.StatusPendingCancel:
		next = tradedb.StatusCancelled

	case tradedb.StatusPendingConfirm, tradedb.StatusPendingAccept:
		// A maker offer whose primary was spent elsewhere can never
		// be taken anymore, so it fails along with unconfirmed
		// taker trades.
		next = tradedb.StatusFailed

	default:
		return nil
	}

	err = m.cfg.DB.SetStatus(trade.TradeID, next, 0)
	if errors.Is(err, tradedb.ErrTradeFinal) {
		return nil
	}
	if err != nil {
		return err
	}

	switch next {
	case tradedb.StatusCancelled:
		log.Infof("Trade with id %v cancelled", trade.TradeID)
	case tradedb.StatusFailed:
		log.Warnf("Trade with id %v failed", trade.TradeID)
	}

	return nil
}

// maybeCreateWallets ensures a tracking wallet exists for every colored
// asset appearing in the offer, creating any that are missing.
func (m *TradeManager) maybeCreateWallets(offer *trading.Offer) error {
	for key := range offer.Arbitrage() {
		assetID, colored := key.ID()
		if !colored {
			continue
		}

		_, err := m.cfg.StateManager.WalletForAsset(assetID)
		switch {
		case errors.Is(err, wallet.ErrNoSuchWallet):
			log.Infof("Creating wallet for asset ID: %x",
				assetID[:])
			_, err = m.cfg.StateManager.CreateAssetWallet(assetID)
			if err != nil {
				return err
			}

		case err != nil:
			return err
		}
	}

	return nil
}

// CancelPendingOffer cancels the trade by forgetting it. This has no
// on-ledger effect: a counterparty holding the offer blob can still settle
// it, so this is only safe when the blob was never shared.
func (m *TradeManager) CancelPendingOffer(tradeID chainhash.Hash) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.cfg.DB.SetStatus(tradeID, tradedb.StatusCancelled, 0)
}

// CancelPendingOfferSafely cancels the trade by spending every escrowed
// primary coin back to ourselves. The trade moves to StatusPendingCancel;
// confirmation of the self-spends drives the final transition to
// StatusCancelled. Should a counterparty settle the offer before our
// self-spends confirm, the settle wins and the trade confirms instead.
func (m *TradeManager) CancelPendingOfferSafely(tradeID chainhash.Hash,
	fee uint64) error {

	log.Infof("Secure-cancelling trade with id %v", tradeID)

	trade, err := m.cfg.DB.GetTradeRecord(tradeID)
	if err != nil {
		return err
	}

	offer, err := m.decodeOffer(trade)
	if err != nil {
		return err
	}

	for _, coin := range offer.PrimaryCoins() {
		w, err := m.cfg.StateManager.WalletForCoin(coin.ID())
		if errors.Is(err, wallet.ErrNoSuchWallet) {
			continue
		} else if err != nil {
			return err
		}

		newPH, err := w.NewPuzzleHash()
		if err != nil {
			return err
		}

		txs, err := w.GenerateSignedTransaction(
			[]uint64{coin.Amount}, []chainhash.Hash{newPH}, fee,
			[]ledger.Coin{coin}, true,
		)
		if err != nil {
			return err
		}

		for _, tx := range txs {
			err := m.cfg.StateManager.AddPendingTransaction(tx)
			if err != nil {
				return err
			}
		}
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.cfg.DB.SetStatus(tradeID, tradedb.StatusPendingCancel, 0)
}
