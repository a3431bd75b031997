package trademgr

import (
	"errors"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	mapset "github.com/deckarep/golang-set/v2"
	goerrors "github.com/go-errors/errors"

	"github.com/tradenetwork/tnd/ledger"
	"github.com/tradenetwork/tnd/tradedb"
	"github.com/tradenetwork/tnd/trading"
	"github.com/tradenetwork/tnd/wallet"
)

// RespondToOfferBytes parses a peer's offer blob and takes it.
func (m *TradeManager) RespondToOfferBytes(blob []byte,
	fee uint64) (*tradedb.TradeRecord, error) {

	offer, err := trading.ParseOffer(blob)
	if err != nil {
		return nil, err
	}
	return m.RespondToOffer(offer, fee)
}

// RespondToOffer takes a counterparty's partial offer: it builds the
// complementary leg from local wallets, aggregates both sides, promotes
// the aggregate to a ledger-ready bundle, persists the resulting taker
// trade in StatusPendingConfirm together with its derived transaction
// history, and queues the bundle for broadcast. No record is left behind
// on error.
func (m *TradeManager) RespondToOffer(offer *trading.Offer,
	fee uint64) (*tradedb.TradeRecord, error) {

	if err := offer.VerifySelfConsistent(); err != nil {
		return nil, err
	}

	// Map every unbalanced asset to the local wallet that can balance
	// it, building the complementary spec.
	arbitrage := offer.Arbitrage()

	keys := make([]trading.AssetKey, 0, len(arbitrage))
	for key := range arbitrage {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})

	takeSpec := make(map[uint32]int64, len(keys))
	for _, key := range keys {
		delta := arbitrage[key]
		if delta == 0 {
			continue
		}

		var w wallet.Wallet
		if assetID, colored := key.ID(); colored {
			var err error
			w, err = m.cfg.StateManager.WalletForAsset(assetID)
			if errors.Is(err, wallet.ErrNoSuchWallet) {
				return nil, &ErrAssetNotHeld{AssetID: assetID}
			} else if err != nil {
				return nil, err
			}
		} else {
			w = m.cfg.StateManager.MainWallet()
		}

		takeSpec[w.ID()] = delta
	}

	ours, err := m.createOffer(takeSpec, fee)
	if err != nil {
		return nil, err
	}

	complete, err := trading.Aggregate(offer, ours)
	if err != nil {
		return nil, goerrors.Wrap(err, 0)
	}
	if !complete.IsValid() {
		log.Errorf("Aggregate arbitrage is non-zero: %v",
			spew.Sdump(complete.Arbitrage()))
		return nil, trading.ErrInvalidAggregate
	}

	final, err := complete.ToValidSpend()
	if err != nil {
		return nil, goerrors.Wrap(err, 0)
	}

	tradeID := complete.ID()
	now := m.cfg.Clock.Now()

	txs, err := m.deriveTradeHistory(complete, final)
	if err != nil {
		return nil, err
	}

	// Dummy transaction carrying the full bundle for the sake of the
	// wallet push pipeline.
	push := &wallet.TransactionRecord{
		Name:      final.ID(),
		CreatedAt: now,
		Bundle:    final,
		Additions: final.Additions(),
		Removals:  final.Removals(),
		WalletID:  0,
		TradeID:   &tradeID,
		Type:      wallet.TxOutgoingTrade,
		Memos:     final.Memos(),
	}

	record := &tradedb.TradeRecord{
		TradeID:         tradeID,
		CreatedAt:       now,
		AcceptedAt:      &now,
		IsMyOffer:       false,
		Offer:           complete.Bytes(),
		CoinsOfInterest: complete.InvolvedCoins(),
		Status:          tradedb.StatusPendingConfirm,
	}

	// The record and its derived transactions must land together; the
	// record insert rolls back if any transaction fails to persist.
	err = m.cfg.DB.AddTradeRecordWithTxn(record, func() error {
		err := m.cfg.StateManager.AddPendingTransaction(push)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			if err := m.cfg.StateManager.AddTransaction(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.offerCache.Add(tradeID, complete)

	log.Infof("Accepted offer with trade_id=%v", tradeID)

	return record, nil
}

// deriveTradeHistory computes the wallet history rows a settled trade
// produces: one incoming row per settlement payment we receive, and one
// outgoing row per wallet whose coins fed a settlement escrow.
func (m *TradeManager) deriveTradeHistory(complete *trading.Offer,
	final *ledger.SpendBundle) ([]*wallet.TransactionRecord, error) {

	settlementIDs := mapset.NewSet[chainhash.Hash]()
	settlementParents := mapset.NewSet[chainhash.Hash]()
	for _, coins := range complete.OfferedCoins() {
		for i := range coins {
			settlementIDs.Add(coins[i].ID())
			settlementParents.Add(coins[i].ParentCoinID)
		}
	}

	bundleID := final.ID()
	tradeID := complete.ID()
	now := m.cfg.Clock.Now()
	wallets := m.cfg.StateManager.Wallets()

	var txs []*wallet.TransactionRecord

	// Additions created by a settlement coin are value arriving through
	// the trade; each one we can claim becomes its own incoming row.
	for _, addition := range final.NotEphemeralAdditions() {
		if !settlementIDs.Contains(addition.ParentCoinID) {
			continue
		}

		walletID, ok, err := m.cfg.StateManager.WalletIDForPuzzleHash(
			addition.PuzzleHash,
		)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		w, ok := wallets[walletID]
		if !ok {
			continue
		}

		toPH, err := w.ConvertPuzzleHash(addition.PuzzleHash)
		if err != nil {
			return nil, err
		}

		additionID := addition.ID()
		name := chainhash.HashH(
			append(bundleID[:], additionID[:]...),
		)

		txs = append(txs, &wallet.TransactionRecord{
			Name:         name,
			CreatedAt:    now,
			ToPuzzleHash: toPH,
			Amount:       addition.Amount,
			Sent:         10,
			WalletID:     walletID,
			TradeID:      &tradeID,
			Type:         wallet.TxIncomingTrade,
		})
	}

	// While we want additions to show up as separate rows, removals of
	// the same wallet should show as one.
	removalsByWallet := make(map[uint32][]ledger.Coin)
	for _, removal := range final.Removals() {
		if !settlementParents.Contains(removal.ID()) {
			continue
		}

		walletID, ok, err := m.cfg.StateManager.WalletIDForPuzzleHash(
			removal.PuzzleHash,
		)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		removalsByWallet[walletID] = append(
			removalsByWallet[walletID], removal,
		)
	}

	groupedIDs := make([]uint32, 0, len(removalsByWallet))
	for walletID := range removalsByWallet {
		groupedIDs = append(groupedIDs, walletID)
	}
	sort.Slice(groupedIDs, func(i, j int) bool {
		return groupedIDs[i] < groupedIDs[j]
	})

	for _, walletID := range groupedIDs {
		grouped := removalsByWallet[walletID]

		var amount uint64
		for i := range grouped {
			amount += grouped[i].Amount
		}

		groupHash := ledger.HashCoinList(grouped)
		name := chainhash.HashH(
			append(bundleID[:], groupHash[:]...),
		)

		// The all-zero destination makes clear the value left the
		// wallet without a local recipient.
		txs = append(txs, &wallet.TransactionRecord{
			Name:         name,
			CreatedAt:    now,
			ToPuzzleHash: chainhash.Hash{},
			Amount:       amount,
			Sent:         10,
			Removals:     grouped,
			WalletID:     walletID,
			TradeID:      &tradeID,
			Type:         wallet.TxOutgoingTrade,
		})
	}

	return txs, nil
}
