package trademgr

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/ledger"
	"github.com/tradenetwork/tnd/tradedb"
	"github.com/tradenetwork/tnd/trading"
	"github.com/tradenetwork/tnd/wallet"
)

// CreateOfferForIDs builds a partial offer from the passed spec and
// persists it as a new maker trade in StatusPendingAccept. The spec maps
// wallet ids to signed amounts: positive amounts are requested from the
// counterparty, negative amounts are escrowed from the named wallet. The
// fee is taken from the base-asset leg, or the first escrowing leg if no
// base leg exists. No record is left behind on error.
func (m *TradeManager) CreateOfferForIDs(spec map[uint32]int64,
	fee uint64) (*tradedb.TradeRecord, error) {

	offer, err := m.createOffer(spec, fee)
	if err != nil {
		return nil, err
	}

	record := &tradedb.TradeRecord{
		TradeID:         offer.ID(),
		CreatedAt:       m.cfg.Clock.Now(),
		IsMyOffer:       true,
		Offer:           offer.Bytes(),
		CoinsOfInterest: offer.InvolvedCoins(),
		Status:          tradedb.StatusPendingAccept,
	}

	if err := m.cfg.DB.AddTradeRecord(record); err != nil {
		return nil, err
	}
	m.offerCache.Add(record.TradeID, offer)

	log.Infof("Created offer with trade_id=%v", record.TradeID)

	return record, nil
}

// createOffer runs the offer-construction algorithm: derive requested
// payments for every positive entry, select coins for every negative
// entry, notarize the payments against the full selected coin set, and
// aggregate the wallets' signed escrow transactions into a partial offer.
func (m *TradeManager) createOffer(spec map[uint32]int64,
	fee uint64) (*trading.Offer, error) {

	wallets := m.cfg.StateManager.Wallets()

	// Process wallets in id order so the construction is deterministic.
	walletIDs := make([]uint32, 0, len(spec))
	for id := range spec {
		walletIDs = append(walletIDs, id)
	}
	sort.Slice(walletIDs, func(i, j int) bool {
		return walletIDs[i] < walletIDs[j]
	})

	requested := make(map[trading.AssetKey][]trading.Payment)
	coinsToOffer := make(map[uint32][]ledger.Coin)

	for _, id := range walletIDs {
		amount := spec[id]
		if amount == 0 {
			continue
		}

		w, ok := wallets[id]
		if !ok {
			return nil, &ErrUnknownWallet{WalletID: id}
		}

		var key trading.AssetKey
		switch w.Type() {
		case wallet.TypeBase:
			key = trading.BaseAsset()

		case wallet.TypeColored:
			assetID, err := w.AssetID()
			if err != nil {
				return nil, err
			}
			key = trading.ColoredAsset(assetID)

		default:
			return nil, &ErrUnsupportedAsset{
				WalletID:   id,
				WalletType: w.Type(),
			}
		}

		if amount > 0 {
			p2PH, err := w.NewPuzzleHash()
			if err != nil {
				return nil, err
			}

			// Colored payments carry the inner puzzle hash as a
			// memo so the receiver hint survives the asset
			// wrapper. Base payments need none.
			var memos [][]byte
			if !key.IsBase() {
				memos = [][]byte{p2PH[:]}
			}

			requested[key] = append(requested[key],
				trading.Payment{
					PuzzleHash: p2PH,
					Amount:     uint64(amount),
					Memos:      memos,
				})

			continue
		}

		offering := uint64(-amount)

		balance, err := w.ConfirmedBalance()
		if err != nil {
			return nil, err
		}
		if balance < offering {
			return nil, &ErrInsufficientBalance{
				WalletID: id,
				Balance:  balance,
				Required: offering,
			}
		}

		coins, err := w.SelectCoins(offering)
		if err != nil {
			return nil, err
		}
		coinsToOffer[id] = coins
	}

	var allCoins []ledger.Coin
	for _, id := range walletIDs {
		allCoins = append(allCoins, coinsToOffer[id]...)
	}

	notarized := trading.NotarizePayments(requested, allCoins)
	announcements := trading.CalculateAnnouncements(notarized)

	// The fee rides on the base-asset escrow if one exists, otherwise on
	// the first escrowing wallet.
	feeWallet := uint32(0)
	haveFeeWallet := false
	for _, id := range walletIDs {
		if len(coinsToOffer[id]) == 0 {
			continue
		}
		if !haveFeeWallet {
			feeWallet, haveFeeWallet = id, true
		}
		if wallets[id].Type() == wallet.TypeBase {
			feeWallet = id
			break
		}
	}

	var bundles []*ledger.SpendBundle
	for _, id := range walletIDs {
		coins := coinsToOffer[id]
		if len(coins) == 0 {
			continue
		}

		batchFee := uint64(0)
		if id == feeWallet {
			batchFee = fee
		}

		txs, err := wallets[id].GenerateSignedTransaction(
			[]uint64{uint64(-spec[id])},
			[]chainhash.Hash{ledger.SettlementPuzzleHash},
			batchFee, coins, false,
		)
		if err != nil {
			return nil, err
		}

		for _, tx := range txs {
			if tx.Bundle != nil {
				bundles = append(bundles, tx.Bundle)
			}
		}
	}

	bundle, err := ledger.AggregateBundles(bundles...)
	if err != nil {
		return nil, err
	}

	// Each primary spend asserts every announcement the counterparty's
	// settlement spends will make, so the escrow can only settle in the
	// bundle it was notarized for.
	for i := range bundle.CoinSpends {
		bundle.CoinSpends[i].Asserts = append(
			[]chainhash.Hash(nil), announcements...,
		)
	}

	return trading.NewOffer(notarized, bundle), nil
}
