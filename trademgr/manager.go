package trademgr

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/tradenetwork/tnd/chainwatch"
	"github.com/tradenetwork/tnd/ledger"
	"github.com/tradenetwork/tnd/tradedb"
	"github.com/tradenetwork/tnd/trading"
	"github.com/tradenetwork/tnd/wallet"
)

// defaultOfferCacheSize is the number of deserialized offers kept in
// memory. Ledger events and locked-coin scans would otherwise reparse the
// stored blob on every hit.
const defaultOfferCacheSize = 64

// Config bundles the collaborators a TradeManager needs to operate.
type Config struct {
	// StateManager owns the node's wallets and its view of the ledger.
	StateManager wallet.StateManager

	// DB is the persistent trade store.
	DB *tradedb.DB

	// Clock is the time source for record timestamps.
	Clock clock.Clock

	// Notifier, if set, delivers coin state events once the manager is
	// started. The manager can also be driven directly via
	// CoinsOfInterestSpent.
	Notifier chainwatch.CoinNotifier
}

// TradeManager mediates atomic peer-to-peer asset exchanges: it constructs
// partial offers against local wallets, completes counterparty offers into
// ledger-ready bundles, and advances every known trade through its
// lifecycle as coin events arrive from the ledger.
type TradeManager struct {
	started sync.Once
	stopped sync.Once

	cfg Config

	// mtx serializes every status transition. Distinct trades could
	// transition independently, but correctness only requires that no
	// two transitions interleave on the same trade.
	mtx sync.Mutex

	offerCache *lru.Cache

	wg   sync.WaitGroup
	quit chan struct{}
}

// New creates a TradeManager from the passed config.
func New(cfg *Config) (*TradeManager, error) {
	if cfg.StateManager == nil || cfg.DB == nil {
		return nil, fmt.Errorf("trade manager requires a state " +
			"manager and a db")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	offerCache, err := lru.New(defaultOfferCacheSize)
	if err != nil {
		return nil, err
	}

	return &TradeManager{
		cfg:        *cfg,
		offerCache: offerCache,
		quit:       make(chan struct{}),
	}, nil
}

// Start registers the manager's coins of interest with the configured
// notifier and begins consuming coin events. It is a no-op without a
// notifier.
func (m *TradeManager) Start() error {
	var startErr error
	m.started.Do(func() {
		if m.cfg.Notifier == nil {
			return
		}

		coins, err := m.GetCoinsOfInterest()
		if err != nil {
			startErr = err
			return
		}

		coinIDs := make([]chainhash.Hash, 0, len(coins))
		for id := range coins {
			coinIDs = append(coinIDs, id)
		}

		event, err := m.cfg.Notifier.RegisterCoinNtfn(coinIDs)
		if err != nil {
			startErr = err
			return
		}

		m.wg.Add(1)
		go m.eventHandler(event)
	})
	return startErr
}

// Stop signals the event handler to exit and waits for it.
func (m *TradeManager) Stop() {
	m.stopped.Do(func() {
		close(m.quit)
		m.wg.Wait()
	})
}

// eventHandler consumes coin state events until the notifier closes the
// stream or the manager stops. Handler errors are logged, never surfaced;
// event handling is best-effort.
func (m *TradeManager) eventHandler(event *chainwatch.CoinStateEvent) {
	defer m.wg.Done()

	for {
		select {
		case state, ok := <-event.States:
			if !ok {
				return
			}

			if err := m.CoinsOfInterestSpent(state); err != nil {
				log.Errorf("Unable to process coin state "+
					"for coin %v: %v",
					state.Coin.ID(), err)
			}

		case <-m.quit:
			return
		}
	}
}

// GetAllTrades returns every trade record in the store.
func (m *TradeManager) GetAllTrades() ([]*tradedb.TradeRecord, error) {
	return m.cfg.DB.GetAllTrades()
}

// GetTradeByID returns the trade with the passed id.
func (m *TradeManager) GetTradeByID(
	tradeID chainhash.Hash) (*tradedb.TradeRecord, error) {

	return m.cfg.DB.GetTradeRecord(tradeID)
}

// GetOffersWithStatus returns every trade currently in the passed status.
func (m *TradeManager) GetOffersWithStatus(
	status tradedb.TradeStatus) ([]*tradedb.TradeRecord, error) {

	return m.cfg.DB.GetTradesWithStatus(status)
}

// pendingTrades returns every trade that still awaits on-ledger resolution.
func (m *TradeManager) pendingTrades() ([]*tradedb.TradeRecord, error) {
	var pending []*tradedb.TradeRecord
	for _, status := range tradedb.PendingStatuses() {
		records, err := m.cfg.DB.GetTradesWithStatus(status)
		if err != nil {
			return nil, err
		}
		pending = append(pending, records...)
	}
	return pending, nil
}

// GetCoinsOfInterest returns the set of coins the manager must watch for
// on-ledger events, keyed by coin id. These include coins that belong to us
// and coins on the other side of each pending trade.
func (m *TradeManager) GetCoinsOfInterest() (map[chainhash.Hash]ledger.Coin,
	error) {

	pending, err := m.pendingTrades()
	if err != nil {
		return nil, err
	}

	interested := make(map[chainhash.Hash]ledger.Coin)
	for _, trade := range pending {
		for _, coin := range trade.CoinsOfInterest {
			interested[coin.ID()] = coin
		}
	}
	return interested, nil
}

// GetTradeByCoin returns the trade whose coins of interest contain the
// passed coin. Cancelled trades are skipped: their coins may legitimately
// appear again in a later offer.
func (m *TradeManager) GetTradeByCoin(
	coin ledger.Coin) (*tradedb.TradeRecord, error) {

	trades, err := m.cfg.DB.GetAllTrades()
	if err != nil {
		return nil, err
	}

	coinID := coin.ID()
	for _, trade := range trades {
		if trade.Status == tradedb.StatusCancelled {
			continue
		}
		for i := range trade.CoinsOfInterest {
			if trade.CoinsOfInterest[i].ID() == coinID {
				return trade, nil
			}
		}
	}
	return nil, nil
}

// GetLockedCoins returns the confirmed coins that are locked by a pending
// trade, keyed by coin id. If walletID is non-nil only that wallet's coins
// are returned.
func (m *TradeManager) GetLockedCoins(
	walletID *uint32) (map[chainhash.Hash]*wallet.WalletCoinRecord, error) {

	pending, err := m.pendingTrades()
	if err != nil {
		return nil, err
	}

	interested := mapset.NewSet[chainhash.Hash]()
	for _, trade := range pending {
		offer, err := m.decodeOffer(trade)
		if err != nil {
			return nil, err
		}
		for _, coin := range offer.InvolvedCoins() {
			interested.Add(coin.ID())
		}
	}

	records, err := m.cfg.StateManager.CoinRecords(interested.ToSlice())
	if err != nil {
		return nil, err
	}

	locked := make(map[chainhash.Hash]*wallet.WalletCoinRecord)
	for _, record := range records {
		if walletID != nil && record.WalletID != *walletID {
			continue
		}
		locked[record.Coin.ID()] = record
	}
	return locked, nil
}

// SaveTrade persists the passed record.
func (m *TradeManager) SaveTrade(record *tradedb.TradeRecord) error {
	return m.cfg.DB.AddTradeRecord(record)
}

// decodeOffer returns the deserialized offer of the passed trade record,
// consulting the offer cache first.
func (m *TradeManager) decodeOffer(
	record *tradedb.TradeRecord) (*trading.Offer, error) {

	if cached, ok := m.offerCache.Get(record.TradeID); ok {
		return cached.(*trading.Offer), nil
	}

	offer, err := trading.ParseOffer(record.Offer)
	if err != nil {
		return nil, err
	}

	m.offerCache.Add(record.TradeID, offer)
	return offer, nil
}
