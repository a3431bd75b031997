package wallet

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/tradenetwork/tnd/chainwatch"
	"github.com/tradenetwork/tnd/ledger"
)

// MockStateManager is a fully in-memory StateManager used within tests and
// simulations. It owns a set of MockWallets, tracks coin ownership and a
// simulated ledger view, and records every transaction handed to it.
type MockStateManager struct {
	mtx sync.Mutex

	wallets    map[uint32]*MockWallet
	mainWallet *MockWallet
	nextID     uint32

	coinRecords map[chainhash.Hash]*WalletCoinRecord
	coinStates  map[chainhash.Hash]*chainwatch.CoinState
	phOwner     map[chainhash.Hash]uint32

	pending []*TransactionRecord
	history []*TransactionRecord
}

// NewMockStateManager returns a state manager holding a single base wallet
// with id 1.
func NewMockStateManager() *MockStateManager {
	m := &MockStateManager{
		wallets:     make(map[uint32]*MockWallet),
		nextID:      1,
		coinRecords: make(map[chainhash.Hash]*WalletCoinRecord),
		coinStates:  make(map[chainhash.Hash]*chainwatch.CoinState),
		phOwner:     make(map[chainhash.Hash]uint32),
	}
	m.mainWallet = m.newWallet(TypeBase, nil)
	return m
}

func (m *MockStateManager) newWallet(walletType Type,
	assetID *chainhash.Hash) *MockWallet {

	w := &MockWallet{
		id:         m.nextID,
		walletType: walletType,
		assetID:    assetID,
		wsm:        m,
		coins:      make(map[chainhash.Hash]ledger.Coin),
		reserved:   make(map[chainhash.Hash]struct{}),
		unwrap:     make(map[chainhash.Hash]chainhash.Hash),
	}
	m.wallets[w.id] = w
	m.nextID++
	return w
}

// NewColoredWallet adds a wallet tracking the passed asset and returns it.
func (m *MockStateManager) NewColoredWallet(assetID chainhash.Hash) *MockWallet {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	id := assetID
	return m.newWallet(TypeColored, &id)
}

// NewOtherWallet adds a wallet of a kind that cannot trade.
func (m *MockStateManager) NewOtherWallet() *MockWallet {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.newWallet(TypeOther, nil)
}

// FundCoin creates a confirmed coin of the passed amount in the wallet and
// returns it. The coin's parent is derived from the wallet id and a
// per-wallet counter, and its puzzle hash is a fresh one of the wallet.
func (m *MockStateManager) FundCoin(w *MockWallet, amount uint64) ledger.Coin {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	ph := w.freshPuzzleHash()

	w.fundCounter++
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], w.fundCounter)
	parent := chainhash.HashH(append(scratch[:], byte(w.id)))

	coin := ledger.Coin{
		ParentCoinID: parent,
		PuzzleHash:   ph,
		Amount:       amount,
	}
	w.coins[coin.ID()] = coin

	height := uint32(1)
	m.coinRecords[coin.ID()] = &WalletCoinRecord{
		Coin:            coin,
		WalletID:        w.id,
		ConfirmedHeight: height,
	}
	m.coinStates[coin.ID()] = &chainwatch.CoinState{
		Coin:          coin,
		CreatedHeight: &height,
	}

	return coin
}

// ObserveCoin makes the simulated ledger aware of a coin without assigning
// it to any wallet.
func (m *MockStateManager) ObserveCoin(coin ledger.Coin, createdHeight uint32) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.coinStates[coin.ID()] = &chainwatch.CoinState{
		Coin:          coin,
		CreatedHeight: &createdHeight,
	}
}

// SpendCoin marks a coin the simulated ledger knows about as spent at the
// passed height and returns its resulting state.
func (m *MockStateManager) SpendCoin(coinID chainhash.Hash,
	height uint32) (*chainwatch.CoinState, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	state, ok := m.coinStates[coinID]
	if !ok {
		return nil, fmt.Errorf("coin %v not observed", coinID)
	}

	spent := height
	state.SpentHeight = &spent

	if record, ok := m.coinRecords[coinID]; ok {
		record.Spent = true
	}

	return state, nil
}

// PendingTransactions returns every transaction queued for broadcast.
func (m *MockStateManager) PendingTransactions() []*TransactionRecord {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]*TransactionRecord(nil), m.pending...)
}

// Transactions returns every history-only transaction row.
func (m *MockStateManager) Transactions() []*TransactionRecord {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]*TransactionRecord(nil), m.history...)
}

// Wallets returns all wallets keyed by wallet id.
func (m *MockStateManager) Wallets() map[uint32]Wallet {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	wallets := make(map[uint32]Wallet, len(m.wallets))
	for id, w := range m.wallets {
		wallets[id] = w
	}
	return wallets
}

// MainWallet returns the base-asset wallet.
func (m *MockStateManager) MainWallet() Wallet {
	return m.mainWallet
}

// CoinRecords returns the wallet coin records for the passed coin ids.
func (m *MockStateManager) CoinRecords(
	coinIDs []chainhash.Hash) ([]*WalletCoinRecord, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	var records []*WalletCoinRecord
	for _, id := range coinIDs {
		if record, ok := m.coinRecords[id]; ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// CoinStates returns the simulated ledger's view of the passed coin ids.
func (m *MockStateManager) CoinStates(
	coinIDs []chainhash.Hash) ([]*chainwatch.CoinState, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	var states []*chainwatch.CoinState
	for _, id := range coinIDs {
		if state, ok := m.coinStates[id]; ok {
			states = append(states, state)
		}
	}
	return states, nil
}

// WalletForCoin returns the wallet owning the passed coin.
func (m *MockStateManager) WalletForCoin(
	coinID chainhash.Hash) (Wallet, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	record, ok := m.coinRecords[coinID]
	if !ok {
		return nil, ErrNoSuchWallet
	}
	return m.wallets[record.WalletID], nil
}

// WalletForAsset returns the wallet tracking the passed colored asset.
func (m *MockStateManager) WalletForAsset(
	assetID chainhash.Hash) (Wallet, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, w := range m.wallets {
		if w.walletType != TypeColored {
			continue
		}
		if *w.assetID == assetID {
			return w, nil
		}
	}
	return nil, ErrNoSuchWallet
}

// WalletIDForPuzzleHash returns the wallet a puzzle hash belongs to.
func (m *MockStateManager) WalletIDForPuzzleHash(
	ph chainhash.Hash) (uint32, bool, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	id, ok := m.phOwner[ph]
	return id, ok, nil
}

// AddPendingTransaction queues the passed transaction for broadcast.
func (m *MockStateManager) AddPendingTransaction(tx *TransactionRecord) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.pending = append(m.pending, tx)
	return nil
}

// AddTransaction records the passed history-only transaction.
func (m *MockStateManager) AddTransaction(tx *TransactionRecord) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.history = append(m.history, tx)
	return nil
}

// CreateAssetWallet creates a wallet tracking the passed colored asset.
func (m *MockStateManager) CreateAssetWallet(
	assetID chainhash.Hash) (Wallet, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	id := assetID
	return m.newWallet(TypeColored, &id), nil
}

// A compile time check to ensure MockStateManager implements the
// StateManager interface.
var _ StateManager = (*MockStateManager)(nil)

// MockWallet is an in-memory wallet whose signatures are the infinity
// signature. It reserves coins on selection, wraps destinations for colored
// assets, and registers every puzzle hash it derives with its state
// manager.
type MockWallet struct {
	id         uint32
	walletType Type
	assetID    *chainhash.Hash
	wsm        *MockStateManager

	coins    map[chainhash.Hash]ledger.Coin
	reserved map[chainhash.Hash]struct{}
	unwrap   map[chainhash.Hash]chainhash.Hash

	phCounter   uint64
	fundCounter uint64
}

// ID returns the wallet's id.
func (w *MockWallet) ID() uint32 {
	return w.id
}

// Type returns the wallet's kind.
func (w *MockWallet) Type() Type {
	return w.walletType
}

// AssetID returns the colored asset id the wallet tracks.
func (w *MockWallet) AssetID() (chainhash.Hash, error) {
	if w.walletType != TypeColored {
		return chainhash.Hash{}, fmt.Errorf("wallet %d holds no "+
			"colored asset", w.id)
	}
	return *w.assetID, nil
}

// freshPuzzleHash derives the next puzzle hash and registers it. For
// colored wallets both the inner hash and its wrapped on-ledger form are
// registered, and the wrapped form becomes unwrappable. Hashes are seeded
// with the owning state manager's identity, so two simulated nodes never
// derive the same puzzle hash. The caller must hold the state manager's
// lock.
func (w *MockWallet) freshPuzzleHash() chainhash.Hash {
	w.phCounter++

	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], w.phCounter)
	seed := append([]byte(fmt.Sprintf("mock-ph-%p", w.wsm)), byte(w.id))
	inner := chainhash.HashH(append(seed, scratch[:]...))

	w.wsm.phOwner[inner] = w.id
	if w.walletType == TypeColored {
		wrapped := ledger.AssetPuzzleHash(w.assetID, inner)
		w.wsm.phOwner[wrapped] = w.id
		w.unwrap[wrapped] = inner
		return wrapped
	}

	return inner
}

// NewPuzzleHash derives a fresh receive puzzle hash. For colored wallets
// the INNER hash is returned, matching what a counterparty embeds in a
// requested payment.
func (w *MockWallet) NewPuzzleHash() (chainhash.Hash, error) {
	w.wsm.mtx.Lock()
	defer w.wsm.mtx.Unlock()

	ph := w.freshPuzzleHash()
	if w.walletType == TypeColored {
		return w.unwrap[ph], nil
	}
	return ph, nil
}

// ConfirmedBalance returns the sum of the wallet's confirmed coins.
func (w *MockWallet) ConfirmedBalance() (uint64, error) {
	w.wsm.mtx.Lock()
	defer w.wsm.mtx.Unlock()

	var balance uint64
	for _, coin := range w.coins {
		balance += coin.Amount
	}
	return balance, nil
}

// SelectCoins selects confirmed, unreserved coins covering the requested
// amount and reserves them.
func (w *MockWallet) SelectCoins(amount uint64) ([]ledger.Coin, error) {
	w.wsm.mtx.Lock()
	defer w.wsm.mtx.Unlock()

	var candidates []ledger.Coin
	for id, coin := range w.coins {
		if _, ok := w.reserved[id]; ok {
			continue
		}
		candidates = append(candidates, coin)
	}

	selected, _, err := SelectCoins(amount, candidates)
	if err != nil {
		return nil, err
	}

	for i := range selected {
		w.reserved[selected[i].ID()] = struct{}{}
	}
	return selected, nil
}

// GenerateSignedTransaction builds a transaction spending exactly the
// passed coins, paying the requested amounts and returning any change to a
// fresh puzzle hash. Colored wallets wrap every destination in the asset
// wrapper. The signature is the infinity signature.
func (w *MockWallet) GenerateSignedTransaction(amounts []uint64,
	puzzleHashes []chainhash.Hash, fee uint64, coins []ledger.Coin,
	ignoreMaxSend bool) ([]*TransactionRecord, error) {

	w.wsm.mtx.Lock()
	defer w.wsm.mtx.Unlock()

	if len(amounts) != len(puzzleHashes) {
		return nil, fmt.Errorf("amount/destination count mismatch")
	}
	if len(coins) == 0 {
		return nil, &ErrCoinSelectionFailed{Reason: "no coins to spend"}
	}

	var total, paying uint64
	for i := range coins {
		total += coins[i].Amount
		w.reserved[coins[i].ID()] = struct{}{}
	}
	for _, amount := range amounts {
		paying += amount
	}
	if total < paying+fee {
		return nil, &ErrInsufficientFunds{
			AmountAvailable: total,
			AmountRequired:  paying + fee,
		}
	}

	outputs := make([]ledger.CreatedCoin, 0, len(amounts)+1)
	for i, amount := range amounts {
		ph := puzzleHashes[i]
		if w.walletType == TypeColored {
			ph = ledger.AssetPuzzleHash(w.assetID, ph)
		}
		outputs = append(outputs, ledger.CreatedCoin{
			PuzzleHash: ph,
			Amount:     amount,
		})
	}

	if change := total - paying - fee; change > 0 {
		outputs = append(outputs, ledger.CreatedCoin{
			PuzzleHash: w.freshPuzzleHash(),
			Amount:     change,
		})
	}

	spends := make([]ledger.CoinSpend, len(coins))
	for i := range coins {
		spends[i] = ledger.CoinSpend{
			Coin:         coins[i],
			PuzzleReveal: coins[i].PuzzleHash[:],
			AssetID:      w.assetID,
		}
	}

	// The first spend carries all outputs; the remaining spends only
	// contribute value.
	spends[0].Outputs = outputs

	bundle := ledger.NewSpendBundle(spends, ledger.InfinitySignature())

	return []*TransactionRecord{{
		Name:      bundle.ID(),
		CreatedAt: time.Unix(0, 0),
		ToPuzzleHash: func() chainhash.Hash {
			if len(puzzleHashes) > 0 {
				return puzzleHashes[0]
			}
			return chainhash.Hash{}
		}(),
		Amount:    paying,
		FeeAmount: fee,
		Bundle:    bundle,
		Additions: bundle.Additions(),
		Removals:  bundle.Removals(),
		WalletID:  w.id,
		Type:      TxOutgoing,
	}}, nil
}

// ConvertPuzzleHash maps an on-ledger puzzle hash to the wallet's inner
// view of it.
func (w *MockWallet) ConvertPuzzleHash(
	ph chainhash.Hash) (chainhash.Hash, error) {

	w.wsm.mtx.Lock()
	defer w.wsm.mtx.Unlock()

	if inner, ok := w.unwrap[ph]; ok {
		return inner, nil
	}
	return ph, nil
}

// A compile time check to ensure MockWallet implements the Wallet
// interface.
var _ Wallet = (*MockWallet)(nil)
