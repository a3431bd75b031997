package tradedb

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/tradenetwork/tnd/ledger"
)

func makeTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func makeTestRecord(seed string, status TradeStatus) *TradeRecord {
	coin := ledger.Coin{
		ParentCoinID: chainhash.HashH([]byte(seed + "-parent")),
		PuzzleHash:   chainhash.HashH([]byte(seed + "-puzzle")),
		Amount:       100,
	}

	return &TradeRecord{
		TradeID:   chainhash.HashH([]byte(seed)),
		CreatedAt: time.Unix(1234567890, 0),
		IsMyOffer: true,
		Offer:     []byte(seed + "-offer-blob"),
		CoinsOfInterest: []ledger.Coin{
			coin,
		},
		Status: status,
	}
}

// TestTradeRecordRoundTrip asserts stored records read back field for
// field, including optional and repeated fields.
func TestTradeRecordRoundTrip(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	acceptedAt := time.Unix(1234567999, 0)
	record := makeTestRecord("round-trip", StatusPendingConfirm)
	record.IsMyOffer = false
	record.AcceptedAt = &acceptedAt
	record.SentTo = []SendAttempt{
		{Peer: "peer-1", Status: 1},
		{Peer: "peer-2", Status: 2, Err: "rejected"},
	}

	require.NoError(t, db.AddTradeRecord(record))

	fetched, err := db.GetTradeRecord(record.TradeID)
	require.NoError(t, err)

	require.Equal(t, record.TradeID, fetched.TradeID)
	require.Equal(t, record.CreatedAt.Unix(), fetched.CreatedAt.Unix())
	require.NotNil(t, fetched.AcceptedAt)
	require.Equal(t, acceptedAt.Unix(), fetched.AcceptedAt.Unix())
	require.Equal(t, record.IsMyOffer, fetched.IsMyOffer)
	require.Equal(t, record.Offer, fetched.Offer)
	require.Equal(t, record.CoinsOfInterest, fetched.CoinsOfInterest)
	require.Equal(t, record.Status, fetched.Status)
	require.Equal(t, record.SentTo, fetched.SentTo)
}

// TestAddTradeRecordIdempotent asserts saving an equal record twice leaves
// a single record behind.
func TestAddTradeRecordIdempotent(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	record := makeTestRecord("idempotent", StatusPendingAccept)
	require.NoError(t, db.AddTradeRecord(record))
	require.NoError(t, db.AddTradeRecord(record))

	trades, err := db.GetAllTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

// TestGetTradeRecordNotFound asserts the typed miss error.
func TestGetTradeRecordNotFound(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	_, err := db.GetTradeRecord(chainhash.HashH([]byte("missing")))
	require.ErrorIs(t, err, ErrTradeNotFound)
}

// TestGetTradesWithStatus asserts the status scan.
func TestGetTradesWithStatus(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	require.NoError(t, db.AddTradeRecord(
		makeTestRecord("a", StatusPendingAccept),
	))
	require.NoError(t, db.AddTradeRecord(
		makeTestRecord("b", StatusPendingAccept),
	))
	require.NoError(t, db.AddTradeRecord(
		makeTestRecord("c", StatusConfirmed),
	))

	pending, err := db.GetTradesWithStatus(StatusPendingAccept)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	confirmed, err := db.GetTradesWithStatus(StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)

	cancelled, err := db.GetTradesWithStatus(StatusCancelled)
	require.NoError(t, err)
	require.Empty(t, cancelled)
}

// TestSetStatus asserts transitions, confirmation height recording and
// terminal stickiness.
func TestSetStatus(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	record := makeTestRecord("transitions", StatusPendingAccept)
	require.NoError(t, db.AddTradeRecord(record))

	require.NoError(t, db.SetStatus(
		record.TradeID, StatusPendingCancel, 0,
	))

	fetched, err := db.GetTradeRecord(record.TradeID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingCancel, fetched.Status)

	require.NoError(t, db.SetStatus(record.TradeID, StatusConfirmed, 42))

	fetched, err = db.GetTradeRecord(record.TradeID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, fetched.Status)
	require.Equal(t, uint32(42), fetched.ConfirmedAtHeight)

	// Terminal statuses are sticky.
	err = db.SetStatus(record.TradeID, StatusFailed, 0)
	require.ErrorIs(t, err, ErrTradeFinal)

	fetched, err = db.GetTradeRecord(record.TradeID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, fetched.Status)
}

// TestAddSendAttempt asserts the sent-to list grows in place.
func TestAddSendAttempt(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	record := makeTestRecord("send-attempts", StatusPendingAccept)
	require.NoError(t, db.AddTradeRecord(record))

	attempt := SendAttempt{Peer: "peer-9", Status: 1}
	require.NoError(t, db.AddSendAttempt(record.TradeID, attempt))

	fetched, err := db.GetTradeRecord(record.TradeID)
	require.NoError(t, err)
	require.Equal(t, []SendAttempt{attempt}, fetched.SentTo)
}

// TestPersistenceAcrossReopen asserts records survive a close/reopen
// cycle.
func TestPersistenceAcrossReopen(t *testing.T) {
	t.Parallel()

	dbPath := t.TempDir()

	db, err := Open(dbPath)
	require.NoError(t, err)

	record := makeTestRecord("reopen", StatusPendingConfirm)
	require.NoError(t, db.AddTradeRecord(record))
	require.NoError(t, db.Close())

	db, err = Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	fetched, err := db.GetTradeRecord(record.TradeID)
	require.NoError(t, err)
	require.Equal(t, record.TradeID, fetched.TradeID)
	require.Equal(t, record.Status, fetched.Status)
}

// TestAddTradeRecordWithTxnRollsBack asserts the record insert is undone
// when the accompanying closure fails.
func TestAddTradeRecordWithTxnRollsBack(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	record := makeTestRecord("rollback", StatusPendingConfirm)
	err := db.AddTradeRecordWithTxn(record, func() error {
		return ErrNoTradesCreated
	})
	require.ErrorIs(t, err, ErrNoTradesCreated)

	_, err = db.GetTradeRecord(record.TradeID)
	require.ErrorIs(t, err, ErrTradeNotFound)
}
