package tradedb

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/boltdb/bolt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/tradenetwork/tnd/ledger"
)

const (
	// pver is the protocol version passed to the var-int/var-bytes
	// primitives used within record serialization.
	pver = 0

	// maxOfferSize bounds the size of a stored offer blob.
	maxOfferSize = 1 << 22

	// maxSendErrSize bounds the size of a stored send-attempt error
	// string.
	maxSendErrSize = 1 << 12
)

// SendAttempt records one attempt to hand the offer blob to a peer.
type SendAttempt struct {
	// Peer identifies who the offer was sent to.
	Peer string

	// Status is the peer's reported admission status.
	Status uint8

	// Err is the peer's reported error, if any.
	Err string
}

// TradeRecord is the persisted state of a single trade. The record is
// created once, and only its status, confirmation height and send attempts
// are mutated afterwards.
type TradeRecord struct {
	// TradeID is the canonical hash of the offer blob. Equal offers
	// collapse to the same record.
	TradeID chainhash.Hash

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// AcceptedAt is when we took the counterparty's offer. Nil for
	// trades where we are the maker.
	AcceptedAt *time.Time

	// ConfirmedAtHeight is the ledger height the trade settled at, zero
	// while unconfirmed.
	ConfirmedAtHeight uint32

	// IsMyOffer is true if we created the offer, false if we took it.
	IsMyOffer bool

	// Offer is the canonical offer blob.
	Offer []byte

	// CoinsOfInterest is the offer's involved coin set, frozen at record
	// creation. These are the coins whose on-ledger events drive the
	// trade's state machine.
	CoinsOfInterest []ledger.Coin

	// Status is the trade's current lifecycle state.
	Status TradeStatus

	// SentTo records the peers the offer blob was handed to.
	SentTo []SendAttempt
}

// AddTradeRecord inserts the passed record, replacing any existing record
// with the same trade id. Saving an identical record twice is a no-op.
func (d *DB) AddTradeRecord(record *TradeRecord) error {
	return d.Update(func(tx *bolt.Tx) error {
		return putTradeRecord(tx, record)
	})
}

// AddTradeRecordWithTxn inserts the passed record and runs the passed
// closure within the same database transaction. If the closure fails, the
// record insert is rolled back with it. This is the atomic boundary for
// persisting a record together with its derived transaction history.
func (d *DB) AddTradeRecordWithTxn(record *TradeRecord,
	f func() error) error {

	return d.Update(func(tx *bolt.Tx) error {
		if err := putTradeRecord(tx, record); err != nil {
			return err
		}
		return f()
	})
}

func putTradeRecord(tx *bolt.Tx, record *TradeRecord) error {
	trades := tx.Bucket(tradeBucket)
	if trades == nil {
		return ErrNoTradeDBExists
	}

	var b bytes.Buffer
	if err := serializeTradeRecord(&b, record); err != nil {
		return err
	}

	return trades.Put(record.TradeID[:], b.Bytes())
}

// GetTradeRecord fetches the record with the given trade id.
func (d *DB) GetTradeRecord(tradeID chainhash.Hash) (*TradeRecord, error) {
	var record *TradeRecord
	err := d.View(func(tx *bolt.Tx) error {
		trades := tx.Bucket(tradeBucket)
		if trades == nil {
			return ErrNoTradeDBExists
		}

		recordBytes := trades.Get(tradeID[:])
		if recordBytes == nil {
			return ErrTradeNotFound
		}

		var err error
		record, err = deserializeTradeRecord(
			bytes.NewReader(recordBytes),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetAllTrades returns every stored trade record.
func (d *DB) GetAllTrades() ([]*TradeRecord, error) {
	return d.scanTrades(func(*TradeRecord) bool { return true })
}

// GetTradesWithStatus returns every trade record currently in the given
// status.
func (d *DB) GetTradesWithStatus(status TradeStatus) ([]*TradeRecord, error) {
	return d.scanTrades(func(record *TradeRecord) bool {
		return record.Status == status
	})
}

func (d *DB) scanTrades(keep func(*TradeRecord) bool) ([]*TradeRecord, error) {
	var records []*TradeRecord
	err := d.View(func(tx *bolt.Tx) error {
		trades := tx.Bucket(tradeBucket)
		if trades == nil {
			return ErrNoTradeDBExists
		}

		return trades.ForEach(func(k, v []byte) error {
			record, err := deserializeTradeRecord(
				bytes.NewReader(v),
			)
			if err != nil {
				return fmt.Errorf("unable to read trade "+
					"record for trade_id=%x: %v", k, err)
			}

			if keep(record) {
				records = append(records, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// SetStatus transitions the trade with the given id to the passed status.
// Transitions out of a terminal status return ErrTradeFinal, which makes
// event-driven transitions idempotent. The confirmation height is recorded
// when transitioning to StatusConfirmed.
func (d *DB) SetStatus(tradeID chainhash.Hash, status TradeStatus,
	confirmedAtHeight uint32) error {

	if !status.Valid() {
		return ErrUnknownStatus
	}

	return d.Update(func(tx *bolt.Tx) error {
		trades := tx.Bucket(tradeBucket)
		if trades == nil {
			return ErrNoTradeDBExists
		}

		recordBytes := trades.Get(tradeID[:])
		if recordBytes == nil {
			return ErrTradeNotFound
		}

		record, err := deserializeTradeRecord(
			bytes.NewReader(recordBytes),
		)
		if err != nil {
			return err
		}

		if record.Status.IsFinal() {
			return ErrTradeFinal
		}

		record.Status = status
		if status == StatusConfirmed {
			record.ConfirmedAtHeight = confirmedAtHeight
		}

		var b bytes.Buffer
		if err := serializeTradeRecord(&b, record); err != nil {
			return err
		}
		return trades.Put(tradeID[:], b.Bytes())
	})
}

// AddSendAttempt appends a send attempt to the trade's sent-to list.
func (d *DB) AddSendAttempt(tradeID chainhash.Hash,
	attempt SendAttempt) error {

	return d.Update(func(tx *bolt.Tx) error {
		trades := tx.Bucket(tradeBucket)
		if trades == nil {
			return ErrNoTradeDBExists
		}

		recordBytes := trades.Get(tradeID[:])
		if recordBytes == nil {
			return ErrTradeNotFound
		}

		record, err := deserializeTradeRecord(
			bytes.NewReader(recordBytes),
		)
		if err != nil {
			return err
		}

		record.SentTo = append(record.SentTo, attempt)

		var b bytes.Buffer
		if err := serializeTradeRecord(&b, record); err != nil {
			return err
		}
		return trades.Put(tradeID[:], b.Bytes())
	})
}

// DeleteTradeRecord removes the record with the given trade id. The trade
// manager never calls it: its construction paths write the record last, or
// roll it back through AddTradeRecordWithTxn.
func (d *DB) DeleteTradeRecord(tradeID chainhash.Hash) error {
	return d.Update(func(tx *bolt.Tx) error {
		trades := tx.Bucket(tradeBucket)
		if trades == nil {
			return ErrNoTradeDBExists
		}

		return trades.Delete(tradeID[:])
	})
}

func serializeTradeRecord(w io.Writer, record *TradeRecord) error {
	if _, err := w.Write(record.TradeID[:]); err != nil {
		return err
	}

	var scratch [8]byte
	byteOrder.PutUint64(scratch[:], uint64(record.CreatedAt.Unix()))
	if _, err := w.Write(scratch[:]); err != nil {
		return err
	}

	if record.AcceptedAt == nil {
		if _, err := w.Write([]byte{0x00}); err != nil {
			return err
		}
	} else {
		if _, err := w.Write([]byte{0x01}); err != nil {
			return err
		}
		byteOrder.PutUint64(scratch[:], uint64(record.AcceptedAt.Unix()))
		if _, err := w.Write(scratch[:]); err != nil {
			return err
		}
	}

	byteOrder.PutUint32(scratch[:4], record.ConfirmedAtHeight)
	if _, err := w.Write(scratch[:4]); err != nil {
		return err
	}

	isMyOffer := byte(0x00)
	if record.IsMyOffer {
		isMyOffer = 0x01
	}
	if _, err := w.Write([]byte{isMyOffer}); err != nil {
		return err
	}

	if err := wire.WriteVarBytes(w, pver, record.Offer); err != nil {
		return err
	}

	numCoins := uint64(len(record.CoinsOfInterest))
	if err := wire.WriteVarInt(w, pver, numCoins); err != nil {
		return err
	}
	for i := range record.CoinsOfInterest {
		err := ledger.WriteCoin(w, &record.CoinsOfInterest[i])
		if err != nil {
			return err
		}
	}

	if _, err := w.Write([]byte{byte(record.Status)}); err != nil {
		return err
	}

	numAttempts := uint64(len(record.SentTo))
	if err := wire.WriteVarInt(w, pver, numAttempts); err != nil {
		return err
	}
	for _, attempt := range record.SentTo {
		if err := wire.WriteVarString(w, pver, attempt.Peer); err != nil {
			return err
		}
		if _, err := w.Write([]byte{attempt.Status}); err != nil {
			return err
		}
		if err := wire.WriteVarString(w, pver, attempt.Err); err != nil {
			return err
		}
	}

	return nil
}

func deserializeTradeRecord(r io.Reader) (*TradeRecord, error) {
	record := &TradeRecord{}

	if _, err := io.ReadFull(r, record.TradeID[:]); err != nil {
		return nil, err
	}

	var scratch [8]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return nil, err
	}
	record.CreatedAt = time.Unix(int64(byteOrder.Uint64(scratch[:])), 0)

	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return nil, err
	}
	if present[0] == 0x01 {
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return nil, err
		}
		acceptedAt := time.Unix(int64(byteOrder.Uint64(scratch[:])), 0)
		record.AcceptedAt = &acceptedAt
	}

	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return nil, err
	}
	record.ConfirmedAtHeight = byteOrder.Uint32(scratch[:4])

	var isMyOffer [1]byte
	if _, err := io.ReadFull(r, isMyOffer[:]); err != nil {
		return nil, err
	}
	record.IsMyOffer = isMyOffer[0] == 0x01

	offer, err := wire.ReadVarBytes(r, pver, maxOfferSize, "offer")
	if err != nil {
		return nil, err
	}
	record.Offer = offer

	numCoins, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}
	record.CoinsOfInterest = make([]ledger.Coin, numCoins)
	for i := range record.CoinsOfInterest {
		err := ledger.ReadCoin(r, &record.CoinsOfInterest[i])
		if err != nil {
			return nil, err
		}
	}

	var status [1]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return nil, err
	}
	record.Status = TradeStatus(status[0])
	if !record.Status.Valid() {
		return nil, ErrUnknownStatus
	}

	numAttempts, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}
	if numAttempts > 0 {
		record.SentTo = make([]SendAttempt, numAttempts)
		for i := range record.SentTo {
			peer, err := wire.ReadVarString(r, pver)
			if err != nil {
				return nil, err
			}

			var attemptStatus [1]byte
			if _, err := io.ReadFull(r, attemptStatus[:]); err != nil {
				return nil, err
			}

			sendErr, err := wire.ReadVarString(r, pver)
			if err != nil {
				return nil, err
			}
			if len(sendErr) > maxSendErrSize {
				return nil, fmt.Errorf("send attempt error " +
					"too large")
			}

			record.SentTo[i] = SendAttempt{
				Peer:   peer,
				Status: attemptStatus[0],
				Err:    sendErr,
			}
		}
	}

	return record, nil
}
