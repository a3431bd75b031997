package tradedb

import "fmt"

var (
	ErrNoTradeDBExists = fmt.Errorf("trade db has not yet been created")

	ErrTradeNotFound   = fmt.Errorf("unable to locate trade record")
	ErrNoTradesCreated = fmt.Errorf("there are no existing trades")

	// ErrTradeFinal is returned when attempting to transition a trade
	// that already reached a terminal status.
	ErrTradeFinal = fmt.Errorf("trade already reached a final status")

	ErrMetaNotFound = fmt.Errorf("unable to locate meta information")

	// ErrUnknownStatus is returned when a stored status byte does not
	// correspond to any known trade status.
	ErrUnknownStatus = fmt.Errorf("unknown trade status")
)
