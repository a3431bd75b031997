package trading

import "fmt"

var (
	// ErrParse is returned when an offer blob cannot be deserialized.
	ErrParse = fmt.Errorf("unable to parse offer")

	// ErrNotSelfConsistent is returned when a partial offer's notarized
	// payments do not match its offered coins.
	ErrNotSelfConsistent = fmt.Errorf("offer is not self-consistent")

	// ErrInvalidAggregate is returned when an aggregated offer does not
	// balance to zero on every asset.
	ErrInvalidAggregate = fmt.Errorf("aggregated offer does not balance")
)
