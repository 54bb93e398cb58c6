package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceUpdate is published by an exchange price feed for every accepted
// ticker message.
type PriceUpdate struct {
	// Bid and Ask are quoted in USD per BTC as received from the exchange.
	Bid           decimal.Decimal
	Ask           decimal.Decimal
	Timestamp     time.Time
	Exchange      string
	CorrelationID string
}

// NewCorrelationID mints an id that ties a price update or posting to the
// log lines it produces downstream.
func NewCorrelationID() string {
	return uuid.NewString()
}
