package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	centsPerUsd     = decimal.NewFromInt(100)
	satoshisPerBtc  = decimal.NewFromInt(100_000_000)
	usdBtcToCentSat = centsPerUsd.Div(satoshisPerBtc)
)

// BtcSatTick is one exchange quote converted to USD-cents-per-satoshi,
// the unit everything downstream prices in.
type BtcSatTick struct {
	// BidPriceOfOneSat and AskPriceOfOneSat are USD cents per satoshi.
	BidPriceOfOneSat decimal.Decimal
	AskPriceOfOneSat decimal.Decimal
	Timestamp        time.Time
	CorrelationID    string
}

// NewTickFromUsdPerBtc converts an exchange BTC/USD quote into a tick.
// Non-positive or crossed quotes are rejected.
func NewTickFromUsdPerBtc(bid, ask decimal.Decimal, ts time.Time, correlationID string) (BtcSatTick, error) {
	if !bid.IsPositive() || !ask.IsPositive() {
		return BtcSatTick{}, fmt.Errorf("quote bid=%s ask=%s: %w", bid, ask, ErrValidation)
	}
	if ask.LessThan(bid) {
		return BtcSatTick{}, fmt.Errorf("crossed quote bid=%s ask=%s: %w", bid, ask, ErrValidation)
	}
	return BtcSatTick{
		BidPriceOfOneSat: bid.Mul(usdBtcToCentSat),
		AskPriceOfOneSat: ask.Mul(usdBtcToCentSat),
		Timestamp:        ts,
		CorrelationID:    correlationID,
	}, nil
}

// MidPriceOfOneSat is the arithmetic midpoint of bid and ask, in USD
// cents per satoshi.
func (t BtcSatTick) MidPriceOfOneSat() decimal.Decimal {
	return t.BidPriceOfOneSat.Add(t.AskPriceOfOneSat).Div(decimal.NewFromInt(2))
}
