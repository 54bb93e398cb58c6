package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceProvider serves the latest validated tick. Implementations return
// ErrNoPriceAvailable before the first tick and a StalePriceError once
// the cached tick is older than the staleness threshold.
type PriceProvider interface {
	LatestTick(ctx context.Context) (BtcSatTick, error)
	MidPriceOfOneSat(ctx context.Context) (decimal.Decimal, error)
}

// LegPage is one page of wallet transaction legs, newest first as the
// source returns them.
type LegPage struct {
	Legs []RawLeg
	// NextCursor pages further into the past. Empty when exhausted.
	NextCursor string
	HasMore    bool
}

// TransactionSource lists wallet transactions from the stablecoin
// backend, paged backwards from newest.
type TransactionSource interface {
	ListTransactions(ctx context.Context, cursor string) (LegPage, error)
}

// ExchangePosition is the live derivative position on the hedging
// exchange, expressed in signed USD cents of exposure. Short positions
// are negative.
type ExchangePosition struct {
	ExposureCents decimal.Decimal
	Contracts     decimal.Decimal
	Instrument    string
	FetchedAt     time.Time
}

// OrderSide is the direction of a hedge order.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// HedgeOrder is a market order sized in whole contracts. ClientOrderID is
// the idempotency key; resubmitting with the same id must not double the
// position.
type HedgeOrder struct {
	Side          OrderSide
	Contracts     int64
	ClientOrderID string
}

// ExchangeClient talks to the hedging exchange. Errors follow the shared
// taxonomy: ErrAuthentication is fatal, retriable transport failures wrap
// ErrRemoteUnavailable.
type ExchangeClient interface {
	GetPosition(ctx context.Context) (ExchangePosition, error)
	PlaceOrder(ctx context.Context, order HedgeOrder) error
	ClosePositions(ctx context.Context, idempotencyKey string) error
}
