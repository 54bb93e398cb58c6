package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
	"hedge_go/internal/event"
	"hedge_go/internal/infra"
)

const DefaultStaleAfter = 30 * time.Second

// PriceCache holds the most recent validated tick from the exchange feed
// and serves it to every reader. Reads never touch the network.
type PriceCache struct {
	mu         sync.RWMutex
	tick       domain.BtcSatTick
	hasTick    bool
	staleAfter time.Duration
	now        func() time.Time

	// mockPrice, when set at construction, pins the mid price and makes
	// the cache permanently fresh. Bid and ask both equal the mock.
	mockPrice *decimal.Decimal

	logger *slog.Logger
}

// PriceCacheOption configures a PriceCache.
type PriceCacheOption func(*PriceCache)

// WithStaleAfter overrides the staleness threshold.
func WithStaleAfter(d time.Duration) PriceCacheOption {
	return func(c *PriceCache) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithMockPrice pins the cache to a fixed cents-per-satoshi price. Used
// for dry runs against a dead feed. Only settable at construction.
func WithMockPrice(centsPerSat decimal.Decimal) PriceCacheOption {
	return func(c *PriceCache) { c.mockPrice = &centsPerSat }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) PriceCacheOption {
	return func(c *PriceCache) { c.now = now }
}

// NewPriceCache creates an empty cache.
func NewPriceCache(logger *slog.Logger, opts ...PriceCacheOption) *PriceCache {
	c := &PriceCache{
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logger.With("component", "price_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes the feed until ctx is done. Invalid updates are logged and
// dropped, they never clobber the cached tick.
func (c *PriceCache) Run(ctx context.Context, updates <-chan event.PriceUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			c.Apply(u)
		}
	}
}

// Apply validates one update and stores it if it is newer than the
// cached tick.
func (c *PriceCache) Apply(u event.PriceUpdate) {
	tick, err := domain.NewTickFromUsdPerBtc(u.Bid, u.Ask, u.Timestamp, u.CorrelationID)
	if err != nil {
		infra.GlobalMetrics.RecordPriceUpdateDropped()
		c.logger.Warn("dropping invalid price update",
			"exchange", u.Exchange, "bid", u.Bid.String(), "ask", u.Ask.String(),
			"correlation_id", u.CorrelationID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Out of order delivery happens across reconnects. Keep the newest.
	if c.hasTick && !tick.Timestamp.After(c.tick.Timestamp) {
		infra.GlobalMetrics.RecordPriceUpdateDropped()
		c.logger.Debug("dropping out of order price update",
			"cached_at", c.tick.Timestamp, "update_at", tick.Timestamp,
			"correlation_id", u.CorrelationID)
		return
	}
	c.tick = tick
	c.hasTick = true
}

// LatestTick returns the cached tick, ErrNoPriceAvailable before the
// first accepted update, or StalePriceError past the threshold.
func (c *PriceCache) LatestTick(_ context.Context) (domain.BtcSatTick, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.mockPrice != nil {
		return domain.BtcSatTick{
			BidPriceOfOneSat: *c.mockPrice,
			AskPriceOfOneSat: *c.mockPrice,
			Timestamp:        c.now(),
		}, nil
	}
	if !c.hasTick {
		return domain.BtcSatTick{}, domain.ErrNoPriceAvailable
	}
	if c.now().Sub(c.tick.Timestamp) > c.staleAfter {
		return domain.BtcSatTick{}, &domain.StalePriceError{At: c.tick.Timestamp}
	}
	return c.tick, nil
}

// MidPriceOfOneSat returns the midpoint of the cached tick in USD cents
// per satoshi.
func (c *PriceCache) MidPriceOfOneSat(ctx context.Context) (decimal.Decimal, error) {
	tick, err := c.LatestTick(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return tick.MidPriceOfOneSat(), nil
}

var _ domain.PriceProvider = (*PriceCache)(nil)
