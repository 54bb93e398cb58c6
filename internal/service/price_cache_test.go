package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
	"hedge_go/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func update(bid, ask int64, at time.Time) event.PriceUpdate {
	return event.PriceUpdate{
		Bid:       decimal.NewFromInt(bid),
		Ask:       decimal.NewFromInt(ask),
		Timestamp: at,
		Exchange:  "okx",
	}
}

func TestPriceCacheEmpty(t *testing.T) {
	cache := NewPriceCache(testLogger())
	_, err := cache.LatestTick(context.Background())
	if !errors.Is(err, domain.ErrNoPriceAvailable) {
		t.Errorf("want ErrNoPriceAvailable, got %v", err)
	}
}

func TestPriceCacheMidPrice(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(testLogger(), WithClock(func() time.Time { return now }))

	// 5000 and 10000 cents/sat after conversion from USD/BTC.
	cache.Apply(update(5_000_000_000, 10_000_000_000, now))

	mid, err := cache.MidPriceOfOneSat(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := decimal.NewFromInt(7500); !mid.Equal(want) {
		t.Errorf("mid = %s, want %s", mid, want)
	}
}

func TestPriceCacheStaleness(t *testing.T) {
	base := time.Now()
	clock := base
	cache := NewPriceCache(testLogger(),
		WithStaleAfter(30*time.Second),
		WithClock(func() time.Time { return clock }))

	cache.Apply(update(50_000, 50_100, base))

	cases := []struct {
		name    string
		elapsed time.Duration
		stale   bool
	}{
		{"fresh", time.Second, false},
		{"at threshold", 30 * time.Second, false},
		{"just past threshold", 30*time.Second + time.Millisecond, true},
		{"long past", 5 * time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock = base.Add(tc.elapsed)
			_, err := cache.LatestTick(context.Background())
			var stale *domain.StalePriceError
			if got := errors.As(err, &stale); got != tc.stale {
				t.Errorf("stale = %v (err %v), want %v", got, err, tc.stale)
			}
		})
	}
}

func TestPriceCacheKeepsNewestTick(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(testLogger(), WithClock(func() time.Time { return now }))

	cache.Apply(update(50_000, 50_100, now))
	// Older update arrives late over a reconnect. Must not win.
	cache.Apply(update(40_000, 40_100, now.Add(-time.Second)))

	tick, err := cache.LatestTick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := decimal.RequireFromString("0.05"); !tick.BidPriceOfOneSat.Equal(want) {
		t.Errorf("bid = %s, want %s", tick.BidPriceOfOneSat, want)
	}
}

func TestPriceCacheDropsInvalidUpdates(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(testLogger(), WithClock(func() time.Time { return now }))

	cache.Apply(update(50_000, 50_100, now))
	cache.Apply(update(0, 50_100, now.Add(time.Second)))
	cache.Apply(update(50_200, 50_100, now.Add(time.Second))) // crossed

	tick, err := cache.LatestTick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tick.Timestamp.Equal(now) {
		t.Error("invalid updates must not replace the cached tick")
	}
}

func TestPriceCacheMockPrice(t *testing.T) {
	mock := decimal.RequireFromString("0.05")
	cache := NewPriceCache(testLogger(), WithMockPrice(mock))

	mid, err := cache.MidPriceOfOneSat(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mid.Equal(mock) {
		t.Errorf("mid = %s, want %s", mid, mock)
	}

	// Live updates are irrelevant while mocked.
	cache.Apply(update(50_000, 50_100, time.Now()))
	mid, _ = cache.MidPriceOfOneSat(context.Background())
	if !mid.Equal(mock) {
		t.Errorf("mid = %s after update, want %s", mid, mock)
	}
}
