package okx

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hedge_go/internal/event"
)

func TestFeedHandleMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := event.NewBus[event.PriceUpdate]()
	defer bus.Close()
	feed := NewFeed(bus, logger)

	updates := bus.Subscribe()
	defer updates.Cancel()

	msg := []byte(`{
		"arg": {"channel": "tickers", "instId": "BTC-USD-SWAP"},
		"data": [{"instId": "BTC-USD-SWAP", "bidPx": "50000.1", "askPx": "50000.9", "ts": "1756120000000"}]
	}`)
	feed.handleMessage(msg)

	select {
	case u := <-updates.C():
		if !u.Bid.Equal(decimal.RequireFromString("50000.1")) {
			t.Errorf("bid = %s", u.Bid)
		}
		if !u.Ask.Equal(decimal.RequireFromString("50000.9")) {
			t.Errorf("ask = %s", u.Ask)
		}
		if u.Timestamp != time.UnixMilli(1756120000000).UTC() {
			t.Errorf("ts = %v", u.Timestamp)
		}
		if u.Exchange != "okx" || u.CorrelationID == "" {
			t.Errorf("metadata = %q/%q", u.Exchange, u.CorrelationID)
		}
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestFeedIgnoresIrrelevantMessages(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := event.NewBus[event.PriceUpdate]()
	defer bus.Close()
	feed := NewFeed(bus, logger)

	updates := bus.Subscribe()
	defer updates.Cancel()

	for _, msg := range []string{
		`{"event": "subscribe", "arg": {"channel": "tickers", "instId": "BTC-USD-SWAP"}}`,
		`{"arg": {"channel": "books", "instId": "BTC-USD-SWAP"}, "data": [{}]}`,
		`{"arg": {"channel": "tickers", "instId": "ETH-USD-SWAP"}, "data": [{"instId": "ETH-USD-SWAP", "bidPx": "1", "askPx": "2", "ts": "1"}]}`,
		`{"arg": {"channel": "tickers", "instId": "BTC-USD-SWAP"}, "data": [{"instId": "BTC-USD-SWAP", "bidPx": "junk", "askPx": "2", "ts": "1"}]}`,
		`not json`,
	} {
		feed.handleMessage([]byte(msg))
	}

	select {
	case u := <-updates.C():
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}
