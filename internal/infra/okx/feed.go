package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"hedge_go/internal/event"
)

// Feed streams the public swap ticker over websocket and publishes every
// quote to the price bus.
type Feed struct {
	url     string
	bus     *event.Bus[event.PriceUpdate]
	logger  *slog.Logger
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFeed creates a feed publishing into bus.
func NewFeed(bus *event.Bus[event.PriceUpdate], logger *slog.Logger) *Feed {
	return &Feed{
		url:    PublicWSURL,
		bus:    bus,
		logger: logger.With("component", "okx_feed"),
	}
}

// Connect starts the connection loop in the background.
func (f *Feed) Connect(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.connectionLoop(ctx)
	return nil
}

func (f *Feed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // reconnect forever

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			delay := b.NextBackOff()
			f.logger.Warn("feed connection failed",
				"error", err, "retry", retryCount, "next_attempt_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		b.Reset()
		retryCount = 0
		f.readLoop(ctx)
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return err
	}

	go f.pingLoop(ctx)
	f.logger.Info("feed connected", "instrument", Instrument)
	return nil
}

func (f *Feed) subscribe() error {
	req := subscribeRequest{
		Op:   "subscribe",
		Args: []subscribeArg{{Channel: "tickers", InstID: Instrument}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return f.threadSafeWrite(websocket.TextMessage, b)
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.threadSafeWrite(websocket.TextMessage, []byte("ping"))
		}
	}
}

func (f *Feed) threadSafeWrite(msgType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.conn == nil {
		return fmt.Errorf("no conn")
	}
	return f.conn.WriteMessage(msgType, data)
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		if f.conn == nil {
			f.mu.RUnlock()
			return
		}
		f.conn.SetReadDeadline(time.Now().Add(readTimeout))
		f.mu.RUnlock()

		_, msg, err := f.conn.ReadMessage()
		if err != nil {
			f.closeConnection()
			return
		}
		if string(msg) == "pong" {
			continue
		}
		f.handleMessage(msg)
	}
}

func (f *Feed) handleMessage(msg []byte) {
	var resp tickerResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	if resp.Arg.Channel != "tickers" || len(resp.Data) == 0 {
		return
	}

	for _, d := range resp.Data {
		if d.InstID != Instrument {
			continue
		}
		bid, err := decimal.NewFromString(d.BidPx)
		if err != nil {
			continue
		}
		ask, err := decimal.NewFromString(d.AskPx)
		if err != nil {
			continue
		}
		tsMillis, err := strconv.ParseInt(d.Ts, 10, 64)
		if err != nil {
			continue
		}

		f.bus.Publish(event.PriceUpdate{
			Bid:           bid,
			Ask:           ask,
			Timestamp:     time.UnixMilli(tsMillis).UTC(),
			Exchange:      "okx",
			CorrelationID: event.NewCorrelationID(),
		})
	}
}

func (f *Feed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

// Disconnect stops the loops and closes the socket.
func (f *Feed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
}
