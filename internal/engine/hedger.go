// Package engine keeps the exchange hedge position aligned with the
// ledger's exchange-position liability.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
	"hedge_go/internal/event"
	"hedge_go/internal/infra"
	"hedge_go/internal/infra/storage"
	"hedge_go/internal/ledger"
)

const (
	DefaultPollInterval = 30 * time.Second
	defaultRetryInitial = 250 * time.Millisecond
)

// DefaultToleranceCents is how far target and live position may drift
// before the engine trades. One contract face value: anything smaller is
// not representable in whole contracts anyway.
var DefaultToleranceCents = decimal.NewFromInt(10_000)

// Hedger recomputes the target exposure on every balance event and every
// poll tick, and trades the difference away. The exchange's reported
// position, never local order history, is the source of truth, so a
// restart only needs to resubscribe and re-query.
type Hedger struct {
	store    *storage.Store
	ledger   *ledger.Ledger
	prices   domain.PriceProvider
	exchange domain.ExchangeClient

	tolerance    decimal.Decimal
	pollInterval time.Duration
	retryInitial time.Duration
	priceTicks   *event.Subscription[event.PriceUpdate]
	logger       *slog.Logger
}

// Option configures a Hedger.
type Option func(*Hedger)

// WithTolerance overrides the drift tolerance in USD cents.
func WithTolerance(cents decimal.Decimal) Option {
	return func(h *Hedger) { h.tolerance = cents }
}

// WithPollInterval overrides the re-evaluation pacing. The interval also
// caps how long one exchange call is retried.
func WithPollInterval(d time.Duration) Option {
	return func(h *Hedger) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithPriceTicks makes the hedger re-evaluate on every delivered price
// update, on top of balance events and the poll ticker.
func WithPriceTicks(sub *event.Subscription[event.PriceUpdate]) Option {
	return func(h *Hedger) { h.priceTicks = sub }
}

// WithRetryInitialInterval overrides the first backoff delay, for tests.
func WithRetryInitialInterval(d time.Duration) Option {
	return func(h *Hedger) {
		if d > 0 {
			h.retryInitial = d
		}
	}
}

// New wires a hedger.
func New(store *storage.Store, led *ledger.Ledger, prices domain.PriceProvider, exchange domain.ExchangeClient, logger *slog.Logger, opts ...Option) *Hedger {
	h := &Hedger{
		store:        store,
		ledger:       led,
		prices:       prices,
		exchange:     exchange,
		tolerance:    DefaultToleranceCents,
		pollInterval: DefaultPollInterval,
		retryInitial: defaultRetryInitial,
		logger:       logger.With("component", "hedger"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives the hedge loop until ctx is done. Only authentication
// failures terminate it early.
func (h *Hedger) Run(ctx context.Context) error {
	events := h.ledger.BalanceEvents(domain.AccountExchangePositionLiability)
	defer events.Cancel()

	var ticks <-chan event.PriceUpdate
	if h.priceTicks != nil {
		ticks = h.priceTicks.C()
		defer h.priceTicks.Cancel()
	}

	target, err := h.currentTarget()
	if err != nil {
		return fmt.Errorf("initial target: %w", err)
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		if err := h.Evaluate(ctx, target); err != nil {
			return fmt.Errorf("hedge evaluation: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events.C():
			if !ok {
				return nil
			}
			target = ev.Exposure()
		case _, ok := <-ticks:
			if !ok {
				// Feed shut down; fall back to the poll ticker.
				ticks = nil
			}
		case <-ticker.C:
		}
	}
}

// currentTarget reads the settled exchange-position exposure from
// storage, for the first evaluation before any event arrives.
func (h *Hedger) currentTarget() (decimal.Decimal, error) {
	bal, err := h.store.AccountBalance(domain.AccountExchangePositionLiability)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return bal.SettledCredit.Sub(bal.SettledDebit), nil
}

// Evaluate runs one hedge cycle against the given target exposure in
// signed USD cents. Price gaps and exhausted retries skip the cycle, a
// returned error is fatal.
func (h *Hedger) Evaluate(ctx context.Context, target decimal.Decimal) error {
	mid, err := h.prices.MidPriceOfOneSat(ctx)
	if err != nil {
		var stale *domain.StalePriceError
		if errors.Is(err, domain.ErrNoPriceAvailable) || errors.As(err, &stale) {
			h.logger.Warn("skipping hedge cycle, no usable price", "error", err)
			return nil
		}
		return err
	}

	var position domain.ExchangePosition
	err = h.withRetry(ctx, "get position", func() error {
		var err error
		position, err = h.exchange.GetPosition(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return err
		}
		h.logger.Error("position query failed, skipping cycle", "error", err)
		return nil
	}

	delta := target.Sub(position.ExposureCents)
	if delta.Abs().LessThanOrEqual(h.tolerance) {
		return nil
	}

	log := h.logger.With(
		"target_cents", target.String(),
		"position_cents", position.ExposureCents.String(),
		"delta_cents", delta.String(),
		"mid_cents_per_sat", mid.String())

	// A target inside the tolerance band means the book is flat. Closing
	// everything is one call and cannot leave a residual position.
	if target.Abs().LessThanOrEqual(h.tolerance) {
		key := uuid.NewString()
		err := h.withRetry(ctx, "close positions", func() error {
			return h.exchange.ClosePositions(ctx, key)
		})
		if err != nil {
			if errors.Is(err, domain.ErrAuthentication) {
				return err
			}
			log.Error("close positions failed, retrying next cycle", "error", err)
			return nil
		}
		infra.GlobalMetrics.RecordPositionsClosed()
		log.Info("closed all positions", "idempotency_key", key)
		return nil
	}

	order := domain.HedgeOrder{
		Contracts:     delta.Abs().Div(domain.CentsPerContract).Ceil().IntPart(),
		ClientOrderID: uuid.NewString(),
	}
	if delta.IsNegative() {
		order.Side = domain.OrderSell
	} else {
		order.Side = domain.OrderBuy
	}

	// The same idempotency key rides through every retry, so a timed out
	// submission that actually landed cannot double the position.
	err = h.withRetry(ctx, "place order", func() error {
		return h.exchange.PlaceOrder(ctx, order)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return err
		}
		log.Error("order failed, retrying next cycle", "error", err)
		return nil
	}
	infra.GlobalMetrics.RecordOrderPlaced()
	log.Info("hedge order placed",
		"side", order.Side,
		"contracts", order.Contracts,
		"idempotency_key", order.ClientOrderID)
	return nil
}

// withRetry retries retriable failures with exponential backoff bounded
// by the poll interval. Fatal errors short-circuit.
func (h *Hedger) withRetry(ctx context.Context, op string, f func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.retryInitial
	b.MaxElapsedTime = h.pollInterval

	return backoff.Retry(func() error {
		err := f()
		if err == nil {
			return nil
		}
		if !domain.IsRetriable(err) {
			return backoff.Permanent(fmt.Errorf("%s: %w", op, err))
		}
		h.logger.Debug("retrying exchange call", "op", op, "error", err)
		return err
	}, backoff.WithContext(b, ctx))
}
