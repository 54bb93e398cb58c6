// Package server exposes the price cache over HTTP as fee-adjusted
// conversion quotes.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
)

// Tier selects the fee band applied to a quote.
type Tier string

const (
	// TierImmediate quotes for instant settlement.
	TierImmediate Tier = "immediate"
	// TierFuture quotes for delayed settlement and carries the wider
	// delayed fee.
	TierFuture Tier = "future"
)

// FeeConfig is the spread taken on top of the raw market price,
// expressed as fractions (0.0005 = 5 bps).
type FeeConfig struct {
	Base      decimal.Decimal `yaml:"base"`
	Immediate decimal.Decimal `yaml:"immediate"`
	Delayed   decimal.Decimal `yaml:"delayed"`
}

func (f FeeConfig) rate(tier Tier) decimal.Decimal {
	if tier == TierFuture {
		return f.Base.Add(f.Delayed)
	}
	return f.Base.Add(f.Immediate)
}

var one = decimal.NewFromInt(1)

// PriceApp computes quote amounts from the cached tick. Buy quotes are
// prices at which the issuer buys satoshis, sell quotes at which it
// sells them; rounding always favors the issuer.
type PriceApp struct {
	prices domain.PriceProvider
	fees   FeeConfig
	logger *slog.Logger
}

// NewPriceApp wires the conversion service.
func NewPriceApp(prices domain.PriceProvider, fees FeeConfig, logger *slog.Logger) *PriceApp {
	return &PriceApp{
		prices: prices,
		fees:   fees,
		logger: logger.With("component", "price_app"),
	}
}

// CentsFromSatsForBuy quotes the cents the issuer pays for the given
// satoshis: bid price, fee deducted, rounded down.
func (a *PriceApp) CentsFromSatsForBuy(ctx context.Context, sats decimal.Decimal, tier Tier) (decimal.Decimal, error) {
	if err := validateAmount(sats); err != nil {
		return decimal.Decimal{}, err
	}
	tick, err := a.prices.LatestTick(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate := tick.BidPriceOfOneSat.Mul(one.Sub(a.fees.rate(tier)))
	return sats.Mul(rate).Floor(), nil
}

// CentsFromSatsForSell quotes the cents the issuer charges for the given
// satoshis: ask price, fee added, rounded up.
func (a *PriceApp) CentsFromSatsForSell(ctx context.Context, sats decimal.Decimal, tier Tier) (decimal.Decimal, error) {
	if err := validateAmount(sats); err != nil {
		return decimal.Decimal{}, err
	}
	tick, err := a.prices.LatestTick(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate := tick.AskPriceOfOneSat.Mul(one.Add(a.fees.rate(tier)))
	return sats.Mul(rate).Ceil(), nil
}

// SatsFromCentsForBuy quotes the satoshis the issuer expects in exchange
// for the given cents: rounded up, the counterparty covers the fraction.
func (a *PriceApp) SatsFromCentsForBuy(ctx context.Context, cents decimal.Decimal, tier Tier) (decimal.Decimal, error) {
	if err := validateAmount(cents); err != nil {
		return decimal.Decimal{}, err
	}
	tick, err := a.prices.LatestTick(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate := tick.BidPriceOfOneSat.Mul(one.Sub(a.fees.rate(tier)))
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("fee rate consumes the whole price: %w", domain.ErrValidation)
	}
	return cents.Div(rate).Ceil(), nil
}

// SatsFromCentsForSell quotes the satoshis the issuer hands out for the
// given cents: rounded down.
func (a *PriceApp) SatsFromCentsForSell(ctx context.Context, cents decimal.Decimal, tier Tier) (decimal.Decimal, error) {
	if err := validateAmount(cents); err != nil {
		return decimal.Decimal{}, err
	}
	tick, err := a.prices.LatestTick(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate := tick.AskPriceOfOneSat.Mul(one.Add(a.fees.rate(tier)))
	return cents.Div(rate).Floor(), nil
}

// MidRate is the raw cents-per-satoshi midpoint with no fee applied.
func (a *PriceApp) MidRate(ctx context.Context) (decimal.Decimal, error) {
	return a.prices.MidPriceOfOneSat(ctx)
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative amount %s: %w", amount, domain.ErrValidation)
	}
	return nil
}
