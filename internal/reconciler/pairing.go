// Package reconciler turns the raw wallet transaction stream into paired
// user trades and keeps the ledger in sync with them.
package reconciler

import (
	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
)

// usdCentTolerance is the allowed gap between the two legs' source USD
// valuations when no journal memos tie them together. Rounding on the
// wallet side makes the valuations differ by at most one cent.
var usdCentTolerance = decimal.NewFromInt(1)

// isPair reports whether two legs are the two halves of one conversion.
func isPair(a, b *domain.RawLeg) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if a.SettlementCurrency == b.SettlementCurrency {
		return false
	}
	if a.Direction == b.Direction {
		return false
	}
	if a.SettlementMethod != b.SettlementMethod {
		return false
	}

	// A journal-tagged leg only ever pairs with the leg carrying the same
	// journal memo. The valuation tolerance is for untagged legs alone.
	memoA, okA := a.JournalMemo()
	memoB, okB := b.JournalMemo()
	if okA || okB {
		return okA && okB && memoA == memoB
	}
	diff := a.AbsUsdCents().Sub(b.AbsUsdCents()).Abs()
	return diff.LessThanOrEqual(usdCentTolerance)
}

// PairResult is the outcome of one unify pass.
type PairResult struct {
	Trades []domain.UserTrade
	// PairedLegIDs are the leg ids consumed by Trades, to be flagged in
	// storage. Legs not listed stay unpaired for later passes.
	PairedLegIDs []string
}

// Unify walks the unpaired legs in arrival order and greedily pairs each
// leg with the first later unconsumed leg it matches. Single pass, first
// match wins, so the result is deterministic for a given arrival order.
func Unify(legs []domain.RawLeg) PairResult {
	var res PairResult
	consumed := make([]bool, len(legs))

	for i := range legs {
		if consumed[i] {
			continue
		}
		for j := i + 1; j < len(legs); j++ {
			if consumed[j] || !isPair(&legs[i], &legs[j]) {
				continue
			}
			consumed[i], consumed[j] = true, true
			res.Trades = append(res.Trades, buildTrade(&legs[i], &legs[j]))
			res.PairedLegIDs = append(res.PairedLegIDs, legs[i].ID, legs[j].ID)
			break
		}
	}
	return res
}

func buildTrade(a, b *domain.RawLeg) domain.UserTrade {
	btc, usd := a, b
	if btc.SettlementCurrency != domain.CurrencyBTC {
		btc, usd = usd, btc
	}

	sats := btc.SettlementAmount.Abs()
	cents := usd.SettlementAmount.Abs()

	trade := domain.UserTrade{
		TradedAt: btc.CreatedAt,
		BtcTxID:  btc.ID,
		UsdTxID:  usd.ID,
	}
	if btc.Direction == domain.LegReceive {
		// BTC flowed in, stablecoin USD flowed out: the user bought USD.
		trade.BuyUnit = domain.UnitUsdCent
		trade.BuyAmount = cents
		trade.SellUnit = domain.UnitSatoshi
		trade.SellAmount = sats
	} else {
		trade.BuyUnit = domain.UnitSatoshi
		trade.BuyAmount = sats
		trade.SellUnit = domain.UnitUsdCent
		trade.SellAmount = cents
	}
	return trade
}
