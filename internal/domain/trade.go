package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CentsPerContract is the USD face value of one exchange swap contract.
var CentsPerContract = decimal.NewFromInt(10_000)

// TradeUnit is the unit on one side of a user trade.
type TradeUnit string

const (
	UnitSatoshi TradeUnit = "satoshi"
	UnitUsdCent TradeUnit = "usd_cent"
)

// TradeSide says what the user did from the issuer's point of view.
type TradeSide string

const (
	// SideUserBuysUsd: the user sold BTC for stablecoin USD, growing the
	// issuer's USD liability.
	SideUserBuysUsd TradeSide = "user_buys_usd"
	// SideUserSellsUsd: the user redeemed stablecoin USD for BTC.
	SideUserSellsUsd TradeSide = "user_sells_usd"
)

// UserTrade is a paired BTC/USD conversion reconstructed from two wallet
// legs. Trades are append-only; a trade superseded by re-pairing is marked
// Bad and countered in the ledger, never deleted.
type UserTrade struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	BuyUnit    TradeUnit       `gorm:"not null" json:"buy_unit"`
	BuyAmount  decimal.Decimal `gorm:"type:numeric;not null" json:"buy_amount"`
	SellUnit   TradeUnit       `gorm:"not null" json:"sell_unit"`
	SellAmount decimal.Decimal `gorm:"type:numeric;not null" json:"sell_amount"`

	TradedAt time.Time `json:"traded_at"`

	// BtcTxID and UsdTxID reference the source legs. Not unique: after a
	// re-pair the same leg id appears on both the bad trade and its
	// replacement.
	BtcTxID string `gorm:"column:btc_tx_id;index;not null" json:"btc_tx_id"`
	UsdTxID string `gorm:"column:usd_tx_id;index;not null" json:"usd_tx_id"`

	// LedgerTxID is assigned at persist time and used for the forward
	// posting.
	LedgerTxID string `gorm:"column:ledger_tx_id;uniqueIndex;not null" json:"ledger_tx_id"`

	Posted bool `gorm:"index;not null;default:false" json:"posted"`
	Bad    bool `gorm:"index;not null;default:false" json:"bad"`
	// RevertPosted is set once the counter-entries for a bad trade have
	// been committed.
	RevertPosted bool `gorm:"index;not null;default:false" json:"revert_posted"`
	// CorrectionLedgerTxID is the fresh id minted when the trade was
	// marked bad, used for the revert posting.
	CorrectionLedgerTxID *string `gorm:"column:correction_ledger_tx_id" json:"correction_ledger_tx_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Side derives the trade direction from the buy unit. A trade that buys
// usd cents means the user bought USD with BTC.
func (t *UserTrade) Side() TradeSide {
	if t.BuyUnit == UnitUsdCent {
		return SideUserBuysUsd
	}
	return SideUserSellsUsd
}

// Satoshis returns the BTC amount of the trade regardless of side.
func (t *UserTrade) Satoshis() decimal.Decimal {
	if t.BuyUnit == UnitSatoshi {
		return t.BuyAmount
	}
	return t.SellAmount
}

// UsdCents returns the USD amount of the trade regardless of side.
func (t *UserTrade) UsdCents() decimal.Decimal {
	if t.BuyUnit == UnitUsdCent {
		return t.BuyAmount
	}
	return t.SellAmount
}
