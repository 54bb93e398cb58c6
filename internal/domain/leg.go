package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the settlement currency of a wallet transaction leg.
type Currency string

const (
	CurrencyBTC Currency = "BTC"
	CurrencyUSD Currency = "USD"
)

// LegDirection says which way value moved through the wallet.
type LegDirection string

const (
	LegReceive LegDirection = "receive"
	LegSend    LegDirection = "send"
)

// RawLeg is one wallet transaction leg as imported from the transaction
// source. Legs are append-only; Seq preserves arrival order, which the
// pairing algorithm depends on.
type RawLeg struct {
	Seq uint `gorm:"primaryKey;autoIncrement" json:"seq"`
	// ID is the source-assigned transaction id. The unique index makes
	// re-imports idempotent.
	ID        string    `gorm:"uniqueIndex;not null" json:"id"`
	Cursor    string    `gorm:"not null" json:"cursor"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	SettlementAmount   decimal.Decimal `gorm:"type:numeric;not null" json:"settlement_amount"`
	SettlementCurrency Currency        `gorm:"not null" json:"settlement_currency"`
	SettlementMethod   string          `gorm:"not null" json:"settlement_method"`
	Direction          LegDirection    `gorm:"not null" json:"direction"`
	Memo               *string         `json:"memo,omitempty"`
	// AmountInUsdCents is the source's own USD valuation of the leg at
	// transaction time, used for the near-equal pairing tolerance.
	AmountInUsdCents decimal.Decimal `gorm:"type:numeric;not null" json:"amount_in_usd_cents"`

	Paired bool `gorm:"index;not null;default:false" json:"paired"`
}

// JournalMemo reports whether the leg carries a journal-tagged memo and,
// if so, returns it. Only memos with the journal prefix participate in
// memo-based pairing.
func (l *RawLeg) JournalMemo() (string, bool) {
	if l.Memo == nil {
		return "", false
	}
	const prefix = "JournalId:"
	if len(*l.Memo) < len(prefix) || (*l.Memo)[:len(prefix)] != prefix {
		return "", false
	}
	return *l.Memo, true
}

// AbsUsdCents returns the magnitude of the source USD valuation.
func (l *RawLeg) AbsUsdCents() decimal.Decimal {
	return l.AmountInUsdCents.Abs()
}
