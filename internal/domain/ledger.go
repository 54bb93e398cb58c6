package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account identifies one of the two liability accounts the ledger tracks.
// Both are denominated in USD cents.
type Account string

const (
	// AccountUserLiability tracks what the issuer owes its users.
	AccountUserLiability Account = "user_liability"
	// AccountExchangePositionLiability tracks the USD exposure that the
	// exchange hedge position must offset.
	AccountExchangePositionLiability Account = "exchange_position_liability"
)

// EntryDirection is the side of a double-entry posting.
type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// NewLedgerTxID generates a fresh, never-reused ledger transaction id.
func NewLedgerTxID() string {
	return uuid.NewString()
}

// LedgerEntry is one immutable posting line. Entries are never mutated or
// deleted; corrections are new entries referencing the original
// LedgerTxID via OriginalTxID.
type LedgerEntry struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	LedgerTxID  string          `gorm:"column:ledger_tx_id;index;not null" json:"ledger_tx_id"`
	Account     Account         `gorm:"index;not null" json:"account"`
	Direction   EntryDirection  `gorm:"not null" json:"direction"`
	AmountCents decimal.Decimal `gorm:"type:numeric;not null" json:"amount_cents"`
	// SatoshiAmount is the BTC side of the trade, carried as metadata so
	// the posting itself stays single-currency.
	SatoshiAmount decimal.Decimal `gorm:"type:numeric" json:"satoshi_amount"`
	BtcTxID       string          `gorm:"column:btc_tx_id" json:"btc_tx_id"`
	UsdTxID       string          `gorm:"column:usd_tx_id" json:"usd_tx_id"`
	TradedAt      time.Time       `json:"traded_at"`
	// OriginalTxID is set only on revert entries and references the
	// LedgerTxID being counter-posted.
	OriginalTxID *string   `gorm:"column:original_tx_id;index" json:"original_tx_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// LedgerAccountBalance is the running settled balance of one account,
// derived from entries and updated in the same transaction as the posting.
type LedgerAccountBalance struct {
	Account       Account         `gorm:"primaryKey" json:"account"`
	SettledCredit decimal.Decimal `gorm:"type:numeric;not null" json:"settled_credit"`
	SettledDebit  decimal.Decimal `gorm:"type:numeric;not null" json:"settled_debit"`
	Version       uint            `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BalanceUpdated is emitted through the event bus after every committed
// posting that touched the account.
type BalanceUpdated struct {
	Account       Account
	SettledCredit decimal.Decimal // USD cents
	SettledDebit  decimal.Decimal // USD cents
	CorrelationID string
	TraceID       string
}

// Exposure returns settled credit minus settled debit in signed cents.
func (b BalanceUpdated) Exposure() decimal.Decimal {
	return b.SettledCredit.Sub(b.SettledDebit)
}
