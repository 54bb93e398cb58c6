// Package ledger is the append-only double-entry book for the issuer's
// USD liabilities. Every user trade posts one credit and one debit of
// equal cent amounts; mistakes are countered with fresh entries, never
// edited away.
package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"hedge_go/internal/domain"
	"hedge_go/internal/event"
	"hedge_go/internal/infra/storage"
)

// Ledger posts entries inside caller-owned storage transactions and
// publishes balance updates once the caller commits.
type Ledger struct {
	buses  map[domain.Account]*event.Bus[domain.BalanceUpdated]
	logger *slog.Logger
}

// New creates a ledger with one event bus per account.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		buses: map[domain.Account]*event.Bus[domain.BalanceUpdated]{
			domain.AccountUserLiability:             event.NewBus[domain.BalanceUpdated](),
			domain.AccountExchangePositionLiability: event.NewBus[domain.BalanceUpdated](),
		},
		logger: logger.With("component", "ledger"),
	}
}

// BalanceEvents subscribes to committed balance changes of one account.
func (l *Ledger) BalanceEvents(account domain.Account) *event.Subscription[domain.BalanceUpdated] {
	return l.buses[account].Subscribe()
}

// Close shuts down the balance buses.
func (l *Ledger) Close() {
	for _, b := range l.buses {
		b.Close()
	}
}

// EntryMeta carries the trade context recorded alongside a posting.
type EntryMeta struct {
	LedgerTxID string
	Satoshis   decimal.Decimal
	BtcTxID    string
	UsdTxID    string
	TradedAt   time.Time
	// OriginalTxID is set on reverts and names the posting being
	// countered.
	OriginalTxID  string
	CorrelationID string
}

// Posting is the uncommitted result of a record call. The posting only
// becomes visible to subscribers when the caller, after committing the
// storage transaction, calls Committed.
type Posting struct {
	ledger   *Ledger
	entries  []domain.LedgerEntry
	balances []domain.LedgerAccountBalance
	meta     EntryMeta
}

// Entries exposes the rows written by this posting.
func (p *Posting) Entries() []domain.LedgerEntry { return p.entries }

// Committed publishes the balance updates. Call exactly once, after the
// surrounding storage transaction committed.
func (p *Posting) Committed() {
	for _, bal := range p.balances {
		p.ledger.buses[bal.Account].Publish(domain.BalanceUpdated{
			Account:       bal.Account,
			SettledCredit: bal.SettledCredit,
			SettledDebit:  bal.SettledDebit,
			CorrelationID: p.meta.CorrelationID,
			TraceID:       p.meta.LedgerTxID,
		})
	}
	p.ledger.logger.Info("posting committed",
		"ledger_tx_id", p.meta.LedgerTxID,
		"entries", len(p.entries),
		"correlation_id", p.meta.CorrelationID)
}

// RecordUserBuys posts a user buying stablecoin USD with BTC: the user
// liability grows, and the exchange position account is debited so the
// hedge target moves short.
func (l *Ledger) RecordUserBuys(tx *gorm.DB, cents decimal.Decimal, meta EntryMeta) (*Posting, error) {
	return l.postPair(tx, meta,
		leg{domain.AccountUserLiability, domain.DirectionCredit, cents},
		leg{domain.AccountExchangePositionLiability, domain.DirectionDebit, cents},
	)
}

// RecordUserSells posts a user redeeming stablecoin USD for BTC.
func (l *Ledger) RecordUserSells(tx *gorm.DB, cents decimal.Decimal, meta EntryMeta) (*Posting, error) {
	return l.postPair(tx, meta,
		leg{domain.AccountUserLiability, domain.DirectionDebit, cents},
		leg{domain.AccountExchangePositionLiability, domain.DirectionCredit, cents},
	)
}

// RevertUserBuys counters an earlier buy posting. meta.LedgerTxID is the
// correction id, meta.OriginalTxID the posting being undone.
func (l *Ledger) RevertUserBuys(tx *gorm.DB, cents decimal.Decimal, meta EntryMeta) (*Posting, error) {
	if meta.OriginalTxID == "" {
		return nil, fmt.Errorf("revert without original tx id: %w", domain.ErrValidation)
	}
	return l.postPair(tx, meta,
		leg{domain.AccountUserLiability, domain.DirectionDebit, cents},
		leg{domain.AccountExchangePositionLiability, domain.DirectionCredit, cents},
	)
}

// RevertUserSells counters an earlier sell posting.
func (l *Ledger) RevertUserSells(tx *gorm.DB, cents decimal.Decimal, meta EntryMeta) (*Posting, error) {
	if meta.OriginalTxID == "" {
		return nil, fmt.Errorf("revert without original tx id: %w", domain.ErrValidation)
	}
	return l.postPair(tx, meta,
		leg{domain.AccountUserLiability, domain.DirectionCredit, cents},
		leg{domain.AccountExchangePositionLiability, domain.DirectionDebit, cents},
	)
}

type leg struct {
	account   domain.Account
	direction domain.EntryDirection
	cents     decimal.Decimal
}

func (l *Ledger) postPair(tx *gorm.DB, meta EntryMeta, legs ...leg) (*Posting, error) {
	if meta.LedgerTxID == "" {
		return nil, fmt.Errorf("posting without ledger tx id: %w", domain.ErrValidation)
	}
	var credit, debit decimal.Decimal
	for _, lg := range legs {
		if lg.cents.IsNegative() {
			return nil, fmt.Errorf("negative posting amount %s: %w", lg.cents, domain.ErrValidation)
		}
		switch lg.direction {
		case domain.DirectionCredit:
			credit = credit.Add(lg.cents)
		case domain.DirectionDebit:
			debit = debit.Add(lg.cents)
		}
	}
	// The book never goes out of balance. If it would, the bug is ours
	// and the transaction must die before commit.
	if !credit.Equal(debit) {
		return nil, &domain.InvariantViolationError{
			Detail: fmt.Sprintf("unbalanced posting %s: credit %s debit %s", meta.LedgerTxID, credit, debit),
		}
	}

	p := &Posting{ledger: l, meta: meta}
	for _, lg := range legs {
		entry := domain.LedgerEntry{
			LedgerTxID:    meta.LedgerTxID,
			Account:       lg.account,
			Direction:     lg.direction,
			AmountCents:   lg.cents,
			SatoshiAmount: meta.Satoshis,
			BtcTxID:       meta.BtcTxID,
			UsdTxID:       meta.UsdTxID,
			TradedAt:      meta.TradedAt,
		}
		if meta.OriginalTxID != "" {
			orig := meta.OriginalTxID
			entry.OriginalTxID = &orig
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, storage.TranslateError(err)
		}
		p.entries = append(p.entries, entry)

		bal, err := l.bumpBalance(tx, lg)
		if err != nil {
			return nil, err
		}
		p.balances = append(p.balances, bal)
	}
	return p, nil
}

func (l *Ledger) bumpBalance(tx *gorm.DB, lg leg) (domain.LedgerAccountBalance, error) {
	// Row lock so two postings to the same account cannot both read the
	// old totals and lose one increment on a read-committed store.
	var bal domain.LedgerAccountBalance
	err := storage.LockForUpdate(tx).Where(domain.LedgerAccountBalance{Account: lg.account}).
		Attrs(domain.LedgerAccountBalance{
			SettledCredit: decimal.Zero,
			SettledDebit:  decimal.Zero,
		}).
		FirstOrCreate(&bal).Error
	if err != nil {
		return domain.LedgerAccountBalance{}, storage.TranslateError(err)
	}

	if lg.direction == domain.DirectionCredit {
		bal.SettledCredit = bal.SettledCredit.Add(lg.cents)
	} else {
		bal.SettledDebit = bal.SettledDebit.Add(lg.cents)
	}
	bal.Version++
	if err := tx.Save(&bal).Error; err != nil {
		return domain.LedgerAccountBalance{}, storage.TranslateError(err)
	}
	return bal, nil
}
