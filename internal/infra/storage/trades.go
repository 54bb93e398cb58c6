package storage

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hedge_go/internal/domain"
)

// FindTradesByLegIDs looks up the existing non-bad trades referencing any
// of the given leg ids, keyed by btc and usd leg id respectively.
func (s *Store) FindTradesByLegIDs(tx *gorm.DB, btcIDs, usdIDs []string) (byBtc, byUsd map[string]*domain.UserTrade, err error) {
	byBtc = make(map[string]*domain.UserTrade)
	byUsd = make(map[string]*domain.UserTrade)
	if len(btcIDs) == 0 && len(usdIDs) == 0 {
		return byBtc, byUsd, nil
	}

	var trades []domain.UserTrade
	q := tx.Where("bad = ?", false).
		Where(tx.Where("btc_tx_id IN ?", btcIDs).Or("usd_tx_id IN ?", usdIDs))
	if err := q.Find(&trades).Error; err != nil {
		return nil, nil, TranslateError(err)
	}
	for i := range trades {
		t := &trades[i]
		byBtc[t.BtcTxID] = t
		byUsd[t.UsdTxID] = t
	}
	return byBtc, byUsd, nil
}

// MarkTradesBad flags superseded trades and mints each a fresh
// correction ledger id for the revert posting.
func (s *Store) MarkTradesBad(tx *gorm.DB, tradeIDs []uint) error {
	for _, id := range tradeIDs {
		correction := domain.NewLedgerTxID()
		err := tx.Model(&domain.UserTrade{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"bad":                     true,
				"correction_ledger_tx_id": correction,
			}).Error
		if err != nil {
			return TranslateError(err)
		}
	}
	return nil
}

// PersistTrades inserts freshly paired trades, assigning each a ledger
// transaction id.
func (s *Store) PersistTrades(tx *gorm.DB, trades []domain.UserTrade) error {
	if len(trades) == 0 {
		return nil
	}
	for i := range trades {
		if trades[i].LedgerTxID == "" {
			trades[i].LedgerTxID = domain.NewLedgerTxID()
		}
	}
	return TranslateError(tx.Create(&trades).Error)
}

// LockForUpdate row-locks the selection on postgres. Sqlite serializes
// writers at the database level, the clause is neither needed nor valid.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// FindTradeNeedingRevert locks and returns one bad trade whose forward
// posting exists but whose counter-posting does not. ErrNotFound means
// the backlog is drained.
func (s *Store) FindTradeNeedingRevert(tx *gorm.DB) (*domain.UserTrade, error) {
	var trade domain.UserTrade
	err := LockForUpdate(tx).
		Where("bad = ? AND posted = ? AND revert_posted = ?", true, true, false).
		Order("id asc").
		First(&trade).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return &trade, nil
}

// FindUnaccountedTrade locks and returns one live trade not yet posted
// to the ledger. ErrNotFound means the backlog is drained.
func (s *Store) FindUnaccountedTrade(tx *gorm.DB) (*domain.UserTrade, error) {
	var trade domain.UserTrade
	err := LockForUpdate(tx).
		Where("posted = ? AND bad = ?", false, false).
		Order("id asc").
		First(&trade).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return &trade, nil
}

// MarkTradePosted records that the forward posting committed.
func (s *Store) MarkTradePosted(tx *gorm.DB, tradeID uint) error {
	err := tx.Model(&domain.UserTrade{}).
		Where("id = ?", tradeID).
		Update("posted", true).Error
	return TranslateError(err)
}

// MarkTradeReverted records that the counter-posting committed.
func (s *Store) MarkTradeReverted(tx *gorm.DB, tradeID uint) error {
	err := tx.Model(&domain.UserTrade{}).
		Where("id = ?", tradeID).
		Update("revert_posted", true).Error
	return TranslateError(err)
}

// AccountBalance reads the settled balance row for an account. A missing
// row means no postings yet and reads as zero.
func (s *Store) AccountBalance(account domain.Account) (domain.LedgerAccountBalance, error) {
	var bal domain.LedgerAccountBalance
	err := s.db.First(&bal, "account = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LedgerAccountBalance{Account: account}, nil
	}
	if err != nil {
		return domain.LedgerAccountBalance{}, TranslateError(err)
	}
	return bal, nil
}
