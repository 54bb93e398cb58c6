package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/event"
	"hedge_go/internal/infra"
	"hedge_go/internal/infra/storage"
	"hedge_go/internal/ledger"
)

const (
	// DefaultPollInterval paces reconciliation passes.
	DefaultPollInterval = 10 * time.Second
	// conflictRetries bounds how often one sync step is retried after a
	// storage conflict before the pass gives up.
	conflictRetries = 3
	// maxImportPages caps how far one pass pages into history.
	maxImportPages = 50
)

// Reconciler imports wallet legs, pairs them into trades and drives the
// two ledger sync loops.
type Reconciler struct {
	source   domain.TransactionSource
	store    *storage.Store
	ledger   *ledger.Ledger
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPollInterval overrides the pass pacing.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// New wires a reconciler.
func New(source domain.TransactionSource, store *storage.Store, led *ledger.Ledger, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:   source,
		store:    store,
		ledger:   led,
		interval: DefaultPollInterval,
		logger:   logger.With("component", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes passes until ctx is done. A failed pass is logged and the
// next tick starts fresh; only authentication failures escalate.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Pass(ctx); err != nil {
			if errors.Is(err, domain.ErrAuthentication) {
				return fmt.Errorf("reconciler pass: %w", err)
			}
			infra.GlobalMetrics.RecordReconcileError()
			r.logger.Error("reconciliation pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pass runs one full reconciliation: import new legs, re-scan the window
// holding late arrivals, pair, then sync the ledger.
func (r *Reconciler) Pass(ctx context.Context) error {
	if err := r.importNewLegs(ctx); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := r.reimportUnpaired(ctx); err != nil {
		return fmt.Errorf("reimport unpaired: %w", err)
	}
	if err := r.updateUserTrades(); err != nil {
		return fmt.Errorf("update trades: %w", err)
	}
	if err := r.syncLedger(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	infra.GlobalMetrics.MarkPassCompleted()
	return nil
}

// importNewLegs pages forward from the persisted cursor, one storage
// transaction per page so a crash loses at most one page of progress.
func (r *Reconciler) importNewLegs(ctx context.Context) error {
	cursor, err := r.store.ImportCursor()
	if err != nil {
		return err
	}

	for page := 0; page < maxImportPages; page++ {
		pageRes, err := r.source.ListTransactions(ctx, cursor)
		if err != nil {
			return err
		}
		if len(pageRes.Legs) == 0 && !pageRes.HasMore {
			return nil
		}

		tx := r.store.Begin()
		n, err := r.store.PersistLegs(tx, pageRes.Legs)
		if err != nil {
			tx.Rollback()
			return err
		}
		if pageRes.NextCursor != "" {
			if err := r.store.SaveImportCursor(tx, pageRes.NextCursor); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit().Error; err != nil {
			return storage.TranslateError(err)
		}
		infra.GlobalMetrics.RecordLegsImported(uint64(n))
		r.logger.Debug("imported legs", "page", page, "new", n, "cursor", pageRes.NextCursor)

		if !pageRes.HasMore {
			return nil
		}
		cursor = pageRes.NextCursor
	}
	r.logger.Warn("import page cap reached, resuming next pass")
	return nil
}

// reimportUnpaired re-fetches one page starting at the oldest unpaired
// leg. Its counterpart may have landed in the source after the original
// import passed that window.
func (r *Reconciler) reimportUnpaired(ctx context.Context) error {
	cursor, err := r.store.OldestUnpairedCursor()
	if err != nil {
		return err
	}
	if cursor == "" {
		return nil
	}

	page, err := r.source.ListTransactions(ctx, cursor)
	if err != nil {
		return err
	}
	if len(page.Legs) == 0 {
		return nil
	}

	tx := r.store.Begin()
	n, err := r.store.PersistLegs(tx, page.Legs)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return storage.TranslateError(err)
	}
	if n > 0 {
		infra.GlobalMetrics.RecordLegsImported(uint64(n))
		r.logger.Info("late legs recovered", "count", n, "cursor", cursor)
	}
	return nil
}

// updateUserTrades pairs the unpaired backlog and persists the outcome
// atomically, handling re-pairs against earlier trades.
func (r *Reconciler) updateUserTrades() error {
	tx := r.store.Begin()
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	legs, err := r.store.ListUnpaired(tx)
	if err != nil {
		return err
	}
	if len(legs) == 0 {
		return nil
	}

	res := Unify(legs)
	if len(res.Trades) == 0 {
		return nil
	}

	btcIDs := make([]string, 0, len(res.Trades))
	usdIDs := make([]string, 0, len(res.Trades))
	for _, t := range res.Trades {
		btcIDs = append(btcIDs, t.BtcTxID)
		usdIDs = append(usdIDs, t.UsdTxID)
	}
	byBtc, byUsd, err := r.store.FindTradesByLegIDs(tx, btcIDs, usdIDs)
	if err != nil {
		return err
	}

	keep := res.Trades[:0]
	var badIDs []uint
	for _, t := range res.Trades {
		prevBtc := byBtc[t.BtcTxID]
		prevUsd := byUsd[t.UsdTxID]
		switch {
		case prevBtc == nil && prevUsd == nil:
			keep = append(keep, t)
		case prevBtc != nil && prevUsd != nil && prevBtc.ID == prevUsd.ID:
			// Same pairing reconstructed, nothing changed.
		default:
			// The legs re-paired differently. Earlier trades holding
			// either leg are wrong and get countered.
			if prevBtc != nil {
				badIDs = append(badIDs, prevBtc.ID)
			}
			if prevUsd != nil && (prevBtc == nil || prevUsd.ID != prevBtc.ID) {
				badIDs = append(badIDs, prevUsd.ID)
			}
			keep = append(keep, t)
		}
	}

	if len(badIDs) > 0 {
		if err := r.store.MarkTradesBad(tx, badIDs); err != nil {
			return err
		}
		r.logger.Warn("trades superseded by re-pairing", "count", len(badIDs))
	}
	if err := r.store.PersistTrades(tx, keep); err != nil {
		return err
	}
	if err := r.store.MarkLegsPaired(tx, res.PairedLegIDs); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return storage.TranslateError(err)
	}
	committed = true

	infra.GlobalMetrics.RecordTradesPaired(uint64(len(keep)))
	infra.GlobalMetrics.RecordTradesSuperseded(uint64(len(badIDs)))
	r.logger.Info("trades paired", "new", len(keep), "superseded", len(badIDs))
	return nil
}

// syncLedger drains the revert backlog first, then the forward posting
// backlog. Each trade is handled in its own storage transaction.
func (r *Reconciler) syncLedger() error {
	if err := r.drain(r.revertOne); err != nil {
		return fmt.Errorf("revert loop: %w", err)
	}
	if err := r.drain(r.postOne); err != nil {
		return fmt.Errorf("posting loop: %w", err)
	}
	return nil
}

// drain calls step until it reports an empty backlog. Conflicts retry the
// same step a bounded number of times, any other error aborts the pass.
func (r *Reconciler) drain(step func() error) error {
	retries := 0
	for {
		err := step()
		switch {
		case err == nil:
			retries = 0
		case errors.Is(err, domain.ErrNotFound):
			return nil
		case errors.Is(err, domain.ErrConflict):
			retries++
			if retries > conflictRetries {
				return err
			}
			r.logger.Debug("retrying after storage conflict", "attempt", retries)
		default:
			return err
		}
	}
}

func (r *Reconciler) revertOne() error {
	tx := r.store.Begin()
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	trade, err := r.store.FindTradeNeedingRevert(tx)
	if err != nil {
		return err
	}
	if trade.CorrectionLedgerTxID == nil {
		return &domain.InvariantViolationError{
			Detail: fmt.Sprintf("bad trade %d has no correction ledger id", trade.ID),
		}
	}

	meta := ledger.EntryMeta{
		LedgerTxID:    *trade.CorrectionLedgerTxID,
		OriginalTxID:  trade.LedgerTxID,
		Satoshis:      trade.Satoshis(),
		BtcTxID:       trade.BtcTxID,
		UsdTxID:       trade.UsdTxID,
		TradedAt:      trade.TradedAt,
		CorrelationID: event.NewCorrelationID(),
	}

	var posting *ledger.Posting
	if trade.Side() == domain.SideUserBuysUsd {
		posting, err = r.ledger.RevertUserBuys(tx, trade.UsdCents(), meta)
	} else {
		posting, err = r.ledger.RevertUserSells(tx, trade.UsdCents(), meta)
	}
	if err != nil {
		return err
	}
	if err := r.store.MarkTradeReverted(tx, trade.ID); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return storage.TranslateError(err)
	}
	committed = true
	posting.Committed()

	infra.GlobalMetrics.RecordLedgerRevert()
	r.logger.Info("trade reverted",
		"trade_id", trade.ID,
		"ledger_tx_id", trade.LedgerTxID,
		"correction_tx_id", *trade.CorrectionLedgerTxID)
	return nil
}

func (r *Reconciler) postOne() error {
	tx := r.store.Begin()
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	trade, err := r.store.FindUnaccountedTrade(tx)
	if err != nil {
		return err
	}

	meta := ledger.EntryMeta{
		LedgerTxID:    trade.LedgerTxID,
		Satoshis:      trade.Satoshis(),
		BtcTxID:       trade.BtcTxID,
		UsdTxID:       trade.UsdTxID,
		TradedAt:      trade.TradedAt,
		CorrelationID: event.NewCorrelationID(),
	}

	var posting *ledger.Posting
	if trade.Side() == domain.SideUserBuysUsd {
		posting, err = r.ledger.RecordUserBuys(tx, trade.UsdCents(), meta)
	} else {
		posting, err = r.ledger.RecordUserSells(tx, trade.UsdCents(), meta)
	}
	if err != nil {
		return err
	}
	if err := r.store.MarkTradePosted(tx, trade.ID); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return storage.TranslateError(err)
	}
	committed = true
	posting.Committed()

	infra.GlobalMetrics.RecordLedgerPosting()
	r.logger.Info("trade posted",
		"trade_id", trade.ID,
		"side", trade.Side(),
		"cents", trade.UsdCents().String(),
		"ledger_tx_id", trade.LedgerTxID)
	return nil
}
