package storage

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"hedge_go/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open("sqlite", ":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func sampleLeg(id, cursor string, at time.Time, currency domain.Currency) domain.RawLeg {
	amount := decimal.NewFromInt(1000)
	direction := domain.LegReceive
	if currency == domain.CurrencyUSD {
		amount = decimal.NewFromInt(-10)
		direction = domain.LegSend
	}
	return domain.RawLeg{
		ID:                 id,
		Cursor:             cursor,
		CreatedAt:          at,
		SettlementAmount:   amount,
		SettlementCurrency: currency,
		SettlementMethod:   "intraledger",
		Direction:          direction,
		Memo:               strPtr("JournalId:1"),
		AmountInUsdCents:   decimal.NewFromInt(10),
	}
}

func TestPersistLegsIdempotent(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	legs := []domain.RawLeg{
		sampleLeg("btc-1", "cur-1", now, domain.CurrencyBTC),
		sampleLeg("usd-1", "cur-2", now, domain.CurrencyUSD),
	}
	n, err := s.PersistLegs(s.DB(), legs)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted %d legs, want 2", n)
	}

	// Re-importing the same page inserts nothing.
	n, err = s.PersistLegs(s.DB(), []domain.RawLeg{
		sampleLeg("btc-1", "cur-1", now, domain.CurrencyBTC),
		sampleLeg("usd-1", "cur-2", now, domain.CurrencyUSD),
	})
	if err != nil {
		t.Fatalf("re-persist: %v", err)
	}
	if n != 0 {
		t.Errorf("re-import inserted %d legs, want 0", n)
	}

	unpaired, err := s.ListUnpaired(s.DB())
	if err != nil {
		t.Fatalf("list unpaired: %v", err)
	}
	if len(unpaired) != 2 {
		t.Fatalf("got %d unpaired legs, want 2", len(unpaired))
	}
	if unpaired[0].ID != "btc-1" || unpaired[1].ID != "usd-1" {
		t.Errorf("arrival order broken: %s, %s", unpaired[0].ID, unpaired[1].ID)
	}
}

func TestImportCursorRoundTrip(t *testing.T) {
	s := testStore(t)

	cur, err := s.ImportCursor()
	if err != nil || cur != "" {
		t.Fatalf("fresh cursor = (%q, %v), want empty", cur, err)
	}

	if err := s.SaveImportCursor(s.DB(), "cur-42"); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	if err := s.SaveImportCursor(s.DB(), "cur-43"); err != nil {
		t.Fatalf("overwrite cursor: %v", err)
	}

	cur, err = s.ImportCursor()
	if err != nil || cur != "cur-43" {
		t.Errorf("cursor = (%q, %v), want cur-43", cur, err)
	}
}

func TestOldestUnpairedCursor(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	cur, err := s.OldestUnpairedCursor()
	if err != nil || cur != "" {
		t.Fatalf("empty store cursor = (%q, %v), want empty", cur, err)
	}

	_, err = s.PersistLegs(s.DB(), []domain.RawLeg{
		sampleLeg("old", "cur-old", now.Add(-time.Hour), domain.CurrencyBTC),
		sampleLeg("new", "cur-new", now, domain.CurrencyUSD),
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	cur, err = s.OldestUnpairedCursor()
	if err != nil || cur != "cur-old" {
		t.Errorf("cursor = (%q, %v), want cur-old", cur, err)
	}

	if err := s.MarkLegsPaired(s.DB(), []string{"old"}); err != nil {
		t.Fatalf("mark paired: %v", err)
	}
	cur, err = s.OldestUnpairedCursor()
	if err != nil || cur != "cur-new" {
		t.Errorf("cursor after pairing = (%q, %v), want cur-new", cur, err)
	}
}

func TestTradeLifecycle(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()

	trades := []domain.UserTrade{{
		BuyUnit:    domain.UnitUsdCent,
		BuyAmount:  decimal.NewFromInt(10),
		SellUnit:   domain.UnitSatoshi,
		SellAmount: decimal.NewFromInt(1000),
		TradedAt:   now,
		BtcTxID:    "btc-1",
		UsdTxID:    "usd-1",
	}}
	if err := s.PersistTrades(s.DB(), trades); err != nil {
		t.Fatalf("persist trades: %v", err)
	}
	if trades[0].LedgerTxID == "" {
		t.Fatal("persist must assign a ledger tx id")
	}

	t.Run("unaccounted then posted", func(t *testing.T) {
		trade, err := s.FindUnaccountedTrade(s.DB())
		if err != nil {
			t.Fatalf("find unaccounted: %v", err)
		}
		if err := s.MarkTradePosted(s.DB(), trade.ID); err != nil {
			t.Fatalf("mark posted: %v", err)
		}
		if _, err := s.FindUnaccountedTrade(s.DB()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("want ErrNotFound after posting, got %v", err)
		}
	})

	t.Run("bad then reverted", func(t *testing.T) {
		if _, err := s.FindTradeNeedingRevert(s.DB()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("no bad trades yet, got %v", err)
		}

		if err := s.MarkTradesBad(s.DB(), []uint{trades[0].ID}); err != nil {
			t.Fatalf("mark bad: %v", err)
		}
		trade, err := s.FindTradeNeedingRevert(s.DB())
		if err != nil {
			t.Fatalf("find needing revert: %v", err)
		}
		if trade.CorrectionLedgerTxID == nil || *trade.CorrectionLedgerTxID == "" {
			t.Error("marking bad must mint a correction ledger id")
		}
		if *trade.CorrectionLedgerTxID == trade.LedgerTxID {
			t.Error("correction id must differ from the original id")
		}

		if err := s.MarkTradeReverted(s.DB(), trade.ID); err != nil {
			t.Fatalf("mark reverted: %v", err)
		}
		if _, err := s.FindTradeNeedingRevert(s.DB()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("want ErrNotFound after revert, got %v", err)
		}
	})
}

func TestFindTradesByLegIDs(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()

	trades := []domain.UserTrade{{
		BuyUnit: domain.UnitUsdCent, BuyAmount: decimal.NewFromInt(10),
		SellUnit: domain.UnitSatoshi, SellAmount: decimal.NewFromInt(1000),
		TradedAt: now, BtcTxID: "btc-1", UsdTxID: "usd-1",
	}}
	if err := s.PersistTrades(s.DB(), trades); err != nil {
		t.Fatalf("persist: %v", err)
	}

	byBtc, byUsd, err := s.FindTradesByLegIDs(s.DB(), []string{"btc-1", "btc-2"}, []string{"usd-9"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if byBtc["btc-1"] == nil {
		t.Error("btc-1 should resolve to the existing trade")
	}
	if byUsd["usd-9"] != nil {
		t.Error("usd-9 should not resolve")
	}

	// Bad trades are invisible to pairing lookups.
	if err := s.MarkTradesBad(s.DB(), []uint{trades[0].ID}); err != nil {
		t.Fatalf("mark bad: %v", err)
	}
	byBtc, _, err = s.FindTradesByLegIDs(s.DB(), []string{"btc-1"}, nil)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if byBtc["btc-1"] != nil {
		t.Error("bad trades must be excluded from lookup")
	}
}

func TestLockForUpdateDialects(t *testing.T) {
	query := func(db *gorm.DB) string {
		stmt := db.Session(&gorm.Session{DryRun: true}).
			Where("account = ?", domain.AccountUserLiability).
			Find(&[]domain.LedgerAccountBalance{}).Statement
		return stmt.SQL.String()
	}

	t.Run("postgres locks the row", func(t *testing.T) {
		// Dry-run connection, never dialed.
		db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=hedge dbname=hedge"}), &gorm.Config{
			DryRun:               true,
			DisableAutomaticPing: true,
		})
		if err != nil {
			t.Fatalf("open dry-run postgres: %v", err)
		}
		if sql := query(LockForUpdate(db)); !strings.Contains(sql, "FOR UPDATE") {
			t.Errorf("postgres query missing row lock: %s", sql)
		}
	})

	t.Run("sqlite skips the clause", func(t *testing.T) {
		s := testStore(t)
		if sql := query(LockForUpdate(s.DB())); strings.Contains(sql, "FOR UPDATE") {
			t.Errorf("sqlite query must not lock: %s", sql)
		}
	})
}

func TestTranslateError(t *testing.T) {
	if TranslateError(nil) != nil {
		t.Error("nil must stay nil")
	}
	err := errors.New("database is locked")
	if !errors.Is(TranslateError(err), domain.ErrConflict) {
		t.Error("sqlite busy should map to ErrConflict")
	}
}
