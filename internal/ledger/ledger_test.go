package ledger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
	"hedge_go/internal/infra/storage"
)

func setup(t *testing.T) (*Ledger, *storage.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open("sqlite", ":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	led := New(logger)
	t.Cleanup(func() {
		led.Close()
		store.Close()
	})
	return led, store
}

func meta(txID string) EntryMeta {
	return EntryMeta{
		LedgerTxID: txID,
		Satoshis:   decimal.NewFromInt(1_000_000),
		BtcTxID:    "btc-1",
		UsdTxID:    "usd-1",
		TradedAt:   time.Now().UTC(),
	}
}

func exposure(t *testing.T, store *storage.Store, account domain.Account) decimal.Decimal {
	t.Helper()
	bal, err := store.AccountBalance(account)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return bal.SettledCredit.Sub(bal.SettledDebit)
}

func TestRecordUserBuys(t *testing.T) {
	led, store := setup(t)
	cents := decimal.NewFromInt(50_000)

	tx := store.Begin()
	posting, err := led.RecordUserBuys(tx, cents, meta("tx-1"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}
	posting.Committed()

	if got := exposure(t, store, domain.AccountUserLiability); !got.Equal(cents) {
		t.Errorf("user liability exposure = %s, want %s", got, cents)
	}
	// A 500 dollar user buy leaves the exchange position account 50000
	// cents short.
	if got := exposure(t, store, domain.AccountExchangePositionLiability); !got.Equal(cents.Neg()) {
		t.Errorf("exchange position exposure = %s, want %s", got, cents.Neg())
	}
	if len(posting.Entries()) != 2 {
		t.Errorf("got %d entries, want 2", len(posting.Entries()))
	}
}

func TestRecordUserSellsOffsetsBuys(t *testing.T) {
	led, store := setup(t)

	tx := store.Begin()
	p1, err := led.RecordUserBuys(tx, decimal.NewFromInt(50_000), meta("tx-1"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	p2, err := led.RecordUserSells(tx, decimal.NewFromInt(20_000), meta("tx-2"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}
	p1.Committed()
	p2.Committed()

	want := decimal.NewFromInt(-30_000)
	if got := exposure(t, store, domain.AccountExchangePositionLiability); !got.Equal(want) {
		t.Errorf("exchange position exposure = %s, want %s", got, want)
	}
}

func TestRevertRestoresBalance(t *testing.T) {
	led, store := setup(t)
	cents := decimal.NewFromInt(50_000)

	tx := store.Begin()
	p, err := led.RecordUserBuys(tx, cents, meta("tx-1"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	tx.Commit()
	p.Committed()

	m := meta("correction-1")
	m.OriginalTxID = "tx-1"
	tx = store.Begin()
	rev, err := led.RevertUserBuys(tx, cents, m)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	tx.Commit()
	rev.Committed()

	if got := exposure(t, store, domain.AccountExchangePositionLiability); !got.IsZero() {
		t.Errorf("exposure after revert = %s, want 0", got)
	}
	for _, e := range rev.Entries() {
		if e.OriginalTxID == nil || *e.OriginalTxID != "tx-1" {
			t.Error("revert entries must reference the original tx id")
		}
	}
}

func TestRevertRequiresOriginalTxID(t *testing.T) {
	led, store := setup(t)
	tx := store.Begin()
	defer tx.Rollback()

	_, err := led.RevertUserBuys(tx, decimal.NewFromInt(10), meta("correction-1"))
	if err == nil {
		t.Fatal("revert without original tx id must fail")
	}
}

func TestBalanceEventsAfterCommit(t *testing.T) {
	led, store := setup(t)

	events := led.BalanceEvents(domain.AccountExchangePositionLiability)
	defer events.Cancel()

	tx := store.Begin()
	p, err := led.RecordUserBuys(tx, decimal.NewFromInt(50_000), meta("tx-1"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// Nothing is visible before Committed.
	select {
	case ev := <-events.C():
		t.Fatalf("event before commit: %+v", ev)
	default:
	}

	tx.Commit()
	p.Committed()

	select {
	case ev := <-events.C():
		if want := decimal.NewFromInt(-50_000); !ev.Exposure().Equal(want) {
			t.Errorf("exposure = %s, want %s", ev.Exposure(), want)
		}
	case <-time.After(time.Second):
		t.Fatal("no balance event after commit")
	}
}
