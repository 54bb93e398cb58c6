package infra

import (
	"testing"
)

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordLegsImported(2)
	m.RecordLegsImported(3)
	m.RecordTradesPaired(2)
	m.RecordTradesSuperseded(1)
	m.RecordLedgerPosting()
	m.RecordLedgerPosting()
	m.RecordLedgerRevert()
	m.RecordOrderPlaced()
	m.RecordPositionsClosed()
	m.RecordPriceUpdateDropped()
	m.RecordReconcileError()

	snap := m.Snapshot()
	if snap.LegsImported != 5 {
		t.Errorf("Expected 5 legs imported, got %d", snap.LegsImported)
	}
	if snap.TradesPaired != 2 {
		t.Errorf("Expected 2 trades paired, got %d", snap.TradesPaired)
	}
	if snap.TradesSuperseded != 1 {
		t.Errorf("Expected 1 trade superseded, got %d", snap.TradesSuperseded)
	}
	if snap.LedgerPostings != 2 || snap.LedgerReverts != 1 {
		t.Errorf("Expected 2 postings / 1 revert, got %d/%d", snap.LedgerPostings, snap.LedgerReverts)
	}
	if snap.OrdersPlaced != 1 || snap.PositionsClosed != 1 {
		t.Errorf("Expected 1 order / 1 close, got %d/%d", snap.OrdersPlaced, snap.PositionsClosed)
	}
	if snap.PriceUpdatesDropped != 1 {
		t.Errorf("Expected 1 dropped update, got %d", snap.PriceUpdatesDropped)
	}
	if snap.ReconcileErrors != 1 {
		t.Errorf("Expected 1 reconcile error, got %d", snap.ReconcileErrors)
	}
}

func TestMetrics_PassTimestamp(t *testing.T) {
	m := &Metrics{}

	snap := m.Snapshot()
	if !snap.LastPassAt.IsZero() {
		t.Error("Expected zero pass timestamp initially")
	}

	m.MarkPassCompleted()
	snap = m.Snapshot()
	if snap.LastPassAt.IsZero() {
		t.Error("Expected pass timestamp after completion")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordLegsImported(1)
	m.RecordReconcileError()
	m.MarkPassCompleted()

	m.Reset()
	snap := m.Snapshot()

	if snap.LegsImported != 0 {
		t.Error("Expected 0 legs after reset")
	}
	if snap.ReconcileErrors != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if !snap.LastPassAt.IsZero() {
		t.Error("Expected zero pass timestamp after reset")
	}
}
