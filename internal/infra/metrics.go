package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	legsImported        atomic.Uint64
	tradesPaired        atomic.Uint64
	tradesSuperseded    atomic.Uint64
	ledgerPostings      atomic.Uint64
	ledgerReverts       atomic.Uint64
	ordersPlaced        atomic.Uint64
	positionsClosed     atomic.Uint64
	priceUpdatesDropped atomic.Uint64
	reconcileErrors     atomic.Uint64

	// Gauges
	lastPassUnixNano atomic.Int64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordLegsImported adds freshly persisted legs.
func (m *Metrics) RecordLegsImported(n uint64) {
	m.legsImported.Add(n)
}

// RecordTradesPaired adds newly paired trades.
func (m *Metrics) RecordTradesPaired(n uint64) {
	m.tradesPaired.Add(n)
}

// RecordTradesSuperseded adds trades marked bad by re-pairing.
func (m *Metrics) RecordTradesSuperseded(n uint64) {
	m.tradesSuperseded.Add(n)
}

// RecordLedgerPosting records one committed forward posting.
func (m *Metrics) RecordLedgerPosting() {
	m.ledgerPostings.Add(1)
}

// RecordLedgerRevert records one committed revert posting.
func (m *Metrics) RecordLedgerRevert() {
	m.ledgerReverts.Add(1)
}

// RecordOrderPlaced records one accepted hedge order.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordPositionsClosed records one close-all call.
func (m *Metrics) RecordPositionsClosed() {
	m.positionsClosed.Add(1)
}

// RecordPriceUpdateDropped records one rejected price update.
func (m *Metrics) RecordPriceUpdateDropped() {
	m.priceUpdatesDropped.Add(1)
}

// RecordReconcileError records one failed reconciliation pass.
func (m *Metrics) RecordReconcileError() {
	m.reconcileErrors.Add(1)
}

// MarkPassCompleted stamps the end of a reconciliation pass.
func (m *Metrics) MarkPassCompleted() {
	m.lastPassUnixNano.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	LegsImported        uint64
	TradesPaired        uint64
	TradesSuperseded    uint64
	LedgerPostings      uint64
	LedgerReverts       uint64
	OrdersPlaced        uint64
	PositionsClosed     uint64
	PriceUpdatesDropped uint64
	ReconcileErrors     uint64
	LastPassAt          time.Time
	Timestamp           time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var lastPass time.Time
	if ns := m.lastPassUnixNano.Load(); ns > 0 {
		lastPass = time.Unix(0, ns)
	}

	return MetricsSnapshot{
		LegsImported:        m.legsImported.Load(),
		TradesPaired:        m.tradesPaired.Load(),
		TradesSuperseded:    m.tradesSuperseded.Load(),
		LedgerPostings:      m.ledgerPostings.Load(),
		LedgerReverts:       m.ledgerReverts.Load(),
		OrdersPlaced:        m.ordersPlaced.Load(),
		PositionsClosed:     m.positionsClosed.Load(),
		PriceUpdatesDropped: m.priceUpdatesDropped.Load(),
		ReconcileErrors:     m.reconcileErrors.Load(),
		LastPassAt:          lastPass,
		Timestamp:           time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.legsImported.Store(0)
	m.tradesPaired.Store(0)
	m.tradesSuperseded.Store(0)
	m.ledgerPostings.Store(0)
	m.ledgerReverts.Store(0)
	m.ordersPlaced.Store(0)
	m.positionsClosed.Store(0)
	m.priceUpdatesDropped.Store(0)
	m.reconcileErrors.Store(0)
	m.lastPassUnixNano.Store(0)
}
