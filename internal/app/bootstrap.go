// Package app wires every component together and supervises them.
package app

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"hedge_go/internal/engine"
	"hedge_go/internal/event"
	"hedge_go/internal/infra"
	"hedge_go/internal/infra/galoy"
	"hedge_go/internal/infra/okx"
	"hedge_go/internal/infra/storage"
	"hedge_go/internal/ledger"
	"hedge_go/internal/reconciler"
	"hedge_go/internal/server"
	"hedge_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.Store
	Ledger *ledger.Ledger

	priceBus   *event.Bus[event.PriceUpdate]
	priceCache *service.PriceCache
	feed       *okx.Feed
	reconciler *reconciler.Reconciler
	hedger     *engine.Hedger
	api        *server.API
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB and
// all the long-running components).
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping hedge daemon...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Database initialized", "driver", cfg.Database.Driver)

	b.Ledger = ledger.New(logger)

	// Price pipeline: feed -> throttled bus -> cache.
	b.priceBus = event.NewBus[event.PriceUpdate](
		event.WithThrottle[event.PriceUpdate](cfg.PriceThrottle()))

	cacheOpts := []service.PriceCacheOption{
		service.WithStaleAfter(cfg.PriceStaleAfter()),
	}
	if cfg.Price.MockPrice != "" {
		mock, err := decimal.NewFromString(cfg.Price.MockPrice)
		if err != nil {
			return err
		}
		cacheOpts = append(cacheOpts, service.WithMockPrice(mock))
		slog.Warn("⚠️ Price cache pinned to mock price", "cents_per_sat", cfg.Price.MockPrice)
	}
	b.priceCache = service.NewPriceCache(logger, cacheOpts...)
	b.feed = okx.NewFeed(b.priceBus, logger)

	source, err := galoy.NewClient(cfg.Galoy.Endpoint, cfg.Galoy.APIKey, logger)
	if err != nil {
		return err
	}
	b.reconciler = reconciler.New(source, store, b.Ledger, logger,
		reconciler.WithPollInterval(cfg.GaloyPollInterval()))

	exchange, err := okx.NewClient(okx.Credentials{
		APIKey:     cfg.OKX.APIKey,
		SecretKey:  cfg.OKX.SecretKey,
		Passphrase: cfg.OKX.Passphrase,
		Simulated:  cfg.OKX.Simulated,
	}, logger)
	if err != nil {
		return err
	}

	hedgerOpts := []engine.Option{
		engine.WithPollInterval(cfg.OKXPollInterval()),
		// Own cursor on the throttled price stream, so hedge evaluation
		// reacts to market moves between balance events.
		engine.WithPriceTicks(b.priceBus.Subscribe()),
	}
	if cfg.Hedging.ToleranceCents > 0 {
		hedgerOpts = append(hedgerOpts,
			engine.WithTolerance(decimal.NewFromInt(cfg.Hedging.ToleranceCents)))
	}
	b.hedger = engine.New(store, b.Ledger, b.priceCache, exchange, logger, hedgerOpts...)

	priceApp := server.NewPriceApp(b.priceCache, server.FeeConfig(cfg.Price.Fees), logger)
	b.api = server.NewAPI(cfg.Server.ListenAddr, priceApp, logger)

	slog.Info("✅ Components wired")
	return nil
}

// Run starts every long-running task under one supervisor. The first
// fatal failure cancels all of them; a crash is total, there is no
// partial-degradation mode.
func (b *Bootstrap) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	updates := b.priceBus.Subscribe()
	defer updates.Cancel()

	if err := b.feed.Connect(ctx); err != nil {
		return err
	}
	defer b.feed.Disconnect()
	slog.Info("✅ Price feed started")

	g.Go(func() error { return b.priceCache.Run(ctx, updates.C()) })
	g.Go(func() error { return b.reconciler.Run(ctx) })
	g.Go(func() error { return b.hedger.Run(ctx) })
	g.Go(func() error { return b.api.Run(ctx) })

	slog.Info("✨ Hedge daemon fully operational")
	err := g.Wait()

	b.Ledger.Close()
	b.priceBus.Close()
	if cerr := b.Store.Close(); cerr != nil {
		slog.Error("closing storage", "error", cerr)
	}
	return err
}
