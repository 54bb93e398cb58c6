package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hedge_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")

	// One-shot price query mode: hit a running daemon's price API and
	// print the quote instead of starting the daemon.
	priceURL := flag.String("price-url", "", "base URL of a running price API (enables one-shot query mode)")
	direction := flag.String("direction", "mid-rate", "quote to request: mid-rate, or {cents-from-sats|sats-from-cents}/{immediate|future}/{buy|sell}")
	amount := flag.String("amount", "", "amount for conversion quotes (satoshis or cents)")
	flag.Parse()

	if *priceURL != "" {
		if err := runPriceQuery(*priceURL, *direction, *amount); err != nil {
			fmt.Fprintln(os.Stderr, "price query failed:", err)
			os.Exit(1)
		}
		return
	}

	// Pprof server (for performance profiling), localhost only
	go func() {
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("❌ Daemon terminated", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("👋 Shut down gracefully")
}

func runPriceQuery(baseURL, direction, amount string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	var resp *http.Response
	var err error
	if direction == "mid-rate" {
		resp, err = client.Get(baseURL + "/price/mid-rate")
	} else {
		if amount == "" {
			return fmt.Errorf("conversion quotes need -amount")
		}
		field := "amount_in_satoshis"
		if len(direction) >= len("sats-from-cents") && direction[:len("sats-from-cents")] == "sats-from-cents" {
			field = "amount_in_cents"
		}
		body, merr := json.Marshal(map[string]string{field: amount})
		if merr != nil {
			return merr
		}
		resp, err = client.Post(baseURL+"/price/"+direction, "application/json", bytes.NewReader(body))
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	fmt.Println(string(bytes.TrimSpace(raw)))
	return nil
}
