package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"

	"hedge_go/internal/domain"
)

// API serves the conversion quotes over HTTP.
type API struct {
	app    *PriceApp
	logger *slog.Logger
	server *http.Server
}

// NewAPI builds the router and the underlying http server.
func NewAPI(addr string, app *PriceApp, logger *slog.Logger) *API {
	a := &API{
		app:    app,
		logger: logger.With("component", "price_api"),
	}

	router := httprouter.New()
	router.POST("/price/cents-from-sats/:tier/:side", a.centsFromSats)
	router.POST("/price/sats-from-cents/:tier/:side", a.satsFromCents)
	router.GET("/price/mid-rate", a.midRate)

	a.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

// Handler exposes the router, for tests.
func (a *API) Handler() http.Handler { return a.server.Handler }

// Run serves until ctx is done.
func (a *API) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("price api listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

type centsFromSatsRequest struct {
	AmountInSatoshis decimal.Decimal `json:"amount_in_satoshis"`
}

type satsFromCentsRequest struct {
	AmountInCents decimal.Decimal `json:"amount_in_cents"`
}

type centsResponse struct {
	AmountInCents decimal.Decimal `json:"amount_in_cents"`
}

type satsResponse struct {
	AmountInSatoshis decimal.Decimal `json:"amount_in_satoshis"`
}

type midRateResponse struct {
	CentsPerSatoshi decimal.Decimal `json:"cents_per_satoshi"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (a *API) centsFromSats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tier, side, ok := parseRoute(ps)
	if !ok {
		a.writeError(w, domain.ErrValidation)
		return
	}
	var req centsFromSatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, domain.ErrValidation)
		return
	}

	var cents decimal.Decimal
	var err error
	if side == "buy" {
		cents, err = a.app.CentsFromSatsForBuy(r.Context(), req.AmountInSatoshis, tier)
	} else {
		cents, err = a.app.CentsFromSatsForSell(r.Context(), req.AmountInSatoshis, tier)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, centsResponse{AmountInCents: cents})
}

func (a *API) satsFromCents(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tier, side, ok := parseRoute(ps)
	if !ok {
		a.writeError(w, domain.ErrValidation)
		return
	}
	var req satsFromCentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, domain.ErrValidation)
		return
	}

	var sats decimal.Decimal
	var err error
	if side == "buy" {
		sats, err = a.app.SatsFromCentsForBuy(r.Context(), req.AmountInCents, tier)
	} else {
		sats, err = a.app.SatsFromCentsForSell(r.Context(), req.AmountInCents, tier)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, satsResponse{AmountInSatoshis: sats})
}

func (a *API) midRate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	mid, err := a.app.MidRate(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, midRateResponse{CentsPerSatoshi: mid})
}

func parseRoute(ps httprouter.Params) (Tier, string, bool) {
	var tier Tier
	switch ps.ByName("tier") {
	case "immediate":
		tier = TierImmediate
	case "future":
		tier = TierFuture
	default:
		return "", "", false
	}
	side := ps.ByName("side")
	if side != "buy" && side != "sell" {
		return "", "", false
	}
	return tier, side, true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var stale *domain.StalePriceError
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
	case errors.Is(err, domain.ErrNoPriceAvailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "no_price_available"})
	case errors.As(err, &stale):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "stale_price"})
	default:
		a.logger.Error("quote failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
