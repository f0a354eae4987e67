package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/credichain/lending/internal/lending"
	"github.com/credichain/lending/internal/logger"
)

// TraceHeader echoes the trace id assigned to a request.
const TraceHeader = "X-Trace-ID"

// Options toggles optional routes.
type Options struct {
	FaucetEnabled bool
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(svc *lending.Service, reputation ReputationReader, opts Options) http.Handler {
	h := &Handlers{
		lending:       svc,
		reputation:    reputation,
		faucetEnabled: opts.FaucetEnabled,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(traceID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		// Loans.
		r.Post("/loans", h.CreateLoan)
		r.Get("/loans", h.ListLoans)
		r.Get("/loans/{id}", h.GetLoan)
		r.Get("/loans/{id}/transfers", h.ListLoanTransfers)
		r.Post("/loans/{id}/fund", h.FundLoan)
		r.Post("/loans/{id}/repay", h.RepayLoan)

		// Journal.
		r.Get("/transfers", h.ListTransfers)

		// Accounts.
		r.Get("/accounts/{identity}", h.GetAccount)
		r.Post("/accounts/{identity}/deposit", h.Deposit)
	})

	// Reputation.
	r.Get("/reputation/{identity}", h.GetReputation)

	return r
}

// traceID tags the request context with the caller's trace id or a new one.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TraceHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(TraceHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}
