package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/logger"
)

// LoanSource lists every loan ledger entry.
type LoanSource interface {
	AllLoans(ctx context.Context) ([]domain.Loan, error)
}

// TickResult summarises one aggregation run.
type TickResult struct {
	Loans     int `json:"loans"`
	Borrowers int `json:"borrowers"`
	Changed   int `json:"changed"`
}

// Aggregator periodically recomputes reputation records from the ledger and
// serves the last persisted snapshot.
type Aggregator struct {
	source   LoanSource
	store    Store
	scoring  Scoring
	interval time.Duration
	now      func() time.Time

	runMu sync.Mutex

	mu       sync.RWMutex
	snapshot Records

	cron *cron.Cron
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(source LoanSource, store Store, scoring Scoring, interval time.Duration, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:   source,
		store:    store,
		scoring:  scoring,
		interval: interval,
		now:      time.Now,
		snapshot: Records{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start loads the persisted snapshot, runs one warm tick and schedules the
// rest. A failed warm tick is logged; the schedule still starts.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.Reload(ctx); err != nil {
		return err
	}
	if _, err := a.RunOnce(ctx); err != nil {
		logger.CtxWarn(ctx, "initial reputation tick failed", slog.String("error", err.Error()))
	}

	cl := logger.CronLogger{Component: "reputation"}
	a.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	spec := fmt.Sprintf("@every %s", a.interval)
	if _, err := a.cron.AddFunc(spec, func() {
		tickCtx := logger.WithTraceID(context.Background(), "reputation-tick")
		if _, err := a.RunOnce(tickCtx); err != nil {
			logger.CtxError(tickCtx, "reputation tick abandoned", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	a.cron.Start()

	logger.CtxInfo(ctx, "reputation aggregator started",
		slog.String("interval", a.interval.String()),
	)
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (a *Aggregator) Stop() {
	if a.cron == nil {
		return
	}
	<-a.cron.Stop().Done()
	logger.Info("reputation aggregator stopped")
}

// Reload replaces the in-memory snapshot with the persisted store.
func (a *Aggregator) Reload(ctx context.Context) error {
	records, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load reputation store: %w", err)
	}
	a.setSnapshot(records)
	return nil
}

// RunOnce scans every loan, recomputes all borrower records and persists the
// merged mapping. Borrowers absent from the scan keep their stored record.
// On any error nothing is written and the previous store stays in effect.
func (a *Aggregator) RunOnce(ctx context.Context) (*TickResult, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	loans, err := a.source.AllLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("read loans: %w", err)
	}
	stored, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reputation store: %w", err)
	}

	fresh := Compute(loans, a.scoring, a.now().UTC())
	res := &TickResult{Loans: len(loans), Borrowers: len(fresh)}
	for borrower, rec := range fresh {
		if old, ok := stored[borrower]; ok && sameRecord(old, rec) {
			continue
		}
		stored[borrower] = rec
		res.Changed++
	}

	if err := a.store.Save(ctx, stored); err != nil {
		return nil, fmt.Errorf("save reputation store: %w", err)
	}
	a.setSnapshot(stored)

	logger.CtxDebug(ctx, "reputation tick complete",
		slog.Int("loans", res.Loans),
		slog.Int("borrowers", res.Borrowers),
		slog.Int("changed", res.Changed),
	)
	return res, nil
}

// Get returns the record of identity, or domain.ErrNotFound.
func (a *Aggregator) Get(identity string) (domain.ReputationRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.snapshot[identity]
	if !ok {
		return domain.ReputationRecord{}, fmt.Errorf("reputation %s: %w", identity, domain.ErrNotFound)
	}
	return rec, nil
}

func (a *Aggregator) setSnapshot(records Records) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = records
}
