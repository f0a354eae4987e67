// Package seed replays a recorded lending scenario through the lifecycle
// operations so a fresh ledger starts with realistic history.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/lending"
	"github.com/credichain/lending/internal/logger"
	"github.com/credichain/lending/internal/repository"
)

// ErrLedgerNotEmpty is returned when a scenario would replay over existing
// history.
var ErrLedgerNotEmpty = errors.New("ledger is not empty")

type Op string

const (
	OpDeposit Op = "deposit"
	OpCreate  Op = "create"
	OpFund    Op = "fund"
	OpRepay   Op = "repay"
)

// Step is one instruction. At is the offset in seconds from the scenario
// start at which the instruction executes. Loans are addressed by their
// borrower and nonce.
type Step struct {
	At       int64             `json:"at"`
	Op       Op                `json:"op"`
	Identity string            `json:"identity"`
	Borrower string            `json:"borrower,omitempty"`
	Nonce    string            `json:"nonce,omitempty"`
	Amount   uint64            `json:"amount,omitempty"`
	Terms    *domain.LoanTerms `json:"terms,omitempty"`
}

type Scenario struct {
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// Summary counts what a replay produced.
type Summary struct {
	Steps    int `json:"steps"`
	Loans    int `json:"loans"`
	Funded   int `json:"funded"`
	Repaid   int `json:"repaid"`
	Deposits int `json:"deposits"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}
	return &sc, nil
}

// stepClock reports base + the offset of the step being replayed.
type stepClock struct {
	base   time.Time
	offset int64
}

func (c *stepClock) now() time.Time {
	return c.base.Add(time.Duration(c.offset) * time.Second)
}

// Replay executes every step in order against an empty ledger, timing each
// one at base + At. Replay is all or nothing: if any step fails the ledger
// is reset to empty and the error names the failing step.
func Replay(ctx context.Context, ledger *repository.Ledger, policy lending.Policy, sc *Scenario, base time.Time) (*Summary, error) {
	empty, err := ledger.IsEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("check ledger: %w", err)
	}
	if !empty {
		return nil, ErrLedgerNotEmpty
	}

	clock := &stepClock{base: base}
	svc := lending.NewService(ledger, policy, lending.WithClock(clock.now))

	sum := &Summary{}
	for i, st := range sc.Steps {
		err := validateStep(sc, i)
		if err == nil {
			clock.offset = st.At
			err = apply(ctx, svc, st, sum)
		}
		if err != nil {
			if rerr := ledger.Reset(ctx); rerr != nil {
				return sum, errors.Join(fmt.Errorf("step %d (%s %s): %w", i, st.Op, st.Identity, err),
					fmt.Errorf("reset ledger: %w", rerr))
			}
			return sum, fmt.Errorf("step %d (%s %s): %w", i, st.Op, st.Identity, err)
		}
		sum.Steps++
	}

	logger.CtxInfo(ctx, "scenario replayed",
		slog.Int("steps", sum.Steps),
		slog.Int("loans", sum.Loans),
		slog.Int("funded", sum.Funded),
		slog.Int("repaid", sum.Repaid),
	)
	return sum, nil
}

func validateStep(sc *Scenario, i int) error {
	if i > 0 && sc.Steps[i].At < sc.Steps[i-1].At {
		return fmt.Errorf("offset %d precedes previous step", sc.Steps[i].At)
	}
	return nil
}

func apply(ctx context.Context, svc *lending.Service, st Step, sum *Summary) error {
	switch st.Op {
	case OpDeposit:
		if _, err := svc.Deposit(ctx, st.Identity, st.Amount); err != nil {
			return err
		}
		sum.Deposits++
	case OpCreate:
		if st.Terms == nil {
			return fmt.Errorf("%w: missing terms", domain.ErrInvalidTerms)
		}
		if _, err := svc.CreateLoan(ctx, st.Identity, st.Nonce, *st.Terms); err != nil {
			return err
		}
		sum.Loans++
	case OpFund:
		res, err := svc.FundLoan(ctx, lending.DeriveLoanID(st.Borrower, st.Nonce), st.Identity, st.Amount)
		if err != nil {
			return err
		}
		if res.Disbursed > 0 {
			sum.Funded++
		}
	case OpRepay:
		if _, err := svc.RepayLoan(ctx, lending.DeriveLoanID(st.Identity, st.Nonce), st.Identity, st.Amount); err != nil {
			return err
		}
		sum.Repaid++
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}
