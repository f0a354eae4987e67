package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/credichain/lending/internal/amount"
	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/seed"
)

// outcome of a generated loan
type outcome int

const (
	leaveOpen outcome = iota
	leaveFunded
	repayOnTime
	repayLate
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	borrowers := make([]string, 8)
	for i := range borrowers {
		borrowers[i] = fmt.Sprintf("borrower-%02d", i+1)
	}
	lenders := make([]string, 12)
	for i := range lenders {
		lenders[i] = fmt.Sprintf("lender-%02d", i+1)
	}

	var steps []seed.Step
	var at int64
	tick := func() int64 {
		at += int64(rng.Intn(300) + 30)
		return at
	}

	counts := map[outcome]int{}
	nonces := map[string]int{}

	for i := 0; i < 40; i++ {
		borrower := borrowers[rng.Intn(len(borrowers))]
		nonces[borrower]++
		nonce := fmt.Sprintf("%d", nonces[borrower])

		// Total between 100k and 5M smallest units, rounded to 1k. Funding
		// and the interest top-up take at most nine ticks (< 3000s), so every
		// loan is still before its due time when it is repaid on time.
		total := uint64(rng.Intn(4900)+100) * 1000
		bps := uint32(rng.Intn(1500) + 100)
		duration := int64(rng.Intn(4)+1) * 3600

		steps = append(steps, seed.Step{
			At: tick(), Op: seed.OpCreate, Identity: borrower, Nonce: nonce,
			Terms: &domain.LoanTerms{TotalAmount: total, InterestBasisPoints: bps, DurationSeconds: duration},
		})
		created := at

		// Outcome distribution: 50% on time, 20% late, 15% funded, 15% open.
		var out outcome
		roll := rng.Float64()
		switch {
		case roll < 0.50:
			out = repayOnTime
		case roll < 0.70:
			out = repayLate
		case roll < 0.85:
			out = leaveFunded
		default:
			out = leaveOpen
		}
		counts[out]++

		target := total
		if out == leaveOpen {
			target = total / 2
		}
		steps = append(steps, fundingSteps(rng, lenders, borrower, nonce, target, tick)...)

		if out != repayOnTime && out != repayLate {
			continue
		}
		required, err := amount.RequiredRepayment(total, bps)
		if err != nil {
			panic(err)
		}

		// The borrower holds the disbursed principal; top up the interest.
		steps = append(steps, seed.Step{
			At: tick(), Op: seed.OpDeposit, Identity: borrower, Amount: required - total,
		})

		repayAt := tick()
		if out == repayLate && repayAt <= created+duration {
			repayAt = created + duration + int64(rng.Intn(3600)+1)
			at = repayAt
		}
		steps = append(steps, seed.Step{
			At: repayAt, Op: seed.OpRepay, Identity: borrower, Nonce: nonce, Amount: required,
		})
	}

	sc := seed.Scenario{
		Description: fmt.Sprintf("Generated ledger: %d loans, %d on time, %d late, %d funded, %d open",
			40, counts[repayOnTime], counts[repayLate], counts[leaveFunded], counts[leaveOpen]),
		Steps: steps,
	}
	writeJSONFile(filepath.Join(baseDir, "seed_loans.json"), sc)
	fmt.Printf("Generated %d steps -> seed_loans.json\n", len(steps))
	fmt.Println(sc.Description)
}

// fundingSteps splits target across 1-4 distinct lenders, depositing each
// contribution just before it is made.
func fundingSteps(rng *rand.Rand, lenders []string, borrower, nonce string, target uint64, tick func() int64) []seed.Step {
	n := rng.Intn(4) + 1
	perm := rng.Perm(len(lenders))

	var steps []seed.Step
	remaining := target
	for i := 0; i < n && remaining > 0; i++ {
		lender := lenders[perm[i]]
		share := remaining
		if i < n-1 {
			share = remaining / uint64(n-i)
		}
		if share == 0 {
			continue
		}
		remaining -= share

		steps = append(steps,
			seed.Step{At: tick(), Op: seed.OpDeposit, Identity: lender, Amount: share},
			seed.Step{At: tick(), Op: seed.OpFund, Identity: lender, Borrower: borrower, Nonce: nonce, Amount: share},
		)
	}
	return steps
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	// Look for the testdata directory relative to common locations.
	candidates := []string{
		"testdata",
		"./testdata",
		"../testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	// Fallback.
	return "testdata"
}
