package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/credichain/lending/internal/domain"
)

const loanColumns = `id, borrower, nonce, total_amount, interest_bps, duration_seconds,
	start_ts, due_ts, funded_amount, status, repaid_ts, created_at, funded_at`

type LoanRepo struct {
	db DBTX
}

func NewLoanRepo(db DBTX) *LoanRepo {
	return &LoanRepo{db: db}
}

func (r *LoanRepo) Insert(ctx context.Context, l *domain.Loan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Borrower, l.Nonce, int64(l.TotalAmount), int64(l.InterestBasisPoints),
		l.DurationSeconds, l.StartTimestamp, l.DueTimestamp, int64(l.FundedAmount),
		string(l.Status), nullableInt(l.RepaidTimestamp),
		l.CreatedAt.UTC().Format(time.RFC3339), formatNullableTime(l.FundedAt),
	)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *LoanRepo) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM loans WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

// GetByID returns the loan with its lender set, or domain.ErrLoanNotFound.
func (r *LoanRepo) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", id)
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLoanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan loan %s: %w", id, err)
	}

	lenders, err := r.lendersWhere(ctx, " WHERE loan_id = ?", id)
	if err != nil {
		return nil, err
	}
	l.Lenders = lenders[id]
	return l, nil
}

// LoanFilter narrows List. Empty fields match everything.
type LoanFilter struct {
	Borrower string
	Lender   string
	Status   string
}

// List returns loans in creation order with their lender sets.
func (r *LoanRepo) List(ctx context.Context, f LoanFilter) ([]domain.Loan, error) {
	where, args := buildLoanWhere(f)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+loanColumns+" FROM loans"+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		loans = append(loans, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	lenders, err := r.lendersWhere(ctx, " WHERE loan_id IN (SELECT id FROM loans"+where+")", args...)
	if err != nil {
		return nil, err
	}
	for i := range loans {
		loans[i].Lenders = lenders[loans[i].ID]
	}
	return loans, nil
}

// AddContribution adds amount to the lender's entry, appending a new entry at
// position if the lender has not funded this loan before.
func (r *LoanRepo) AddContribution(ctx context.Context, loanID, lender string, amount uint64, position int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loan_lenders (loan_id, lender, amount, position)
		VALUES (?,?,?,?)
		ON CONFLICT (loan_id, lender) DO UPDATE SET amount = amount + excluded.amount`,
		loanID, lender, int64(amount), position,
	)
	if err != nil {
		return fmt.Errorf("add contribution: %w", err)
	}
	return nil
}

func (r *LoanRepo) UpdateFundedAmount(ctx context.Context, id string, funded uint64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE loans SET funded_amount = ? WHERE id = ?", int64(funded), id)
	if err != nil {
		return fmt.Errorf("update funded amount: %w", err)
	}
	return nil
}

// StatusChange describes a guarded status transition.
type StatusChange struct {
	From            domain.LoanStatus
	To              domain.LoanStatus
	RepaidTimestamp *int64
	FundedAt        *time.Time
}

// UpdateStatus applies c only if the stored status still equals c.From.
func (r *LoanRepo) UpdateStatus(ctx context.Context, id string, c StatusChange) error {
	if !c.From.CanTransition(c.To) {
		return fmt.Errorf("illegal transition %s -> %s", c.From, c.To)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET status = ?,
			repaid_ts = COALESCE(?, repaid_ts),
			funded_at = COALESCE(?, funded_at)
		WHERE id = ? AND status = ?`,
		string(c.To), nullableInt(c.RepaidTimestamp), formatNullableTime(c.FundedAt),
		id, string(c.From),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra != 1 {
		return fmt.Errorf("loan %s is no longer %s", id, c.From)
	}
	return nil
}

// --- helpers ---

func (r *LoanRepo) lendersWhere(ctx context.Context, where string, args ...any) (map[string][]domain.LenderContribution, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT loan_id, lender, amount FROM loan_lenders"+where+" ORDER BY loan_id, position", args...)
	if err != nil {
		return nil, fmt.Errorf("query lenders: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.LenderContribution)
	for rows.Next() {
		var loanID string
		var c domain.LenderContribution
		var amt int64
		if err := rows.Scan(&loanID, &c.Lender, &amt); err != nil {
			return nil, fmt.Errorf("scan lender: %w", err)
		}
		c.Amount = uint64(amt)
		out[loanID] = append(out[loanID], c)
	}
	return out, rows.Err()
}

func buildLoanWhere(f LoanFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Borrower != "" {
		clauses = append(clauses, "borrower = ?")
		args = append(args, f.Borrower)
	}
	if f.Lender != "" {
		clauses = append(clauses, "id IN (SELECT loan_id FROM loan_lenders WHERE lender = ?)")
		args = append(args, f.Lender)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var l domain.Loan
	var total, bps, funded int64
	var status, createdAt string
	var repaidTs sql.NullInt64
	var fundedAt sql.NullString

	err := row.Scan(
		&l.ID, &l.Borrower, &l.Nonce, &total, &bps, &l.DurationSeconds,
		&l.StartTimestamp, &l.DueTimestamp, &funded, &status, &repaidTs,
		&createdAt, &fundedAt,
	)
	if err != nil {
		return nil, err
	}

	st, err := domain.ParseLoanStatus(status)
	if err != nil {
		return nil, err
	}
	l.Status = st
	l.TotalAmount = uint64(total)
	l.InterestBasisPoints = uint32(bps)
	l.FundedAmount = uint64(funded)
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if repaidTs.Valid {
		v := repaidTs.Int64
		l.RepaidTimestamp = &v
	}
	if fundedAt.Valid {
		t, _ := time.Parse(time.RFC3339, fundedAt.String)
		l.FundedAt = &t
	}
	return &l, nil
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
