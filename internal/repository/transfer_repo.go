package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/credichain/lending/internal/domain"
)

type TransferRepo struct {
	db DBTX
}

func NewTransferRepo(db DBTX) *TransferRepo {
	return &TransferRepo{db: db}
}

func (r *TransferRepo) Insert(ctx context.Context, t *domain.Transfer) (int64, error) {
	var loanID, from any
	if t.LoanID != "" {
		loanID = t.LoanID
	}
	if t.From != "" {
		from = t.From
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (kind, loan_id, from_account, to_account, amount, occurred_at)
		VALUES (?,?,?,?,?,?)`,
		string(t.Kind), loanID, from, t.To, int64(t.Amount),
		t.OccurredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// GetByLoanID returns the journal of one loan in insertion order.
func (r *TransferRepo) GetByLoanID(ctx context.Context, loanID string) ([]domain.Transfer, error) {
	transfers, _, err := r.List(ctx, TransferFilter{LoanID: loanID, Limit: -1})
	return transfers, err
}

type TransferFilter struct {
	LoanID  string
	Kind    string
	Account string
	Page    int
	// Limit 0 defaults to 50; a negative limit returns every row.
	Limit int
}

func (r *TransferRepo) List(ctx context.Context, f TransferFilter) ([]domain.Transfer, int, error) {
	where, args := buildTransferWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transfers"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	query := "SELECT id, kind, loan_id, from_account, to_account, amount, occurred_at FROM transfers" +
		where + " ORDER BY id"
	if f.Limit >= 0 {
		if f.Limit == 0 {
			f.Limit = 50
		}
		if f.Page <= 0 {
			f.Page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, (f.Page-1)*f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	transfers, err := scanTransfers(rows)
	return transfers, total, err
}

// KindTotal is the summed amount of one transfer kind.
type KindTotal struct {
	Kind   domain.TransferKind `json:"kind"`
	Count  int                 `json:"count"`
	Amount uint64              `json:"amount"`
}

func (r *TransferRepo) TotalsByKind(ctx context.Context) ([]KindTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT kind, COUNT(*), COALESCE(SUM(amount), 0) FROM transfers GROUP BY kind ORDER BY kind")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []KindTotal
	for rows.Next() {
		var kt KindTotal
		var kind string
		var amt int64
		if err := rows.Scan(&kind, &kt.Count, &amt); err != nil {
			return nil, err
		}
		kt.Kind = domain.TransferKind(kind)
		kt.Amount = uint64(amt)
		totals = append(totals, kt)
	}
	return totals, rows.Err()
}

// --- helpers ---

func buildTransferWhere(f TransferFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.LoanID != "" {
		clauses = append(clauses, "loan_id = ?")
		args = append(args, f.LoanID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Account != "" {
		clauses = append(clauses, "(from_account = ? OR to_account = ?)")
		args = append(args, f.Account, f.Account)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransfers(rows *sql.Rows) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var kind, occurredAt string
		var loanID, from sql.NullString
		var amt int64

		if err := rows.Scan(&t.ID, &kind, &loanID, &from, &t.To, &amt, &occurredAt); err != nil {
			return nil, err
		}

		t.Kind = domain.TransferKind(kind)
		t.LoanID = loanID.String
		t.From = from.String
		t.Amount = uint64(amt)
		t.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
