package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/credichain/lending/internal/amount"
	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/lending"
	"github.com/credichain/lending/internal/logger"
)

// IdentityHeader carries the caller identity that signs an instruction.
const IdentityHeader = "X-Identity"

const maxBodyBytes = 1 << 20

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

var validate = validator.New()

// ReputationReader serves derived reputation records.
type ReputationReader interface {
	Get(identity string) (domain.ReputationRecord, error)
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	lending       *lending.Service
	reputation    ReputationReader
	faucetEnabled bool
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", err)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code, Retryable: status != http.StatusForbidden})
}

// writeDomainError maps a lifecycle error onto a status and code.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logger.CtxError(r.Context(), "request failed", err,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		writeJSON(w, status, errorBody{Error: "internal error", Code: code, Retryable: true})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Retryable: domain.IsRetryable(err)})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, domain.ErrSelfFunding):
		return http.StatusForbidden, "self_funding"
	case errors.Is(err, domain.ErrInvalidTerms):
		return http.StatusBadRequest, "invalid_terms"
	case errors.Is(err, domain.ErrAccountKindMismatch):
		return http.StatusForbidden, "account_kind_mismatch"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrUnknownStatus):
		return http.StatusBadRequest, "unknown_status"
	case errors.Is(err, domain.ErrUnknownTransferKind):
		return http.StatusBadRequest, "unknown_transfer_kind"
	case errors.Is(err, domain.ErrLoanNotFound):
		return http.StatusNotFound, "loan_not_found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDuplicateLoanID):
		return http.StatusConflict, "duplicate_loan_id"
	case errors.Is(err, domain.ErrLoanNotOpen):
		return http.StatusConflict, "loan_not_open"
	case errors.Is(err, domain.ErrLoanNotFunded):
		return http.StatusConflict, "loan_not_funded"
	case errors.Is(err, domain.ErrOverfundingRejected):
		return http.StatusConflict, "overfunding_rejected"
	case errors.Is(err, domain.ErrTooManyLenders):
		return http.StatusConflict, "too_many_lenders"
	case errors.Is(err, domain.ErrVaultIntegrity):
		return http.StatusConflict, "vault_integrity"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientRepayment):
		return http.StatusUnprocessableEntity, "insufficient_repayment"
	case errors.Is(err, amount.ErrOverflow):
		return http.StatusUnprocessableEntity, "amount_overflow"
	}
	return http.StatusInternalServerError, "internal"
}

// decodeBody reads a JSON body, rejecting unknown fields, and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func callerIdentity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdentityHeader))
}

// --- loans ---

type createLoanRequest struct {
	Nonce               string `json:"nonce" validate:"required,max=128"`
	TotalAmount         uint64 `json:"totalAmount" validate:"required"`
	InterestBasisPoints uint32 `json:"interestBasisPoints" validate:"required"`
	DurationSeconds     int64  `json:"durationSeconds" validate:"required,gt=0"`
}

func (h *Handlers) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	loan, err := h.lending.CreateLoan(r.Context(), callerIdentity(r), req.Nonce, domain.LoanTerms{
		TotalAmount:         req.TotalAmount,
		InterestBasisPoints: req.InterestBasisPoints,
		DurationSeconds:     req.DurationSeconds,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.lending.View(loan))
}

func (h *Handlers) ListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loans, err := h.lending.ListLoans(r.Context(), lending.ListFilter{
		Borrower: q.Get("borrower"),
		Lender:   q.Get("lender"),
		Status:   q.Get("status"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loans": h.lending.Views(loans),
		"total": len(loans),
	})
}

func (h *Handlers) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.lending.GetLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.lending.View(loan))
}

func (h *Handlers) ListLoanTransfers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	transfers, err := h.lending.Transfers(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loanId":    id,
		"transfers": transfers,
	})
}

// ListTransfers pages through the whole journal with optional filters and
// reports per-kind totals alongside.
func (h *Handlers) ListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := queryInt(w, q.Get("page"), "page")
	if !ok {
		return
	}
	limit, ok := queryInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)

	transfers, total, err := h.lending.ListTransfers(r.Context(), lending.TransferQuery{
		LoanID:  q.Get("loan"),
		Kind:    q.Get("kind"),
		Account: q.Get("account"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	totals, err := h.lending.TransferTotals(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transfers": transfers,
		"total":     total,
		"page":      page,
		"limit":     limit,
		"totals":    totals,
	})
}

func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_query", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

type amountRequest struct {
	Amount uint64 `json:"amount" validate:"required"`
}

func (h *Handlers) FundLoan(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.lending.FundLoan(r.Context(), chi.URLParam(r, "id"), callerIdentity(r), req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loan":      h.lending.View(res.Loan),
		"disbursed": res.Disbursed,
	})
}

func (h *Handlers) RepayLoan(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.lending.RepayLoan(r.Context(), chi.URLParam(r, "id"), callerIdentity(r), req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loan":     h.lending.View(res.Loan),
		"required": res.Required,
		"payouts":  res.Payouts,
	})
}

// --- accounts ---

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	if !h.faucetEnabled {
		writeError(w, http.StatusNotFound, "not_found", "faucet is disabled")
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	identity := chi.URLParam(r, "identity")
	balance, err := h.lending.Deposit(r.Context(), identity, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
		"balance":  balance,
	})
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	balance, err := h.lending.Balance(r.Context(), identity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
		"balance":  balance,
	})
}

// --- reputation ---

type reputationResponse struct {
	Score             int `json:"score"`
	LoansTaken        int `json:"loansTaken"`
	LoansRepaidOnTime int `json:"loansRepaidOnTime"`
	LoansRepaidLate   int `json:"loansRepaidLate"`
}

func (h *Handlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reputation.Get(chi.URLParam(r, "identity"))
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reputationResponse{
		Score:             rec.Score,
		LoansTaken:        rec.LoansTaken,
		LoansRepaidOnTime: rec.LoansRepaidOnTime,
		LoansRepaidLate:   rec.LoansRepaidLate,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
