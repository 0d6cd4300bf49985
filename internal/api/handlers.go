/**
 * @description
 * This file contains the HTTP handlers for the wallet ledger API. Handlers
 * parse incoming requests, call the application service, and translate
 * business errors into HTTP status codes. They act as the bridge between the
 * web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/app"
	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

type errorResponse struct {
	Error string `json:"error"`
}

type operationResponse struct {
	TransactionID string  `json:"transaction_id"`
	Kind          string  `json:"kind"`
	Status        string  `json:"status"`
	Amount        int64   `json:"amount"`
	Fee           int64   `json:"fee"`
	NetAmount     int64   `json:"net_amount"`
	Direction     string  `json:"direction"`
	LoanID        *string `json:"loan_id,omitempty"`
	SavingsID     *string `json:"savings_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func buildOperationResponse(tx *domain.Transaction) operationResponse {
	resp := operationResponse{
		TransactionID: tx.ID.String(),
		Kind:          string(tx.Kind),
		Status:        tx.Status,
		Amount:        tx.Amount,
		Fee:           tx.Fee,
		NetAmount:     tx.NetAmount,
		Direction:     string(tx.Direction),
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339Nano),
	}
	if tx.LoanID != nil {
		id := tx.LoanID.String()
		resp.LoanID = &id
	}
	if tx.SavingsID != nil {
		id := tx.SavingsID.String()
		resp.SavingsID = &id
	}
	return resp
}

// QuoteFeeHandler returns the fee breakdown for a prospective operation
// without touching any balance. Suitable for live estimates in the UI.
func (h *WalletHandlers) QuoteFeeHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetAccountIdentity(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get account identity from context")
		return
	}

	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount parameter")
		return
	}
	kind := domain.FeeKind(r.URL.Query().Get("kind"))

	// Callers may quote for a different tier than their own, e.g. to preview
	// an upgrade.
	tier := identity.PremiumTier
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier = domain.PremiumTier(raw)
	}

	breakdown, err := h.service.QuoteFee(amount, kind, tier)
	if err != nil {
		h.writeServiceError(w, "quote_fee", identity.ID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, breakdown)
}

// AccountSnapshotHandler returns the wallet, savings, and reward balances for
// an account.
func (h *WalletHandlers) AccountSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	identity, accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	snapshot, err := h.service.GetAccountSnapshot(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, "account_snapshot", identity.ID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// ListTransactionsHandler returns one reverse-chronological page of the
// account's ledger. The cursor is opaque to clients: "<created_at>,<id>" of
// the last transaction on the previous page, so paging stays stable across
// the same-timestamp rows a multi-leg commit produces.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	identity, accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	var cursor time.Time
	var cursorID uuid.UUID
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, parsedID, err := parseTransactionCursor(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid cursor parameter")
			return
		}
		cursor, cursorID = parsed, parsedID
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	transactions, err := h.service.ListTransactions(r.Context(), accountID, cursor, cursorID, limit)
	if err != nil {
		h.writeServiceError(w, "list_transactions", identity.ID, err)
		return
	}

	page := domain.TransactionPage{Transactions: transactions}
	if len(transactions) == limit {
		last := transactions[len(transactions)-1]
		page.NextCursor = last.CreatedAt.Format(time.RFC3339Nano) + "," + last.ID.String()
	}
	h.writeJSON(w, http.StatusOK, page)
}

func parseTransactionCursor(raw string) (time.Time, uuid.UUID, error) {
	ts, id, found := strings.Cut(raw, ",")
	cursor, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	if !found {
		// A bare timestamp resumes strictly before that instant.
		return cursor, uuid.Nil, nil
	}
	cursorID, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	return cursor, cursorID, nil
}

// ApplyOperationHandler applies one ledger operation to the account.
func (h *WalletHandlers) ApplyOperationHandler(w http.ResponseWriter, r *http.Request) {
	identity, accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	var req domain.OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=apply_operation outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	identity.ID = accountID
	tx, err := h.service.ApplyOperation(r.Context(), identity, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=apply_operation outcome=failed account_id=%s kind=%s err=%v", accountID, req.Kind, err)
		h.writeServiceError(w, "apply_operation", accountID, err)
		return
	}

	log.Printf("level=info component=api endpoint=apply_operation outcome=applied account_id=%s kind=%s transaction_id=%s", accountID, req.Kind, tx.ID)
	h.writeJSON(w, http.StatusCreated, buildOperationResponse(tx))
}

// resolveAccount parses the path account id and checks it against the caller's
// identity. The gateway only ever routes an account's own traffic here, so a
// mismatch is a hard forbidden.
func (h *WalletHandlers) resolveAccount(w http.ResponseWriter, r *http.Request) (domain.AccountIdentity, uuid.UUID, bool) {
	identity, ok := GetAccountIdentity(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get account identity from context")
		return domain.AccountIdentity{}, uuid.Nil, false
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return domain.AccountIdentity{}, uuid.Nil, false
	}
	if accountID != identity.ID {
		h.writeError(w, http.StatusForbidden, "Account id does not match caller identity")
		return domain.AccountIdentity{}, uuid.Nil, false
	}
	return identity, accountID, true
}

// writeServiceError maps business errors onto HTTP status codes.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, endpoint string, accountID uuid.UUID, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOperationKind),
		errors.Is(err, domain.ErrInvalidTier),
		errors.Is(err, app.ErrInvalidCounterparty):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrSavingsNotFound),
		errors.Is(err, store.ErrLoanNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrIneligibleLoan),
		errors.Is(err, domain.ErrLoanAlreadyActive),
		errors.Is(err, domain.ErrSavingsNotActive),
		errors.Is(err, domain.ErrSavingsCollateralized),
		errors.Is(err, domain.ErrInsufficientPoints):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrBusy):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s account_id=%s err=%v", endpoint, accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
