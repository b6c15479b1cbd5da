/*
handlers.go - HTTP handlers for the batch ledger services

PURPOSE:
  Exposes the batch services via REST. Handles HTTP request/response,
  JSON serialization, caller extraction, and signature verification,
  then delegates to the domain services.

ENDPOINTS:
  Escrow:
    POST /api/escrow/open               Open an escrow
    POST /api/escrow/{id}/release       Release to recipient
    POST /api/escrow/{id}/reverse       Reverse to depositor
    POST /api/escrow/batch-reverse      Batch reversal (admin)
    GET  /api/escrow/{id}               Get a record
    GET  /api/escrow/user/{account}     List a depositor's escrow IDs
    GET  /api/escrow/counters           Lifetime totals
    POST /api/escrow/admin              Rotate admin

  Rewards:
    POST /api/rewards/distribute        Batch payout (admin)
    GET  /api/rewards/counters          Lifetime totals
    POST /api/rewards/admin             Rotate admin

  Wallet:
    POST /api/wallet/batch-update       Batch balance updates (admin)
    GET  /api/wallet/{user}/{currency}  Stored balance (zero if absent)
    GET  /api/wallet/counters           Lifetime totals
    POST /api/wallet/admin              Rotate admin

  Limits:
    POST /api/limits/batch-update       Batch limit updates (admin)
    GET  /api/limits/{user}             Stored limit
    GET  /api/limits/counters           Lifetime totals
    POST /api/limits/admin              Rotate admin

  Refunds:
    POST /api/refunds/record            Register a transaction (admin)
    POST /api/refunds/batch             Batch refunds (admin)
    GET  /api/refunds/{id}              Get a transaction
    GET  /api/refunds/total             Lifetime refunded amount
    GET  /api/refunds/counters          Lifetime totals
    POST /api/refunds/admin             Rotate admin

  Audit:
    GET  /api/events/recent             Recent audit events

AUTHENTICATION:
  The caller identity comes from the X-Caller header. When a signing key
  is configured, mutating requests must carry an X-Signature header: the
  hex HMAC-SHA256 of the raw body.

ERROR HANDLING:
  Hard aborts map to status codes; per-item failures do NOT - a batch
  with failed items is still a 200 with per-item codes in the body.
  - 400: Malformed body, bad amounts, empty or oversized batch
  - 401: Unauthorized caller, bad signature
  - 404: Record not found
  - 409: Conflict (already initialized, terminal state, duplicate ID,
         treasury shortfall, deadline not reached)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/escrow"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/limits"
	"github.com/warp/ledger-engine/refunds"
	"github.com/warp/ledger-engine/rewards"
	"github.com/warp/ledger-engine/wallet"
)

// maxBodyBytes bounds request bodies. Batches are capped at 100 items;
// 1 MiB is generous.
const maxBodyBytes = 1 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Escrow  *escrow.Service
	Rewards *rewards.Service
	Wallet  *wallet.Service
	Limits  *limits.Service
	Refunds *refunds.Service

	Verifier *access.Verifier
	Events   *engine.MemoryEmitter
}

// =============================================================================
// ESCROW HANDLERS
// =============================================================================

// OpenEscrow locks funds from the caller into a new escrow.
// POST /api/escrow/open
func (h *Handler) OpenEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req OpenEscrowRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := engine.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deadline", err)
		return
	}

	id, err := h.Escrow.Open(r.Context(), caller, ledger.Account(req.Recipient), amount, deadline)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OpenEscrowResponse{ID: id})
}

// ReleaseEscrow pays an escrow out to its recipient.
// POST /api/escrow/{id}/release
func (h *Handler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Escrow.Release(r.Context(), caller, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReverseEscrow returns an escrow's funds to the depositor.
// POST /api/escrow/{id}/reverse
func (h *Handler) ReverseEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Escrow.Reverse(r.Context(), caller, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchReverse reverses many escrows in one call.
// POST /api/escrow/batch-reverse
func (h *Handler) BatchReverse(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req BatchReverseRequest
	if !h.decode(w, r, &req) {
		return
	}

	reqs := make([]escrow.ReversalRequest, len(req.EscrowIDs))
	for i, id := range req.EscrowIDs {
		reqs[i] = escrow.ReversalRequest{EscrowID: id}
	}

	res, err := h.Escrow.BatchReverse(r.Context(), caller, reqs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

// GetEscrow returns one escrow record.
// GET /api/escrow/{id}
func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	esc, found, err := h.Escrow.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load escrow", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "escrow not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowDTO(esc))
}

// GetUserEscrows lists a depositor's escrow IDs, oldest first.
// GET /api/escrow/user/{account}
func (h *Handler) GetUserEscrows(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	ids, err := h.Escrow.UserEscrows(r.Context(), ledger.Account(account))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list escrows", err)
		return
	}
	writeJSON(w, http.StatusOK, UserEscrowsDTO{Depositor: account, EscrowIDs: ids})
}

// =============================================================================
// REWARDS HANDLERS
// =============================================================================

// Distribute pays rewards from the caller's treasury.
// POST /api/rewards/distribute
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req DistributeRequest
	if !h.decode(w, r, &req) {
		return
	}

	reqs := make([]rewards.Request, len(req.Rewards))
	for i, item := range req.Rewards {
		amount, err := engine.ParseAmount(item.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount", err)
			return
		}
		reqs[i] = rewards.Request{Recipient: ledger.Account(item.Recipient), Amount: amount}
	}

	res, err := h.Rewards.Distribute(r.Context(), caller, reqs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// WalletBatchUpdate applies balance updates.
// POST /api/wallet/batch-update
func (h *Handler) WalletBatchUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req WalletBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	reqs := make([]wallet.Request, len(req.Updates))
	for i, item := range req.Updates {
		amount, err := engine.ParseAmount(item.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount", err)
			return
		}
		reqs[i] = wallet.Request{
			User:     ledger.Account(item.User),
			Currency: item.Currency,
			Amount:   amount,
			Op:       wallet.Op(item.Op),
		}
	}

	res, err := h.Wallet.BatchUpdate(r.Context(), caller, reqs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

// GetWalletBalance returns a stored balance, zero for absent records.
// GET /api/wallet/{user}/{currency}
func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	currency := chi.URLParam(r, "currency")

	bal, err := h.Wallet.GetBalance(r.Context(), ledger.Account(user), currency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletBalanceDTO(bal))
}

// =============================================================================
// LIMITS HANDLERS
// =============================================================================

// LimitsBatchUpdate applies spending-limit updates.
// POST /api/limits/batch-update
func (h *Handler) LimitsBatchUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req LimitBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	reqs := make([]limits.Request, len(req.Updates))
	for i, item := range req.Updates {
		limit, err := engine.ParseAmount(item.MonthlyLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid monthly limit", err)
			return
		}
		reqs[i] = limits.Request{
			User:         ledger.Account(item.User),
			MonthlyLimit: limit,
			Category:     item.Category,
		}
	}

	res, err := h.Limits.BatchUpdate(r.Context(), caller, reqs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

// GetLimit returns a user's stored spending limit.
// GET /api/limits/{user}
func (h *Handler) GetLimit(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	lim, found, err := h.Limits.Get(r.Context(), ledger.Account(user))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load limit", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "limit not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSpendingLimitDTO(lim))
}

// =============================================================================
// REFUNDS HANDLERS
// =============================================================================

// RecordTransaction registers a refundable transaction.
// POST /api/refunds/record
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req RecordTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := engine.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	tx := refunds.Transaction{
		ID:         req.ID,
		Payer:      ledger.Account(req.Payer),
		Amount:     amount,
		Category:   req.Category,
		Refundable: req.Refundable,
	}
	if err := h.Refunds.Record(r.Context(), caller, tx); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RefundBatch refunds many transactions in one call.
// POST /api/refunds/batch
func (h *Handler) RefundBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req RefundBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	reqs := make([]refunds.Request, len(req.Refunds))
	for i, item := range req.Refunds {
		reqs[i] = refunds.Request{TxID: item.TxID, Reason: item.Reason}
	}

	res, err := h.Refunds.RefundBatch(r.Context(), caller, reqs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

// GetTransaction returns a registered transaction with its refund state.
// GET /api/refunds/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tx, found, err := h.Refunds.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transaction", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "transaction not found", nil)
		return
	}
	refunded, err := h.Refunds.IsRefunded(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load refund state", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx, refunded))
}

// GetTotalRefunded reports the lifetime refunded amount.
// GET /api/refunds/total
func (h *Handler) GetTotalRefunded(w http.ResponseWriter, r *http.Request) {
	total, err := h.Refunds.TotalRefunded(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load total", err)
		return
	}
	writeJSON(w, http.StatusOK, TotalRefundedDTO{TotalRefunded: total.String()})
}

// =============================================================================
// COUNTERS AND ADMIN
// =============================================================================

// GetCounters returns a handler serving one service's lifetime totals.
func (h *Handler) GetCounters(load func(r *http.Request) (engine.Counters, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := load(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load counters", err)
			return
		}
		writeJSON(w, http.StatusOK, toCountersDTO(c))
	}
}

// SetAdmin returns a handler rotating one service's admin.
func (h *Handler) SetAdmin(set func(r *http.Request, caller, newAdmin engine.Caller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := h.caller(w, r)
		if !ok {
			return
		}
		var req SetAdminRequest
		if !h.decode(w, r, &req) {
			return
		}
		if req.NewAdmin == "" {
			writeError(w, http.StatusBadRequest, "new_admin required", nil)
			return
		}
		if err := set(r, caller, engine.Caller(req.NewAdmin)); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RecentEvents returns the retained audit events, oldest first.
// GET /api/events/recent
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeJSON(w, http.StatusOK, []EventDTO{})
		return
	}
	events := h.Events.Events()
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// caller extracts and screens the caller identity from X-Caller.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (engine.Caller, bool) {
	caller := engine.Caller(r.Header.Get("X-Caller"))
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Caller header", nil)
		return "", false
	}
	return caller, true
}

// decode reads the body, verifies its signature when signing is
// configured, and unmarshals JSON into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body", err)
		return false
	}

	if h.Verifier != nil && h.Verifier.Enabled() {
		if !h.Verifier.Verify(body, r.Header.Get("X-Signature")) {
			writeError(w, http.StatusUnauthorized, "invalid request signature", nil)
			return false
		}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id", err)
		return 0, false
	}
	return id, true
}

// writeDomainError maps domain errors to HTTP statuses. Hard aborts get
// statuses; per-item failures never reach here.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, engine.ErrEmptyBatch),
		errors.Is(err, engine.ErrBatchTooLarge),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidTransfer):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, engine.ErrAlreadyInitialized),
		errors.Is(err, engine.ErrNotActive),
		errors.Is(err, engine.ErrDeadlineNotReached),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrUnknownAccount),
		errors.Is(err, refunds.ErrDuplicateID),
		errors.Is(err, escrow.ErrTerminalTransition):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, engine.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "service not initialized", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
