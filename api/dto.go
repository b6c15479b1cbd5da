/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Every amount crosses the wire as a decimal string, never a JSON number.
  JSON numbers are float64 and cannot carry the 128-bit range.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/escrow"
	"github.com/warp/ledger-engine/limits"
	"github.com/warp/ledger-engine/refunds"
	"github.com/warp/ledger-engine/wallet"
)

// =============================================================================
// SHARED TYPES
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ItemResultDTO is one item's fate within a batch response.
type ItemResultDTO struct {
	Key     string `json:"key"`
	Amount  string `json:"amount"`
	Success bool   `json:"success"`
	Code    uint32 `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// BatchResultDTO is the response body of every batch endpoint.
type BatchResultDTO struct {
	BatchID       uint64          `json:"batch_id"`
	TotalRequests int             `json:"total_requests"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	TotalMoved    string          `json:"total_moved"`
	Results       []ItemResultDTO `json:"results"`
}

// CountersDTO reports a service's lifetime totals.
type CountersDTO struct {
	Batches uint64 `json:"batches"`
	Items   uint64 `json:"items"`
	Volume  string `json:"volume"`
}

// SetAdminRequest rotates a service's admin.
type SetAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// EventDTO is one audit event in the recent-events response.
type EventDTO struct {
	ID      string `json:"id"`
	Service string `json:"service"`
	Type    string `json:"type"`
	BatchID uint64 `json:"batch_id,omitempty"`
	At      string `json:"at"`
	Key     string `json:"key,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Code    uint32 `json:"code,omitempty"`
}

// =============================================================================
// ESCROW
// =============================================================================

// OpenEscrowRequest locks funds into a new escrow.
type OpenEscrowRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Deadline  string `json:"deadline"` // RFC3339
}

// OpenEscrowResponse carries the assigned ID.
type OpenEscrowResponse struct {
	ID uint64 `json:"id"`
}

// BatchReverseRequest reverses many escrows at once.
type BatchReverseRequest struct {
	EscrowIDs []uint64 `json:"escrow_ids"`
}

// EscrowDTO is one escrow record.
type EscrowDTO struct {
	ID        uint64 `json:"id"`
	Depositor string `json:"depositor"`
	Recipient string `json:"recipient"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Deadline  string `json:"deadline"`
}

// UserEscrowsDTO lists a depositor's escrow IDs.
type UserEscrowsDTO struct {
	Depositor string   `json:"depositor"`
	EscrowIDs []uint64 `json:"escrow_ids"`
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardItemRequest is one payout in a distribution.
type RewardItemRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// DistributeRequest pays rewards to many recipients.
type DistributeRequest struct {
	Rewards []RewardItemRequest `json:"rewards"`
}

// =============================================================================
// WALLET
// =============================================================================

// WalletUpdateRequest is one balance update.
type WalletUpdateRequest struct {
	User     string `json:"user"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	Op       string `json:"op"` // set | add | subtract
}

// WalletBatchRequest applies many balance updates.
type WalletBatchRequest struct {
	Updates []WalletUpdateRequest `json:"updates"`
}

// WalletBalanceDTO is one stored balance.
type WalletBalanceDTO struct {
	User      string `json:"user"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// =============================================================================
// LIMITS
// =============================================================================

// LimitUpdateRequest is one spending-limit update.
type LimitUpdateRequest struct {
	User         string `json:"user"`
	MonthlyLimit string `json:"monthly_limit"`
	Category     string `json:"category,omitempty"`
}

// LimitBatchRequest applies many limit updates.
type LimitBatchRequest struct {
	Updates []LimitUpdateRequest `json:"updates"`
}

// SpendingLimitDTO is one stored limit.
type SpendingLimitDTO struct {
	User            string `json:"user"`
	MonthlyLimit    string `json:"monthly_limit"`
	CurrentSpending string `json:"current_spending"`
	Category        string `json:"category,omitempty"`
	UpdatedAt       string `json:"updated_at"`
	Active          bool   `json:"active"`
}

// =============================================================================
// REFUNDS
// =============================================================================

// RecordTransactionRequest registers a refundable transaction.
type RecordTransactionRequest struct {
	ID         uint64 `json:"id"`
	Payer      string `json:"payer"`
	Amount     string `json:"amount"`
	Category   string `json:"category,omitempty"`
	Refundable bool   `json:"refundable"`
}

// RefundItemRequest is one refund.
type RefundItemRequest struct {
	TxID   uint64 `json:"tx_id"`
	Reason string `json:"reason,omitempty"`
}

// RefundBatchRequest refunds many transactions.
type RefundBatchRequest struct {
	Refunds []RefundItemRequest `json:"refunds"`
}

// TransactionDTO is one registered transaction.
type TransactionDTO struct {
	ID         uint64 `json:"id"`
	Payer      string `json:"payer"`
	Amount     string `json:"amount"`
	Category   string `json:"category,omitempty"`
	Refundable bool   `json:"refundable"`
	Refunded   bool   `json:"refunded"`
	RecordedAt string `json:"recorded_at"`
}

// TotalRefundedDTO reports the lifetime refunded amount.
type TotalRefundedDTO struct {
	TotalRefunded string `json:"total_refunded"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBatchResultDTO(res engine.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{
		BatchID:       res.BatchID,
		TotalRequests: res.TotalRequests,
		Successful:    res.Successful,
		Failed:        res.Failed,
		TotalMoved:    res.TotalMoved.String(),
		Results:       make([]ItemResultDTO, len(res.Results)),
	}
	for i, item := range res.Results {
		out := ItemResultDTO{
			Key:     item.Key,
			Amount:  item.Amount.String(),
			Success: item.Succeeded(),
		}
		if !item.Succeeded() {
			out.Code = item.Fault.Code()
			out.Reason = item.Fault.Error()
		}
		dto.Results[i] = out
	}
	return dto
}

func toCountersDTO(c engine.Counters) CountersDTO {
	return CountersDTO{Batches: c.Batches, Items: c.Items, Volume: c.Volume.String()}
}

func toEscrowDTO(esc escrow.Escrow) EscrowDTO {
	return EscrowDTO{
		ID:        esc.ID,
		Depositor: string(esc.Depositor),
		Recipient: string(esc.Recipient),
		Token:     esc.Token,
		Amount:    esc.Amount.String(),
		Status:    string(esc.Status),
		CreatedAt: esc.CreatedAt.Format(time.RFC3339),
		Deadline:  esc.Deadline.Format(time.RFC3339),
	}
}

func toWalletBalanceDTO(bal wallet.Balance) WalletBalanceDTO {
	dto := WalletBalanceDTO{
		User:     string(bal.User),
		Currency: bal.Currency,
		Balance:  bal.Balance.String(),
	}
	if !bal.UpdatedAt.IsZero() {
		dto.UpdatedAt = bal.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toSpendingLimitDTO(lim limits.SpendingLimit) SpendingLimitDTO {
	return SpendingLimitDTO{
		User:            string(lim.User),
		MonthlyLimit:    lim.MonthlyLimit.String(),
		CurrentSpending: lim.CurrentSpending.String(),
		Category:        lim.Category,
		UpdatedAt:       lim.UpdatedAt.Format(time.RFC3339),
		Active:          lim.Active,
	}
}

func toTransactionDTO(tx refunds.Transaction, refunded bool) TransactionDTO {
	return TransactionDTO{
		ID:         tx.ID,
		Payer:      string(tx.Payer),
		Amount:     tx.Amount.String(),
		Category:   tx.Category,
		Refundable: tx.Refundable,
		Refunded:   refunded,
		RecordedAt: tx.RecordedAt.Format(time.RFC3339),
	}
}

func toEventDTO(e engine.Event) EventDTO {
	return EventDTO{
		ID:      e.ID,
		Service: e.Service,
		Type:    string(e.Type),
		BatchID: e.BatchID,
		At:      e.At.Format(time.RFC3339),
		Key:     e.Key,
		Amount:  e.Amount.String(),
		Code:    e.Code,
	}
}
