package dto

import "github.com/shopspring/decimal"

// CreditRequest is the request body for an admin credit.
type CreditRequest struct {
	UserID      string          `json:"user_id" binding:"required,uuid"`
	Type        string          `json:"type" binding:"required,movement_type"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Reason      string          `json:"reason"`
	Description string          `json:"description"`
	ExpiresAt   *string         `json:"expires_at,omitempty"` // YYYY-MM-DD
}

// DebitRequest is the request body for an admin debit.
type DebitRequest struct {
	UserID          string          `json:"user_id" binding:"required,uuid"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Reason          string          `json:"reason"`
	InternalComment string          `json:"internal_comment"`
	Description     string          `json:"description"`
}

// BlockRequest is the request body for blocking or unblocking a wallet.
type BlockRequest struct {
	Blocked *bool  `json:"blocked" binding:"required"`
	Reason  string `json:"reason"`
}

// TransferRequest is the request body for a balance transfer.
type TransferRequest struct {
	RecipientEmail string          `json:"recipient_email" binding:"required,email"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Description    string          `json:"description"`
}

// ReserveRequest is the request body for a checkout balance reservation.
type ReserveRequest struct {
	UserID      string          `json:"user_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	CallerRef   string          `json:"caller_ref" binding:"required,max=100"`
	Description string          `json:"description"`
}

// AttachRequest is the request body for attaching an order to a reservation.
type AttachRequest struct {
	OrderID string `json:"order_id" binding:"required,uuid"`
}

// MovementResponse is the wire form of one ledger entry.
type MovementResponse struct {
	ID          string  `json:"id"`
	WalletID    string  `json:"wallet_id"`
	Type        string  `json:"type"`
	Amount      string  `json:"amount"`
	Description string  `json:"description"`
	OrderID     *string `json:"order_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletID  string `json:"wallet_id"`
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	IsBlocked bool   `json:"is_blocked"`
}

// WalletResponse is the wire form of a wallet after an admin operation.
type WalletResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	IsBlocked bool   `json:"is_blocked"`
}

// CreditResponse pairs the created movement with the resulting wallet state.
type CreditResponse struct {
	Movement MovementResponse `json:"movement"`
	Wallet   WalletResponse   `json:"wallet"`
}

// TransferResponse reports both sides of a completed transfer.
type TransferResponse struct {
	OutMovement    MovementResponse `json:"out_movement"`
	InMovement     MovementResponse `json:"in_movement"`
	SenderBalance  string           `json:"sender_balance"`
	RecipientEmail string           `json:"recipient_email"`
}

// MovementListResponse wraps a paginated movement list.
type MovementListResponse struct {
	Items      []MovementResponse `json:"items"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// RevertResponse reports the outcome of releasing a reservation.
type RevertResponse struct {
	Released bool   `json:"released"`
	Balance  string `json:"balance"`
}

// HeavyAdjusterResponse is a user whose manual adjustment count crossed
// the anomaly threshold.
type HeavyAdjusterResponse struct {
	UserID          string `json:"user_id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	AdjustmentCount int64  `json:"adjustment_count"`
}

// LargeMovementResponse is a movement whose absolute amount crossed the
// anomaly threshold.
type LargeMovementResponse struct {
	Movement  MovementResponse `json:"movement"`
	UserID    string           `json:"user_id"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Email     string           `json:"email"`
}

// AnomalyReportResponse groups the two unusual-activity scans.
type AnomalyReportResponse struct {
	HeavyAdjusters []HeavyAdjusterResponse `json:"heavy_adjusters"`
	LargeMovements []LargeMovementResponse `json:"large_movements"`
}

// ExpiringCreditResponse aggregates, per user, the credit expiring within
// the report window.
type ExpiringCreditResponse struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	ExpiringBalance string `json:"expiring_balance"`
	EarliestExpiry  string `json:"earliest_expiry"`
}
