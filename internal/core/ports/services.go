package ports

import (
	"context"
	"io"
	"time"

	"pesos-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditRequest grants store credit to a user's wallet.
type CreditRequest struct {
	UserID      uuid.UUID
	AdminUserID uuid.UUID
	Type        domain.MovementType
	Amount      decimal.Decimal
	Reason      string
	Description string
	// ExpiresAt overrides the configured expiration window; pinned to the end
	// of its calendar day. Nil applies the window from the settings store.
	ExpiresAt *time.Time
}

// DebitRequest removes store credit from a user's wallet.
type DebitRequest struct {
	UserID          uuid.UUID
	AdminUserID     uuid.UUID
	Type            domain.MovementType
	Amount          decimal.Decimal
	Reason          string
	InternalComment string
	Description     string
}

// BlockRequest flips a wallet's blocked flag.
type BlockRequest struct {
	UserID      uuid.UUID
	AdminUserID uuid.UUID
	Blocked     bool
	Reason      string
}

// TransferRequest moves credit between two users' wallets.
type TransferRequest struct {
	SenderUserID   uuid.UUID
	RecipientEmail string
	Amount         decimal.Decimal
	Description    string
}

// TransferResult reports both sides of a completed transfer.
type TransferResult struct {
	OutMovement   *domain.Movement `json:"out_movement"`
	InMovement    *domain.Movement `json:"in_movement"`
	SenderBalance decimal.Decimal  `json:"sender_balance"`
	Recipient     *domain.User     `json:"recipient"`
}

// LedgerService is the write surface of the ledger: every path that changes
// a balance or a wallet flag.
type LedgerService interface {
	Credit(ctx context.Context, req CreditRequest) (*domain.Movement, *domain.Wallet, error)
	Debit(ctx context.Context, req DebitRequest) (*domain.Movement, *domain.Wallet, error)
	SetBlocked(ctx context.Context, req BlockRequest) (*domain.Wallet, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// ReserveRequest places a hold on a user's balance during checkout.
// CallerRef is the checkout flow's own idempotency reference; retried calls
// with the same reference return the original reservation.
type ReserveRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	CallerRef   string
	Description string
}

// RevertResult reports the outcome of releasing a reservation.
type RevertResult struct {
	Released bool            `json:"released"`
	Balance  decimal.Decimal `json:"balance"`
}

// CheckoutService manages the order-payment reservation lifecycle.
type CheckoutService interface {
	ReserveDebit(ctx context.Context, req ReserveRequest) (*domain.Movement, error)
	Attach(ctx context.Context, movementID, orderID uuid.UUID) (*domain.Movement, error)
	Revert(ctx context.Context, movementID uuid.UUID) (*RevertResult, error)
}

// BalanceInfo is the read-side view of a wallet.
type BalanceInfo struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	IsBlocked bool            `json:"is_blocked"`
}

// AnomalyReport groups the two unusual-activity scans.
type AnomalyReport struct {
	HeavyAdjusters []HeavyAdjuster `json:"heavy_adjusters"`
	LargeMovements []LargeMovement `json:"large_movements"`
}

// ReportingService is the read surface: balances, histories and the
// back-office reports.
type ReportingService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceInfo, error)
	ListMovements(ctx context.Context, params MovementListParams) ([]domain.Movement, int64, error)
	ExportMovementsCSV(ctx context.Context, w io.Writer, params MovementListParams) error
	DetectAnomalies(ctx context.Context, minAdjustments int, minAmount decimal.Decimal) (*AnomalyReport, error)
	ExpiringCredits(ctx context.Context, withinDays int) ([]ExpiringCredit, error)
	StaleReservations(ctx context.Context) ([]domain.Movement, error)
}

// TokenClaims is the identity extracted from a verified access token.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// TokenService validates the access tokens minted by the auth system.
type TokenService interface {
	Generate(userID uuid.UUID, email, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}
