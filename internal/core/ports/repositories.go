package ports

import (
	"context"
	"time"

	"pesos-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// Ensure lazily creates the wallet row for a user if it does not exist yet.
	Ensure(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// LockByUserIDs locks the wallets of the given users in ascending wallet-id
	// order (single statement), the fixed acquisition order that keeps
	// two-wallet operations deadlock-free.
	LockByUserIDs(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) ([]domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
	SetBlocked(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, blocked bool) error
}

// MovementRepository defines persistence operations for ledger movements.
type MovementRepository interface {
	Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Movement, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Movement, error)
	// ListForBalance returns the wallet's full movement history inside the
	// current transaction, the input to domain.ComputeBalance.
	ListForBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]domain.Movement, error)
	// AttachOrder performs the single permitted post-write mutation: linking a
	// pending order_payment reservation to the order it funded.
	AttachOrder(ctx context.Context, tx pgx.Tx, movementID, orderID uuid.UUID) error
	// DeleteReservation removes an unattached order_payment movement (Revert).
	DeleteReservation(ctx context.Context, tx pgx.Tx, movementID uuid.UUID) error
	List(ctx context.Context, params MovementListParams) ([]domain.Movement, int64, error)
	// Reporting queries
	ExportRows(ctx context.Context, params MovementListParams) ([]MovementExportRow, error)
	HeavyAdjusters(ctx context.Context, minAdjustments int) ([]HeavyAdjuster, error)
	LargeMovements(ctx context.Context, minAmount decimal.Decimal, limit int) ([]LargeMovement, error)
	StaleReservations(ctx context.Context, olderThan time.Time) ([]domain.Movement, error)
	ExpiringCredits(ctx context.Context, now, until time.Time) ([]ExpiringCredit, error)
}

// MovementListParams holds filter + pagination for listing movements.
// WalletID filters a single wallet (user surface); UserID filters across
// wallets (admin surface); both nil lists everything.
type MovementListParams struct {
	WalletID *uuid.UUID
	UserID   *uuid.UUID
	Type     *domain.MovementType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// MovementExportRow is one line of the CSV export: the movement joined with
// the owning user and, via the movement-id foreign key, the audit entry that
// produced it.
type MovementExportRow struct {
	Movement        domain.Movement
	UserName        string
	UserEmail       string
	Reason          string
	InternalComment string
	AdminEmail      string
}

// HeavyAdjuster is a user whose manual adjustment count crossed the
// anomaly threshold.
type HeavyAdjuster struct {
	UserID          uuid.UUID
	FirstName       string
	LastName        string
	Email           string
	AdjustmentCount int64
}

// LargeMovement is a single movement whose absolute amount crossed the
// anomaly threshold.
type LargeMovement struct {
	Movement  domain.Movement
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

// ExpiringCredit aggregates, per user, the positive credit expiring within
// the report window.
type ExpiringCredit struct {
	UserID          uuid.UUID
	Email           string
	FirstName       string
	LastName        string
	ExpiringBalance decimal.Decimal
	EarliestExpiry  time.Time
}

// AuditLogRepository defines persistence for audit entries. Entries are
// written in the same transaction as the movement they describe.
type AuditLogRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.AuditLogEntry) error
}

// UserDirectory is the read-only interface to the external user store.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// GetByEmail resolves a user by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SettingsStore is the interface to the external configuration store.
type SettingsStore interface {
	// ExpirationDays returns the credit expiration window in days;
	// 0 means credits never expire.
	ExpirationDays(ctx context.Context) (int, error)
	// MaxManualLoad returns the maximum single manual credit amount,
	// or nil when unlimited.
	MaxManualLoad(ctx context.Context) (*decimal.Decimal, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ReservationCache is the Redis-layer idempotency check for checkout
// reservations (fast path for retried ReserveDebit calls).
type ReservationCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
