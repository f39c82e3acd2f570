package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/core/ports"
	"pesos-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// Fallback anomaly thresholds when the caller passes none.
	defaultMinAdjustments = 5
	defaultMinAmount      = 1000

	// Cap on the large-movement scan; the report is a shortlist, not a dump.
	largeMovementLimit = 50

	csvTimeLayout = "2006-01-02 15:04:05"
)

// ReportingServiceImpl implements ports.ReportingService: the read-only
// surface over the ledger.
type ReportingServiceImpl struct {
	walletRepo      ports.WalletRepository
	movementRepo    ports.MovementRepository
	transactor      ports.DBTransactor
	alertWindow     time.Duration
	defaultPageSize int
	maxPageSize     int
	log             zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl. alertWindow is how
// old a pending reservation must be before it counts as stale.
func NewReportingService(
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	transactor ports.DBTransactor,
	alertWindow time.Duration,
	defaultPageSize, maxPageSize int,
	log zerolog.Logger,
) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		walletRepo:      walletRepo,
		movementRepo:    movementRepo,
		transactor:      transactor,
		alertWindow:     alertWindow,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		log:             log,
	}
}

// GetBalance returns the wallet view for a user, lazily creating the wallet
// on first read. The balance is recomputed from the movement history; the
// cached column lags when a credit expires with no intervening mutation, so
// it is refreshed here when it drifted.
func (s *ReportingServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (*ports.BalanceInfo, error) {
	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.Ensure(ctx, dbTx, userID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	movements, err := s.movementRepo.ListForBalance(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	balance := domain.ComputeBalance(movements, false, now)
	if !balance.Equal(wallet.Balance) {
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, balance); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return &ports.BalanceInfo{
		WalletID:  wallet.ID,
		UserID:    wallet.UserID,
		Balance:   balance,
		IsBlocked: wallet.IsBlocked,
	}, nil
}

// ListMovements returns a filtered, paginated movement history, newest first.
func (s *ReportingServiceImpl) ListMovements(ctx context.Context, params ports.MovementListParams) ([]domain.Movement, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = s.defaultPageSize
	}
	if params.PageSize > s.maxPageSize {
		params.PageSize = s.maxPageSize
	}

	movements, total, err := s.movementRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	return movements, total, nil
}

// ExportMovementsCSV streams the filtered movement history as CSV, one row
// per movement with the owning user and the audit trail columns.
func (s *ReportingServiceImpl) ExportMovementsCSV(ctx context.Context, w io.Writer, params ports.MovementListParams) error {
	rows, err := s.movementRepo.ExportRows(ctx, params)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("export rows: %w", err))
	}

	cw := csv.NewWriter(w)
	header := []string{"Date", "Client", "Email", "Type", "Amount", "Description", "Reason", "Internal comment", "Admin", "Order ID"}
	if err := cw.Write(header); err != nil {
		return apperror.InternalError(fmt.Errorf("write csv header: %w", err))
	}

	for _, row := range rows {
		m := row.Movement
		orderID := ""
		if m.OrderID != nil {
			orderID = m.OrderID.String()
		}
		record := []string{
			m.CreatedAt.UTC().Format(csvTimeLayout),
			row.UserName,
			row.UserEmail,
			string(m.Type),
			m.Amount.StringFixed(2),
			m.Description,
			row.Reason,
			row.InternalComment,
			row.AdminEmail,
			orderID,
		}
		if err := cw.Write(record); err != nil {
			return apperror.InternalError(fmt.Errorf("write csv row: %w", err))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperror.InternalError(fmt.Errorf("flush csv: %w", err))
	}
	return nil
}

// DetectAnomalies runs the two unusual-activity scans: users with many
// manual adjustments, and individual movements above the amount threshold.
func (s *ReportingServiceImpl) DetectAnomalies(ctx context.Context, minAdjustments int, minAmount decimal.Decimal) (*ports.AnomalyReport, error) {
	if minAdjustments < 1 {
		minAdjustments = defaultMinAdjustments
	}
	if !minAmount.IsPositive() {
		minAmount = decimal.NewFromInt(defaultMinAmount)
	}

	adjusters, err := s.movementRepo.HeavyAdjusters(ctx, minAdjustments)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("heavy adjusters: %w", err))
	}
	large, err := s.movementRepo.LargeMovements(ctx, minAmount, largeMovementLimit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("large movements: %w", err))
	}

	return &ports.AnomalyReport{
		HeavyAdjusters: adjusters,
		LargeMovements: large,
	}, nil
}

// ExpiringCredits reports, per user, the positive credit lapsing within the
// given number of days.
func (s *ReportingServiceImpl) ExpiringCredits(ctx context.Context, withinDays int) ([]ports.ExpiringCredit, error) {
	if withinDays < 1 {
		withinDays = 30
	}

	now := time.Now().UTC()
	until := now.AddDate(0, 0, withinDays)

	credits, err := s.movementRepo.ExpiringCredits(ctx, now, until)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("expiring credits: %w", err))
	}
	return credits, nil
}

// StaleReservations reports pending order-payment holds older than the alert
// window. Stale holds are surfaced, never auto-released; an operator decides.
func (s *ReportingServiceImpl) StaleReservations(ctx context.Context) ([]domain.Movement, error) {
	cutoff := time.Now().UTC().Add(-s.alertWindow)

	stale, err := s.movementRepo.StaleReservations(ctx, cutoff)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("stale reservations: %w", err))
	}

	for _, m := range stale {
		s.log.Warn().
			Str("movement_id", m.ID.String()).
			Str("wallet_id", m.WalletID.String()).
			Time("created_at", m.CreatedAt).
			Msg("stale order-payment reservation")
	}
	return stale, nil
}
