package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/core/ports"
	"pesos-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// reservationTTL bounds how long a retried reserve call can short-circuit on
// the cache. Checkout flows resolve well within this window.
const reservationTTL = 15 * time.Minute

// CheckoutServiceImpl implements ports.CheckoutService: the reservation
// lifecycle the order system drives. A reservation is an order_payment
// movement with no order attached yet; attaching the order is the single
// permitted mutation, reverting deletes the row outright.
type CheckoutServiceImpl struct {
	walletRepo   ports.WalletRepository
	movementRepo ports.MovementRepository
	cache        ports.ReservationCache
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewCheckoutService creates a new CheckoutServiceImpl.
func NewCheckoutService(
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	cache ports.ReservationCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *CheckoutServiceImpl {
	return &CheckoutServiceImpl{
		walletRepo:   walletRepo,
		movementRepo: movementRepo,
		cache:        cache,
		transactor:   transactor,
		log:          log,
	}
}

// ReserveDebit places a hold on the user's balance for an in-flight order.
func (s *CheckoutServiceImpl) ReserveDebit(ctx context.Context, req ports.ReserveRequest) (*domain.Movement, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	// Idempotency fast path for retried checkout calls.
	if req.CallerRef != "" {
		cached, err := s.cache.Get(ctx, req.CallerRef)
		if err != nil {
			s.log.Warn().Err(err).Str("caller_ref", req.CallerRef).Msg("reservation cache check failed, falling through")
		}
		if cached != nil {
			return s.unmarshalCachedMovement(cached)
		}
	}

	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.Ensure(ctx, dbTx, req.UserID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if wallet.IsBlocked {
		return nil, apperror.ErrWalletBlocked()
	}

	movements, err := s.movementRepo.ListForBalance(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	available := domain.ComputeBalance(movements, false, now)
	if available.LessThan(req.Amount) {
		return nil, apperror.ErrInsufficientBalance()
	}

	description := req.Description
	if description == "" {
		description = "Order payment"
	}
	movement := &domain.Movement{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        domain.MovementOrderPayment,
		Amount:      req.Amount.Neg(),
		Description: description,
		CreatedAt:   now,
	}
	if err := s.movementRepo.Create(ctx, dbTx, movement); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create reservation: %w", err))
	}

	if err := s.refreshBalance(ctx, dbTx, wallet.ID, now); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache the reservation (best-effort).
	if req.CallerRef != "" {
		if payload, err := json.Marshal(movement); err == nil {
			if err := s.cache.Set(ctx, req.CallerRef, payload, reservationTTL); err != nil {
				s.log.Warn().Err(err).Str("caller_ref", req.CallerRef).Msg("failed to cache reservation")
			}
		}
	}

	s.log.Info().
		Str("movement_id", movement.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("balance reserved for order")

	return movement, nil
}

// Attach links a pending reservation to the order it funded. Attaching the
// same order twice is idempotent; any other mutation attempt, including
// attaching a reservation that was already reverted, is a reconciliation
// conflict.
func (s *CheckoutServiceImpl) Attach(ctx context.Context, movementID, orderID uuid.UUID) (*domain.Movement, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	movement, err := s.movementRepo.GetByIDForUpdate(ctx, dbTx, movementID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock movement: %w", err))
	}
	if movement == nil {
		return nil, apperror.ErrReconciliationConflict("reservation no longer exists")
	}
	if movement.Type != domain.MovementOrderPayment {
		return nil, apperror.ErrReconciliationConflict("movement is not an order payment")
	}
	if movement.OrderID != nil {
		if *movement.OrderID == orderID {
			return movement, nil
		}
		return nil, apperror.ErrReconciliationConflict("reservation already attached to a different order")
	}

	if err := s.movementRepo.AttachOrder(ctx, dbTx, movementID, orderID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("attach order: %w", err))
	}
	movement.OrderID = &orderID

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("movement_id", movementID.String()).
		Str("order_id", orderID.String()).
		Msg("reservation attached to order")

	return movement, nil
}

// Revert releases a pending reservation, restoring the held balance.
// Reverting a reservation that no longer exists, or that was already
// attached to an order, is a safe no-op: Released reports false.
func (s *CheckoutServiceImpl) Revert(ctx context.Context, movementID uuid.UUID) (*ports.RevertResult, error) {
	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	movement, err := s.movementRepo.GetByIDForUpdate(ctx, dbTx, movementID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock movement: %w", err))
	}
	if movement == nil {
		return &ports.RevertResult{Released: false, Balance: decimal.Zero}, nil
	}

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, movement.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	if !movement.IsReservation() {
		// Attached or not a reservation at all; leave the ledger untouched.
		return &ports.RevertResult{Released: false, Balance: wallet.Balance}, nil
	}

	if err := s.movementRepo.DeleteReservation(ctx, dbTx, movementID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("delete reservation: %w", err))
	}

	balance, err := s.refreshBalanceValue(ctx, dbTx, wallet.ID, now)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("movement_id", movementID.String()).
		Str("wallet_id", wallet.ID.String()).
		Msg("reservation reverted")

	return &ports.RevertResult{Released: true, Balance: balance}, nil
}

func (s *CheckoutServiceImpl) refreshBalance(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID, now time.Time) error {
	_, err := s.refreshBalanceValue(ctx, dbTx, walletID, now)
	return err
}

func (s *CheckoutServiceImpl) refreshBalanceValue(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID, now time.Time) (decimal.Decimal, error) {
	movements, err := s.movementRepo.ListForBalance(ctx, dbTx, walletID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	balance := domain.ComputeBalance(movements, false, now)
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, walletID, balance); err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	return balance, nil
}

func (s *CheckoutServiceImpl) unmarshalCachedMovement(data []byte) (*domain.Movement, error) {
	var movement domain.Movement
	if err := json.Unmarshal(data, &movement); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached reservation: %w", err))
	}
	return &movement, nil
}
