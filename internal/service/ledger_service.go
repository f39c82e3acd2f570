package service

import (
	"context"
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

// LedgerServiceImpl implements ports.LedgerService. Every mutation runs in a
// single database transaction: lock wallet row, validate against the movement
// history, insert the movement, refresh the cached balance, write the audit
// entry, commit.
type LedgerServiceImpl struct {
	walletRepo   ports.WalletRepository
	movementRepo ports.MovementRepository
	auditRepo    ports.AuditLogRepository
	users        ports.UserDirectory
	settings     ports.SettingsStore
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	auditRepo ports.AuditLogRepository,
	users ports.UserDirectory,
	settings ports.SettingsStore,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo:   walletRepo,
		movementRepo: movementRepo,
		auditRepo:    auditRepo,
		users:        users,
		settings:     settings,
		transactor:   transactor,
		log:          log,
	}
}

// Credit grants store credit to a user's wallet.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.CreditRequest) (*domain.Movement, *domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, apperror.ErrInvalidAmount()
	}
	if !req.Type.Valid() || req.Type.Polarity() != domain.CreditPolarity {
		return nil, nil, apperror.Validation(fmt.Sprintf("invalid credit type: %s", req.Type))
	}
	if req.Type == domain.MovementManualCredit && req.Reason == "" {
		return nil, nil, apperror.ErrMissingReason()
	}

	if req.Type == domain.MovementManualCredit {
		maxLoad, err := s.settings.MaxManualLoad(ctx)
		if err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("max manual load: %w", err))
		}
		if maxLoad != nil && req.Amount.GreaterThan(*maxLoad) {
			return nil, nil, apperror.ErrManualLoadLimitExceeded()
		}
	}

	now := time.Now().UTC()
	expiresAt, err := s.resolveExpiry(ctx, req.ExpiresAt, now)
	if err != nil {
		return nil, nil, err
	}

	// Begin database transaction
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockWallet(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	if wallet.IsBlocked {
		return nil, nil, apperror.ErrWalletBlocked()
	}

	movement := &domain.Movement{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := s.movementRepo.Create(ctx, dbTx, movement); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("create movement: %w", err))
	}

	balance, err := s.refreshBalance(ctx, dbTx, wallet.ID, now)
	if err != nil {
		return nil, nil, err
	}
	wallet.Balance = balance

	if req.Type == domain.MovementManualCredit {
		entry := &domain.AuditLogEntry{
			ID:          uuid.New(),
			AdminUserID: req.AdminUserID,
			Action:      domain.AuditActionManualCredit,
			Entity:      "wallet",
			EntityID:    wallet.ID,
			MovementID:  &movement.ID,
			Details: map[string]interface{}{
				"reason": req.Reason,
				"amount": req.Amount.String(),
			},
			CreatedAt: now,
		}
		if err := s.auditRepo.Create(ctx, dbTx, entry); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("create audit entry: %w", err))
		}
	}

	// Commit
	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("movement_id", movement.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("type", string(req.Type)).
		Str("amount", req.Amount.String()).
		Msg("credit applied")

	return movement, wallet, nil
}

// Debit removes store credit from a user's wallet. The requested amount is
// positive; the stored movement carries the negated value.
func (s *LedgerServiceImpl) Debit(ctx context.Context, req ports.DebitRequest) (*domain.Movement, *domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, apperror.ErrInvalidAmount()
	}
	if !req.Type.Valid() || req.Type.Polarity() != domain.DebitPolarity {
		return nil, nil, apperror.Validation(fmt.Sprintf("invalid debit type: %s", req.Type))
	}
	if req.Type == domain.MovementManualDebit {
		if req.Reason == "" {
			return nil, nil, apperror.ErrMissingReason()
		}
		if req.InternalComment == "" {
			return nil, nil, apperror.ErrMissingInternalComment()
		}
	}

	now := time.Now().UTC()

	// Begin database transaction
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockWallet(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	if wallet.IsBlocked {
		return nil, nil, apperror.ErrWalletBlocked()
	}

	// The movement history, not the cached column, decides spendability.
	movements, err := s.movementRepo.ListForBalance(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	available := domain.ComputeBalance(movements, false, now)
	if available.LessThan(req.Amount) {
		return nil, nil, apperror.ErrInsufficientBalance()
	}

	movement := &domain.Movement{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        req.Type,
		Amount:      req.Amount.Neg(),
		Description: req.Description,
		CreatedAt:   now,
	}
	if err := s.movementRepo.Create(ctx, dbTx, movement); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("create movement: %w", err))
	}

	balance, err := s.refreshBalance(ctx, dbTx, wallet.ID, now)
	if err != nil {
		return nil, nil, err
	}
	wallet.Balance = balance

	if req.Type == domain.MovementManualDebit {
		entry := &domain.AuditLogEntry{
			ID:          uuid.New(),
			AdminUserID: req.AdminUserID,
			Action:      domain.AuditActionManualDebit,
			Entity:      "wallet",
			EntityID:    wallet.ID,
			MovementID:  &movement.ID,
			Details: map[string]interface{}{
				"reason":           req.Reason,
				"internal_comment": req.InternalComment,
				"amount":           req.Amount.String(),
			},
			CreatedAt: now,
		}
		if err := s.auditRepo.Create(ctx, dbTx, entry); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("create audit entry: %w", err))
		}
	}

	// Commit
	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("movement_id", movement.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("type", string(req.Type)).
		Str("amount", req.Amount.String()).
		Msg("debit applied")

	return movement, wallet, nil
}

// SetBlocked flips a wallet's blocked flag and records who did it. The
// reason is optional and lands in the audit details when given. Blocked
// wallets reject outgoing money but remain readable and accept transfers in.
func (s *LedgerServiceImpl) SetBlocked(ctx context.Context, req ports.BlockRequest) (*domain.Wallet, error) {
	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockWallet(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, err
	}

	if wallet.IsBlocked != req.Blocked {
		if err := s.walletRepo.SetBlocked(ctx, dbTx, wallet.ID, req.Blocked); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("set blocked: %w", err))
		}
		wallet.IsBlocked = req.Blocked

		action := domain.AuditActionUnblock
		if req.Blocked {
			action = domain.AuditActionBlock
		}
		entry := &domain.AuditLogEntry{
			ID:          uuid.New(),
			AdminUserID: req.AdminUserID,
			Action:      action,
			Entity:      "wallet",
			EntityID:    wallet.ID,
			Details: map[string]interface{}{
				"reason": req.Reason,
			},
			CreatedAt: now,
		}
		if err := s.auditRepo.Create(ctx, dbTx, entry); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create audit entry: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Bool("blocked", req.Blocked).
		Msg("wallet block flag updated")

	return wallet, nil
}

// Transfer moves credit between two users. Both wallet rows are locked in a
// single fixed-order statement. The incoming credit gets a fresh expiration
// window; transfers carry no audit entry, the paired movements are the record.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	recipient, err := s.users.GetByEmail(ctx, req.RecipientEmail)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find recipient: %w", err))
	}
	if recipient == nil {
		return nil, apperror.ErrRecipientNotFound()
	}
	if recipient.ID == req.SenderUserID {
		return nil, apperror.ErrSelfTransfer()
	}

	now := time.Now().UTC()
	expiresAt, err := s.resolveExpiry(ctx, nil, now)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.Ensure(ctx, dbTx, req.SenderUserID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure sender wallet: %w", err))
	}
	if err := s.walletRepo.Ensure(ctx, dbTx, recipient.ID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure recipient wallet: %w", err))
	}

	wallets, err := s.walletRepo.LockByUserIDs(ctx, dbTx, []uuid.UUID{req.SenderUserID, recipient.ID})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallets: %w", err))
	}
	if len(wallets) != 2 {
		return nil, apperror.InternalError(fmt.Errorf("expected 2 wallets, locked %d", len(wallets)))
	}

	var sender, receiver *domain.Wallet
	for i := range wallets {
		switch wallets[i].UserID {
		case req.SenderUserID:
			sender = &wallets[i]
		case recipient.ID:
			receiver = &wallets[i]
		}
	}
	if sender == nil || receiver == nil {
		return nil, apperror.InternalError(fmt.Errorf("locked wallets do not match transfer parties"))
	}
	// Only the sender's flag gates a transfer; a blocked wallet still
	// accepts incoming credit.
	if sender.IsBlocked {
		return nil, apperror.ErrWalletBlocked()
	}

	senderMovements, err := s.movementRepo.ListForBalance(ctx, dbTx, sender.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list sender movements: %w", err))
	}
	available := domain.ComputeBalance(senderMovements, false, now)
	if available.LessThan(req.Amount) {
		return nil, apperror.ErrInsufficientBalance()
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Transfer to %s", recipient.Email)
	}

	outMovement := &domain.Movement{
		ID:          uuid.New(),
		WalletID:    sender.ID,
		Type:        domain.MovementTransferOut,
		Amount:      req.Amount.Neg(),
		Description: description,
		CreatedAt:   now,
	}
	inMovement := &domain.Movement{
		ID:          uuid.New(),
		WalletID:    receiver.ID,
		Type:        domain.MovementTransferIn,
		Amount:      req.Amount,
		Description: description,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := s.movementRepo.Create(ctx, dbTx, outMovement); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transfer_out: %w", err))
	}
	if err := s.movementRepo.Create(ctx, dbTx, inMovement); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transfer_in: %w", err))
	}

	senderBalance, err := s.refreshBalance(ctx, dbTx, sender.ID, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.refreshBalance(ctx, dbTx, receiver.ID, now); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("sender_id", req.SenderUserID.String()).
		Str("recipient_id", recipient.ID.String()).
		Str("amount", req.Amount.String()).
		Msg("transfer completed")

	return &ports.TransferResult{
		OutMovement:   outMovement,
		InMovement:    inMovement,
		SenderBalance: senderBalance,
		Recipient:     recipient,
	}, nil
}

// lockWallet lazily creates and pessimistically locks a user's wallet row.
func (s *LedgerServiceImpl) lockWallet(ctx context.Context, dbTx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	if err := s.walletRepo.Ensure(ctx, dbTx, userID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// refreshBalance recomputes the cached balance from the movement history
// inside the current transaction and writes it back.
func (s *LedgerServiceImpl) refreshBalance(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID, now time.Time) (decimal.Decimal, error) {
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

// resolveExpiry computes the expiration timestamp for a new credit. An
// explicit date wins and is pinned to the end of its calendar day; otherwise
// the window from the settings store applies. A past date is stored as given,
// producing a credit that never counts toward the balance.
func (s *LedgerServiceImpl) resolveExpiry(ctx context.Context, explicit *time.Time, now time.Time) (*time.Time, error) {
	if explicit != nil {
		eod := domain.EndOfDay(*explicit)
		return &eod, nil
	}

	days, err := s.settings.ExpirationDays(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("expiration days: %w", err))
	}
	return domain.ExpirationPolicy{WindowDays: days}.ExpiryFrom(now), nil
}
