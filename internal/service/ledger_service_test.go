package service

import (
	"context"
	"testing"
	"time"

	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/core/ports"
	"pesos-ledger/internal/core/ports/mocks"
	"pesos-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc          *LedgerServiceImpl
	walletRepo   *mocks.MockWalletRepository
	movementRepo *mocks.MockMovementRepository
	auditRepo    *mocks.MockAuditLogRepository
	users        *mocks.MockUserDirectory
	settings     *mocks.MockSettingsStore
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo:   mocks.NewMockWalletRepository(ctrl),
		movementRepo: mocks.NewMockMovementRepository(ctrl),
		auditRepo:    mocks.NewMockAuditLogRepository(ctrl),
		users:        mocks.NewMockUserDirectory(ctrl),
		settings:     mocks.NewMockSettingsStore(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewLedgerService(
		d.walletRepo, d.movementRepo, d.auditRepo,
		d.users, d.settings, d.transactor, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func unblockedWallet(userID uuid.UUID) *domain.Wallet {
	return &domain.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.Zero}
}

// ==================== Credit Tests ====================

func TestLedgerService_Credit_ManualSuccess(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)

	req := ports.CreditRequest{
		UserID:      userID,
		AdminUserID: adminID,
		Type:        domain.MovementManualCredit,
		Amount:      decimal.NewFromInt(100),
		Reason:      "loyalty compensation",
	}

	d.settings.EXPECT().MaxManualLoad(ctx).Return(nil, nil)
	d.settings.EXPECT().ExpirationDays(ctx).Return(30, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	var created *domain.Movement
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
			created = m
			return nil
		})
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, wallet.ID).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID) ([]domain.Movement, error) {
			return []domain.Movement{*created}, nil
		})
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any()).Return(nil)

	var audit *domain.AuditLogEntry
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, e *domain.AuditLogEntry) error {
			audit = e
			return nil
		})

	movement, updated, err := d.svc.Credit(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, movement)
	assert.Equal(t, domain.MovementManualCredit, movement.Type)
	assert.True(t, decimal.NewFromInt(100).Equal(movement.Amount))
	require.NotNil(t, movement.ExpiresAt, "settings window applies")
	assert.True(t, decimal.NewFromInt(100).Equal(updated.Balance))

	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionManualCredit, audit.Action)
	assert.Equal(t, adminID, audit.AdminUserID)
	require.NotNil(t, audit.MovementID)
	assert.Equal(t, movement.ID, *audit.MovementID)
	assert.Equal(t, "loyalty compensation", audit.Details["reason"])
}

func TestLedgerService_Credit_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Credit(context.Background(), ports.CreditRequest{
		UserID: uuid.New(),
		Type:   domain.MovementManualCredit,
		Amount: decimal.Zero,
		Reason: "r",
	})
	assertCode(t, err, "WAL_002")
}

func TestLedgerService_Credit_DebitTypeRejected(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Credit(context.Background(), ports.CreditRequest{
		UserID: uuid.New(),
		Type:   domain.MovementManualDebit,
		Amount: decimal.NewFromInt(10),
		Reason: "r",
	})
	assertCode(t, err, "WAL_002")
}

func TestLedgerService_Credit_MissingReason(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Credit(context.Background(), ports.CreditRequest{
		UserID: uuid.New(),
		Type:   domain.MovementManualCredit,
		Amount: decimal.NewFromInt(10),
	})
	assertCode(t, err, "WAL_003")
}

func TestLedgerService_Credit_ExceedsMaxManualLoad(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	limit := decimal.NewFromInt(100)
	d.settings.EXPECT().MaxManualLoad(ctx).Return(&limit, nil)

	_, _, err := d.svc.Credit(ctx, ports.CreditRequest{
		UserID: uuid.New(),
		Type:   domain.MovementManualCredit,
		Amount: decimal.NewFromInt(500),
		Reason: "r",
	})
	assertCode(t, err, "WAL_009")
}

func TestLedgerService_Credit_BlockedWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)
	wallet.IsBlocked = true

	d.settings.EXPECT().ExpirationDays(ctx).Return(0, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	_, _, err := d.svc.Credit(ctx, ports.CreditRequest{
		UserID: userID,
		Type:   domain.MovementCashback,
		Amount: decimal.NewFromInt(10),
	})
	assertCode(t, err, "WAL_001")
}

func TestLedgerService_Credit_ExplicitExpiryPinnedToEndOfDay(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)
	expiry := time.Now().UTC().AddDate(0, 1, 0)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, wallet.ID).Return(nil, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any()).Return(nil)

	movement, _, err := d.svc.Credit(ctx, ports.CreditRequest{
		UserID:    userID,
		Type:      domain.MovementCashback,
		Amount:    decimal.NewFromInt(10),
		ExpiresAt: &expiry,
	})
	require.NoError(t, err)
	require.NotNil(t, movement.ExpiresAt)
	assert.Equal(t, 23, movement.ExpiresAt.Hour())
	assert.Equal(t, 59, movement.ExpiresAt.Minute())
	assert.Equal(t, 59, movement.ExpiresAt.Second())
}

func TestLedgerService_Credit_PastExplicitExpiryExcludedFromBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)
	past := time.Now().UTC().AddDate(0, 0, -2)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	var created *domain.Movement
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
			created = m
			return nil
		})
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, wallet.ID).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID) ([]domain.Movement, error) {
			return []domain.Movement{*created}, nil
		})

	var refreshed decimal.Decimal
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, b decimal.Decimal) error {
			refreshed = b
			return nil
		})

	movement, updated, err := d.svc.Credit(ctx, ports.CreditRequest{
		UserID:    userID,
		Type:      domain.MovementCashback,
		Amount:    decimal.NewFromInt(60),
		ExpiresAt: &past,
	})
	require.NoError(t, err, "a past expiry date is accepted, not rejected")
	require.NotNil(t, movement.ExpiresAt)
	assert.True(t, movement.ExpiresAt.Before(time.Now().UTC()))
	assert.True(t, refreshed.IsZero(), "already-expired credit funds nothing")
	assert.True(t, updated.Balance.IsZero())
}

// ==================== Debit Tests ====================

func TestLedgerService_Debit_ManualSuccess(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)

	history := []domain.Movement{
		{Type: domain.MovementManualCredit, Amount: decimal.NewFromInt(100)},
	}
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	// Once for the availability check, once for the refresh.
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, wallet.ID).Return(history, nil).Times(2)
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any()).Return(nil)

	var audit *domain.AuditLogEntry
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, e *domain.AuditLogEntry) error {
			audit = e
			return nil
		})

	movement, _, err := d.svc.Debit(ctx, ports.DebitRequest{
		UserID:          userID,
		AdminUserID:     adminID,
		Type:            domain.MovementManualDebit,
		Amount:          decimal.NewFromInt(40),
		Reason:          "chargeback",
		InternalComment: "ticket 8812",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(-40).Equal(movement.Amount), "debits are stored negative")

	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionManualDebit, audit.Action)
	assert.Equal(t, "ticket 8812", audit.Details["internal_comment"])
}

func TestLedgerService_Debit_InsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)

	history := []domain.Movement{
		{Type: domain.MovementManualCredit, Amount: decimal.NewFromInt(50)},
	}
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, wallet.ID).Return(history, nil)

	_, _, err := d.svc.Debit(ctx, ports.DebitRequest{
		UserID:          userID,
		Type:            domain.MovementManualDebit,
		Amount:          decimal.NewFromInt(80),
		Reason:          "r",
		InternalComment: "c",
	})
	assertCode(t, err, "WAL_005")
}

func TestLedgerService_Debit_ExpiredCreditsDoNotFund(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)
	past := time.Now().UTC().Add(-time.Hour)

	history := []domain.Movement{
		{Type: domain.MovementManualCredit, Amount: decimal.NewFromInt(500), ExpiresAt: &past},
		{Type: domain.MovementCashback, Amount: decimal.NewFromInt(10)},
	}
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, wallet.ID).Return(history, nil)

	_, _, err := d.svc.Debit(ctx, ports.DebitRequest{
		UserID:          userID,
		Type:            domain.MovementManualDebit,
		Amount:          decimal.NewFromInt(100),
		Reason:          "r",
		InternalComment: "c",
	})
	assertCode(t, err, "WAL_005")
}

func TestLedgerService_Debit_MissingInternalComment(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Debit(context.Background(), ports.DebitRequest{
		UserID: uuid.New(),
		Type:   domain.MovementManualDebit,
		Amount: decimal.NewFromInt(10),
		Reason: "r",
	})
	assertCode(t, err, "WAL_004")
}

func TestLedgerService_Debit_BlockedWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)
	wallet.IsBlocked = true

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	_, _, err := d.svc.Debit(ctx, ports.DebitRequest{
		UserID:          userID,
		Type:            domain.MovementManualDebit,
		Amount:          decimal.NewFromInt(10),
		Reason:          "r",
		InternalComment: "c",
	})
	assertCode(t, err, "WAL_001")
}

// ==================== SetBlocked Tests ====================

func TestLedgerService_SetBlocked_Block(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.walletRepo.EXPECT().SetBlocked(ctx, tx, wallet.ID, true).Return(nil)

	var audit *domain.AuditLogEntry
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, e *domain.AuditLogEntry) error {
			audit = e
			return nil
		})

	updated, err := d.svc.SetBlocked(ctx, ports.BlockRequest{
		UserID:      userID,
		AdminUserID: adminID,
		Blocked:     true,
		Reason:      "fraud review",
	})
	require.NoError(t, err)
	assert.True(t, updated.IsBlocked)

	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionBlock, audit.Action)
	assert.Nil(t, audit.MovementID, "block entries carry no movement")
	assert.Equal(t, "fraud review", audit.Details["reason"])
}

func TestLedgerService_SetBlocked_NoChangeSkipsAudit(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	// No SetBlocked, no audit entry expected.

	updated, err := d.svc.SetBlocked(ctx, ports.BlockRequest{
		UserID:  userID,
		Blocked: false,
		Reason:  "noop",
	})
	require.NoError(t, err)
	assert.False(t, updated.IsBlocked)
}

func TestLedgerService_SetBlocked_NoReasonStillBlocks(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	wallet := unblockedWallet(userID)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, userID).Return(nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.walletRepo.EXPECT().SetBlocked(ctx, tx, wallet.ID, true).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	updated, err := d.svc.SetBlocked(ctx, ports.BlockRequest{
		UserID:  userID,
		Blocked: true,
	})
	require.NoError(t, err, "the reason is optional")
	assert.True(t, updated.IsBlocked)
}

// ==================== Transfer Tests ====================

func TestLedgerService_Transfer_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	tx := &mockTx{}
	recipient := &domain.User{ID: uuid.New(), Email: "ana@example.com"}

	senderWallet := domain.Wallet{ID: uuid.New(), UserID: senderID}
	receiverWallet := domain.Wallet{ID: uuid.New(), UserID: recipient.ID}

	d.users.EXPECT().GetByEmail(ctx, "Ana@Example.com").Return(recipient, nil)
	d.settings.EXPECT().ExpirationDays(ctx).Return(30, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, senderID).Return(nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, recipient.ID).Return(nil)
	d.walletRepo.EXPECT().LockByUserIDs(ctx, tx, []uuid.UUID{senderID, recipient.ID}).
		Return([]domain.Wallet{senderWallet, receiverWallet}, nil)

	senderHistory := []domain.Movement{
		{Type: domain.MovementManualCredit, Amount: decimal.NewFromInt(100)},
	}
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, senderWallet.ID).Return(senderHistory, nil).Times(2)
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, receiverWallet.ID).Return(nil, nil)

	var movements []*domain.Movement
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, m *domain.Movement) error {
			movements = append(movements, m)
			return nil
		})
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, senderWallet.ID, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, receiverWallet.ID, gomock.Any()).Return(nil)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderUserID:   senderID,
		RecipientEmail: "Ana@Example.com",
		Amount:         decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	require.Len(t, movements, 2)

	assert.Equal(t, domain.MovementTransferOut, result.OutMovement.Type)
	assert.True(t, decimal.NewFromInt(-40).Equal(result.OutMovement.Amount))
	assert.Nil(t, result.OutMovement.ExpiresAt)

	assert.Equal(t, domain.MovementTransferIn, result.InMovement.Type)
	assert.True(t, decimal.NewFromInt(40).Equal(result.InMovement.Amount))
	assert.NotNil(t, result.InMovement.ExpiresAt, "incoming credit gets a fresh window")

	assert.Equal(t, recipient, result.Recipient)
}

func TestLedgerService_Transfer_RecipientNotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.users.EXPECT().GetByEmail(ctx, "ghost@example.com").Return(nil, nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderUserID:   uuid.New(),
		RecipientEmail: "ghost@example.com",
		Amount:         decimal.NewFromInt(10),
	})
	assertCode(t, err, "WAL_006")
}

func TestLedgerService_Transfer_SelfTransfer(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	d.users.EXPECT().GetByEmail(ctx, "me@example.com").
		Return(&domain.User{ID: senderID, Email: "me@example.com"}, nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderUserID:   senderID,
		RecipientEmail: "me@example.com",
		Amount:         decimal.NewFromInt(10),
	})
	assertCode(t, err, "WAL_007")
}

func TestLedgerService_Transfer_InsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	tx := &mockTx{}
	recipient := &domain.User{ID: uuid.New(), Email: "ana@example.com"}
	senderWallet := domain.Wallet{ID: uuid.New(), UserID: senderID}
	receiverWallet := domain.Wallet{ID: uuid.New(), UserID: recipient.ID}

	d.users.EXPECT().GetByEmail(ctx, "ana@example.com").Return(recipient, nil)
	d.settings.EXPECT().ExpirationDays(ctx).Return(0, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, senderID).Return(nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, recipient.ID).Return(nil)
	d.walletRepo.EXPECT().LockByUserIDs(ctx, tx, gomock.Any()).
		Return([]domain.Wallet{senderWallet, receiverWallet}, nil)
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, senderWallet.ID).Return(nil, nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderUserID:   senderID,
		RecipientEmail: "ana@example.com",
		Amount:         decimal.NewFromInt(10),
	})
	assertCode(t, err, "WAL_005")
}

func TestLedgerService_Transfer_BlockedSender(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	tx := &mockTx{}
	recipient := &domain.User{ID: uuid.New(), Email: "ana@example.com"}
	senderWallet := domain.Wallet{ID: uuid.New(), UserID: senderID, IsBlocked: true}
	receiverWallet := domain.Wallet{ID: uuid.New(), UserID: recipient.ID}

	d.users.EXPECT().GetByEmail(ctx, "ana@example.com").Return(recipient, nil)
	d.settings.EXPECT().ExpirationDays(ctx).Return(0, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, senderID).Return(nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, recipient.ID).Return(nil)
	d.walletRepo.EXPECT().LockByUserIDs(ctx, tx, gomock.Any()).
		Return([]domain.Wallet{senderWallet, receiverWallet}, nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderUserID:   senderID,
		RecipientEmail: "ana@example.com",
		Amount:         decimal.NewFromInt(10),
	})
	assertCode(t, err, "WAL_001")
}

func TestLedgerService_Transfer_BlockedRecipientStillReceives(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	tx := &mockTx{}
	recipient := &domain.User{ID: uuid.New(), Email: "ana@example.com"}
	senderWallet := domain.Wallet{ID: uuid.New(), UserID: senderID}
	receiverWallet := domain.Wallet{ID: uuid.New(), UserID: recipient.ID, IsBlocked: true}

	d.users.EXPECT().GetByEmail(ctx, "ana@example.com").Return(recipient, nil)
	d.settings.EXPECT().ExpirationDays(ctx).Return(0, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, senderID).Return(nil)
	d.walletRepo.EXPECT().Ensure(ctx, tx, recipient.ID).Return(nil)
	d.walletRepo.EXPECT().LockByUserIDs(ctx, tx, gomock.Any()).
		Return([]domain.Wallet{senderWallet, receiverWallet}, nil)

	senderHistory := []domain.Movement{
		{Type: domain.MovementManualCredit, Amount: decimal.NewFromInt(100)},
	}
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, senderWallet.ID).Return(senderHistory, nil).Times(2)
	d.movementRepo.EXPECT().ListForBalance(ctx, tx, receiverWallet.ID).Return(nil, nil)
	d.movementRepo.EXPECT().Create(ctx, tx, gomock.Any()).Times(2).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, senderWallet.ID, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, receiverWallet.ID, gomock.Any()).Return(nil)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderUserID:   senderID,
		RecipientEmail: "ana@example.com",
		Amount:         decimal.NewFromInt(40),
	})
	require.NoError(t, err, "a blocked wallet still accepts incoming credit")
	assert.Equal(t, domain.MovementTransferIn, result.InMovement.Type)
	assert.Equal(t, receiverWallet.ID, result.InMovement.WalletID)
}
