package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// The in-memory repos back full-stack tests without PostgreSQL. The
// transactor serializes transactions behind one mutex, which stands in for
// the row locks the real repos take with SELECT FOR UPDATE: concurrent
// money operations are strictly ordered, so over-spend tests can assert
// exact outcomes.

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet // keyed by wallet ID
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) byUserLocked(userID uuid.UUID) *domain.Wallet {
	for _, w := range r.wallets {
		if w.UserID == userID {
			return w
		}
	}
	return nil
}

func (r *inMemoryWalletRepo) Ensure(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUserLocked(userID) == nil {
		w := domain.NewWallet(userID)
		r.wallets[w.ID] = w
	}
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w := r.byUserLocked(userID)
	if w == nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) LockByUserIDs(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) ([]domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Wallet
	for _, uid := range userIDs {
		if w := r.byUserLocked(uid); w != nil {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryWalletRepo) SetBlocked(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.IsBlocked = blocked
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Movement Repo ---

type inMemoryMovementRepo struct {
	mu        sync.RWMutex
	movements map[uuid.UUID]*domain.Movement
	wallets   *inMemoryWalletRepo // user filter resolves through wallets, like the SQL join
}

func newInMemoryMovementRepo(wallets *inMemoryWalletRepo) *inMemoryMovementRepo {
	return &inMemoryMovementRepo{
		movements: make(map[uuid.UUID]*domain.Movement),
		wallets:   wallets,
	}
}

func (r *inMemoryMovementRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.movements[m.ID] = &cp
	return nil
}

func (r *inMemoryMovementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.movements[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *inMemoryMovementRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Movement, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryMovementRepo) ListForBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Movement
	for _, m := range r.movements {
		if m.WalletID == walletID {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (r *inMemoryMovementRepo) AttachOrder(ctx context.Context, tx pgx.Tx, movementID, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movements[movementID]
	if !ok || m.OrderID != nil {
		return fmt.Errorf("movement already attached or not found")
	}
	m.OrderID = &orderID
	return nil
}

func (r *inMemoryMovementRepo) DeleteReservation(ctx context.Context, tx pgx.Tx, movementID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movements[movementID]
	if !ok || !m.IsReservation() {
		return fmt.Errorf("reservation not found")
	}
	delete(r.movements, movementID)
	return nil
}

func (r *inMemoryMovementRepo) List(ctx context.Context, params ports.MovementListParams) ([]domain.Movement, int64, error) {
	walletID := params.WalletID
	if params.UserID != nil {
		w, _ := r.wallets.GetByUserID(ctx, *params.UserID)
		if w == nil {
			return []domain.Movement{}, 0, nil
		}
		walletID = &w.ID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Movement
	for _, m := range r.movements {
		if walletID != nil && m.WalletID != *walletID {
			continue
		}
		if params.Type != nil && m.Type != *params.Type {
			continue
		}
		if params.From != nil && m.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && m.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	// Simple pagination
	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Movement{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryMovementRepo) ExportRows(ctx context.Context, params ports.MovementListParams) ([]ports.MovementExportRow, error) {
	movements, _, err := r.List(ctx, ports.MovementListParams{
		WalletID: params.WalletID,
		UserID:   params.UserID,
		Type:     params.Type,
		From:     params.From,
		To:       params.To,
		Page:     1,
		PageSize: len(r.movements) + 1,
	})
	if err != nil {
		return nil, err
	}
	rows := make([]ports.MovementExportRow, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, ports.MovementExportRow{Movement: m})
	}
	return rows, nil
}

func (r *inMemoryMovementRepo) HeavyAdjusters(ctx context.Context, minAdjustments int) ([]ports.HeavyAdjuster, error) {
	return nil, nil
}

func (r *inMemoryMovementRepo) LargeMovements(ctx context.Context, minAmount decimal.Decimal, limit int) ([]ports.LargeMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []ports.LargeMovement
	for _, m := range r.movements {
		if m.Amount.Abs().GreaterThanOrEqual(minAmount) {
			result = append(result, ports.LargeMovement{Movement: *m})
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *inMemoryMovementRepo) StaleReservations(ctx context.Context, olderThan time.Time) ([]domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Movement
	for _, m := range r.movements {
		if m.IsReservation() && m.CreatedAt.Before(olderThan) {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (r *inMemoryMovementRepo) ExpiringCredits(ctx context.Context, now, until time.Time) ([]ports.ExpiringCredit, error) {
	return nil, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryAuditRepo) all() []domain.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditLogEntry(nil), r.entries...)
}

// --- In-Memory User Directory ---

type inMemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func newInMemoryUserDirectory() *inMemoryUserDirectory {
	return &inMemoryUserDirectory{users: make(map[uuid.UUID]*domain.User)}
}

func (r *inMemoryUserDirectory) add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *inMemoryUserDirectory) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (r *inMemoryUserDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, nil
}

// --- In-Memory Settings Store ---

type inMemorySettingsStore struct {
	expirationDays int
	maxManualLoad  *decimal.Decimal
}

func (s *inMemorySettingsStore) ExpirationDays(ctx context.Context) (int, error) {
	return s.expirationDays, nil
}

func (s *inMemorySettingsStore) MaxManualLoad(ctx context.Context) (*decimal.Decimal, error) {
	return s.maxManualLoad, nil
}

// --- Serializing Transactor ---

// serializingTransactor hands out transactions one at a time. Commit and
// Rollback both release; the release fires once regardless of order.
type serializingTransactor struct {
	mu sync.Mutex
}

func newSerializingTransactor() *serializingTransactor {
	return &serializingTransactor{}
}

func (t *serializingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: sync.OnceFunc(t.mu.Unlock)}, nil
}

// memTx is a pgx.Tx implementation that only tracks transaction lifetime.
type memTx struct {
	release func()
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error {
	t.release()
	return nil
}
func (t *memTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
