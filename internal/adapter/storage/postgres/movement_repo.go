package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const movementColumns = `m.id, m.wallet_id, m.movement_type, m.amount, m.description, m.order_id, m.created_at, m.expires_at`

// creditTypeList matches domain credit polarity; keep in sync with
// MovementType.Polarity.
const creditTypeList = `('manual_credit', 'cashback', 'refund', 'transfer_in', 'accreditation')`

// MovementRepo implements ports.MovementRepository.
type MovementRepo struct {
	pool Pool
}

// NewMovementRepo creates a new MovementRepo.
func NewMovementRepo(pool Pool) *MovementRepo {
	return &MovementRepo{pool: pool}
}

// Create inserts a new movement within a database transaction.
func (r *MovementRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error {
	query := `INSERT INTO movements (id, wallet_id, movement_type, amount, description, order_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		m.ID, m.WalletID, m.Type, m.Amount,
		m.Description, m.OrderID, m.CreatedAt, m.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetByID fetches a movement by UUID.
func (r *MovementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Movement, error) {
	query := fmt.Sprintf(`SELECT %s FROM movements m WHERE m.id = $1`, movementColumns)

	return r.scanMovement(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a movement with pessimistic locking.
// This MUST be called within a transaction.
func (r *MovementRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Movement, error) {
	query := fmt.Sprintf(`SELECT %s FROM movements m WHERE m.id = $1 FOR UPDATE`, movementColumns)

	return r.scanMovement(tx.QueryRow(ctx, query, id))
}

// ListForBalance fetches a wallet's full movement history inside the current
// transaction, in insertion order. Input to the balance fold.
func (r *MovementRepo) ListForBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]domain.Movement, error) {
	query := fmt.Sprintf(`SELECT %s FROM movements m WHERE m.wallet_id = $1 ORDER BY m.created_at`, movementColumns)

	rows, err := tx.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list movements for balance: %w", err)
	}
	defer rows.Close()

	return r.collectMovements(rows)
}

// AttachOrder links a reservation to the order it funded. The guard on
// order_id IS NULL keeps the write idempotent against racing attach calls;
// the service layer resolves conflicts before calling this.
func (r *MovementRepo) AttachOrder(ctx context.Context, tx pgx.Tx, movementID, orderID uuid.UUID) error {
	query := `UPDATE movements SET order_id = $1 WHERE id = $2 AND order_id IS NULL`

	tag, err := tx.Exec(ctx, query, orderID, movementID)
	if err != nil {
		return fmt.Errorf("attach order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("movement not attachable: %s", movementID)
	}
	return nil
}

// DeleteReservation removes a pending reservation. Attached movements are
// immutable and never match the guard.
func (r *MovementRepo) DeleteReservation(ctx context.Context, tx pgx.Tx, movementID uuid.UUID) error {
	query := `DELETE FROM movements WHERE id = $1 AND movement_type = 'order_payment' AND order_id IS NULL`

	tag, err := tx.Exec(ctx, query, movementID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation not deletable: %s", movementID)
	}
	return nil
}

// List fetches movements with filtering and pagination, newest first.
func (r *MovementRepo) List(ctx context.Context, params ports.MovementListParams) ([]domain.Movement, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.WalletID != nil {
		conditions = append(conditions, fmt.Sprintf("m.wallet_id = $%d", argIdx))
		args = append(args, *params.WalletID)
		argIdx++
	}
	if params.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("w.user_id = $%d", argIdx))
		args = append(args, *params.UserID)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("m.movement_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("m.created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("m.created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM movements m JOIN wallets w ON w.id = m.wallet_id %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM movements m JOIN wallets w ON w.id = m.wallet_id %s
		ORDER BY m.created_at DESC LIMIT $%d OFFSET $%d`, movementColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements, err := r.collectMovements(rows)
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// ExportRows fetches movements joined with the owning user and the audit
// entry that produced them, for the CSV export. No pagination; the export
// streams everything the filters match.
func (r *MovementRepo) ExportRows(ctx context.Context, params ports.MovementListParams) ([]ports.MovementExportRow, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("w.user_id = $%d", argIdx))
		args = append(args, *params.UserID)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("m.movement_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("m.created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("m.created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s,
		u.first_name || ' ' || u.last_name, u.email,
		COALESCE(a.details->>'reason', ''), COALESCE(a.details->>'internal_comment', ''),
		COALESCE(admin_u.email, '')
		FROM movements m
		JOIN wallets w ON w.id = m.wallet_id
		JOIN users u ON u.id = w.user_id
		LEFT JOIN audit_log a ON a.movement_id = m.id
		LEFT JOIN users admin_u ON admin_u.id = a.admin_user_id
		%s ORDER BY m.created_at DESC`, movementColumns, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export movements: %w", err)
	}
	defer rows.Close()

	var out []ports.MovementExportRow
	for rows.Next() {
		var row ports.MovementExportRow
		m := &row.Movement
		err := rows.Scan(
			&m.ID, &m.WalletID, &m.Type, &m.Amount, &m.Description, &m.OrderID, &m.CreatedAt, &m.ExpiresAt,
			&row.UserName, &row.UserEmail, &row.Reason, &row.InternalComment, &row.AdminEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export movements rows: %w", err)
	}
	return out, nil
}

// HeavyAdjusters finds users whose manual adjustment count reached the
// threshold, busiest first.
func (r *MovementRepo) HeavyAdjusters(ctx context.Context, minAdjustments int) ([]ports.HeavyAdjuster, error) {
	query := `SELECT w.user_id, u.first_name, u.last_name, u.email, COUNT(*) AS adjustments
		FROM movements m
		JOIN wallets w ON w.id = m.wallet_id
		JOIN users u ON u.id = w.user_id
		WHERE m.movement_type IN ('manual_credit', 'manual_debit')
		GROUP BY w.user_id, u.first_name, u.last_name, u.email
		HAVING COUNT(*) >= $1
		ORDER BY adjustments DESC`

	rows, err := r.pool.Query(ctx, query, minAdjustments)
	if err != nil {
		return nil, fmt.Errorf("heavy adjusters: %w", err)
	}
	defer rows.Close()

	var out []ports.HeavyAdjuster
	for rows.Next() {
		var h ports.HeavyAdjuster
		if err := rows.Scan(&h.UserID, &h.FirstName, &h.LastName, &h.Email, &h.AdjustmentCount); err != nil {
			return nil, fmt.Errorf("scan heavy adjuster: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("heavy adjusters rows: %w", err)
	}
	return out, nil
}

// LargeMovements finds movements whose absolute amount reached the
// threshold, largest first, capped at limit.
func (r *MovementRepo) LargeMovements(ctx context.Context, minAmount decimal.Decimal, limit int) ([]ports.LargeMovement, error) {
	query := fmt.Sprintf(`SELECT %s, w.user_id, u.first_name, u.last_name, u.email
		FROM movements m
		JOIN wallets w ON w.id = m.wallet_id
		JOIN users u ON u.id = w.user_id
		WHERE ABS(m.amount) >= $1
		ORDER BY ABS(m.amount) DESC
		LIMIT $2`, movementColumns)

	rows, err := r.pool.Query(ctx, query, minAmount, limit)
	if err != nil {
		return nil, fmt.Errorf("large movements: %w", err)
	}
	defer rows.Close()

	var out []ports.LargeMovement
	for rows.Next() {
		var lm ports.LargeMovement
		m := &lm.Movement
		err := rows.Scan(
			&m.ID, &m.WalletID, &m.Type, &m.Amount, &m.Description, &m.OrderID, &m.CreatedAt, &m.ExpiresAt,
			&lm.UserID, &lm.FirstName, &lm.LastName, &lm.Email,
		)
		if err != nil {
			return nil, fmt.Errorf("scan large movement: %w", err)
		}
		out = append(out, lm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("large movements rows: %w", err)
	}
	return out, nil
}

// StaleReservations finds order_payment holds never attached to an order,
// older than the given cutoff. Oldest first.
func (r *MovementRepo) StaleReservations(ctx context.Context, olderThan time.Time) ([]domain.Movement, error) {
	query := fmt.Sprintf(`SELECT %s FROM movements m
		WHERE m.movement_type = 'order_payment' AND m.order_id IS NULL AND m.created_at < $1
		ORDER BY m.created_at`, movementColumns)

	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("stale reservations: %w", err)
	}
	defer rows.Close()

	return r.collectMovements(rows)
}

// ExpiringCredits aggregates, per user, positive credit amounts expiring in
// (now, until], soonest expiry first.
func (r *MovementRepo) ExpiringCredits(ctx context.Context, now, until time.Time) ([]ports.ExpiringCredit, error) {
	query := fmt.Sprintf(`SELECT w.user_id, u.email, u.first_name, u.last_name,
		SUM(m.amount) AS expiring, MIN(m.expires_at) AS earliest
		FROM movements m
		JOIN wallets w ON w.id = m.wallet_id
		JOIN users u ON u.id = w.user_id
		WHERE m.movement_type IN %s
		  AND m.amount > 0
		  AND m.expires_at IS NOT NULL
		  AND m.expires_at > $1 AND m.expires_at <= $2
		GROUP BY w.user_id, u.email, u.first_name, u.last_name
		ORDER BY earliest`, creditTypeList)

	rows, err := r.pool.Query(ctx, query, now, until)
	if err != nil {
		return nil, fmt.Errorf("expiring credits: %w", err)
	}
	defer rows.Close()

	var out []ports.ExpiringCredit
	for rows.Next() {
		var ec ports.ExpiringCredit
		if err := rows.Scan(&ec.UserID, &ec.Email, &ec.FirstName, &ec.LastName, &ec.ExpiringBalance, &ec.EarliestExpiry); err != nil {
			return nil, fmt.Errorf("scan expiring credit: %w", err)
		}
		out = append(out, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expiring credits rows: %w", err)
	}
	return out, nil
}

func (r *MovementRepo) scanMovement(row pgx.Row) (*domain.Movement, error) {
	m := &domain.Movement{}
	err := row.Scan(
		&m.ID, &m.WalletID, &m.Type, &m.Amount,
		&m.Description, &m.OrderID, &m.CreatedAt, &m.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan movement: %w", err)
	}
	return m, nil
}

func (r *MovementRepo) collectMovements(rows pgx.Rows) ([]domain.Movement, error) {
	var movements []domain.Movement
	for rows.Next() {
		var m domain.Movement
		err := rows.Scan(
			&m.ID, &m.WalletID, &m.Type, &m.Amount,
			&m.Description, &m.OrderID, &m.CreatedAt, &m.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("movement rows: %w", err)
	}
	return movements, nil
}
