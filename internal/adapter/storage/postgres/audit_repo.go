package postgres

import (
	"context"
	"fmt"

	"pesos-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AuditLogRepo implements ports.AuditLogRepository.
type AuditLogRepo struct {
	pool Pool
}

// NewAuditLogRepo creates a new AuditLogRepo.
func NewAuditLogRepo(pool Pool) *AuditLogRepo {
	return &AuditLogRepo{pool: pool}
}

// Create inserts an audit entry in the same transaction as the movement it
// describes, so the record and its effect commit or roll back together.
func (r *AuditLogRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.AuditLogEntry) error {
	query := `INSERT INTO audit_log (id, admin_user_id, action, entity, entity_id, movement_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		entry.ID, entry.AdminUserID, string(entry.Action), entry.Entity,
		entry.EntityID, entry.MovementID, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
