package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction tags the administrative action an audit entry records.
type AuditAction string

const (
	AuditActionManualCredit AuditAction = "wallet_manual_credit"
	AuditActionManualDebit  AuditAction = "wallet_manual_debit"
	AuditActionBlock        AuditAction = "wallet_block"
	AuditActionUnblock      AuditAction = "wallet_unblock"
)

// AuditLogEntry is an immutable record correlating an administrative action
// to its effect. MovementID is a direct foreign key to the movement written
// in the same transaction; block/unblock entries carry none.
type AuditLogEntry struct {
	ID          uuid.UUID              `json:"id"`
	AdminUserID uuid.UUID              `json:"admin_user_id"`
	Action      AuditAction            `json:"action"`
	Entity      string                 `json:"entity"`
	EntityID    uuid.UUID              `json:"entity_id"`
	MovementID  *uuid.UUID             `json:"movement_id,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
