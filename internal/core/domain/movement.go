package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType identifies the kind of balance-affecting event. The set is
// closed; each type maps statically to a credit or debit polarity.
type MovementType string

const (
	MovementManualCredit  MovementType = "manual_credit"
	MovementManualDebit   MovementType = "manual_debit"
	MovementCashback      MovementType = "cashback"
	MovementRefund        MovementType = "refund"
	MovementTransferIn    MovementType = "transfer_in"
	MovementTransferOut   MovementType = "transfer_out"
	MovementOrderPayment  MovementType = "order_payment"
	MovementPurchase      MovementType = "purchase"
	MovementPayment       MovementType = "payment"
	MovementAccreditation MovementType = "accreditation"
)

// Polarity is the direction a movement type pushes the balance.
type Polarity int

const (
	CreditPolarity Polarity = iota + 1
	DebitPolarity
)

// Polarity returns the static polarity of the movement type. Unknown types
// (legacy rows imported from the previous system) count as debits so they
// can never inflate a balance.
func (t MovementType) Polarity() Polarity {
	switch t {
	case MovementManualCredit, MovementCashback, MovementRefund, MovementTransferIn, MovementAccreditation:
		return CreditPolarity
	default:
		return DebitPolarity
	}
}

// Valid reports whether t is a member of the closed type set.
func (t MovementType) Valid() bool {
	switch t {
	case MovementManualCredit, MovementManualDebit, MovementCashback, MovementRefund,
		MovementTransferIn, MovementTransferOut, MovementOrderPayment,
		MovementPurchase, MovementPayment, MovementAccreditation:
		return true
	}
	return false
}

// Movement is one immutable ledger entry. Amount is signed: credit types are
// stored positive, debit types negative (enforced at the write boundary).
// The only permitted mutation after insert is attaching an order reference
// to an order_payment reservation.
type Movement struct {
	ID          uuid.UUID       `json:"id"`
	WalletID    uuid.UUID       `json:"wallet_id"`
	Type        MovementType    `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"` // credit types only; nil = never expires
}

// Expired reports whether the movement's credit has lapsed at the given
// instant. Expiry is computed, never stored.
func (m *Movement) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// IsReservation reports whether the movement is an order-payment debit that
// has not yet been attached to an order.
func (m *Movement) IsReservation() bool {
	return m.Type == MovementOrderPayment && m.OrderID == nil
}
