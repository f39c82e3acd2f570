package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is a user's Pesos store-credit account. Balance is a cache of
// ComputeBalance over the wallet's movements, refreshed inside every
// mutating transaction; it is never the source of truth.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	IsBlocked bool            `json:"is_blocked"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewWallet creates an empty, unblocked wallet for a user. Wallets are
// created lazily on the first ledger operation and never deleted.
func NewWallet(userID uuid.UUID) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		IsBlocked: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ComputeBalance derives the spendable balance from a movement history.
//
// Credit-typed movements with a positive amount count when includeExpired is
// set, when they carry no expiry, or when the expiry is still in the future.
// Debit-typed movements always contribute -abs(amount): the write boundary
// stores debits negative, but rows imported from the legacy system may carry
// positive debit amounts, so the fold normalizes the sign on read.
//
// includeExpired=true is for internal reconciliation (did the grant exist);
// user- and admin-facing balances always pass false.
func ComputeBalance(movements []Movement, includeExpired bool, now time.Time) decimal.Decimal {
	credits := decimal.Zero
	debits := decimal.Zero

	for i := range movements {
		m := &movements[i]
		switch m.Type.Polarity() {
		case CreditPolarity:
			if m.Amount.IsPositive() && (includeExpired || !m.Expired(now)) {
				credits = credits.Add(m.Amount)
			}
		case DebitPolarity:
			debits = debits.Sub(m.Amount.Abs())
		}
	}

	return credits.Add(debits)
}
