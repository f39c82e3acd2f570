package domain

import "github.com/google/uuid"

// User is the slice of the external user directory the ledger needs:
// identity and the email used for transfer recipient lookup. Read-only here.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}
