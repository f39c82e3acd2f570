package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet Ledger Business Logic (WAL) ----

func ErrWalletBlocked() *AppError {
	return New("WAL_001", "Wallet is blocked", http.StatusForbidden)
}

func ErrInvalidAmount() *AppError {
	return New("WAL_002", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrMissingReason() *AppError {
	return New("WAL_003", "A reason is required", http.StatusBadRequest)
}

func ErrMissingInternalComment() *AppError {
	return New("WAL_004", "An internal comment is required for debits", http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New("WAL_005", "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrRecipientNotFound() *AppError {
	return New("WAL_006", "Recipient not found", http.StatusNotFound)
}

func ErrSelfTransfer() *AppError {
	return New("WAL_007", "Cannot transfer balance to your own account", http.StatusBadRequest)
}

func ErrReconciliationConflict(detail string) *AppError {
	return New("WAL_008", fmt.Sprintf("Reservation conflict: %s", detail), http.StatusConflict)
}

func ErrManualLoadLimitExceeded() *AppError {
	return New("WAL_009", "Amount exceeds the maximum manual load", http.StatusUnprocessableEntity)
}

func ErrNotFound(entity string) *AppError {
	return New("WAL_010", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Identity (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAdminRequired() *AppError {
	return New("AUTH_002", "Administrator privileges required", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// Validation returns a WAL_002-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("WAL_002", message, http.StatusBadRequest)
}
