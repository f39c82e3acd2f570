package domain

import "time"

// ExpirationPolicy computes when a freshly granted credit stops counting
// toward the balance. The window is an explicit value resolved from the
// settings store at call time; there is no process-wide default.
type ExpirationPolicy struct {
	WindowDays int
}

// ExpiryFrom returns the expiration timestamp for a credit granted at the
// given instant, or nil when the configured window is absent or non-positive
// (the credit never expires).
func (p ExpirationPolicy) ExpiryFrom(grantedAt time.Time) *time.Time {
	if p.WindowDays <= 0 {
		return nil
	}
	t := grantedAt.AddDate(0, 0, p.WindowDays)
	return &t
}

// EndOfDay pins an explicit caller-supplied expiration date to 23:59:59 UTC
// of that calendar day, so a credit expiring "on the 31st" is usable through
// the whole day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
