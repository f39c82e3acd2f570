package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	settingExpirationDays = "wallet.expiration_days"
	settingMaxManualLoad  = "max_manual_wallet_load"
)

// SettingsRepo implements ports.SettingsStore against the shared
// system_settings table. Values are resolved per call; operations always see
// the current setting, never a process-start snapshot.
type SettingsRepo struct {
	pool Pool
	// defaultExpirationDays applies when the store has no
	// wallet.expiration_days row. Zero means credits never expire.
	defaultExpirationDays int
}

// NewSettingsRepo creates a new SettingsRepo.
func NewSettingsRepo(pool Pool, defaultExpirationDays int) *SettingsRepo {
	return &SettingsRepo{pool: pool, defaultExpirationDays: defaultExpirationDays}
}

// ExpirationDays returns the configured credit expiration window in days.
func (r *SettingsRepo) ExpirationDays(ctx context.Context) (int, error) {
	raw, found, err := r.get(ctx, settingExpirationDays)
	if err != nil {
		return 0, err
	}
	if !found || raw == "" {
		return r.defaultExpirationDays, nil
	}

	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", settingExpirationDays, err)
	}
	if days < 0 {
		days = 0
	}
	return days, nil
}

// MaxManualLoad returns the maximum single manual credit amount, or nil when
// the setting is absent or blank (unlimited).
func (r *SettingsRepo) MaxManualLoad(ctx context.Context) (*decimal.Decimal, error) {
	raw, found, err := r.get(ctx, settingMaxManualLoad)
	if err != nil {
		return nil, err
	}
	if !found || raw == "" {
		return nil, nil
	}

	max, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", settingMaxManualLoad, err)
	}
	return &max, nil
}

func (r *SettingsRepo) get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM system_settings WHERE key = $1`

	var value string
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}
