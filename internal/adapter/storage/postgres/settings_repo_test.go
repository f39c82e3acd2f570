package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRepo_ExpirationDays(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepo(mock, 0)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(settingExpirationDays).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("365"))

	days, err := repo.ExpirationDays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 365, days)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_ExpirationDays_MissingUsesDefault(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepo(mock, 90)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(settingExpirationDays).
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	days, err := repo.ExpirationDays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90, days)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_ExpirationDays_NegativeClampedToNever(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepo(mock, 30)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(settingExpirationDays).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("-5"))

	days, err := repo.ExpirationDays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, days)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_MaxManualLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepo(mock, 0)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(settingMaxManualLoad).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("10000.00"))

	limit, err := repo.MaxManualLoad(context.Background())
	require.NoError(t, err)
	require.NotNil(t, limit)
	assert.True(t, decimal.RequireFromString("10000.00").Equal(*limit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_MaxManualLoad_AbsentMeansUnlimited(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepo(mock, 0)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(settingMaxManualLoad).
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	limit, err := repo.MaxManualLoad(context.Background())
	require.NoError(t, err)
	assert.Nil(t, limit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepo_MaxManualLoad_Garbage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepo(mock, 0)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(settingMaxManualLoad).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("not-a-number"))

	_, err = repo.MaxManualLoad(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
