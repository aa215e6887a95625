package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clippost/internal/models"
)

func accountRows(expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "platform", "account_id", "account_name", "account_username",
		"profile_picture_url", "access_token", "refresh_token", "token_expires_at",
		"is_active", "metadata", "created_at", "updated_at",
	}).AddRow(
		1, 10, "tiktok", "open-1", "Clipper", "clipper",
		"https://p.example.com/a.jpg", "cipher-a", "cipher-r", expiresAt,
		true, []byte(`{"tiktok":{"open_id":"open-1"}}`), time.Now(), time.Now(),
	)
}

func TestAccountGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expiresAt := time.Now().Add(time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id =").
		WithArgs(int64(1)).
		WillReturnRows(accountRows(expiresAt))

	repo := NewAccountRepository(db)
	acc, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, acc)

	assert.Equal(t, "tiktok", acc.Platform)
	assert.Equal(t, "cipher-a", acc.AccessToken)
	require.NotNil(t, acc.Metadata.Tiktok)
	assert.Equal(t, "open-1", acc.Metadata.Tiktok.OpenID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id =").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewAccountRepository(db)
	acc, err := repo.GetByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestAccountSetTokenGuardedByExpiry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	prev := time.Now()
	next := prev.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").
		WithArgs(int64(1), prev, "new-cipher", "new-refresh-cipher", next).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewAccountRepository(db)
	err = repo.SetToken(context.Background(), 1, prev, "new-cipher", "new-refresh-cipher", next)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountSetTokenLosesRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	prev := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewAccountRepository(db)
	err = repo.SetToken(context.Background(), 1, prev, "a", "b", prev.Add(time.Hour))
	require.Error(t, err)
}

func TestAccountListExpiringBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(30 * time.Minute)
	mock.ExpectQuery("SELECT (.+) FROM accounts").
		WithArgs(cutoff).
		WillReturnRows(accountRows(time.Now().Add(10 * time.Minute)))

	repo := NewAccountRepository(db)
	accounts, err := repo.ListExpiringBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsActive)
}

func TestAccountDeactivate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE accounts SET is_active = FALSE").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAccountRepository(db)
	require.NoError(t, repo.Deactivate(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountMetadataValidationOnLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "platform", "account_id", "account_name", "account_username",
		"profile_picture_url", "access_token", "refresh_token", "token_expires_at",
		"is_active", "metadata", "created_at", "updated_at",
	}).AddRow(
		1, 10, models.PlatformInstagram, "ig-1", "Clipper", "clipper",
		"", "cipher-a", "", time.Now(), true, []byte(`{}`), time.Now(), time.Now(),
	)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id =").
		WillReturnRows(rows)

	repo := NewAccountRepository(db)
	_, err = repo.GetByID(context.Background(), 1)
	require.Error(t, err, "instagram account without business_account_id must not load")
}
