package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/clipperhq/clippost/internal/models"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.Account, error)
	SetToken(ctx context.Context, accountID int64, prevExpiresAt time.Time, access, refresh string, expiresAt time.Time) error
	SetMetadata(ctx context.Context, accountID int64, metadata []byte) error
	Deactivate(ctx context.Context, accountID int64) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, user_id, platform, account_id, account_name, account_username,
	profile_picture_url, access_token, refresh_token, token_expires_at, is_active,
	metadata, created_at, updated_at`

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	acc, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return acc, nil
}

func (r *accountRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE is_active = TRUE AND token_expires_at < $1`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

// SetToken replaces token ciphertexts only if token_expires_at still matches the
// value the caller read. A racing refresh that already advanced the expiry wins.
func (r *accountRepository) SetToken(ctx context.Context, accountID int64, prevExpiresAt time.Time, access, refresh string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND token_expires_at = $2;
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, accountID, prevExpiresAt, access, refresh, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("token update skipped; expiry already advanced by another refresh")
		return errors.New("token update skipped; expiry already advanced by another refresh")
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) SetMetadata(ctx context.Context, accountID int64, metadata []byte) error {
	query := `UPDATE accounts SET metadata = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID, metadata)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) Deactivate(ctx context.Context, accountID int64) error {
	query := `UPDATE accounts SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var acc models.Account
	var rawMetadata []byte
	err := row.Scan(&acc.ID, &acc.UserID, &acc.Platform, &acc.AccountID, &acc.AccountName,
		&acc.AccountUsername, &acc.ProfilePicture, &acc.AccessToken, &acc.RefreshToken,
		&acc.TokenExpiresAt, &acc.IsActive, &rawMetadata, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	metadata, err := models.DecodeMetadata(rawMetadata, acc.Platform)
	if err != nil {
		return nil, err
	}
	acc.Metadata = metadata

	return &acc, nil
}
