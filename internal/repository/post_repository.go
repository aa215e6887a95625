package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/clipperhq/clippost/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT id, user_id, account_id, media_id, platform, title, caption, hashtags,
		status, platform_post_id, platform_url, error_message, scheduled_for, published_at,
		created_at, updated_at
		FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var p models.Post
	err := row.Scan(&p.ID, &p.UserID, &p.AccountID, &p.MediaID, &p.Platform, &p.Title,
		&p.Caption, &p.Hashtags, &p.Status, &p.PlatformPostID, &p.PlatformURL,
		&p.ErrorMessage, &p.ScheduledFor, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &p, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE posts SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string) error {
	query := `UPDATE posts
		SET status = $2,
			platform_post_id = $3,
			platform_url = $4,
			error_message = NULL,
			published_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, models.PostStatusPublished, platformPostID, platformURL)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `UPDATE posts
		SET status = $2,
			error_message = $3,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, models.PostStatusFailed, errorMessage)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
