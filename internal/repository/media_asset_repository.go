package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/clipperhq/clippost/internal/models"
)

type MediaAssetRepository interface {
	GetByID(ctx context.Context, id int64) (*models.MediaAsset, error)
}

type mediaAssetRepository struct {
	db *sql.DB
}

func NewMediaAssetRepository(db *sql.DB) MediaAssetRepository {
	return &mediaAssetRepository{db: db}
}

func (r *mediaAssetRepository) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	query := `SELECT id, user_id, storage_key, file_url, kind, content_type, width, height,
		duration_seconds, size_bytes, children, created_at
		FROM media_assets WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var ma models.MediaAsset
	err := row.Scan(&ma.ID, &ma.UserID, &ma.StorageKey, &ma.FileURL, &ma.Kind,
		&ma.ContentType, &ma.Width, &ma.Height, &ma.DurationSeconds, &ma.SizeBytes,
		&ma.Children, &ma.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &ma, nil
}
