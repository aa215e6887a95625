package models

import (
	"encoding/json"
	"time"
)

const (
	MediaKindImage    = "image"
	MediaKindVideo    = "video"
	MediaKindCarousel = "carousel"
	MediaKindStory    = "story"
)

// MediaAsset rows are immutable once uploaded.
type MediaAsset struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	StorageKey      string    `db:"storage_key" json:"storage_key"`
	FileURL         string    `db:"file_url" json:"file_url"`
	Kind            string    `db:"kind" json:"kind"`
	ContentType     string    `db:"content_type" json:"content_type"`
	Width           int       `db:"width" json:"width"`
	Height          int       `db:"height" json:"height"`
	DurationSeconds float64   `db:"duration_seconds" json:"duration_seconds"`
	SizeBytes       int64     `db:"size_bytes" json:"size_bytes"`
	Children        string    `db:"children" json:"children"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type CarouselChild struct {
	StorageKey string `json:"storage_key"`
	FileURL    string `json:"file_url"`
	Kind       string `json:"kind"`
}

func (m *MediaAsset) CarouselChildren() ([]CarouselChild, error) {
	if m.Children == "" {
		return nil, nil
	}
	var children []CarouselChild
	if err := json.Unmarshal([]byte(m.Children), &children); err != nil {
		return nil, err
	}
	return children, nil
}

func (m *MediaAsset) IsVideo() bool {
	return m.Kind == MediaKindVideo
}
