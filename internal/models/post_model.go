package models

import (
	"database/sql"
	"time"
)

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

type Post struct {
	ID             int64          `db:"id" json:"id"`
	UserID         int64          `db:"user_id" json:"user_id"`
	AccountID      int64          `db:"account_id" json:"account_id"`
	MediaID        int64          `db:"media_id" json:"media_id"`
	Platform       string         `db:"platform" json:"platform"`
	Title          string         `db:"title" json:"title"`
	Caption        string         `db:"caption" json:"caption"`
	Hashtags       string         `db:"hashtags" json:"hashtags"`
	Status         string         `db:"status" json:"status"`
	PlatformPostID sql.NullString `db:"platform_post_id" json:"platform_post_id"`
	PlatformURL    sql.NullString `db:"platform_url" json:"platform_url"`
	ErrorMessage   sql.NullString `db:"error_message" json:"error_message"`
	ScheduledFor   sql.NullTime   `db:"scheduled_for" json:"scheduled_for"`
	PublishedAt    sql.NullTime   `db:"published_at" json:"published_at"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Publishable reports whether a publish attempt may start from the post's
// current status. Published posts are terminal.
func (p *Post) Publishable() bool {
	switch p.Status {
	case PostStatusDraft, PostStatusScheduled, PostStatusFailed:
		return true
	}
	return false
}
