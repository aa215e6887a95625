package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	PlatformInstagram = "instagram"
	PlatformYoutube   = "youtube"
	PlatformTiktok    = "tiktok"
	PlatformLinkedin  = "linkedin"
)

type Account struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	ProfilePicture  string    `db:"profile_picture_url" json:"profile_picture"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"`
	TokenExpiresAt  time.Time `db:"token_expires_at" json:"token_expires_at"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	Metadata        *PlatformMetadata
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PlatformMetadata is the decoded metadata JSONB column. Exactly one of the
// platform fields is set, matching the account's platform.
type PlatformMetadata struct {
	Instagram *InstagramMetadata `json:"instagram,omitempty"`
	Youtube   *YoutubeMetadata   `json:"youtube,omitempty"`
	Tiktok    *TiktokMetadata    `json:"tiktok,omitempty"`
	Linkedin  *LinkedinMetadata  `json:"linkedin,omitempty"`
}

type InstagramMetadata struct {
	BusinessAccountID string `json:"business_account_id"`
	FacebookPageID    string `json:"facebook_page_id"`
	// PageAccessToken is AES-GCM ciphertext, same scheme as the token columns.
	PageAccessToken string `json:"page_access_token"`
}

type YoutubeMetadata struct {
	ChannelID string `json:"channel_id"`
}

type TiktokMetadata struct {
	OpenID string `json:"open_id"`
}

type LinkedinMetadata struct {
	PersonURN string `json:"person_urn"`
}

func (m *PlatformMetadata) Validate(platform string) error {
	if m == nil {
		return errors.New("account metadata is missing")
	}
	switch platform {
	case PlatformInstagram:
		if m.Instagram == nil || m.Instagram.BusinessAccountID == "" {
			return errors.New("instagram metadata missing business_account_id")
		}
	case PlatformYoutube:
		if m.Youtube == nil {
			return errors.New("youtube metadata is missing")
		}
	case PlatformTiktok:
		if m.Tiktok == nil || m.Tiktok.OpenID == "" {
			return errors.New("tiktok metadata missing open_id")
		}
	case PlatformLinkedin:
		if m.Linkedin == nil || m.Linkedin.PersonURN == "" {
			return errors.New("linkedin metadata missing person_urn")
		}
	default:
		return fmt.Errorf("unsupported platform: %s", platform)
	}
	return nil
}

func DecodeMetadata(raw []byte, platform string) (*PlatformMetadata, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var m PlatformMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(platform); err != nil {
		return nil, err
	}
	return &m, nil
}

func EncodeMetadata(m *PlatformMetadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
