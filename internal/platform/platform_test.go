package platform

import (
	"bytes"
	"context"
	"io"

	"github.com/clipperhq/clippost/internal/models"
)

// fakeStore serves a fixed payload in place of the S3 bucket.
type fakeStore struct {
	data        []byte
	contentType string
}

func (f *fakeStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(f.data)), int64(len(f.data)), nil
}

func (f *fakeStore) GetBytes(ctx context.Context, key string) ([]byte, string, error) {
	return f.data, f.contentType, nil
}

func testRequest(platform, kind string) *PublishRequest {
	metadata := &models.PlatformMetadata{}
	switch platform {
	case models.PlatformInstagram:
		metadata.Instagram = &models.InstagramMetadata{BusinessAccountID: "ig-biz-1", FacebookPageID: "page-1"}
	case models.PlatformYoutube:
		metadata.Youtube = &models.YoutubeMetadata{ChannelID: "chan-1"}
	case models.PlatformTiktok:
		metadata.Tiktok = &models.TiktokMetadata{OpenID: "open-1"}
	case models.PlatformLinkedin:
		metadata.Linkedin = &models.LinkedinMetadata{PersonURN: "urn:li:person:abc"}
	}

	return &PublishRequest{
		Post: &models.Post{
			ID:       42,
			Platform: platform,
			Title:    "Morning routine",
			Caption:  "A new clip",
			Hashtags: "#golang",
			Status:   models.PostStatusScheduled,
		},
		Account: &models.Account{
			ID:              7,
			Platform:        platform,
			AccountUsername: "clipper",
			Metadata:        metadata,
		},
		Media: &models.MediaAsset{
			ID:          3,
			StorageKey:  "media/clip.mp4",
			FileURL:     "https://media.example.com/clip.mp4",
			Kind:        kind,
			ContentType: "video/mp4",
			SizeBytes:   1024,
		},
		AccessToken: "token-plain",
	}
}
