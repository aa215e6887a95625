package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/youtube/v3"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/transfer"
	"github.com/clipperhq/clippost/internal/upload"
)

const (
	defaultYoutubeUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"

	youtubeChunkSize      = 8 * 1024 * 1024
	youtubeMaxTitle       = 100
	youtubeMaxShortTitle  = 92
	youtubeMaxDesc        = 5000
	youtubeCategoryPeople = "22"
)

// MediaStore is the slice of the storage service adapters stream media from.
type MediaStore interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)
	GetBytes(ctx context.Context, key string) ([]byte, string, error)
}

// YoutubeAdapter drives the resumable upload protocol. The final chunk
// response carries the Video resource, so AwaitReady and Finalize have no
// remote calls of their own.
type YoutubeAdapter struct {
	client    *http.Client
	uploader  *upload.Uploader
	store     MediaStore
	uploadURL string
}

func NewYoutubeAdapter(client *http.Client, uploader *upload.Uploader, store MediaStore) *YoutubeAdapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &YoutubeAdapter{
		client:    client,
		uploader:  uploader,
		store:     store,
		uploadURL: defaultYoutubeUploadURL,
	}
}

func (a *YoutubeAdapter) Initiate(ctx context.Context, req *PublishRequest) (*Handle, error) {
	if !req.Media.IsVideo() {
		return nil, &ValidationError{Message: "youtube only accepts video media, got " + req.Media.Kind}
	}

	isShort := IsYoutubeShort(req.Media, req.Post.Title, req.Post.Caption)

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       YoutubeTitle(req.Post.Title, isShort),
			Description: truncate(req.Caption(), youtubeMaxDesc),
			CategoryId:  youtubeCategoryPeople,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}
	if isShort {
		video.Snippet.Tags = []string{"Shorts"}
	}
	if req.Post.ScheduledFor.Valid && req.Post.ScheduledFor.Time.After(time.Now()) {
		video.Status.PrivacyStatus = "private"
		video.Status.PublishAt = req.Post.ScheduledFor.Time.UTC().Format(time.RFC3339)
	}

	metadata, err := json.Marshal(video)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL, bytes.NewReader(metadata))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	httpReq.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", req.Media.SizeBytes))
	httpReq.Header.Set("X-Upload-Content-Type", req.Media.ContentType)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, mapYoutubeError(resp.StatusCode, body)
	}

	sessionURI := resp.Header.Get("Location")
	if sessionURI == "" {
		return nil, &ApiError{StatusCode: resp.StatusCode, Message: "resumable session opened without Location header"}
	}

	return &Handle{
		Platform:    models.PlatformYoutube,
		Phase:       "session_open",
		AccessToken: req.AccessToken,
		UploadURL:   sessionURI,
		ChunkSize:   youtubeChunkSize,
		IsShort:     isShort,
	}, nil
}

func (a *YoutubeAdapter) Transfer(ctx context.Context, h *Handle, req *PublishRequest) error {
	body, size, err := a.store.GetObject(ctx, req.Media.StorageKey)
	if err != nil {
		return &GatewayError{Err: err}
	}
	defer body.Close()

	finalBody, err := a.uploader.Send(ctx, h.UploadURL, body, size, upload.Options{
		ChunkSize:   h.ChunkSize,
		ContentType: req.Media.ContentType,
		Headers:     map[string]string{"Authorization": "Bearer " + h.AccessToken},
		OnProgress: func(sent, total int64) {
			log.Printf("youtube upload for post %d: %d/%d bytes", req.Post.ID, sent, total)
		},
	})
	if err != nil {
		return &GatewayError{Err: err}
	}
	if finalBody == nil {
		return &ApiError{StatusCode: http.StatusOK, Message: "upload finished without a video resource"}
	}

	var video youtube.Video
	if err := json.Unmarshal(finalBody, &video); err != nil {
		slog.Info(err.Error())
		return &GatewayError{Err: err}
	}
	if video.Id == "" {
		return &ApiError{StatusCode: http.StatusOK, Message: "video resource missing id"}
	}

	h.PlatformPostID = video.Id
	h.Phase = "uploaded"
	return nil
}

// AwaitReady is a no-op: a completed resumable upload is already final.
func (a *YoutubeAdapter) AwaitReady(ctx context.Context, h *Handle) error {
	return nil
}

func (a *YoutubeAdapter) Finalize(ctx context.Context, h *Handle, req *PublishRequest) (*PublishResult, error) {
	if h.PlatformPostID == "" {
		return nil, &ApiError{StatusCode: http.StatusOK, Message: "finalize called before upload completed"}
	}

	url := "https://www.youtube.com/watch?v=" + h.PlatformPostID
	if h.IsShort {
		url = "https://www.youtube.com/shorts/" + h.PlatformPostID
	}
	return &PublishResult{PlatformPostID: h.PlatformPostID, PlatformURL: url}, nil
}

// IsYoutubeShort applies the Shorts heuristic: a portrait video of 60
// seconds or less, or an explicit #Shorts in the title or caption.
func IsYoutubeShort(media *models.MediaAsset, title, caption string) bool {
	if strings.Contains(strings.ToLower(title), "#shorts") ||
		strings.Contains(strings.ToLower(caption), "#shorts") {
		return true
	}
	return media.DurationSeconds > 0 && media.DurationSeconds <= 60 && media.Height > media.Width
}

// YoutubeTitle bounds the title and tags Shorts. A Short title is truncated
// to leave room for the #Shorts suffix.
func YoutubeTitle(title string, isShort bool) string {
	if isShort {
		if !strings.Contains(strings.ToLower(title), "#shorts") {
			title = truncate(title, youtubeMaxShortTitle) + " #Shorts"
		}
		return truncate(title, youtubeMaxTitle)
	}
	return truncate(title, youtubeMaxTitle)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func mapYoutubeError(statusCode int, body []byte) error {
	var apiErr transfer.YoutubeAPIError
	message := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	if err := classifyStatus(statusCode, message); err != nil {
		return err
	}
	return &ApiError{StatusCode: statusCode, Message: message}
}
