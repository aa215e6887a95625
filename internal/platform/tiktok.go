package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/poll"
	"github.com/clipperhq/clippost/internal/transfer"
	"github.com/clipperhq/clippost/internal/upload"
)

const (
	defaultTiktokBaseURL = "https://open.tiktokapis.com/v2"

	tiktokSingleChunkMax = 64 * 1024 * 1024
	tiktokChunkSize      = 10 * 1024 * 1024
	tiktokMaxPhotos      = 35

	tiktokStatusComplete = "PUBLISH_COMPLETE"
	tiktokStatusInbox    = "SEND_TO_USER_INBOX"
	tiktokStatusFailed   = "FAILED"
)

// tiktokAuthCodes are the error codes that mean the token, not the request,
// was rejected.
var tiktokAuthCodes = map[string]bool{
	"access_token_invalid": true,
	"access_token_expired": true,
	"token_not_authorized": true,
}

// TiktokAdapter publishes through the Content Posting API. Videos go by
// FILE_UPLOAD with chunked PUTs; photo posts are pulled by URL.
type TiktokAdapter struct {
	client   *http.Client
	uploader *upload.Uploader
	store    MediaStore
	baseURL  string
	poll     poll.Config
}

func NewTiktokAdapter(client *http.Client, uploader *upload.Uploader, store MediaStore) *TiktokAdapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &TiktokAdapter{
		client:   client,
		uploader: uploader,
		store:    store,
		baseURL:  defaultTiktokBaseURL,
		poll:     poll.Config{Interval: 2 * time.Second, MaxAttempts: 90},
	}
}

func (a *TiktokAdapter) Initiate(ctx context.Context, req *PublishRequest) (*Handle, error) {
	// Creator info is mandatory before every init; its constraints override
	// whatever the request asked for.
	creator, err := a.queryCreatorInfo(ctx, req.AccessToken)
	if err != nil {
		return nil, err
	}

	privacy := pickPrivacyLevel("PUBLIC_TO_EVERYONE", creator.Data.PrivacyLevelOptions)

	h := &Handle{Platform: models.PlatformTiktok, AccessToken: req.AccessToken}

	switch req.Media.Kind {
	case models.MediaKindVideo:
		if max := creator.Data.MaxVideoPostDurationSec; max > 0 && req.Media.DurationSeconds > float64(max) {
			return nil, &ValidationError{Message: fmt.Sprintf("video duration %.0fs exceeds creator limit of %ds", req.Media.DurationSeconds, max)}
		}

		chunkSize, chunkCount := TiktokChunkPlan(req.Media.SizeBytes)
		initReq := transfer.TiktokVideoInitRequest{
			PostInfo: transfer.TiktokVideoPostInfo{
				Title:                 req.Caption(),
				PrivacyLevel:          privacy,
				DisableDuet:           creator.Data.DuetDisabled,
				DisableComment:        creator.Data.CommentDisabled,
				DisableStitch:         creator.Data.StitchDisabled,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.TiktokVideoSourceInfo{
				Source:          "FILE_UPLOAD",
				VideoSize:       req.Media.SizeBytes,
				ChunkSize:       chunkSize,
				TotalChunkCount: chunkCount,
			},
		}

		var initResp transfer.TiktokInitResponse
		if err := a.postJSON(ctx, a.baseURL+"/post/publish/video/init/", req.AccessToken, initReq, &initResp); err != nil {
			return nil, err
		}
		if !initResp.Error.OK() {
			return nil, mapTiktokError(initResp.Error)
		}

		h.PublishID = initResp.Data.PublishID
		h.UploadURL = initResp.Data.UploadURL
		h.ChunkSize = chunkSize
		h.Phase = "upload_pending"

	case models.MediaKindImage, models.MediaKindCarousel:
		photos, err := tiktokPhotoURLs(req.Media)
		if err != nil {
			return nil, err
		}

		initReq := transfer.TiktokPhotoInitRequest{
			PostInfo: transfer.TiktokPhotoPostInfo{
				Title:          req.Post.Title,
				Description:    req.Caption(),
				PrivacyLevel:   privacy,
				DisableComment: creator.Data.CommentDisabled,
				AutoAddMusic:   true,
			},
			SourceInfo: transfer.TiktokPhotoSourceInfo{
				Source:          "PULL_FROM_URL",
				PhotoCoverIndex: 0,
				PhotoImages:     photos,
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}

		var initResp transfer.TiktokInitResponse
		if err := a.postJSON(ctx, a.baseURL+"/post/publish/content/init/", req.AccessToken, initReq, &initResp); err != nil {
			return nil, err
		}
		if !initResp.Error.OK() {
			return nil, mapTiktokError(initResp.Error)
		}

		h.PublishID = initResp.Data.PublishID
		h.Phase = "submitted"

	default:
		return nil, &ValidationError{Message: "unsupported media kind for tiktok: " + req.Media.Kind}
	}

	return h, nil
}

func (a *TiktokAdapter) Transfer(ctx context.Context, h *Handle, req *PublishRequest) error {
	if h.UploadURL == "" {
		return nil
	}

	body, size, err := a.store.GetObject(ctx, req.Media.StorageKey)
	if err != nil {
		return &GatewayError{Err: err}
	}
	defer body.Close()

	_, err = a.uploader.Send(ctx, h.UploadURL, body, size, upload.Options{
		ChunkSize:   h.ChunkSize,
		ContentType: req.Media.ContentType,
		OnProgress: func(sent, total int64) {
			log.Printf("tiktok upload %s: %d/%d bytes", h.PublishID, sent, total)
		},
	})
	if err != nil {
		return &GatewayError{Err: err}
	}

	h.Phase = "uploaded"
	return nil
}

func (a *TiktokAdapter) AwaitReady(ctx context.Context, h *Handle) error {
	err := poll.Wait(ctx, a.poll, func(ctx context.Context) (poll.Outcome, error) {
		status, err := a.fetchStatus(ctx, h)
		if err != nil {
			return poll.Failed, err
		}
		switch status.Data.Status {
		case tiktokStatusComplete, tiktokStatusInbox:
			if ids := status.Data.PubliclyAvailablePostID; len(ids) > 0 {
				h.PlatformPostID = fmt.Sprintf("%d", ids[0])
			}
			return poll.Ready, nil
		case tiktokStatusFailed:
			return poll.Failed, &ProcessingError{Message: "tiktok publish failed: " + status.Data.FailReason}
		}
		return poll.Pending, nil
	})
	if err != nil {
		var exhausted *poll.ErrExhausted
		if errors.As(err, &exhausted) {
			return fmt.Errorf("tiktok publish %s: %w", h.PublishID, ErrTimeout)
		}
		return err
	}

	h.Phase = "ready"
	return nil
}

func (a *TiktokAdapter) Finalize(ctx context.Context, h *Handle, req *PublishRequest) (*PublishResult, error) {
	postID := h.PlatformPostID
	if postID == "" {
		postID = h.PublishID
	}

	var url string
	if h.PlatformPostID != "" && req.Account.AccountUsername != "" {
		url = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", req.Account.AccountUsername, h.PlatformPostID)
	}

	return &PublishResult{PlatformPostID: postID, PlatformURL: url}, nil
}

func (a *TiktokAdapter) queryCreatorInfo(ctx context.Context, accessToken string) (*transfer.TiktokCreatorInfoResponse, error) {
	var info transfer.TiktokCreatorInfoResponse
	if err := a.postJSON(ctx, a.baseURL+"/post/publish/creator_info/query/", accessToken, nil, &info); err != nil {
		return nil, err
	}
	if !info.Error.OK() {
		return nil, mapTiktokError(info.Error)
	}
	return &info, nil
}

func (a *TiktokAdapter) fetchStatus(ctx context.Context, h *Handle) (*transfer.TiktokStatusResponse, error) {
	payload := map[string]string{"publish_id": h.PublishID}

	var status transfer.TiktokStatusResponse
	if err := a.postJSON(ctx, a.baseURL+"/post/publish/status/fetch/", h.AccessToken, payload, &status); err != nil {
		return nil, err
	}
	if !status.Error.OK() {
		return nil, mapTiktokError(status.Error)
	}
	return &status, nil
}

func (a *TiktokAdapter) postJSON(ctx context.Context, endpoint, accessToken string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Err: err}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		if resp.StatusCode >= 400 {
			return classifyStatus(resp.StatusCode, string(respBody))
		}
		slog.Info(err.Error())
		return &GatewayError{Err: err}
	}
	return nil
}

// TiktokChunkPlan sizes the FILE_UPLOAD transfer: payloads at or under 64MB
// go as one chunk, larger payloads in 10MB chunks.
func TiktokChunkPlan(sizeBytes int64) (chunkSize int64, chunkCount int) {
	if sizeBytes <= tiktokSingleChunkMax {
		return sizeBytes, 1
	}
	count := (sizeBytes + tiktokChunkSize - 1) / tiktokChunkSize
	return tiktokChunkSize, int(count)
}

func tiktokPhotoURLs(media *models.MediaAsset) ([]string, error) {
	if media.Kind == models.MediaKindImage {
		return []string{media.FileURL}, nil
	}

	children, err := media.CarouselChildren()
	if err != nil {
		return nil, &ValidationError{Message: "carousel children are malformed: " + err.Error()}
	}
	if len(children) == 0 || len(children) > tiktokMaxPhotos {
		return nil, &ValidationError{Message: fmt.Sprintf("tiktok photo post requires 1-%d images, got %d", tiktokMaxPhotos, len(children))}
	}

	urls := make([]string, 0, len(children))
	for _, child := range children {
		urls = append(urls, child.FileURL)
	}
	return urls, nil
}

// pickPrivacyLevel enforces the creator's allowed privacy options over the
// requested one.
func pickPrivacyLevel(desired string, allowed []string) string {
	if len(allowed) == 0 {
		return desired
	}
	for _, opt := range allowed {
		if opt == desired {
			return desired
		}
	}
	return allowed[0]
}

func mapTiktokError(tkErr *transfer.TiktokError) error {
	if tiktokAuthCodes[tkErr.Code] {
		return &AuthError{Code: tkErr.Code, Message: tkErr.Message}
	}
	if tkErr.Code == "internal_error" {
		return &GatewayError{Message: tkErr.Message}
	}
	return &ApiError{StatusCode: http.StatusBadRequest, Message: tkErr.Code + ": " + tkErr.Message}
}
