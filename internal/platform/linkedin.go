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
	"net/url"
	"time"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/poll"
	"github.com/clipperhq/clippost/internal/transfer"
	"github.com/clipperhq/clippost/internal/upload"
)

const (
	defaultLinkedinBaseURL = "https://api.linkedin.com/rest"

	linkedinVersion       = "202401"
	restliProtocolVersion = "2.0.0"

	linkedinVideoAvailable     = "AVAILABLE"
	linkedinVideoFailed        = "PROCESSING_FAILED"
	linkedinVideoWaitingUpload = "WAITING_UPLOAD"

	// A video still WAITING_UPLOAD this many polls after finalize means the
	// upload never registered.
	linkedinWaitingUploadLimit = 5
)

// LinkedinAdapter publishes UGC posts through the versioned REST API. Images
// take a single upload PUT; videos use multi-part upload instructions with a
// finalize call and a processing poll.
type LinkedinAdapter struct {
	client   *http.Client
	uploader *upload.Uploader
	store    MediaStore
	baseURL  string
	poll     poll.Config
}

func NewLinkedinAdapter(client *http.Client, uploader *upload.Uploader, store MediaStore) *LinkedinAdapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &LinkedinAdapter{
		client:   client,
		uploader: uploader,
		store:    store,
		baseURL:  defaultLinkedinBaseURL,
		poll:     poll.Config{Interval: 2 * time.Second, MaxAttempts: 60},
	}
}

func (a *LinkedinAdapter) Initiate(ctx context.Context, req *PublishRequest) (*Handle, error) {
	owner := req.Account.Metadata.Linkedin.PersonURN

	h := &Handle{Platform: models.PlatformLinkedin, AccessToken: req.AccessToken}

	switch req.Media.Kind {
	case models.MediaKindImage:
		var initReq transfer.LinkedinImageInitRequest
		initReq.InitializeUploadRequest.Owner = owner

		var initResp transfer.LinkedinImageInitResponse
		if err := a.postJSON(ctx, a.baseURL+"/images?action=initializeUpload", req.AccessToken, initReq, &initResp, nil); err != nil {
			return nil, err
		}
		if initResp.Value.UploadURL == "" || initResp.Value.Image == "" {
			return nil, &ApiError{StatusCode: http.StatusOK, Message: "image initializeUpload returned no upload url"}
		}

		h.AssetURN = initResp.Value.Image
		h.UploadURL = initResp.Value.UploadURL
		h.Phase = "upload_pending"

	case models.MediaKindVideo:
		var initReq transfer.LinkedinVideoInitRequest
		initReq.InitializeUploadRequest.Owner = owner
		initReq.InitializeUploadRequest.FileSizeBytes = req.Media.SizeBytes

		var initResp transfer.LinkedinVideoInitResponse
		if err := a.postJSON(ctx, a.baseURL+"/videos?action=initializeUpload", req.AccessToken, initReq, &initResp, nil); err != nil {
			return nil, err
		}
		if initResp.Value.Video == "" || len(initResp.Value.UploadInstructions) == 0 {
			return nil, &ApiError{StatusCode: http.StatusOK, Message: "video initializeUpload returned no upload instructions"}
		}

		h.AssetURN = initResp.Value.Video
		h.UploadToken = initResp.Value.UploadToken
		h.UploadParts = initResp.Value.UploadInstructions
		h.Phase = "upload_pending"

	default:
		return nil, &ValidationError{Message: "unsupported media kind for linkedin: " + req.Media.Kind}
	}

	return h, nil
}

func (a *LinkedinAdapter) Transfer(ctx context.Context, h *Handle, req *PublishRequest) error {
	if h.UploadURL != "" {
		return a.transferImage(ctx, h, req)
	}
	return a.transferVideo(ctx, h, req)
}

func (a *LinkedinAdapter) transferImage(ctx context.Context, h *Handle, req *PublishRequest) error {
	data, contentType, err := a.store.GetBytes(ctx, req.Media.StorageKey)
	if err != nil {
		return &GatewayError{Err: err}
	}
	if req.Media.ContentType != "" {
		contentType = req.Media.ContentType
	}

	_, _, err = a.uploader.Put(ctx, h.UploadURL, data, upload.Options{
		ContentType: contentType,
		Headers:     map[string]string{"Authorization": "Bearer " + h.AccessToken},
	})
	if err != nil {
		return &GatewayError{Err: err}
	}

	h.Phase = "uploaded"
	return nil
}

func (a *LinkedinAdapter) transferVideo(ctx context.Context, h *Handle, req *PublishRequest) error {
	body, _, err := a.store.GetObject(ctx, req.Media.StorageKey)
	if err != nil {
		return &GatewayError{Err: err}
	}
	defer body.Close()

	// Instructions arrive in byte order; the object is streamed once.
	etags := make([]string, 0, len(h.UploadParts))
	for i, part := range h.UploadParts {
		partSize := part.LastByte - part.FirstByte + 1
		buf := make([]byte, partSize)
		if _, err := io.ReadFull(body, buf); err != nil {
			slog.Info(err.Error())
			return &GatewayError{Err: fmt.Errorf("reading part %d: %w", i, err)}
		}

		_, headers, err := a.uploader.Put(ctx, part.UploadURL, buf, upload.Options{
			ContentType: "application/octet-stream",
			Headers:     map[string]string{"Authorization": "Bearer " + h.AccessToken},
		})
		if err != nil {
			return &GatewayError{Err: err}
		}

		etag := headers.Get("ETag")
		if etag == "" {
			return &ApiError{StatusCode: http.StatusOK, Message: fmt.Sprintf("upload part %d returned no etag", i)}
		}
		etags = append(etags, etag)
		log.Printf("linkedin video part %d/%d uploaded", i+1, len(h.UploadParts))
	}
	h.ETags = etags

	var finalizeReq transfer.LinkedinFinalizeRequest
	finalizeReq.FinalizeUploadRequest.Video = h.AssetURN
	finalizeReq.FinalizeUploadRequest.UploadToken = h.UploadToken
	finalizeReq.FinalizeUploadRequest.UploadedPartIds = etags

	if err := a.postJSON(ctx, a.baseURL+"/videos?action=finalizeUpload", h.AccessToken, finalizeReq, nil, nil); err != nil {
		return err
	}

	h.Phase = "uploaded"
	return nil
}

func (a *LinkedinAdapter) AwaitReady(ctx context.Context, h *Handle) error {
	if h.UploadURL != "" {
		// Images are usable as soon as the PUT returns.
		return nil
	}

	attempts := 0
	err := poll.Wait(ctx, a.poll, func(ctx context.Context) (poll.Outcome, error) {
		attempts++
		video, err := a.fetchVideo(ctx, h)
		if err != nil {
			return poll.Failed, err
		}
		switch video.Status {
		case linkedinVideoAvailable:
			return poll.Ready, nil
		case linkedinVideoFailed:
			return poll.Failed, &ProcessingError{Message: "linkedin video processing failed"}
		case linkedinVideoWaitingUpload:
			if attempts > linkedinWaitingUploadLimit {
				return poll.Failed, &ApiError{StatusCode: http.StatusOK, Message: "video still waiting for upload after finalize"}
			}
		}
		return poll.Pending, nil
	})
	if err != nil {
		var exhausted *poll.ErrExhausted
		if errors.As(err, &exhausted) {
			return fmt.Errorf("linkedin video %s: %w", h.AssetURN, ErrTimeout)
		}
		return err
	}

	h.Phase = "ready"
	return nil
}

func (a *LinkedinAdapter) Finalize(ctx context.Context, h *Handle, req *PublishRequest) (*PublishResult, error) {
	postReq := transfer.LinkedinPostRequest{
		Author:         req.Account.Metadata.Linkedin.PersonURN,
		Commentary:     req.Caption(),
		Visibility:     "PUBLIC",
		Distribution:   transfer.LinkedinDistribution{FeedDistribution: "MAIN_FEED"},
		LifecycleState: "PUBLISHED",
	}
	if h.AssetURN != "" {
		postReq.Content = &transfer.LinkedinContent{
			Media: &transfer.LinkedinMediaContent{ID: h.AssetURN, Title: req.Post.Title},
		}
	}

	var headers http.Header
	if err := a.postJSON(ctx, a.baseURL+"/posts", h.AccessToken, postReq, nil, &headers); err != nil {
		return nil, err
	}

	postURN := headers.Get("x-restli-id")
	if postURN == "" {
		return nil, &ApiError{StatusCode: http.StatusCreated, Message: "post created without x-restli-id header"}
	}

	return &PublishResult{
		PlatformPostID: postURN,
		PlatformURL:    fmt.Sprintf("https://www.linkedin.com/feed/update/%s/", postURN),
	}, nil
}

func (a *LinkedinAdapter) fetchVideo(ctx context.Context, h *Handle) (*transfer.LinkedinVideoResource, error) {
	endpoint := a.baseURL + "/videos/" + url.PathEscape(h.AssetURN)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(req, h.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, mapLinkedinError(resp.StatusCode, body)
	}

	var video transfer.LinkedinVideoResource
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		slog.Info(err.Error())
		return nil, &GatewayError{Err: err}
	}
	return &video, nil
}

// postJSON sends a versioned REST call. When respHeaders is non-nil the
// response headers are copied out for the caller; when out is non-nil the
// body is decoded into it.
func (a *LinkedinAdapter) postJSON(ctx context.Context, endpoint, accessToken string, payload, out interface{}, respHeaders *http.Header) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	a.setHeaders(req, accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Err: err}
	}

	if resp.StatusCode >= 400 {
		return mapLinkedinError(resp.StatusCode, body)
	}

	if respHeaders != nil {
		*respHeaders = resp.Header
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			slog.Info(err.Error())
			return &GatewayError{Err: err}
		}
	}
	return nil
}

func (a *LinkedinAdapter) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", linkedinVersion)
	req.Header.Set("X-Restli-Protocol-Version", restliProtocolVersion)
}

func mapLinkedinError(statusCode int, body []byte) error {
	message := string(body)
	var apiErr transfer.LinkedinAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		message = apiErr.Message
	}
	if err := classifyStatus(statusCode, message); err != nil {
		return err
	}
	return &ApiError{StatusCode: statusCode, Message: message}
}
