package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/poll"
	"github.com/clipperhq/clippost/internal/transfer"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v18.0"

const (
	igContainerFinished = "FINISHED"
	igContainerError    = "ERROR"
)

// InstagramAdapter publishes through the Facebook Graph API container flow.
// Media is pulled by URL, so Transfer is a no-op.
type InstagramAdapter struct {
	client  *http.Client
	baseURL string
	poll    poll.Config
}

func NewInstagramAdapter(client *http.Client) *InstagramAdapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &InstagramAdapter{
		client:  client,
		baseURL: defaultGraphBaseURL,
		poll:    poll.Config{Interval: 2 * time.Second, MaxAttempts: 30},
	}
}

func (a *InstagramAdapter) Initiate(ctx context.Context, req *PublishRequest) (*Handle, error) {
	igUserID := req.Account.Metadata.Instagram.BusinessAccountID

	h := &Handle{Platform: models.PlatformInstagram, Phase: "initiated", AccessToken: req.AccessToken}

	switch req.Media.Kind {
	case models.MediaKindImage:
		id, err := a.createContainer(ctx, igUserID, req.AccessToken, url.Values{
			"image_url": {req.Media.FileURL},
			"caption":   {req.Caption()},
		})
		if err != nil {
			return nil, err
		}
		h.ContainerID = id

	case models.MediaKindVideo:
		id, err := a.createContainer(ctx, igUserID, req.AccessToken, url.Values{
			"media_type": {"REELS"},
			"video_url":  {req.Media.FileURL},
			"caption":    {req.Caption()},
		})
		if err != nil {
			return nil, err
		}
		h.ContainerID = id

	case models.MediaKindStory:
		params := url.Values{"media_type": {"STORIES"}}
		if req.Media.IsVideo() || req.Media.ContentType == "video/mp4" {
			params.Set("video_url", req.Media.FileURL)
		} else {
			params.Set("image_url", req.Media.FileURL)
		}
		id, err := a.createContainer(ctx, igUserID, req.AccessToken, params)
		if err != nil {
			return nil, err
		}
		h.ContainerID = id

	case models.MediaKindCarousel:
		children, err := req.Media.CarouselChildren()
		if err != nil {
			return nil, &ValidationError{Message: "carousel children are malformed: " + err.Error()}
		}
		if len(children) < 2 || len(children) > 10 {
			return nil, &ValidationError{Message: fmt.Sprintf("carousel requires 2-10 items, got %d", len(children))}
		}

		// Captions go on the parent container only.
		childIDs := make([]string, 0, len(children))
		for _, child := range children {
			params := url.Values{"is_carousel_item": {"true"}}
			if child.Kind == models.MediaKindVideo {
				params.Set("media_type", "VIDEO")
				params.Set("video_url", child.FileURL)
			} else {
				params.Set("image_url", child.FileURL)
			}
			id, err := a.createContainer(ctx, igUserID, req.AccessToken, params)
			if err != nil {
				return nil, err
			}
			childIDs = append(childIDs, id)
		}

		parentID, err := a.createContainer(ctx, igUserID, req.AccessToken, url.Values{
			"media_type": {"CAROUSEL"},
			"children":   {strings.Join(childIDs, ",")},
			"caption":    {req.Caption()},
		})
		if err != nil {
			return nil, err
		}
		h.ContainerID = parentID
		h.ChildContainerIDs = childIDs

	default:
		return nil, &ValidationError{Message: "unsupported media kind for instagram: " + req.Media.Kind}
	}

	// Videos (and carousels holding them) process asynchronously.
	if req.Media.Kind != models.MediaKindImage {
		h.Phase = "processing"
	} else {
		h.Phase = "ready"
	}

	return h, nil
}

// Transfer is a no-op: the Graph API pulls media from the container URLs.
func (a *InstagramAdapter) Transfer(ctx context.Context, h *Handle, req *PublishRequest) error {
	return nil
}

func (a *InstagramAdapter) AwaitReady(ctx context.Context, h *Handle) error {
	if h.Phase == "ready" {
		return nil
	}

	err := poll.Wait(ctx, a.poll, func(ctx context.Context) (poll.Outcome, error) {
		status, err := a.containerStatus(ctx, h.ContainerID, h.AccessToken)
		if err != nil {
			return poll.Failed, err
		}
		switch status {
		case igContainerFinished:
			return poll.Ready, nil
		case igContainerError:
			return poll.Failed, &ProcessingError{Message: "instagram container entered ERROR state"}
		}
		return poll.Pending, nil
	})
	if err != nil {
		var exhausted *poll.ErrExhausted
		if errors.As(err, &exhausted) {
			return fmt.Errorf("instagram container %s: %w", h.ContainerID, ErrTimeout)
		}
		return err
	}

	h.Phase = "ready"
	return nil
}

func (a *InstagramAdapter) Finalize(ctx context.Context, h *Handle, req *PublishRequest) (*PublishResult, error) {
	igUserID := req.Account.Metadata.Instagram.BusinessAccountID

	params := url.Values{
		"creation_id":  {h.ContainerID},
		"access_token": {req.AccessToken},
	}
	endpoint := fmt.Sprintf("%s/%s/media_publish", a.baseURL, igUserID)

	var published transfer.InstagramPublishResponse
	if err := a.postForm(ctx, endpoint, params, &published); err != nil {
		return nil, err
	}
	if published.Error != nil {
		return nil, mapFacebookError(published.Error)
	}

	log.Printf("instagram media published: %s", published.ID)

	permalink, err := a.fetchPermalink(ctx, published.ID, req.AccessToken)
	if err != nil {
		// The post is live; a missing permalink is not a publish failure.
		slog.Info(err.Error())
		permalink = ""
	}

	return &PublishResult{PlatformPostID: published.ID, PlatformURL: permalink}, nil
}

func (a *InstagramAdapter) createContainer(ctx context.Context, igUserID, accessToken string, params url.Values) (string, error) {
	params.Set("access_token", accessToken)
	endpoint := fmt.Sprintf("%s/%s/media", a.baseURL, igUserID)

	var container transfer.InstagramContainerResponse
	if err := a.postForm(ctx, endpoint, params, &container); err != nil {
		return "", err
	}
	if container.Error != nil {
		return "", mapFacebookError(container.Error)
	}
	if container.ID == "" {
		return "", &ApiError{StatusCode: http.StatusOK, Message: "container create returned no id"}
	}
	return container.ID, nil
}

func (a *InstagramAdapter) containerStatus(ctx context.Context, containerID, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", a.baseURL, containerID, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	var status transfer.InstagramContainerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		slog.Info(err.Error())
		return "", &GatewayError{Err: err}
	}
	if status.Error != nil {
		return "", mapFacebookError(status.Error)
	}
	return status.StatusCode, nil
}

func (a *InstagramAdapter) fetchPermalink(ctx context.Context, mediaID, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", a.baseURL, mediaID, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result transfer.InstagramPermalinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", mapFacebookError(result.Error)
	}
	return result.Permalink, nil
}

func (a *InstagramAdapter) postForm(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode >= 400 {
			return classifyStatus(resp.StatusCode, string(body))
		}
		slog.Info(err.Error())
		return &GatewayError{Err: err}
	}
	return nil
}

// mapFacebookError translates Graph API error envelopes. Code 190 is the
// expired/invalid token family.
func mapFacebookError(fbErr *transfer.FacebookError) error {
	if fbErr.Code == 190 || fbErr.Type == "OAuthException" {
		return &AuthError{Code: fmt.Sprintf("%d", fbErr.Code), Message: fbErr.Message}
	}
	if fbErr.Code >= 500 {
		return &GatewayError{StatusCode: fbErr.Code, Message: fbErr.Message}
	}
	return &ApiError{StatusCode: fbErr.Code, Message: fbErr.Message}
}
