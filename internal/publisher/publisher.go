package publisher

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/platform"
	"github.com/clipperhq/clippost/internal/repository"
)

// TokenVault is the credential surface the orchestrator needs.
type TokenVault interface {
	ValidToken(ctx context.Context, acc *models.Account) (string, error)
	Refresh(ctx context.Context, acc *models.Account) (string, error)
}

// Result is the structured outcome of one publish call. Publish never
// returns a raw error; everything lands here and in the posts row.
type Result struct {
	Success        bool
	PlatformPostID string
	PlatformURL    string
	Error          string
}

type Publisher struct {
	posts    repository.PostRepository
	accounts repository.AccountRepository
	media    repository.MediaAssetRepository
	history  repository.PublishHistoryRepository
	vault    TokenVault
	registry *platform.Registry
}

func New(
	posts repository.PostRepository,
	accounts repository.AccountRepository,
	media repository.MediaAssetRepository,
	history repository.PublishHistoryRepository,
	vault TokenVault,
	registry *platform.Registry) *Publisher {
	return &Publisher{
		posts:    posts,
		accounts: accounts,
		media:    media,
		history:  history,
		vault:    vault,
		registry: registry,
	}
}

// Publish runs one post through its platform adapter and persists the
// outcome. Publishing an already-published post is a no-op that reports the
// existing ids without any network traffic.
func (p *Publisher) Publish(ctx context.Context, postID int64) *Result {
	post, err := p.posts.GetByID(ctx, postID)
	if err != nil {
		return &Result{Error: fmt.Sprintf("loading post %d: %v", postID, err)}
	}
	if post == nil {
		return &Result{Error: fmt.Sprintf("post %d not found", postID)}
	}

	if post.Status == models.PostStatusPublished {
		log.Printf("post %d already published as %s; skipping", postID, post.PlatformPostID.String)
		return &Result{
			Success:        true,
			PlatformPostID: post.PlatformPostID.String,
			PlatformURL:    post.PlatformURL.String,
		}
	}
	if !post.Publishable() {
		return &Result{Error: fmt.Sprintf("post %d is %s and cannot be published", postID, post.Status)}
	}

	account, err := p.accounts.GetByID(ctx, post.AccountID)
	if err != nil || account == nil {
		return p.fail(ctx, post, nil, fmt.Sprintf("account %d unavailable", post.AccountID))
	}
	media, err := p.media.GetByID(ctx, post.MediaID)
	if err != nil || media == nil {
		return p.fail(ctx, post, account, fmt.Sprintf("media %d unavailable", post.MediaID))
	}

	adapter, err := p.registry.Get(post.Platform)
	if err != nil {
		return p.fail(ctx, post, account, err.Error())
	}

	// Mark in-flight before any network call so a crash leaves a visible
	// publishing state, never a silent retry loop.
	if err := p.posts.UpdateStatus(ctx, post.ID, models.PostStatusPublishing); err != nil {
		return &Result{Error: fmt.Sprintf("marking post %d publishing: %v", post.ID, err)}
	}

	token, err := p.vault.ValidToken(ctx, account)
	if err != nil {
		return p.fail(ctx, post, account, fmt.Sprintf("credential lookup: %v", err))
	}

	req := &platform.PublishRequest{
		Post:        post,
		Account:     account,
		Media:       media,
		AccessToken: token,
	}

	result, err := p.attempt(ctx, adapter, req)
	if err != nil && platform.IsAuthError(err) {
		// One refresh-and-retry; a second auth rejection deactivates.
		log.Printf("post %d: auth rejected, refreshing token for account %d", post.ID, account.ID)
		token, refreshErr := p.vault.Refresh(ctx, account)
		if refreshErr != nil {
			return p.fail(ctx, post, account, fmt.Sprintf("token refresh: %v", refreshErr))
		}
		req.AccessToken = token

		result, err = p.attempt(ctx, adapter, req)
		if err != nil && platform.IsAuthError(err) {
			if deactivateErr := p.accounts.Deactivate(ctx, account.ID); deactivateErr != nil {
				slog.Info(deactivateErr.Error())
			}
		}
	}
	if err != nil {
		return p.fail(ctx, post, account, err.Error())
	}

	if err := p.posts.MarkPublished(ctx, post.ID, result.PlatformPostID, result.PlatformURL); err != nil {
		slog.Info(err.Error())
	}
	p.record(ctx, post, account, true, "")

	log.Printf("post %d published to %s: %s", post.ID, post.Platform, result.PlatformPostID)
	return &Result{
		Success:        true,
		PlatformPostID: result.PlatformPostID,
		PlatformURL:    result.PlatformURL,
	}
}

func (p *Publisher) attempt(ctx context.Context, adapter platform.Adapter, req *platform.PublishRequest) (*platform.PublishResult, error) {
	h, err := adapter.Initiate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := adapter.Transfer(ctx, h, req); err != nil {
		return nil, err
	}
	if err := adapter.AwaitReady(ctx, h); err != nil {
		return nil, err
	}
	return adapter.Finalize(ctx, h, req)
}

func (p *Publisher) fail(ctx context.Context, post *models.Post, account *models.Account, message string) *Result {
	slog.Info(message)
	if err := p.posts.MarkFailed(ctx, post.ID, message); err != nil {
		slog.Info(err.Error())
	}
	p.record(ctx, post, account, false, message)
	return &Result{Error: message}
}

func (p *Publisher) record(ctx context.Context, post *models.Post, account *models.Account, success bool, message string) {
	attemptID, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		attemptID = fmt.Sprintf("post-%d", post.ID)
	}

	history := &models.PublishHistory{
		AttemptID:    attemptID,
		UserID:       post.UserID,
		PostID:       post.ID,
		Success:      success,
		ErrorMessage: message,
	}
	if account != nil {
		history.AccountID = account.ID
	}

	if _, err := p.history.Create(ctx, history); err != nil {
		log.Printf("saving publish history for post %d: %v", post.ID, err)
	}
}
