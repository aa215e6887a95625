package publisher

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/platform"
)

type fakePostRepo struct {
	post       *models.Post
	statusLog  []string
	published  bool
	failedWith string
}

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return f.post, nil
}

func (f *fakePostRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	f.statusLog = append(f.statusLog, status)
	f.post.Status = status
	return nil
}

func (f *fakePostRepo) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string) error {
	f.published = true
	f.post.Status = models.PostStatusPublished
	f.post.PlatformPostID = sql.NullString{String: platformPostID, Valid: true}
	f.post.PlatformURL = sql.NullString{String: platformURL, Valid: true}
	return nil
}

func (f *fakePostRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	f.post.Status = models.PostStatusFailed
	f.failedWith = errorMessage
	return nil
}

type fakeAccountRepo struct {
	account     *models.Account
	deactivated bool
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return f.account, nil
}

func (f *fakeAccountRepo) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.Account, error) {
	return nil, nil
}

func (f *fakeAccountRepo) SetToken(ctx context.Context, accountID int64, prevExpiresAt time.Time, access, refresh string, expiresAt time.Time) error {
	return nil
}

func (f *fakeAccountRepo) SetMetadata(ctx context.Context, accountID int64, metadata []byte) error {
	return nil
}

func (f *fakeAccountRepo) Deactivate(ctx context.Context, accountID int64) error {
	f.deactivated = true
	return nil
}

type fakeMediaRepo struct {
	media *models.MediaAsset
}

func (f *fakeMediaRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	return f.media, nil
}

type fakeHistoryRepo struct {
	entries []*models.PublishHistory
}

func (f *fakeHistoryRepo) Create(ctx context.Context, ph *models.PublishHistory) (int64, error) {
	f.entries = append(f.entries, ph)
	return int64(len(f.entries)), nil
}

func (f *fakeHistoryRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishHistory, error) {
	return f.entries, nil
}

type fakeVault struct {
	token        string
	refreshed    int
	refreshError error
}

func (f *fakeVault) ValidToken(ctx context.Context, acc *models.Account) (string, error) {
	return f.token, nil
}

func (f *fakeVault) Refresh(ctx context.Context, acc *models.Account) (string, error) {
	f.refreshed++
	if f.refreshError != nil {
		return "", f.refreshError
	}
	return f.token + "-refreshed", nil
}

// fakeAdapter counts phase calls and can fail a chosen number of attempts.
type fakeAdapter struct {
	calls        int
	failAttempts int
	failWith     error
	seenTokens   []string
}

func (f *fakeAdapter) Initiate(ctx context.Context, req *platform.PublishRequest) (*platform.Handle, error) {
	f.calls++
	f.seenTokens = append(f.seenTokens, req.AccessToken)
	if f.calls <= f.failAttempts {
		return nil, f.failWith
	}
	return &platform.Handle{Platform: req.Post.Platform}, nil
}

func (f *fakeAdapter) Transfer(ctx context.Context, h *platform.Handle, req *platform.PublishRequest) error {
	return nil
}

func (f *fakeAdapter) AwaitReady(ctx context.Context, h *platform.Handle) error {
	return nil
}

func (f *fakeAdapter) Finalize(ctx context.Context, h *platform.Handle, req *platform.PublishRequest) (*platform.PublishResult, error) {
	return &platform.PublishResult{PlatformPostID: "remote-1", PlatformURL: "https://example.com/p/remote-1"}, nil
}

type fixture struct {
	publisher *Publisher
	posts     *fakePostRepo
	accounts  *fakeAccountRepo
	history   *fakeHistoryRepo
	vault     *fakeVault
	adapter   *fakeAdapter
}

func newFixture(status string) *fixture {
	posts := &fakePostRepo{post: &models.Post{
		ID:        1,
		UserID:    10,
		AccountID: 2,
		MediaID:   3,
		Platform:  models.PlatformTiktok,
		Status:    status,
	}}
	accounts := &fakeAccountRepo{account: &models.Account{
		ID:       2,
		Platform: models.PlatformTiktok,
		IsActive: true,
		Metadata: &models.PlatformMetadata{Tiktok: &models.TiktokMetadata{OpenID: "open-1"}},
	}}
	media := &fakeMediaRepo{media: &models.MediaAsset{ID: 3, Kind: models.MediaKindVideo}}
	history := &fakeHistoryRepo{}
	v := &fakeVault{token: "tok"}
	adapter := &fakeAdapter{}

	registry := platform.NewRegistry()
	registry.Register(models.PlatformTiktok, adapter)

	return &fixture{
		publisher: New(posts, accounts, media, history, v, registry),
		posts:     posts,
		accounts:  accounts,
		history:   history,
		vault:     v,
		adapter:   adapter,
	}
}

func TestPublishSuccess(t *testing.T) {
	f := newFixture(models.PostStatusScheduled)

	result := f.publisher.Publish(context.Background(), 1)

	assert.True(t, result.Success)
	assert.Equal(t, "remote-1", result.PlatformPostID)
	assert.Equal(t, "https://example.com/p/remote-1", result.PlatformURL)
	assert.Empty(t, result.Error)

	// publishing was persisted before the adapter ran
	assert.Equal(t, []string{models.PostStatusPublishing}, f.posts.statusLog)
	assert.True(t, f.posts.published)
	assert.Equal(t, models.PostStatusPublished, f.posts.post.Status)

	require.Len(t, f.history.entries, 1)
	assert.True(t, f.history.entries[0].Success)
	assert.NotEmpty(t, f.history.entries[0].AttemptID)
}

func TestPublishAlreadyPublishedIsNoOp(t *testing.T) {
	f := newFixture(models.PostStatusPublished)
	f.posts.post.PlatformPostID = sql.NullString{String: "existing-9", Valid: true}
	f.posts.post.PlatformURL = sql.NullString{String: "https://example.com/p/existing-9", Valid: true}

	result := f.publisher.Publish(context.Background(), 1)

	assert.True(t, result.Success)
	assert.Equal(t, "existing-9", result.PlatformPostID)
	assert.Zero(t, f.adapter.calls, "no adapter calls for an already-published post")
	assert.Empty(t, f.posts.statusLog)
	assert.Empty(t, f.history.entries)
}

func TestPublishInFlightPostRejected(t *testing.T) {
	f := newFixture(models.PostStatusPublishing)

	result := f.publisher.Publish(context.Background(), 1)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "cannot be published")
	assert.Zero(t, f.adapter.calls)
}

func TestPublishAuthErrorRefreshesAndRetries(t *testing.T) {
	f := newFixture(models.PostStatusScheduled)
	f.adapter.failAttempts = 1
	f.adapter.failWith = &platform.AuthError{Message: "token expired"}

	result := f.publisher.Publish(context.Background(), 1)

	assert.True(t, result.Success)
	assert.Equal(t, 1, f.vault.refreshed)
	assert.Equal(t, 2, f.adapter.calls)
	assert.Equal(t, []string{"tok", "tok-refreshed"}, f.adapter.seenTokens)
	assert.False(t, f.accounts.deactivated)
}

func TestPublishSecondAuthFailureDeactivates(t *testing.T) {
	f := newFixture(models.PostStatusScheduled)
	f.adapter.failAttempts = 2
	f.adapter.failWith = &platform.AuthError{Message: "token revoked"}

	result := f.publisher.Publish(context.Background(), 1)

	assert.False(t, result.Success)
	assert.Equal(t, 1, f.vault.refreshed)
	assert.Equal(t, 2, f.adapter.calls)
	assert.True(t, f.accounts.deactivated)
	assert.Equal(t, models.PostStatusFailed, f.posts.post.Status)
	assert.Contains(t, f.posts.failedWith, "token revoked")
}

func TestPublishNonAuthErrorFailsWithoutRetry(t *testing.T) {
	f := newFixture(models.PostStatusScheduled)
	f.adapter.failAttempts = 1
	f.adapter.failWith = &platform.ProcessingError{Message: "transcode rejected"}

	result := f.publisher.Publish(context.Background(), 1)

	assert.False(t, result.Success)
	assert.Equal(t, 1, f.adapter.calls)
	assert.Zero(t, f.vault.refreshed)
	assert.Equal(t, models.PostStatusFailed, f.posts.post.Status)

	require.Len(t, f.history.entries, 1)
	assert.False(t, f.history.entries[0].Success)
	assert.Contains(t, f.history.entries[0].ErrorMessage, "transcode rejected")
}

func TestPublishRefreshFailurePropagates(t *testing.T) {
	f := newFixture(models.PostStatusScheduled)
	f.adapter.failAttempts = 1
	f.adapter.failWith = &platform.AuthError{Message: "token expired"}
	f.vault.refreshError = errors.New("refresh token revoked")

	result := f.publisher.Publish(context.Background(), 1)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "refresh token revoked")
	assert.Equal(t, 1, f.adapter.calls)
}

func TestPublishMissingPost(t *testing.T) {
	f := newFixture(models.PostStatusScheduled)
	f.posts.post = nil

	result := f.publisher.Publish(context.Background(), 99)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")
}
