package platform

import (
	"context"
	"fmt"

	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/transfer"
)

// PublishRequest carries everything an adapter needs for one attempt. The
// access token is already decrypted and lives only for the attempt.
type PublishRequest struct {
	Post        *models.Post
	Account     *models.Account
	Media       *models.MediaAsset
	AccessToken string
}

// Caption joins the post caption and hashtags the way each platform shows
// them: hashtags trail the text on their own line.
func (r *PublishRequest) Caption() string {
	if r.Post.Hashtags == "" {
		return r.Post.Caption
	}
	if r.Post.Caption == "" {
		return r.Post.Hashtags
	}
	return r.Post.Caption + "\n\n" + r.Post.Hashtags
}

// Handle is the transient state threaded through one publish attempt. Never
// persisted; a crashed attempt restarts from Initiate.
type Handle struct {
	Platform string
	Phase    string

	// AccessToken is carried for phases that probe without the request in
	// scope. Transient like the rest of the handle; never persisted.
	AccessToken string

	// Instagram
	ContainerID       string
	ChildContainerIDs []string

	// TikTok
	PublishID string

	// YouTube / TikTok chunked upload
	UploadURL string
	ChunkSize int64

	// LinkedIn
	AssetURN    string
	UploadToken string
	UploadParts []transfer.LinkedinUploadInstruction
	ETags       []string

	// Set when the transfer response already carried the final resource.
	PlatformPostID string
	IsShort        bool
}

// PublishResult is what a finished attempt yields for persistence.
type PublishResult struct {
	PlatformPostID string
	PlatformURL    string
}

// Adapter is the uniform publish contract. Every platform walks the same
// four phases; phases a platform doesn't need are no-ops.
type Adapter interface {
	// Initiate validates the request and registers the publish intent with
	// the platform, returning a handle with the platform's job ids.
	Initiate(ctx context.Context, req *PublishRequest) (*Handle, error)

	// Transfer moves the media payload. No-op for pull-from-URL flows.
	Transfer(ctx context.Context, h *Handle, req *PublishRequest) error

	// AwaitReady blocks until remote processing reaches a terminal state.
	AwaitReady(ctx context.Context, h *Handle) error

	// Finalize makes the content publicly visible and returns its ids.
	Finalize(ctx context.Context, h *Handle, req *PublishRequest) (*PublishResult, error)
}

// Registry dispatches posts to the adapter for their platform.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(platform string, a Adapter) {
	r.adapters[platform] = a
}

func (r *Registry) Get(platform string) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("no adapter for platform %q", platform)}
	}
	return a, nil
}
