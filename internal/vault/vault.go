// Package vault owns decrypted OAuth tokens: it hands out valid plaintext
// access tokens and refreshes expiring ones, one refresh per account at a
// time. Ciphertext never leaves the repository unencrypted except through
// here.
package vault

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

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	config "github.com/clipperhq/clippost/configs"
	"github.com/clipperhq/clippost/internal/models"
	"github.com/clipperhq/clippost/internal/repository"
	"github.com/clipperhq/clippost/internal/transfer"
	"github.com/clipperhq/clippost/pkg/utils"
)

const (
	defaultGraphBaseURL     = "https://graph.facebook.com/v18.0"
	defaultTiktokTokenURL   = "https://open.tiktokapis.com/v2/oauth/token/"
	defaultLinkedinTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	defaultGoogleTokenURL   = "https://oauth2.googleapis.com/token"

	// Instagram long-lived tokens are re-exchanged well before expiry; the
	// exchange only works while the old token is still valid.
	instagramRefreshBuffer = 7 * 24 * time.Hour
	defaultRefreshBuffer   = 5 * time.Minute

	// Fallback when the Graph API omits expires_in on exchange.
	instagramTokenLifetime = 60 * 24 * time.Hour
)

var ErrAccountInactive = errors.New("account is deactivated")

type Vault struct {
	cfg      *config.Config
	accounts repository.AccountRepository
	client   *http.Client
	key      []byte
	group    singleflight.Group
	now      func() time.Time

	graphBaseURL     string
	tiktokTokenURL   string
	linkedinTokenURL string
	googleTokenURL   string
}

func New(cfg *config.Config, accounts repository.AccountRepository, client *http.Client) *Vault {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Vault{
		cfg:              cfg,
		accounts:         accounts,
		client:           client,
		key:              []byte(cfg.SecretKey),
		now:              time.Now,
		graphBaseURL:     defaultGraphBaseURL,
		tiktokTokenURL:   defaultTiktokTokenURL,
		linkedinTokenURL: defaultLinkedinTokenURL,
		googleTokenURL:   defaultGoogleTokenURL,
	}
}

// ValidToken returns a plaintext access token guaranteed to outlive the
// platform's refresh buffer, refreshing first when needed. For Instagram the
// page access token from metadata is returned, since publishing goes through
// the page.
func (v *Vault) ValidToken(ctx context.Context, acc *models.Account) (string, error) {
	if !acc.IsActive {
		return "", ErrAccountInactive
	}

	buffer := defaultRefreshBuffer
	if acc.Platform == models.PlatformInstagram {
		buffer = instagramRefreshBuffer
	}

	if v.now().Add(buffer).After(acc.TokenExpiresAt) {
		return v.Refresh(ctx, acc)
	}

	return v.publishToken(acc)
}

// Refresh renews the account's credentials. Concurrent callers for the same
// account share one upstream refresh.
func (v *Vault) Refresh(ctx context.Context, acc *models.Account) (string, error) {
	token, err, _ := v.group.Do(fmt.Sprintf("refresh:%d", acc.ID), func() (interface{}, error) {
		var token string
		var err error
		switch acc.Platform {
		case models.PlatformYoutube:
			token, err = v.refreshYoutube(ctx, acc)
		case models.PlatformTiktok:
			token, err = v.refreshTiktok(ctx, acc)
		case models.PlatformLinkedin:
			token, err = v.refreshLinkedin(ctx, acc)
		case models.PlatformInstagram:
			token, err = v.refreshInstagram(ctx, acc)
		default:
			err = fmt.Errorf("unsupported platform: %s", acc.Platform)
		}

		if err != nil {
			slog.Info(err.Error())
			if deactivateErr := v.accounts.Deactivate(ctx, acc.ID); deactivateErr != nil {
				slog.Info(deactivateErr.Error())
			}
			return "", fmt.Errorf("token refresh for account %d: %w", acc.ID, err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (v *Vault) refreshYoutube(ctx context.Context, acc *models.Account) (string, error) {
	refreshToken, err := utils.Decrypt(acc.RefreshToken, v.key)
	if err != nil {
		return "", err
	}

	conf := &oauth2.Config{
		ClientID:     v.cfg.GoogleClientID,
		ClientSecret: v.cfg.GoogleClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: v.googleTokenURL},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.client)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", err
	}

	rotated := tok.RefreshToken
	if rotated == refreshToken {
		// Google usually keeps the refresh token; an empty update keeps the
		// stored ciphertext.
		rotated = ""
	}

	if err := v.storeTokens(ctx, acc, tok.AccessToken, rotated, tok.Expiry); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (v *Vault) refreshTiktok(ctx context.Context, acc *models.Account) (string, error) {
	refreshToken, err := utils.Decrypt(acc.RefreshToken, v.key)
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("client_key", v.cfg.TiktokClientKey)
	data.Set("client_secret", v.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	var tokenResp transfer.TiktokTokenResponse
	if err := v.postForm(ctx, v.tiktokTokenURL, data, &tokenResp); err != nil {
		return "", err
	}

	accessToken := tokenResp.AccessToken
	rotated := tokenResp.RefreshToken
	expiresIn := tokenResp.ExpiresIn
	if tokenResp.Data != nil && tokenResp.Data.AccessToken != "" {
		accessToken = tokenResp.Data.AccessToken
		rotated = tokenResp.Data.RefreshToken
		expiresIn = tokenResp.Data.ExpiresIn
	}
	if accessToken == "" {
		return "", errors.New("tiktok refresh returned no access token")
	}

	expiresAt := v.now().Add(time.Duration(expiresIn) * time.Second)
	if err := v.storeTokens(ctx, acc, accessToken, rotated, expiresAt); err != nil {
		return "", err
	}
	return accessToken, nil
}

func (v *Vault) refreshLinkedin(ctx context.Context, acc *models.Account) (string, error) {
	refreshToken, err := utils.Decrypt(acc.RefreshToken, v.key)
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", v.cfg.LinkedinClientID)
	data.Set("client_secret", v.cfg.LinkedinClientSecret)

	var tokenResp transfer.LinkedinTokenResponse
	if err := v.postForm(ctx, v.linkedinTokenURL, data, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("linkedin refresh rejected: %s", tokenResp.ErrorDescription)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("linkedin refresh returned no access token")
	}

	expiresAt := v.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if err := v.storeTokens(ctx, acc, tokenResp.AccessToken, tokenResp.RefreshToken, expiresAt); err != nil {
		return "", err
	}
	return tokenResp.AccessToken, nil
}

// refreshInstagram re-exchanges the still-valid long-lived user token (there
// is no refresh token) and re-derives the page access token used for
// publishing.
func (v *Vault) refreshInstagram(ctx context.Context, acc *models.Account) (string, error) {
	userToken, err := utils.Decrypt(acc.AccessToken, v.key)
	if err != nil {
		return "", err
	}

	exchangeURL := fmt.Sprintf(
		"%s/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		v.graphBaseURL,
		url.QueryEscape(v.cfg.FacebookClientID),
		url.QueryEscape(v.cfg.FacebookClientSecret),
		url.QueryEscape(userToken),
	)

	var tokenResp transfer.FacebookTokenResponse
	if err := v.getJSON(ctx, exchangeURL, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Error != nil {
		return "", fmt.Errorf("facebook token exchange rejected: %s", tokenResp.Error.Message)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("facebook token exchange returned no access token")
	}

	lifetime := instagramTokenLifetime
	if tokenResp.ExpiresIn > 0 {
		lifetime = time.Duration(tokenResp.ExpiresIn) * time.Second
	}
	expiresAt := v.now().Add(lifetime)

	pageToken, err := v.derivePageToken(ctx, tokenResp.AccessToken, acc.Metadata.Instagram.FacebookPageID)
	if err != nil {
		return "", err
	}

	encryptedPageToken, err := utils.Encrypt([]byte(pageToken), v.key)
	if err != nil {
		return "", err
	}
	acc.Metadata.Instagram.PageAccessToken = encryptedPageToken

	raw, err := models.EncodeMetadata(acc.Metadata)
	if err != nil {
		return "", err
	}
	if err := v.accounts.SetMetadata(ctx, acc.ID, raw); err != nil {
		return "", err
	}

	if err := v.storeTokens(ctx, acc, tokenResp.AccessToken, "", expiresAt); err != nil {
		return "", err
	}

	log.Printf("instagram token refreshed for account %d, expires %s", acc.ID, expiresAt.Format(time.RFC3339))
	return pageToken, nil
}

func (v *Vault) derivePageToken(ctx context.Context, userToken, pageID string) (string, error) {
	pagesURL := fmt.Sprintf("%s/me/accounts?access_token=%s", v.graphBaseURL, url.QueryEscape(userToken))

	var pages transfer.FacebookPagesResponse
	if err := v.getJSON(ctx, pagesURL, &pages); err != nil {
		return "", err
	}
	if pages.Error != nil {
		return "", fmt.Errorf("listing pages rejected: %s", pages.Error.Message)
	}

	for _, page := range pages.Data {
		if page.ID == pageID {
			return page.AccessToken, nil
		}
	}
	return "", fmt.Errorf("page %s not found among managed pages", pageID)
}

// storeTokens encrypts and persists the rotated credentials, guarded by the
// expiry the caller read. Losing the guard means another process already
// refreshed; that refresh's tokens stand.
func (v *Vault) storeTokens(ctx context.Context, acc *models.Account, access, refresh string, expiresAt time.Time) error {
	encryptedAccess, err := utils.Encrypt([]byte(access), v.key)
	if err != nil {
		return err
	}

	var encryptedRefresh string
	if refresh != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(refresh), v.key)
		if err != nil {
			return err
		}
	}

	if err := v.accounts.SetToken(ctx, acc.ID, acc.TokenExpiresAt, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return err
	}

	acc.AccessToken = encryptedAccess
	if encryptedRefresh != "" {
		acc.RefreshToken = encryptedRefresh
	}
	acc.TokenExpiresAt = expiresAt
	return nil
}

func (v *Vault) publishToken(acc *models.Account) (string, error) {
	if acc.Platform == models.PlatformInstagram && acc.Metadata != nil &&
		acc.Metadata.Instagram != nil && acc.Metadata.Instagram.PageAccessToken != "" {
		return utils.Decrypt(acc.Metadata.Instagram.PageAccessToken, v.key)
	}
	return utils.Decrypt(acc.AccessToken, v.key)
}

func (v *Vault) postForm(ctx context.Context, endpoint string, data url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	return json.Unmarshal(body, out)
}

func (v *Vault) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}
