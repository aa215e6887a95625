package jobs

import (
	"context"
	"log"
	"time"

	"github.com/clipperhq/clippost/internal/repository"
	"github.com/clipperhq/clippost/internal/vault"
)

// refreshWindow is how far ahead the sweep looks; anything expiring inside
// it gets refreshed proactively instead of during a publish.
const refreshWindow = 30 * time.Minute

type TokenRefreshJob struct {
	accounts repository.AccountRepository
	vault    *vault.Vault
}

func NewTokenRefreshJob(accounts repository.AccountRepository, v *vault.Vault) *TokenRefreshJob {
	return &TokenRefreshJob{accounts: accounts, vault: v}
}

// RefreshTokens is the cron entrypoint. A single failed account never stops
// the sweep; the vault already deactivates accounts whose refresh is
// rejected.
func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	accounts, err := j.accounts.ListExpiringBefore(ctx, time.Now().Add(refreshWindow))
	if err != nil {
		log.Printf("token refresh sweep: listing accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	log.Printf("token refresh sweep: %d account(s) expiring soon", len(accounts))

	for _, acc := range accounts {
		if _, err := j.vault.Refresh(ctx, acc); err != nil {
			log.Printf("token refresh sweep: account %d (%s): %v", acc.ID, acc.Platform, err)
			continue
		}
		log.Printf("token refresh sweep: account %d (%s) refreshed", acc.ID, acc.Platform)
	}
}
