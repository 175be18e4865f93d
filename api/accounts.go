package api

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zenquiem/codex-accounts-switch/config"
	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/registry"
)

type createAccountRequest struct {
	Alias            string `json:"alias"`
	OAuthFingerprint string `json:"oauth_fingerprint"`
}

// GetAccounts handles GET /api/accounts
func GetAccounts(c *gin.Context) {
	accounts, err := store.ListAccounts()
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts")
		RespondInternalError(c, "Failed to list accounts")
		return
	}
	RespondList(c, accounts)
}

// GetAccount handles GET /api/accounts/:id
func GetAccount(c *gin.Context) {
	account, err := store.FindAccount(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to read accounts")
		RespondInternalError(c, "Failed to read accounts")
		return
	}
	if account == nil {
		RespondNotFound(c, "Account not found")
		return
	}
	RespondData(c, account)
}

// CreateAccount handles POST /api/accounts. Each account gets its own
// isolated codex home directory under the data dir.
func CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	cfg := config.Get()
	accountID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	codexHome := filepath.Join(cfg.AccountsRoot(), accountID)
	if err := os.MkdirAll(codexHome, 0o700); err != nil {
		log.Error().Err(err).Str("path", codexHome).Msg("failed to create codex home")
		RespondInternalError(c, "Failed to create account home directory")
		return
	}

	account, err := store.AddAccount(req.Alias, accountID, codexHome, req.OAuthFingerprint)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			RespondValidationError(c, err.Error(), nil)
			return
		}
		log.Error().Err(err).Msg("failed to add account")
		RespondInternalError(c, "Failed to add account")
		return
	}
	log.Info().Str("account", account.ID).Str("alias", account.Alias).Msg("account created")
	RespondCreated(c, account, "/api/accounts/"+account.ID)
}

// DeleteAccount handles DELETE /api/accounts/:id. Accounts referenced by a
// project cannot be deleted. The codex home directory is removed only when
// it lives under the managed accounts root.
func DeleteAccount(c *gin.Context) {
	existing, err := store.FindAccount(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to read accounts")
		RespondInternalError(c, "Failed to read accounts")
		return
	}
	if existing == nil {
		RespondNotFound(c, "Account not found")
		return
	}

	account, err := store.DeleteAccount(existing.ID)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			RespondConflict(c, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to delete account")
		RespondInternalError(c, "Failed to delete account")
		return
	}

	accountsRoot := config.Get().AccountsRoot()
	if rel, relErr := filepath.Rel(accountsRoot, account.CodexHome); relErr == nil &&
		rel != "." && !strings.HasPrefix(rel, "..") {
		if rmErr := os.RemoveAll(account.CodexHome); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", account.CodexHome).Msg("failed to remove codex home")
		}
	}
	log.Info().Str("account", account.ID).Msg("account deleted")
	RespondNoContent(c)
}
