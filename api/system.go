package api

import (
	"github.com/gin-gonic/gin"

	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/registry"
)

type bootstrapPayload struct {
	Accounts []registry.Account  `json:"accounts"`
	Projects []registry.Project  `json:"projects"`
	Settings registry.UISettings `json:"settings"`
}

// GetHealth handles GET /api/health
func GetHealth(c *gin.Context) {
	RespondData(c, gin.H{"status": "ok"})
}

// GetBootstrap handles GET /api/bootstrap. It returns everything the UI
// needs on first paint in one round trip.
func GetBootstrap(c *gin.Context) {
	accounts, err := store.ListAccounts()
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts")
		RespondInternalError(c, "Failed to list accounts")
		return
	}
	projects, err := store.ListProjects()
	if err != nil {
		log.Error().Err(err).Msg("failed to list projects")
		RespondInternalError(c, "Failed to list projects")
		return
	}
	settings, err := store.GetUISettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to get settings")
		RespondInternalError(c, "Failed to get settings")
		return
	}
	if accounts == nil {
		accounts = []registry.Account{}
	}
	if projects == nil {
		projects = []registry.Project{}
	}
	RespondData(c, bootstrapPayload{Accounts: accounts, Projects: projects, Settings: settings})
}
