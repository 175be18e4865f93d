package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/registry"
)

// GetSettings handles GET /api/settings
func GetSettings(c *gin.Context) {
	settings, err := store.GetUISettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to get settings")
		RespondInternalError(c, "Failed to get settings")
		return
	}
	RespondData(c, settings)
}

// UpdateSettings handles PUT /api/settings
func UpdateSettings(c *gin.Context) {
	var updates registry.UISettingsUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	settings, err := store.UpdateUISettings(updates)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			RespondValidationError(c, err.Error(), nil)
			return
		}
		log.Error().Err(err).Msg("failed to update settings")
		RespondInternalError(c, "Failed to update settings")
		return
	}
	RespondData(c, settings)
}
