package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/quota"
)

// GetAccountQuota handles GET /api/accounts/:id/quota. Results are served
// from a short-lived cache; ?refresh=1 forces a fresh probe.
func GetAccountQuota(c *gin.Context) {
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

	forceRefresh := c.Query("refresh") == "1"
	snapshot, err := quotas.Get(c.Request.Context(), account.CodexHome, forceRefresh)
	if err != nil {
		respondQuotaError(c, account.ID, err)
		return
	}
	RespondData(c, snapshot)
}

// respondQuotaError maps probe classifications onto HTTP statuses. Auth
// failures are a conflict on the account, not on the API caller, so they do
// not map to 401.
func respondQuotaError(c *gin.Context, accountID string, err error) {
	var probeErr *quota.ProbeError
	if !errors.As(err, &probeErr) {
		log.Error().Err(err).Str("account", accountID).Msg("quota probe failed")
		RespondInternalError(c, "Failed to read quota")
		return
	}

	log.Warn().
		Str("account", accountID).
		Str("kind", string(probeErr.Kind)).
		Msg(probeErr.Message)
	details := []ErrorDetail{{Message: probeErr.Message, Code: string(probeErr.Kind)}}
	switch probeErr.Kind {
	case quota.KindAuth:
		respondError(c, http.StatusConflict, ErrCodeConflict, probeErr.Error(), details)
	case quota.KindUnsupported:
		respondError(c, http.StatusNotImplemented, ErrCodeInternal, probeErr.Error(), details)
	case quota.KindTimeout:
		respondError(c, http.StatusGatewayTimeout, ErrCodeServiceUnavailable, probeErr.Error(), details)
	default:
		RespondServiceUnavailable(c, probeErr.Error(), details)
	}
}
