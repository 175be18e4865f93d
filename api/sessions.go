package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/registry"
	"github.com/zenquiem/codex-accounts-switch/sessions"
)

// resolveProjectArchive looks up the project, the account it is bound to and
// the session archive for that account's codex home. It writes the error
// response itself and returns nil on failure.
func resolveProjectArchive(c *gin.Context) (*registry.Project, *sessions.Archive) {
	project, err := store.FindProject(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to read projects")
		RespondInternalError(c, "Failed to read projects")
		return nil, nil
	}
	if project == nil {
		RespondNotFound(c, "Project not found")
		return nil, nil
	}

	account, err := store.FindAccount(project.AccountID)
	if err != nil {
		log.Error().Err(err).Msg("failed to read accounts")
		RespondInternalError(c, "Failed to read accounts")
		return nil, nil
	}
	if account == nil {
		RespondConflict(c, "Project is bound to an account that no longer exists")
		return nil, nil
	}

	return project, archives.ForHome(account.CodexHome)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessions.ErrEmptySessionID):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, sessions.ErrTrashedSessionNotFound):
		RespondNotFound(c, err.Error())
	default:
		log.Error().Err(err).Msg("session operation failed")
		RespondInternalError(c, err.Error())
	}
}

// GetProjectSessions handles GET /api/projects/:id/sessions
func GetProjectSessions(c *gin.Context) {
	project, archive := resolveProjectArchive(c)
	if archive == nil {
		return
	}
	list := archive.ListSessions(project.Path, sessions.ListOptions{
		Limit:    queryInt(c, "limit", 0),
		Query:    c.Query("query"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	})
	RespondList(c, list)
}

// GetProjectTrashedSessions handles GET /api/projects/:id/sessions-trash
func GetProjectTrashedSessions(c *gin.Context) {
	project, archive := resolveProjectArchive(c)
	if archive == nil {
		return
	}
	list := archive.ListTrashedSessions(project.Path, queryInt(c, "limit", 0), c.Query("query"))
	RespondList(c, list)
}

// GetSessionPreview handles GET /api/projects/:id/sessions/:sessionId/preview
func GetSessionPreview(c *gin.Context) {
	project, archive := resolveProjectArchive(c)
	if archive == nil {
		return
	}
	preview, err := archive.SessionPreview(project.Path, c.Param("sessionId"), queryInt(c, "max_messages", 0))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondData(c, preview)
}

// GetSessionDeletePlan handles GET /api/projects/:id/sessions/:sessionId/delete-plan
func GetSessionDeletePlan(c *gin.Context) {
	project, archive := resolveProjectArchive(c)
	if archive == nil {
		return
	}
	plan, err := archive.PlanDeletion(project.Path, c.Param("sessionId"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondData(c, plan)
}

// DeleteSession handles DELETE /api/projects/:id/sessions/:sessionId.
// The default is a soft delete into the trash; ?mode=hard removes files
// permanently.
func DeleteSession(c *gin.Context) {
	project, archive := resolveProjectArchive(c)
	if archive == nil {
		return
	}
	mode := c.DefaultQuery("mode", "soft")
	if mode != "soft" && mode != "hard" {
		RespondBadRequest(c, "mode must be soft or hard")
		return
	}
	result, err := archive.Delete(project.Path, c.Param("sessionId"), mode == "soft")
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondData(c, result)
}

// RestoreSession handles POST /api/projects/:id/sessions/:sessionId/restore
func RestoreSession(c *gin.Context) {
	project, archive := resolveProjectArchive(c)
	if archive == nil {
		return
	}
	result, err := archive.Restore(project.Path, c.Param("sessionId"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondData(c, result)
}
