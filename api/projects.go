package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/registry"
)

type projectRequest struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	AccountID string `json:"account_id"`
}

// GetProjects handles GET /api/projects
func GetProjects(c *gin.Context) {
	projects, err := store.ListProjects()
	if err != nil {
		log.Error().Err(err).Msg("failed to list projects")
		RespondInternalError(c, "Failed to list projects")
		return
	}
	RespondList(c, projects)
}

// GetProject handles GET /api/projects/:id
func GetProject(c *gin.Context) {
	project, err := store.FindProject(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to read projects")
		RespondInternalError(c, "Failed to read projects")
		return
	}
	if project == nil {
		RespondNotFound(c, "Project not found")
		return
	}
	RespondData(c, project)
}

// CreateProject handles POST /api/projects
func CreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	project, err := store.AddProject(req.Name, req.Path, req.AccountID)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			RespondValidationError(c, err.Error(), nil)
			return
		}
		log.Error().Err(err).Msg("failed to add project")
		RespondInternalError(c, "Failed to add project")
		return
	}
	log.Info().Str("project", project.ID).Str("name", project.Name).Msg("project created")
	RespondCreated(c, project, "/api/projects/"+project.ID)
}

// UpdateProject handles PUT /api/projects/:id
func UpdateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	project, err := store.UpdateProject(c.Param("id"), req.Name, req.Path, req.AccountID)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			if strings.Contains(err.Error(), "not found") {
				RespondNotFound(c, "Project not found")
				return
			}
			RespondValidationError(c, err.Error(), nil)
			return
		}
		log.Error().Err(err).Msg("failed to update project")
		RespondInternalError(c, "Failed to update project")
		return
	}
	RespondData(c, project)
}

// DeleteProject handles DELETE /api/projects/:id
func DeleteProject(c *gin.Context) {
	project, err := store.FindProject(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to read projects")
		RespondInternalError(c, "Failed to read projects")
		return
	}
	if project == nil {
		RespondNotFound(c, "Project not found")
		return
	}

	if _, err := store.DeleteProject(project.ID); err != nil {
		log.Error().Err(err).Msg("failed to delete project")
		RespondInternalError(c, "Failed to delete project")
		return
	}
	log.Info().Str("project", project.ID).Msg("project deleted")
	RespondNoContent(c)
}
