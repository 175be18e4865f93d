package api

import (
	"github.com/gin-gonic/gin"

	"github.com/zenquiem/codex-accounts-switch/quota"
	"github.com/zenquiem/codex-accounts-switch/registry"
	"github.com/zenquiem/codex-accounts-switch/sessions"
)

// Package-level dependencies, wired once at startup by SetupRoutes.
var (
	store    *registry.Store
	archives *sessions.Service
	quotas   *quota.Cache
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, reg *registry.Store, svc *sessions.Service, qc *quota.Cache) {
	store = reg
	archives = svc
	quotas = qc

	// API group
	api := r.Group("/api")

	// System routes
	api.GET("/health", GetHealth)
	api.GET("/bootstrap", GetBootstrap)

	// Account routes
	api.GET("/accounts", GetAccounts)
	api.POST("/accounts", CreateAccount)
	api.GET("/accounts/:id", GetAccount)
	api.DELETE("/accounts/:id", DeleteAccount)
	api.GET("/accounts/:id/quota", GetAccountQuota)

	// Project routes
	api.GET("/projects", GetProjects)
	api.POST("/projects", CreateProject)
	api.GET("/projects/:id", GetProject)
	api.PUT("/projects/:id", UpdateProject)
	api.DELETE("/projects/:id", DeleteProject)

	// Session routes - static segments before the session id wildcard
	api.GET("/projects/:id/sessions", GetProjectSessions)
	api.GET("/projects/:id/sessions-trash", GetProjectTrashedSessions)
	api.GET("/projects/:id/sessions/:sessionId/preview", GetSessionPreview)
	api.GET("/projects/:id/sessions/:sessionId/delete-plan", GetSessionDeletePlan)
	api.DELETE("/projects/:id/sessions/:sessionId", DeleteSession)
	api.POST("/projects/:id/sessions/:sessionId/restore", RestoreSession)

	// Settings
	api.GET("/settings", GetSettings)
	api.PUT("/settings", UpdateSettings)
}
