package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/zenquiem/codex-accounts-switch/api"
	"github.com/zenquiem/codex-accounts-switch/config"
	"github.com/zenquiem/codex-accounts-switch/log"
	"github.com/zenquiem/codex-accounts-switch/quota"
	"github.com/zenquiem/codex-accounts-switch/registry"
	"github.com/zenquiem/codex-accounts-switch/sessions"
)

func main() {
	// Load .env if present; real environment variables win
	_ = godotenv.Load()

	cfg := config.Get()

	// Initialize the JSON registry under the data dir
	store, err := registry.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DataDir).Msg("failed to initialize registry")
	}
	log.Info().Str("path", cfg.DataDir).Msg("registry initialized")

	// Session archives, one per account codex home, with filesystem watching
	// so repeat listings serve from the in-memory index
	archives := sessions.NewService(true)

	// Quota probes go through the codex subprocess and a short-lived cache
	client := quota.NewClient(cfg.CodexBin, time.Duration(cfg.QuotaTimeoutSeconds)*time.Second)
	quotas := quota.NewCache(client, time.Duration(cfg.QuotaCacheTTL)*time.Second)

	// Set Gin to release mode to disable its default debug logging
	// We use our own zerolog-based request logger instead
	gin.SetMode(gin.ReleaseMode)

	// Create Gin router
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())

	// Request logging middleware (uses zerolog)
	r.Use(log.GinLogger())

	// Compress API responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS for development
	if cfg.IsDevelopment() {
		r.Use(corsMiddleware())
	}

	r.SetTrustedProxies(nil)

	// Setup API routes
	api.SetupRoutes(r, store, archives, quotas)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server
	go func() {
		log.Info().
			Str("addr", addr).
			Str("env", cfg.Env).
			Msg("server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop filesystem watchers before the process exits
	archives.Close()

	// Shutdown server with timeout to close remaining HTTP connections
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// corsMiddleware creates a CORS middleware for Gin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:45110": true,
			"http://localhost:45111": true,
		}

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
