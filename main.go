package main

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vivekbarnaon/Doc-Scanner/config"
	"github.com/vivekbarnaon/Doc-Scanner/handler"
	"github.com/vivekbarnaon/Doc-Scanner/middleware"
	"github.com/vivekbarnaon/Doc-Scanner/pkg/logger"
	"github.com/vivekbarnaon/Doc-Scanner/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded", "backend", cfg.Backend.BaseURL, "auth_configured", cfg.Auth.GoogleConfigured())

	// Initialize services
	scanner := service.NewScannerService(&cfg.Backend)
	preview := service.NewPreviewService()
	history := service.NewFileHistoryStore(cfg.History.Path)
	workflow := service.NewWorkflow(scanner, history)

	// Initialize handlers
	processHandler := handler.NewProcessHandler(workflow, preview, scanner, cfg.Backend.MaxUploadBytes)
	historyHandler := handler.NewHistoryHandler(workflow)
	authHandler := handler.NewAuthHandler(cfg)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(100, time.Minute))
	router.Use(middleware.CurrentUser(&cfg.Auth))

	// Health and sign-in routes are public
	router.GET("/health", processHandler.Health)
	router.GET("/login", middleware.RequireGuest(), loginPage(cfg))
	router.GET("/auth/google/login", authHandler.Login)
	router.GET("/auth/google/callback", authHandler.Callback)

	// Workspace page; redirects to /login when a provider is configured
	// and the visitor has no session
	workspace := []gin.HandlerFunc{workspacePage(cfg)}
	if cfg.Auth.GoogleConfigured() {
		workspace = append([]gin.HandlerFunc{middleware.RequireAuth()}, workspace...)
	}
	router.GET("/", workspace...)

	api := router.Group("/api")
	{
		api.GET("/auth/me", authHandler.Me)
		api.POST("/auth/logout", authHandler.Logout)
	}

	// Processing and history require a signed-in user (unless the
	// identity provider is not configured, in which case the gate is off)
	protected := api.Group("/")
	if cfg.Auth.GoogleConfigured() {
		protected.Use(middleware.RequireAuth())
	}
	{
		protected.POST("/process/:type", processHandler.Process)
		protected.GET("/status", processHandler.Status)
		protected.GET("/results", processHandler.Results)
		protected.GET("/results/:id/preview", processHandler.Preview)
		protected.GET("/results/:id/download", processHandler.Download)
		protected.GET("/history", historyHandler.List)
		protected.DELETE("/history", historyHandler.Clear)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute, // processing requests can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// workspacePage renders the processing workspace shell. The API routes
// under /api do the actual work; this page exists so browser visitors
// land somewhere after signing in.
func workspacePage(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		greeting := "Upload a document to begin."
		if name := middleware.GetUserName(c); name != "" {
			greeting = "Signed in as " + html.EscapeString(name) + "."
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK,
			"<html><body><h1>Doc Scanner</h1><p>%s</p><p>POST files to /api/process/{imgtocsv|pdfcsv|mergecsv}.</p></body></html>",
			greeting)
	}
}

// loginPage renders a minimal sign-in page. Auth errors from the OAuth
// callback arrive in the error query parameter and are shown inline.
func loginPage(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Auth.GoogleConfigured() {
			c.Header("Content-Type", "text/html; charset=utf-8")
			c.String(http.StatusOK, "<html><body><h1>Doc Scanner</h1><p>Sign-in is not configured on this deployment.</p></body></html>")
			return
		}

		loginURL := "/auth/google/login"
		if from := c.Query("from"); from != "" {
			loginURL += "?from=" + url.QueryEscape(from)
		}

		errorBlock := ""
		if msg := c.Query("error"); msg != "" {
			errorBlock = "<p class=\"error\">" + html.EscapeString(msg) + "</p>"
		}

		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK,
			"<html><body><h1>Doc Scanner</h1>%s<p><a href=%q>Sign in with Google</a></p></body></html>",
			errorBlock, loginURL)
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
