package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/clevio/dashboard/api/handlers"
	"github.com/clevio/dashboard/internal/auth"
	"github.com/clevio/dashboard/internal/broadcast"
	"github.com/clevio/dashboard/internal/config"
	"github.com/clevio/dashboard/internal/db"
	"github.com/clevio/dashboard/internal/n8n"
	"github.com/clevio/dashboard/internal/registry"
	"github.com/clevio/dashboard/internal/store"
	"github.com/clevio/dashboard/internal/wa"
	"github.com/clevio/dashboard/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	mockMode := flag.Bool("mock", false, "use the in-process mock chat client (demo mode)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	sessionStore := store.New(database)
	broadcaster := broadcast.New()
	forwarder := webhook.New(cfg.Webhook.Timeout)

	var factory wa.Factory
	if *mockMode {
		log.Println("Running with the mock chat client; no real network is used")
		factory = &wa.MockFactory{AutoPair: true}
	} else {
		factory = &wa.BridgeFactory{BaseURL: cfg.Bridge.URL}
	}

	reg := registry.New(sessionStore, broadcaster, forwarder, factory)
	reg.Restore(context.Background())

	secret := cfg.Auth.TokenSecret
	if secret == "" {
		secret = "keyboard cat"
		log.Println("Warning: SESSION_SECRET is not set, using the insecure default")
	}
	tokens, err := auth.NewManager(secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token manager: %v", err)
	}

	authHandler := handlers.NewAuthHandler(cfg.Auth.Username, cfg.Auth.Password, tokens)
	sessionHandler := handlers.NewSessionHandler(reg, broadcaster)
	workflowHandler := handlers.NewWorkflowHandler(n8n.New(cfg.N8N.APIURL, cfg.N8N.APIKey))

	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": reg.Count(),
		})
	})

	r.POST("/login", authHandler.Login)
	r.POST("/logout", authHandler.Logout)

	api := r.Group("/api")
	api.Use(authHandler.RequireLogin())
	{
		sessionHandler.RegisterRoutes(api)
		workflowHandler.RegisterRoutes(api)
	}

	registerStatic(r, authHandler, cfg.Server.PublicDir)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		reg.Close()
		broadcaster.Close()
		database.Close()
		os.Exit(0)
	}()

	log.Printf("Dashboard running on http://%s", cfg.Addr())
	if err := r.Run(cfg.Addr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// registerStatic serves the dashboard UI with the login redirect rules: the
// dashboard page requires a login, the login page bounces authenticated
// users back, and "/" picks one of the two.
func registerStatic(r *gin.Engine, authHandler *handlers.AuthHandler, publicDir string) {
	fileServer := http.FileServer(http.Dir(publicDir))

	r.GET("/", func(c *gin.Context) {
		if authHandler.LoggedIn(c) {
			c.Redirect(http.StatusFound, "/dashboard.html")
		} else {
			c.Redirect(http.StatusFound, "/login.html")
		}
	})

	r.NoRoute(func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/dashboard.html":
			if !authHandler.LoggedIn(c) {
				c.Redirect(http.StatusFound, "/login.html")
				return
			}
		case "/login.html":
			if authHandler.LoggedIn(c) {
				c.Redirect(http.StatusFound, "/dashboard.html")
				return
			}
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	})
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
