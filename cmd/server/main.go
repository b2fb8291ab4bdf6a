// backend/cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mathtutor-ai/backend/internal/api/handlers"
	"github.com/mathtutor-ai/backend/internal/config"
	"github.com/mathtutor-ai/backend/internal/database"
	"github.com/mathtutor-ai/backend/internal/feedback"
	"github.com/mathtutor-ai/backend/internal/gateway"
	"github.com/mathtutor-ai/backend/internal/generation"
	"github.com/mathtutor-ai/backend/internal/health"
	"github.com/mathtutor-ai/backend/internal/kb"
	"github.com/mathtutor-ai/backend/internal/llm"
	"github.com/mathtutor-ai/backend/internal/middleware"
	"github.com/mathtutor-ai/backend/internal/orchestrator"
	"github.com/mathtutor-ai/backend/internal/repository"
	"github.com/mathtutor-ai/backend/internal/websearch"
	"github.com/mathtutor-ai/backend/pkg/utils"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := cfg.ValidateLLM(); err != nil {
		logger.WithError(err).Fatal("LLM configuration validation failed")
	}
	if err := cfg.ValidateSearch(); err != nil {
		logger.WithError(err).Fatal("Search configuration validation failed")
	}

	// Database and cache
	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	// Vector store
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Qdrant")
	}
	defer qdrantClient.Close()

	// Pipeline components
	llmClient := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.EmbeddingModel, logger)

	gw := gateway.New(llmClient, logger)
	retriever := kb.NewRetriever(qdrantClient, llmClient, cfg.Qdrant.Collection, cfg.Routing.MinSufficient, logger)

	searchClient := websearch.NewClient(cfg.Search.BaseURL, cfg.Search.APIKey, logger)
	extractor := websearch.NewExtractor(cfg.Routing.PageCharLimit, cfg.Routing.MinPageContent, logger)
	collector := websearch.NewCollector(searchClient, extractor, websearch.CollectorConfig{
		MaxResults:   cfg.Routing.WebMaxResults,
		MaxPages:     cfg.Routing.WebMaxPages,
		FetchWorkers: cfg.Routing.FetchWorkers,
	}, logger)

	generator := generation.NewGenerator(llmClient, generation.GeneratorConfig{
		MaxAttempts:   cfg.Routing.MaxAttempts,
		Timeout:       time.Duration(cfg.Routing.GenTimeoutSecs) * time.Second,
		ContextBudget: cfg.Routing.ContextBudget,
		Model:         cfg.LLM.Model,
	}, logger)

	orch := orchestrator.New(gw, retriever, collector, generator, repoManager.Interaction, cfg.Routing, cfg.LLM.Model, logger)
	feedbackService := feedback.NewService(repoManager.Feedback, repoManager.Interaction, logger)

	healthChecker := health.NewHealthChecker(dbManager, qdrantClient, logger)

	// HTTP server
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	rateLimiter := middleware.NewRateLimiter(60)
	router.Use(rateLimiter.RateLimit())

	solveHandler := handlers.NewSolveHandler(orch, feedbackService, cache, logger)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/solve", solveHandler.HandleSolve)
		v1.POST("/feedback", solveHandler.HandleFeedback)
		v1.GET("/feedback/summary", solveHandler.HandleFeedbackSummary)
	}

	router.GET("/health", func(c *gin.Context) {
		overall := healthChecker.CheckAll(c.Request.Context())
		status := http.StatusOK
		if overall.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, overall)
	})

	// Background health monitoring
	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go healthChecker.PeriodicHealthCheck(healthCtx, 30*time.Second)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}

	logger.Info("Server stopped")
}
