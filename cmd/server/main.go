package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/api"
	"github.com/sellerscope/sellerscope-go/internal/api/handlers"
	"github.com/sellerscope/sellerscope-go/internal/cache"
	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/database"
	"github.com/sellerscope/sellerscope-go/internal/services"
	"github.com/sellerscope/sellerscope-go/pkg/scrapeapi"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg)

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	// Repositories
	modelRepo := database.NewModelRepository(db.Pool)
	observationRepo := database.NewObservationRepository(db.Pool)
	marginRepo := database.NewMarginRepository(db.Pool)

	// Scrape API client doubles as listing source and rank source
	scrapeClient := scrapeapi.NewClient(cfg.ScrapeAPI)

	// Enrichment cache and budgeted enricher
	enrichmentCache := cache.NewEnrichmentCache(redis.Client, cfg.Enrichment.CacheTTLDuration())
	enricher := services.NewEnricher(scrapeClient, enrichmentCache, logger)

	// Estimation services
	tier1 := services.NewTier1Estimator(cfg.Estimator, logger)
	calibrator := services.NewCalibrator(cfg.Estimator, modelRepo, logger)
	curveModel := services.NewBSRCurveModel()
	tier2 := services.NewTier2Refiner(calibrator, curveModel, enricher, logger)
	analysis := services.NewAnalysisService(tier1, tier2, observationRepo, cfg.Enrichment.MaxCallsPerAnalysis, logger)

	moatClassifier := services.NewMoatClassifier()
	cogsEngine := services.NewCOGSEngine()
	marginBuilder := services.NewMarginBuilder(cfg.Margin, cogsEngine, logger)

	// Nightly retraining of the calibration models
	trainer := services.NewTrainer(cfg.Calibration, cfg.Estimator, observationRepo, modelRepo, logger)
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Calibration.RetrainSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		for _, marketplace := range cfg.Calibration.Marketplaces {
			if err := trainer.Retrain(ctx, marketplace); err != nil {
				logger.WithError(err).WithField("marketplace", marketplace).Error("Scheduled retraining failed")
			}
		}
	})
	if err != nil {
		logger.Fatalf("Invalid retrain schedule %q: %v", cfg.Calibration.RetrainSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router, db, redis, api.Handlers{
		Analysis: handlers.NewAnalysisHandler(analysis, scrapeClient, logger),
		Moat:     handlers.NewMoatHandler(moatClassifier),
		Margin:   handlers.NewMarginHandler(marginBuilder, marginRepo, logger),
		Cache:    handlers.NewCacheHandler(enrichmentCache, logger),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
