package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpmetrics "mimic/app/echo-server/metrics"
	"mimic/app/echo-server/router"
	"mimic/business/dispatch"
	"mimic/business/experiment"
	"mimic/internal/middleware"
	"mimic/internal/repository/batch"
	"mimic/internal/repository/objectstore"
	psqlRepo "mimic/internal/repository/postgres"
	"mimic/internal/rest"
	"mimic/pkg/config"
	"mimic/pkg/database"
	"mimic/pkg/logger"
	"mimic/pkg/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load(true)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment,
		logger.WithLevel(cfg.Log.Level),
		logger.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays),
	)
	logger.Info("Starting dispatch server", "app", cfg.App.Name, "version", cfg.App.Version)

	metrics.Init()
	httpmetrics.Init()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := psqlRepo.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate experiment tables", "error", err)
	}
	logger.Info("Database connected successfully")

	store, err := objectstore.New(cfg.ObjectStore)
	if err != nil {
		logger.Fatal("Failed to create object store client", "error", err)
	}
	submitter, err := batch.New(context.Background(), cfg.Batch.Region)
	if err != nil {
		logger.Fatal("Failed to create batch client", "error", err)
	}

	// Init repo
	experimentRepo := psqlRepo.NewExperimentRepository(db)

	// Init service
	experimentService := experiment.NewExperimentService(experimentRepo, store)
	dispatchService := dispatch.NewDispatchService(submitter, experimentService, dispatch.Definitions{
		Queue:     cfg.Batch.JobQueue,
		Records:   cfg.Batch.RecordDefinition,
		Inference: cfg.Batch.InferenceDefinition,
		Training:  cfg.Batch.TrainingDefinition,
		Contrast:  cfg.Batch.ContrastDefinition,
	}, cfg.Batch.MaxConcurrentSubmits)

	// Init handler
	dispatchHandler := rest.NewDispatchHandler(dispatchService, experimentService)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(httpmetrics.Middleware())

	api := e.Group("/api/v1")
	router.SetLogOddsRoutes(api, dispatchHandler, middleware.AuthMiddleware(cfg.JWT.SecretKey))
	router.SetMetricsRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
