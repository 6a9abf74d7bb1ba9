package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/api/handlers"
	"github.com/survey-analytics/engine/internal/container"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/internal/middleware/ratelimit"
	"github.com/survey-analytics/engine/internal/middleware/security"
	"github.com/survey-analytics/engine/internal/middleware/validation"
	"github.com/survey-analytics/engine/pkg/config"
	appLogger "github.com/survey-analytics/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Survey Analytics API Server")

	metrics.Init()

	c, err := container.New(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer c.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	validationCfg := validation.Config{
		SurveyTypes: cfg.Analysis.SurveyTypes,
		Logger:      appLogger.GetLogger(),
	}

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(validation.Middleware(validationCfg))

	readiness := map[string]handlers.Pinger{"sqlite": c.Store}
	if c.Redis != nil {
		readiness["redis"] = c.Redis
	}

	analysisHandler := handlers.NewAnalysisHandler(c.Engine, c.Store)
	datasetHandler := handlers.NewDatasetHandler(c.Importer, c.Cache)
	healthHandler := handlers.NewHealthHandler(readiness)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	limited := api.Group("", limiter.Middleware())
	limited.Post("/analyze", validation.AnalyzeRequest(validationCfg), analysisHandler.Analyze)
	limited.Post("/datasets", datasetHandler.Import)
	limited.Get("/insights/:surveyType", validation.SurveyTypeParam(validationCfg), analysisHandler.LatestInsight)
	limited.Get("/insights/:surveyType/history", validation.SurveyTypeParam(validationCfg), analysisHandler.InsightHistory)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

