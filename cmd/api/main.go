package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gradescan/gradescan-api/internal/config"
	"github.com/gradescan/gradescan-api/internal/database"
	"github.com/gradescan/gradescan-api/internal/extract"
	"github.com/gradescan/gradescan-api/internal/handler"
	"github.com/gradescan/gradescan-api/internal/middleware"
	"github.com/gradescan/gradescan-api/internal/models"
	"github.com/gradescan/gradescan-api/internal/repository"
	"github.com/gradescan/gradescan-api/internal/router"
	"github.com/gradescan/gradescan-api/internal/service"
	"github.com/gradescan/gradescan-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Batch{}, &models.Record{}, &models.Setting{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// The summary cache is optional; without Redis every summary request
	// recomputes from the database.
	redisClient, err := connectRedis(cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	batchRepo := repository.NewBatchRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	settingsService := service.NewSettingsService(settingRepo, cfg, validate, logger)

	grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
		KeySource:   settingsService.APIKey,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create grader: %v", err)
	}

	extractor := extract.NewService(logger)

	summaryService := service.NewSummaryService(batchRepo, recordRepo, redisClient, cfg.SummaryCacheTTL, logger)
	batchService := service.NewBatchService(batchRepo, recordRepo, extractor, summaryService, logger)
	gradingService := service.NewGradingService(recordRepo, batchRepo, grader, settingsService, summaryService, logger)
	exportService := service.NewExportService(batchRepo, recordRepo, logger)

	batchHandler := handler.NewBatchHandler(batchService, gradingService, summaryService, exportService, cfg.MaxUploadMB, logger)
	recordHandler := handler.NewRecordHandler(batchService, gradingService, validate, logger)
	settingsHandler := handler.NewSettingsHandler(settingsService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.MaxUploadMB * 1024 * 1024 * 2,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		BatchHandler:    batchHandler,
		RecordHandler:   recordHandler,
		SettingsHandler: settingsHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func connectRedis(url string, logger zerolog.Logger) (*redis.Client, error) {
	if url == "" {
		logger.Info().Msg("Redis URL not configured, summary caching disabled")
		return nil, nil
	}
	return database.ConnectRedis(url)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
