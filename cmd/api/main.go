package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/campaign-engine/internal/backoffice"
	"github.com/kursadbilgin/campaign-engine/internal/config"
	"github.com/kursadbilgin/campaign-engine/internal/contactfile"
	"github.com/kursadbilgin/campaign-engine/internal/executor"
	"github.com/kursadbilgin/campaign-engine/internal/handler"
	"github.com/kursadbilgin/campaign-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/campaign-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/campaign-engine/internal/infra/redis"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"github.com/kursadbilgin/campaign-engine/internal/service"
	"github.com/kursadbilgin/campaign-engine/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("campaign-engine api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()
	publisher := queue.NewRabbitMQPublisher(rabbit)

	whatsappBudget, err := infraredis.NewWhatsAppLimiter(rdb, ratelimit.Limits{
		MaxPerMinute:       cfg.WhatsAppMaxPerMinute,
		MaxDailyHours:      cfg.WhatsAppMaxDailyHours,
		MaxConsecutiveDays: cfg.WhatsAppMaxConsecutiveDays,
	})
	if err != nil {
		return fmt.Errorf("whatsapp limiter initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()

	campaigns := repository.NewGormCampaignRepo(db)
	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	contacts := repository.NewGormContactRepo(db)

	backofficeClient := backoffice.NewClient(cfg.BackofficeURL, cfg.BackofficeToken, cfg.CompanyDomain)
	executors := executor.NewFactory(
		executor.NewGroupExecutor(backofficeClient, backofficeClient, backofficeClient, notifications, logger),
		executor.NewFileExecutor(contacts, backofficeClient, backofficeClient, notifications, logger),
	)

	campaignService, err := service.NewCampaignService(campaigns, notifications, executors, logger)
	if err != nil {
		return err
	}
	campaignService.SetMetrics(metrics)

	notificationService, err := service.NewNotificationService(notifications, attempts, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      "campaign-engine",
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    16 << 20,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	handler.RegisterMetricsRoute(app, metrics)
	if err := handler.RegisterCampaignRoutes(app, campaignService, contactfile.NewImporter(campaigns, contacts, logger), publisher); err != nil {
		return err
	}
	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		return err
	}
	if err := handler.RegisterRateLimitRoutes(app, whatsappBudget); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("campaign-engine api started", zap.Int("port", cfg.APIPort))
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down api")
	return app.ShutdownWithTimeout(shutdownTimeout)
}
