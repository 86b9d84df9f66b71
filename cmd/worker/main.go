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
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/campaign-engine/internal/backoffice"
	"github.com/kursadbilgin/campaign-engine/internal/composer"
	"github.com/kursadbilgin/campaign-engine/internal/config"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/executor"
	"github.com/kursadbilgin/campaign-engine/internal/handler"
	"github.com/kursadbilgin/campaign-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/campaign-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/campaign-engine/internal/infra/redis"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/provider"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"github.com/kursadbilgin/campaign-engine/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	metricsAddr           = ":9090"
	metricsShutdownWindow = 5 * time.Second
	reporterFlushWindow   = 2 * time.Second
)

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
		logger.Fatal("campaign-engine worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter, err := observability.NewReporter(cfg.SentryDSN, cfg.Environment)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer reporter.Flush(reporterFlushWindow)

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
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	whatsappBudget, err := infraredis.NewWhatsAppLimiter(rdb, ratelimit.Limits{
		MaxPerMinute:       cfg.WhatsAppMaxPerMinute,
		MaxDailyHours:      cfg.WhatsAppMaxDailyHours,
		MaxConsecutiveDays: cfg.WhatsAppMaxConsecutiveDays,
	})
	if err != nil {
		return fmt.Errorf("whatsapp limiter initialization failed: %w", err)
	}
	throughput, err := infraredis.NewThroughputLimiter(rdb, cfg.RateLimitPerSec, map[string]int{
		"telegram": cfg.TelegramRatePerSec,
	})
	if err != nil {
		return fmt.Errorf("throughput limiter initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()

	campaigns := repository.NewGormCampaignRepo(db)
	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)
	contacts := repository.NewGormContactRepo(db)
	templates := repository.NewCachedTemplateRepo(
		repository.NewGormTemplateRepo(db),
		time.Duration(cfg.TemplateCacheTTLSec)*time.Second,
	)

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

	worker, err := service.NewWorkerService(service.WorkerDependencies{
		Notifications: notifications,
		Attempts:      attempts,
		Campaigns:     campaigns,
		Consumer:      consumer,
		Publisher:     publisher,
		Providers:     newProviderRegistry(cfg, logger),
		Composer: composer.New(templates, backofficeClient, composer.Settings{
			CompanyName:  cfg.CompanyName,
			CompanyPhone: cfg.CompanyPhone,
		}, logger),
		SendBudget: whatsappBudget,
		Throughput: throughput,
		Executions: campaignService,
		Reporter:   reporter,
	}, queue.RetryPolicy{
		MaxAttempts: cfg.SendMaxAttempts,
		Delay:       time.Duration(cfg.SendRetryDelaySec) * time.Second,
	}, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	dispatcher, err := service.NewDispatcher(notifications, campaigns, publisher, service.DispatcherOptions{
		Interval:     time.Duration(cfg.DispatchIntervalSec) * time.Second,
		BatchSize:    cfg.DispatchBatchSize,
		RequeueAfter: time.Duration(cfg.DispatchRequeueAfterSec) * time.Second,
	}, logger)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)

	sweeper, err := service.NewSweeper(campaigns, notifications, time.Duration(cfg.SweepIntervalSec)*time.Second, 0, logger)
	if err != nil {
		return err
	}
	sweeper.SetMetrics(metrics)

	trigger, err := service.NewTrigger(campaigns, campaignService, time.Duration(cfg.TriggerIntervalSec)*time.Second, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "campaign-engine-worker",
		DisableStartupMessage: true,
	})
	app.Get("/livez", handler.LivezHandler())
	handler.RegisterMetricsRoute(app, metrics)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(groupCtx) })
	g.Go(func() error { return dispatcher.Start(groupCtx) })
	g.Go(func() error { return sweeper.Start(groupCtx) })
	g.Go(func() error { return trigger.Start(groupCtx) })
	g.Go(func() error {
		if err := app.Listen(metricsAddr); err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(metricsShutdownWindow)
	})

	logger.Info("campaign-engine worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Strings("queues", queue.WorkQueueNames()),
	)
	return g.Wait()
}

// newProviderRegistry registers every channel provider; WHATSAPP_PROVIDER picks the
// WhatsApp one tried first.
func newProviderRegistry(cfg *config.Config, logger *zap.Logger) *provider.Registry {
	return provider.NewRegistry().
		Register(domain.ChannelWhatsApp, "whapi", provider.NewWHAPIProvider(cfg.WhapiURL, cfg.WhapiToken, logger)).
		Register(domain.ChannelWhatsApp, "meta", provider.NewMetaWhatsAppProvider(cfg.MetaToken, cfg.MetaPhoneNumberID, cfg.MetaAPIVersion)).
		Prefer(domain.ChannelWhatsApp, cfg.WhatsAppProvider).
		Register(domain.ChannelTelegram, "telegram", provider.NewTelegramBotProvider(cfg.TelegramBotToken, cfg.TelegramRatePerSec)).
		Register(domain.ChannelSMS, "webhook", provider.NewSMSWebhookProvider(cfg.SMSWebhookURL)).
		Register(domain.ChannelEmail, "smtp", provider.NewEmailProvider(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Subject:  cfg.CompanyName,
		}))
}
