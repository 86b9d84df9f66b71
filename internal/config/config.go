package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=8"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=20"`
	SentryDSN         string `env:"SENTRY_DSN"`
	Environment       string `env:"APP_ENV,default=development"`

	DispatchIntervalSec     int `env:"DISPATCH_INTERVAL_SEC,default=600"`
	DispatchBatchSize       int `env:"DISPATCH_BATCH_SIZE,default=500"`
	DispatchRequeueAfterSec int `env:"DISPATCH_REQUEUE_AFTER_SEC,default=7200"`
	SweepIntervalSec        int `env:"SWEEP_INTERVAL_SEC,default=300"`
	TriggerIntervalSec      int `env:"TRIGGER_INTERVAL_SEC,default=60"`
	SendMaxAttempts         int `env:"SEND_MAX_ATTEMPTS,default=3"`
	SendRetryDelaySec       int `env:"SEND_RETRY_DELAY_SEC,default=60"`
	TemplateCacheTTLSec     int `env:"TEMPLATE_CACHE_TTL_SEC,default=300"`

	WhatsAppMaxPerMinute       int `env:"WHATSAPP_MAX_PER_MINUTE,default=12"`
	WhatsAppMaxDailyHours      int `env:"WHATSAPP_MAX_DAILY_HOURS,default=6"`
	WhatsAppMaxConsecutiveDays int `env:"WHATSAPP_MAX_CONSECUTIVE_DAYS,default=3"`

	CompanyName   string `env:"COMPANY_NAME,default=Cooperativa"`
	CompanyPhone  string `env:"COMPANY_PHONE"`
	CompanyDomain string `env:"COMPANY_DOMAIN,default=localhost:8000"`

	BackofficeURL   string `env:"BACKOFFICE_API_URL,required=true"`
	BackofficeToken string `env:"BACKOFFICE_API_TOKEN"`

	WhatsAppProvider   string `env:"WHATSAPP_PROVIDER,default=whapi"`
	WhapiURL           string `env:"WHAPI_API_URL,default=https://gate.whapi.cloud"`
	WhapiToken         string `env:"WHAPI_TOKEN"`
	MetaToken          string `env:"WHATSAPP_API_TOKEN"`
	MetaPhoneNumberID  string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	MetaAPIVersion     string `env:"WHATSAPP_API_VERSION,default=v21.0"`
	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramRatePerSec int    `env:"TELEGRAM_RATE_PER_SEC,default=25"`
	SMSWebhookURL      string `env:"SMS_WEBHOOK_URL"`
	SMTPHost           string `env:"SMTP_HOST"`
	SMTPPort           int    `env:"SMTP_PORT,default=587"`
	SMTPUsername       string `env:"SMTP_USERNAME"`
	SMTPPassword       string `env:"SMTP_PASSWORD"`
	SMTPFrom           string `env:"SMTP_FROM"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.WhatsAppProvider = strings.ToLower(strings.TrimSpace(cfg.WhatsAppProvider))
	switch cfg.WhatsAppProvider {
	case "whapi", "meta":
	default:
		return nil, fmt.Errorf("failed to load config: WHATSAPP_PROVIDER must be whapi or meta, got %q", cfg.WhatsAppProvider)
	}

	return &cfg, nil
}
