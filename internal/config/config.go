package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// ----------------------------
	// Delivery provider
	// ----------------------------
	DeliveryProvider string `envconfig:"DELIVERY_PROVIDER" default:"ses"`

	AWSRegion          string `envconfig:"AWS_REGION" default:"ap-south-1"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID" default:""`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY" default:""`

	ResendAPIKey string `envconfig:"RESEND_API_KEY" default:""`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	// ----------------------------
	// Sender identities
	// ----------------------------
	// Separate subdomains keep sending reputation segregated by traffic type.
	TransactionalFrom string `envconfig:"TRANSACTIONAL_FROM" default:"no-reply@mail.featherlink.in"`
	NotificationFrom  string `envconfig:"NOTIFICATION_FROM" default:"updates@notify.featherlink.in"`
	MarketingFrom     string `envconfig:"MARKETING_FROM" default:"news@news.featherlink.in"`
	SystemFrom        string `envconfig:"SYSTEM_FROM" default:"system@account.featherlink.in"`

	// ----------------------------
	// Links
	// ----------------------------
	BaseURL string `envconfig:"BASE_URL" default:"https://app.featherlink.in"`

	// ----------------------------
	// Queue processing
	// ----------------------------
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"10"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	RetryDelay   time.Duration `envconfig:"RETRY_DELAY" default:"30m"`
	LeaseTimeout time.Duration `envconfig:"LEASE_TIMEOUT" default:"15m"`
	RateLimit    int           `envconfig:"RATE_LIMIT" default:"10"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort      string `envconfig:"API_PORT" default:"8080"`
	ServiceToken string `envconfig:"SERVICE_TOKEN" required:"true"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
