package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Webhook    WebhookConfig
	Reconciler ReconcilerConfig
	Referral   ReferralConfig
	Gateway    GatewayConfig  `envPrefix:"GATEWAY_"`
	Formance   FormanceConfig `envPrefix:"FORMANCE_"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string        `env:"DATABASE_PATH" envDefault:"premium.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30s"`
	PingTimeout     time.Duration `env:"DB_PING_TIMEOUT" envDefault:"5s"`
}

// ServerConfig holds the webhook/admin HTTP server settings
type ServerConfig struct {
	Host       string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port       string `env:"HTTP_PORT" envDefault:"8080"`
	AdminToken string `env:"ADMIN_TOKEN"`
}

// WebhookConfig holds inbound gateway event settings
type WebhookConfig struct {
	CatalogFile string `env:"CATALOG_FILE" envDefault:"packages.yaml"`
	MaxBodyKB   int    `env:"WEBHOOK_MAX_BODY_KB" envDefault:"512"`
}

// ReconcilerConfig holds periodic reconciliation job settings
type ReconcilerConfig struct {
	SweepInterval time.Duration `env:"RECONCILE_SWEEP_INTERVAL" envDefault:"1h"`
	MonthlyCoins  int64         `env:"RECONCILE_MONTHLY_COINS" envDefault:"1000"`
}

// ReferralConfig holds commission journal settings
type ReferralConfig struct {
	JournalEnabled bool `env:"REFERRAL_JOURNAL_ENABLED" envDefault:"false"`
}

// GatewayConfig holds payment gateway API and webhook settings
type GatewayConfig struct {
	BaseURL            string        `env:"BASE_URL" envDefault:"https://api.stripe.com"`
	SecretKey          string        `env:"SECRET_KEY"`
	Timeout            time.Duration `env:"TIMEOUT" envDefault:"60s"`
	MaxRetries         int64         `env:"MAX_RETRIES" envDefault:"2"`
	WebhookSecret      string        `env:"WEBHOOK_SECRET"`
	WebhookTolerance   time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
	Currency           string        `env:"CURRENCY" envDefault:"usd"`
	CheckoutSuccessURL string        `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:8080/marketplace?payment=success"`
	CheckoutCancelURL  string        `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:8080/marketplace?payment=cancelled"`
}

// FormanceConfig holds Formance Stack connection settings for the commission journal
type FormanceConfig struct {
	StackURL     string `env:"STACK_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	LedgerName   string `env:"LEDGER_NAME" envDefault:"referral-commissions"`
}
