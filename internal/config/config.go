package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration loaded from environment variables
// and an optional YAML overlay file.
type Config struct {
	Env  string `envconfig:"ENV" default:"development" yaml:"env"`
	Port string `envconfig:"PORT" default:"8080" yaml:"port"`

	DatabaseURL string `envconfig:"DATABASE_URL" yaml:"database_url"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0" yaml:"redis_url"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" yaml:"log_level"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" yaml:"log_format"`

	// Owner login
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID" yaml:"google_client_id"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET" yaml:"google_client_secret"`
	GoogleCallbackURL  string `envconfig:"GOOGLE_CALLBACK_URL" yaml:"google_callback_url"`
	SessionSecret      string `envconfig:"SESSION_SECRET" yaml:"session_secret"`
	EncryptionKey      string `envconfig:"ENCRYPTION_KEY" yaml:"encryption_key"` // base64, 32 bytes

	// Public URL used to build check-in and guardian links in emails
	AppBaseURL string `envconfig:"APP_BASE_URL" default:"http://localhost:8080" yaml:"app_base_url"`

	// Inactivity detector
	InactivitySchedule  string        `envconfig:"INACTIVITY_SCHEDULE" default:"0 3 * * *" yaml:"inactivity_schedule"`
	ScheduleTimezone    string        `envconfig:"SCHEDULE_TIMEZONE" default:"UTC" yaml:"schedule_timezone"`
	CronSecret          string        `envconfig:"CRON_SECRET" yaml:"cron_secret"`
	CheckInTokenTTL     time.Duration `envconfig:"CHECK_IN_TOKEN_TTL" default:"720h" yaml:"check_in_token_ttl"`
	GuardianNotifyDelay time.Duration `envconfig:"GUARDIAN_NOTIFY_DELAY" default:"72h" yaml:"guardian_notify_delay"`

	// Emergency access tokens
	TokenTTL             time.Duration `envconfig:"TOKEN_TTL" default:"168h" yaml:"token_ttl"`
	RequireVerification  bool          `envconfig:"REQUIRE_VERIFICATION" default:"true" yaml:"require_verification"`
	MaxVerifyAttempts    int           `envconfig:"MAX_VERIFICATION_ATTEMPTS" default:"5" yaml:"max_verification_attempts"`
	SingleUseTokens      bool          `envconfig:"SINGLE_USE_TOKENS" default:"false" yaml:"single_use_tokens"`
	TokenExpirySchedule  string        `envconfig:"TOKEN_EXPIRY_SCHEDULE" default:"@hourly" yaml:"token_expiry_schedule"`
	GuardianRateLimit    float64       `envconfig:"GUARDIAN_RATE_LIMIT" default:"0.5" yaml:"guardian_rate_limit"` // requests per second per IP
	GuardianRateBurst    int           `envconfig:"GUARDIAN_RATE_BURST" default:"10" yaml:"guardian_rate_burst"`
	TrustedProxies       []string      `envconfig:"TRUSTED_PROXIES" yaml:"trusted_proxies"` // empty: client IP is the TCP peer
	SignedURLTTL         time.Duration `envconfig:"SIGNED_URL_TTL" default:"1h" yaml:"signed_url_ttl"`
	StorageTimeout       time.Duration `envconfig:"STORAGE_TIMEOUT" default:"10s" yaml:"storage_timeout"`
	StorageBucket        string        `envconfig:"STORAGE_BUCKET" default:"user_documents" yaml:"storage_bucket"`
	StorageCredentials   string        `envconfig:"STORAGE_CREDENTIALS_FILE" yaml:"storage_credentials_file"`
	StorageStubMode      bool          `envconfig:"STORAGE_STUB_MODE" default:"false" yaml:"storage_stub_mode"`
	EmbeddedWorker       bool          `envconfig:"EMBEDDED_WORKER" default:"false" yaml:"embedded_worker"`
	ActivityStreamEnable bool          `envconfig:"ACTIVITY_STREAM_ENABLED" default:"true" yaml:"activity_stream_enabled"`

	// Email webhook
	WebhookURL      string `envconfig:"N8N_WEBHOOK_URL" yaml:"webhook_url"`
	WebhookSecret   string `envconfig:"N8N_WEBHOOK_SECRET" yaml:"webhook_secret"`
	WebhookStubMode bool   `envconfig:"N8N_STUB_MODE" default:"true" yaml:"webhook_stub_mode"`
}

// Load reads configuration from environment variables, then applies the YAML
// file named by SHIELD_CONFIG_FILE on top (keys present in the file win).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if path := os.Getenv("SHIELD_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		log.Println("WARNING: Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}
	if cfg.EncryptionKey == "" {
		log.Println("WARNING: ENCRYPTION_KEY not set. Verification codes and OAuth tokens will be stored unencrypted.")
	}

	return &cfg, nil
}

// applyFile overlays values from a YAML file. Unknown keys are rejected so
// typos surface at startup instead of silently falling back to defaults.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
