// Package config defines the global configuration structure for the mailroom
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"mailroom/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the mailroom service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"mailroom"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Store      StoreConfig
	SMTP       SMTPConfig
	Email      EmailConfig
	Newsletter NewsletterConfig
	Security   SecurityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL used to build verification links in outbound
	// email (no trailing slash), e.g. https://mail.example.com
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" validate:"required,url"`
}

// StoreConfig holds the external document store connection parameters.
// The admin credential authenticates privileged operations (verification
// updates, send-log writes); a fresh session is acquired per request path
// rather than shared across concurrent requests.
type StoreConfig struct {
	BaseURL       string        `envconfig:"STORE_BASE_URL" validate:"required,url"`
	AdminEmail    string        `envconfig:"STORE_ADMIN_EMAIL" validate:"required,email"`
	AdminPassword SecretString  `envconfig:"STORE_ADMIN_PASSWORD" validate:"required"`
	Timeout       time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
}

// SMTPConfig holds the mail relay connection parameters.
type SMTPConfig struct {
	Host     string       `envconfig:"SMTP_HOST" validate:"required"`
	Port     int          `envconfig:"SMTP_PORT" default:"587"`
	Username string       `envconfig:"SMTP_USER" validate:"required"`
	Password SecretString `envconfig:"SMTP_PASSWORD" validate:"required"`
}

// EmailConfig holds sender identity and template configuration.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"support@predictiveaf.com"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"PredictiveAF"`
	TemplateDir string `envconfig:"EMAIL_TEMPLATE_DIR" default:"templates"`
}

// NewsletterConfig holds dispatch-loop tuning and shared template values.
type NewsletterConfig struct {
	HeroImageURL     string `envconfig:"NEWSLETTER_HERO_URL"`
	DefaultPreheader string `envconfig:"NEWSLETTER_PREHEADER_DEFAULT"`
	// MaxRecipients caps one dispatch invocation; re-invocation picks up
	// the remainder thanks to the send-log idempotency check.
	MaxRecipients int `envconfig:"NEWSLETTER_MAX_RECIPIENTS" default:"500"`
}

// SecurityConfig holds CORS settings for the HTTP surface.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}
