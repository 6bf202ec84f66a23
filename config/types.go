package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Filters FilterConfig  `mapstructure:"filters"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the Assemblyline connection details
type ServerConfig struct {
	URL         string            `mapstructure:"url"`
	VerifyTLS   bool              `mapstructure:"verify_tls"`
	Certificate string            `mapstructure:"certificate"` // path to a PEM bundle
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxRetries  int               `mapstructure:"max_retries"` // -1 retries forever
	UserAgent   string            `mapstructure:"user_agent"`
}

// Authentication methods
const (
	AuthPassword = "password"
	AuthAPIKey   = "apikey"
	AuthOAuth    = "oauth"
)

// AuthConfig selects one of the three login methods
type AuthConfig struct {
	Method        string `mapstructure:"method"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	APIKey        string `mapstructure:"apikey"`
	OAuthProvider string `mapstructure:"oauth_provider"`
	OAuthToken    string `mapstructure:"oauth_token"`
}

// FilterConfig maps filter names to expressions usable with --filter
type FilterConfig map[string]string

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}
