package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ALCLIENT_AUTH_APIKEY
const EnvPrefix = "ALCLIENT"

// Load loads the configuration from file and the environment. An explicit
// configPath must exist; otherwise a missing file falls back to defaults
// and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".alclient"))
		}

		v.AddConfigPath("/etc/alclient/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		if configPath != "" {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key is registered so
// that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "")
	v.SetDefault("server.verify_tls", true)
	v.SetDefault("server.certificate", "")
	v.SetDefault("server.timeout", "0s")
	v.SetDefault("server.max_retries", -1)
	v.SetDefault("server.user_agent", "")

	v.SetDefault("auth.method", AuthAPIKey)
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.apikey", "")
	v.SetDefault("auth.oauth_provider", "")
	v.SetDefault("auth.oauth_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(cfg.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url must be an http(s) URL: %s", cfg.Server.URL)
	}

	if cfg.Server.MaxRetries < -1 {
		return fmt.Errorf("server.max_retries must be -1 (unbounded) or greater: %d", cfg.Server.MaxRetries)
	}
	if cfg.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative: %s", cfg.Server.Timeout)
	}

	if err := validateAuth(cfg.Auth); err != nil {
		return err
	}

	for name, expr := range cfg.Filters {
		if strings.TrimSpace(expr) == "" {
			return fmt.Errorf("filters.%s has an empty expression", name)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

func validateAuth(a AuthConfig) error {
	switch a.Method {
	case AuthPassword:
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("auth.username and auth.password are required for password login")
		}
	case AuthAPIKey:
		if a.Username == "" || a.APIKey == "" {
			return fmt.Errorf("auth.username and auth.apikey are required for apikey login")
		}
	case AuthOAuth:
		if a.OAuthProvider == "" || a.OAuthToken == "" {
			return fmt.Errorf("auth.oauth_provider and auth.oauth_token are required for oauth login")
		}
	default:
		return fmt.Errorf("invalid auth.method: %s (must be '%s', '%s' or '%s')", a.Method, AuthPassword, AuthAPIKey, AuthOAuth)
	}
	return nil
}
