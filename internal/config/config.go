// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// LogLevel is the zap log level (debug, info, warn, error); default info.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTSigningKey is the HMAC secret for bearer tokens, or a PEM key path.
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	// JWTIssuer is the iss claim (e.g. "ledgerline-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "ledgerline-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTTTL is the bearer token lifetime (e.g. "8h").
	JWTTTL string `mapstructure:"JWT_TTL"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionIdleWindow is how long a session survives without activity (default 15m).
	SessionIdleWindow string `mapstructure:"SESSION_IDLE_WINDOW"`
	// SessionAbsoluteWindow is the max session age regardless of activity (default 8h).
	SessionAbsoluteWindow string `mapstructure:"SESSION_ABSOLUTE_WINDOW"`
	// PrivilegedWindow is the elevated-trust window granted after re-auth (default 5m).
	PrivilegedWindow string `mapstructure:"PRIVILEGED_WINDOW"`

	// LockoutThreshold is consecutive failed logins before lockout (default 5).
	LockoutThreshold int `mapstructure:"LOCKOUT_THRESHOLD"`
	// LockoutDuration is how long a locked account stays locked (default 30m).
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`

	// MasterKey is the base64 master key for the local KMS provider. Required
	// unless KMSKeyARN is set.
	MasterKey string `mapstructure:"MASTER_KEY"`
	// KMSKeyARN selects the AWS KMS provider when non-empty.
	KMSKeyARN string `mapstructure:"KMS_KEY_ARN"`
	// KeyCacheTTL is how long unwrapped tenant keys stay in memory (default 5m).
	KeyCacheTTL string `mapstructure:"KEY_CACHE_TTL"`

	// ExportJustificationMin is the minimum justification length for exports (default 20).
	ExportJustificationMin int `mapstructure:"EXPORT_JUSTIFICATION_MIN"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_ISSUER", "ledgerline-auth")
	v.SetDefault("JWT_AUDIENCE", "ledgerline-api")
	v.SetDefault("JWT_TTL", "8h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_IDLE_WINDOW", "15m")
	v.SetDefault("SESSION_ABSOLUTE_WINDOW", "8h")
	v.SetDefault("PRIVILEGED_WINDOW", "5m")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION", "30m")
	v.SetDefault("KEY_CACHE_TTL", "5m")
	v.SetDefault("EXPORT_JUSTIFICATION_MIN", 20)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.LockoutThreshold <= 0 {
		return nil, errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}
	if cfg.ExportJustificationMin <= 0 {
		return nil, errors.New("config: EXPORT_JUSTIFICATION_MIN must be positive")
	}
	if cfg.MasterKey == "" && cfg.KMSKeyARN == "" && cfg.Env == "production" {
		return nil, errors.New("config: MASTER_KEY or KMS_KEY_ARN must be set in production")
	}
	if cfg.JWTSigningKey == "" && cfg.Env == "production" {
		return nil, errors.New("config: JWT_SIGNING_KEY must be set in production")
	}

	return &cfg, nil
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TokenTTL parses JWTTTL as a time.Duration. Returns 8h if unset or invalid.
func (c *Config) TokenTTL() time.Duration { return duration(c.JWTTTL, 8*time.Hour) }

// IdleWindow parses SessionIdleWindow. Returns 15m if unset or invalid.
func (c *Config) IdleWindow() time.Duration { return duration(c.SessionIdleWindow, 15*time.Minute) }

// AbsoluteWindow parses SessionAbsoluteWindow. Returns 8h if unset or invalid.
func (c *Config) AbsoluteWindow() time.Duration {
	return duration(c.SessionAbsoluteWindow, 8*time.Hour)
}

// PrivilegedTTL parses PrivilegedWindow. Returns 5m if unset or invalid.
func (c *Config) PrivilegedTTL() time.Duration { return duration(c.PrivilegedWindow, 5*time.Minute) }

// LockoutTTL parses LockoutDuration. Returns 30m if unset or invalid.
func (c *Config) LockoutTTL() time.Duration { return duration(c.LockoutDuration, 30*time.Minute) }

// KeyTTL parses KeyCacheTTL. Returns 5m if unset or invalid.
func (c *Config) KeyTTL() time.Duration { return duration(c.KeyCacheTTL, 5*time.Minute) }
