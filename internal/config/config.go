// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package config loads Connectlify configuration via koanf v2 with layered
// sources, highest priority last:
//
//  1. Built-in defaults
//  2. Config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/connectlify/config.yaml",
	"/etc/connectlify/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration for the Connectlify server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Carrier  CarrierConfig  `koanf:"carrier"`
	Payments PaymentsConfig `koanf:"payments"`
	Billing  BillingConfig  `koanf:"billing"`
	Backup   BackupConfig   `koanf:"backup"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds authentication and rate limit settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// StoreConfig holds BadgerDB document store settings.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// CarrierConfig holds SMS carrier API credentials.
type CarrierConfig struct {
	BaseURL    string        `koanf:"base_url"`
	AccountSID string        `koanf:"account_sid"`
	AuthToken  string        `koanf:"auth_token"`
	Timeout    time.Duration `koanf:"timeout"`
}

// PaymentsConfig holds payment processor API credentials.
type PaymentsConfig struct {
	BaseURL   string        `koanf:"base_url"`
	SecretKey string        `koanf:"secret_key"`
	Timeout   time.Duration `koanf:"timeout"`
}

// BillingConfig holds pricing and billing cycle settings. Money values are
// decimal strings to avoid float drift in configuration round-trips.
type BillingConfig struct {
	MessagePrice string `koanf:"message_price"`
	CycleDay     int    `koanf:"cycle_day"`
}

// MessagePriceDecimal returns the per-message cost as a decimal.
// Validate guarantees the string parses.
func (b *BillingConfig) MessagePriceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(b.MessagePrice)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// BackupConfig holds scheduled store backup settings.
type BackupConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Dir       string        `koanf:"dir"`
	Interval  time.Duration `koanf:"interval"`
	Retention int           `koanf:"retention"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8287,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Path:     "/data/connectlify",
			InMemory: false,
		},
		Carrier: CarrierConfig{
			BaseURL: "https://api.twilio.com",
			Timeout: 30 * time.Second,
		},
		Payments: PaymentsConfig{
			BaseURL: "https://api.stripe.com",
			Timeout: 30 * time.Second,
		},
		Billing: BillingConfig{
			MessagePrice: "0.01",
			CycleDay:     1,
		},
		Backup: BackupConfig{
			Enabled:   false,
			Dir:       "/data/backups",
			Interval:  24 * time.Hour,
			Retention: 7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, config file, and environment.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom reads configuration using an explicit config file path.
// An empty path skips the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: config file, if present
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps flat environment variable names to config paths.
// Only mapped variables are honored; unrelated environment noise is ignored.
var envMappings = map[string]string{
	"host":                "server.host",
	"port":                "server.port",
	"server_timeout":      "server.timeout",
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"rate_limit_reqs":     "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"rate_limit_disabled": "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"store_path":          "store.path",
	"store_in_memory":     "store.in_memory",
	"twilio_base_url":     "carrier.base_url",
	"twilio_sid":          "carrier.account_sid",
	"twilio_auth_token":   "carrier.auth_token",
	"carrier_timeout":     "carrier.timeout",
	"stripe_base_url":     "payments.base_url",
	"stripe_secret_key":   "payments.secret_key",
	"payments_timeout":    "payments.timeout",
	"sms_price":           "billing.message_price",
	"billing_cycle_day":   "billing.cycle_day",
	"backup_enabled":      "backup.enabled",
	"backup_dir":          "backup.dir",
	"backup_interval":     "backup.interval",
	"backup_retention":    "backup.retention",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
	"log_caller":          "logging.caller",
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so arbitrary environment values cannot
// shadow config keys.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Validate checks cross-field constraints that koanf cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}
	if c.Billing.CycleDay < 1 || c.Billing.CycleDay > 28 {
		return fmt.Errorf("billing cycle_day %d out of range (1-28)", c.Billing.CycleDay)
	}
	price, err := decimal.NewFromString(c.Billing.MessagePrice)
	if err != nil {
		return fmt.Errorf("billing message_price %q is not a decimal: %w", c.Billing.MessagePrice, err)
	}
	if price.IsNegative() {
		return fmt.Errorf("billing message_price must not be negative")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store path is required unless in_memory is set")
	}
	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup dir is required when backups are enabled")
		}
		if c.Backup.Interval < time.Minute {
			return fmt.Errorf("backup interval %s too short (minimum 1m)", c.Backup.Interval)
		}
		if c.Backup.Retention < 1 {
			return fmt.Errorf("backup retention must keep at least 1 backup")
		}
	}
	return nil
}
