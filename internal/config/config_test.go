// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom(\"\") error: %v", err)
	}

	if cfg.Server.Port != 8287 {
		t.Errorf("default port = %d, want 8287", cfg.Server.Port)
	}
	if cfg.Billing.MessagePrice != "0.01" {
		t.Errorf("default message price = %q, want 0.01", cfg.Billing.MessagePrice)
	}
	if cfg.Security.SessionTimeout != 24*time.Hour {
		t.Errorf("default session timeout = %v, want 24h", cfg.Security.SessionTimeout)
	}
	if got := cfg.Billing.MessagePriceDecimal().String(); got != "0.01" {
		t.Errorf("MessagePriceDecimal = %s, want 0.01", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9000\nbilling:\n  message_price: \"0.02\"\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000 from config file", cfg.Server.Port)
	}
	if cfg.Billing.MessagePrice != "0.02" {
		t.Errorf("message price = %q, want 0.02 from config file", cfg.Billing.MessagePrice)
	}
	// Untouched keys keep defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9100")
	t.Setenv("SMS_PRICE", "0.05")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100 from environment", cfg.Server.Port)
	}
	if cfg.Billing.MessagePrice != "0.05" {
		t.Errorf("message price = %q, want 0.05 from environment", cfg.Billing.MessagePrice)
	}
}

func TestEnvUnmappedIgnored(t *testing.T) {
	t.Setenv("RANDOM_UNRELATED_VAR", "junk")

	if _, err := LoadFrom(""); err != nil {
		t.Fatalf("unmapped environment variable broke load: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }},
		{"cycle day out of range", func(c *Config) { c.Billing.CycleDay = 30 }},
		{"bad message price", func(c *Config) { c.Billing.MessagePrice = "one cent" }},
		{"negative message price", func(c *Config) { c.Billing.MessagePrice = "-0.01" }},
		{"no store path", func(c *Config) { c.Store.Path = ""; c.Store.InMemory = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}
