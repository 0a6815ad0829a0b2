// Package config loads and validates easely.yml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EaselyConfig represents the top-level easely.yml configuration.
type EaselyConfig struct {
	Version  string         `yaml:"version"`
	Timezone string         `yaml:"timezone,omitempty"` // Operational IANA zone
	Listen   string         `yaml:"listen,omitempty"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Canvas   *CanvasConfig  `yaml:"canvas,omitempty"`
	Reminder ReminderConfig `yaml:"reminder,omitempty"`
	Dialog   DialogConfig   `yaml:"dialog,omitempty"`
}

// WebhookConfig specifies the messaging platform credentials.
type WebhookConfig struct {
	VerifyToken     string `yaml:"verify_token"`
	PageAccessToken string `yaml:"page_access_token"`
}

// CanvasConfig specifies the LMS instance to sync from.
type CanvasConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ReminderConfig tunes the dispatch sweep.
type ReminderConfig struct {
	SweepCron  string `yaml:"sweep_cron,omitempty"`  // Default: hourly on the hour
	MaxRetries int    `yaml:"max_retries,omitempty"` // Default: 3
}

// DialogConfig tunes the conversation flows.
type DialogConfig struct {
	SessionTTLMinutes int   `yaml:"session_ttl_minutes,omitempty"` // Default: 60
	WeekDays          int   `yaml:"week_days,omitempty"`           // Default: 7
	WeekIncludesToday *bool `yaml:"week_includes_today,omitempty"` // Default: true
}

// SessionTTL returns the dialog abandonment timeout.
func (d DialogConfig) SessionTTL() time.Duration {
	return time.Duration(d.SessionTTLMinutes) * time.Minute
}

// Validate performs strict validation on the configuration and applies
// defaults for optional fields.
func (c *EaselyConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Webhook.VerifyToken == "" {
		return fmt.Errorf("webhook.verify_token is required")
	}
	if c.Webhook.PageAccessToken == "" {
		return fmt.Errorf("webhook.page_access_token is required")
	}

	if c.Canvas != nil && c.Canvas.BaseURL == "" {
		return fmt.Errorf("canvas.base_url is required when canvas is configured")
	}

	// Defaults
	if c.Timezone == "" {
		c.Timezone = "Asia/Manila"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Reminder.SweepCron == "" {
		c.Reminder.SweepCron = "0 * * * *"
	}
	if c.Reminder.MaxRetries == 0 {
		c.Reminder.MaxRetries = 3
	}
	if c.Dialog.SessionTTLMinutes == 0 {
		c.Dialog.SessionTTLMinutes = 60
	}
	if c.Dialog.WeekDays == 0 {
		c.Dialog.WeekDays = 7
	}
	if c.Dialog.WeekIncludesToday == nil {
		includesToday := true
		c.Dialog.WeekIncludesToday = &includesToday
	}

	return nil
}

// Load reads and validates an easely.yml file.
func Load(path string) (*EaselyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg EaselyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets may come from the environment instead of the file
	if v := os.Getenv("VERIFY_TOKEN"); v != "" {
		cfg.Webhook.VerifyToken = v
	}
	if v := os.Getenv("PAGE_ACCESS_TOKEN"); v != "" {
		cfg.Webhook.PageAccessToken = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
