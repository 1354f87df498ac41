// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "1h" or "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the root of the firewatch YAML configuration.
type Config struct {
	// LogLevel controls application logging (debug, info, warn, error).
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// LogDir is where application log files are written. Empty disables
	// file logging.
	LogDir string `yaml:"log_dir"`

	// ReportDir is the root of the report store.
	ReportDir string `yaml:"report_dir" validate:"required"`

	// StateDir holds the embedded watermark and counter database.
	StateDir string `yaml:"state_dir" validate:"required"`

	// LogoPath, when set, is attached to outbound report mail.
	LogoPath string `yaml:"logo_path"`

	// Interval is how often the scheduler runs an ingestion pass.
	Interval Duration `yaml:"interval"`

	Analysis AnalysisConfig `yaml:"analysis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	API      APIConfig      `yaml:"api"`

	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// AnalysisConfig configures the LLM backend.
type AnalysisConfig struct {
	// APIKey authenticates to the backend. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Model is the chat completion model name.
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint for self-hosted backends.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// SMTPConfig configures outbound report mail. A zero Host disables
// delivery entirely; reports are still persisted.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,gt=0,lte=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from" validate:"required_with=Host,omitempty,email"`
}

// APIConfig configures the status HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Debug   bool   `yaml:"debug"`
}

// SourceConfig describes one monitored firewall.
type SourceConfig struct {
	// ID names the source and becomes a report store path segment, so it
	// is restricted to path-safe characters.
	ID string `yaml:"id" validate:"required,source_id"`

	// Hostname is the display name in reports; defaults to ID.
	Hostname string `yaml:"hostname"`

	// LogPath is the syslog file to ingest.
	LogPath string `yaml:"log_path" validate:"required"`

	// Lookback bounds the first window when no watermark exists yet.
	Lookback Duration `yaml:"lookback"`

	// Timezone is an IANA zone name for report partitioning and subject
	// lines. Defaults to UTC.
	Timezone string `yaml:"timezone"`

	// Recipients receive per-cycle reports.
	Recipients []string `yaml:"recipients" validate:"omitempty,dive,email"`

	// RollupEvery triggers a consolidated report after this many cycles.
	// Zero disables rollups for the source.
	RollupEvery int `yaml:"rollup_every" validate:"gte=0"`

	// RollupRecipients receive consolidated reports; defaults to
	// Recipients.
	RollupRecipients []string `yaml:"rollup_recipients" validate:"omitempty,dive,email"`

	// BonusContext lists files whose content is attached to every
	// analysis prompt for the source.
	BonusContext []string `yaml:"bonus_context"`

	// ResetCounterOnEmptyRollup controls what happens when a rollup
	// fires with no eligible inputs: reset and skip the period (true,
	// the default) or keep counting and retry next cycle.
	ResetCounterOnEmptyRollup *bool `yaml:"reset_counter_on_empty_rollup"`
}

// defaults applied by Load for fields the operator may omit.
const (
	defaultLogLevel = "info"
	defaultInterval = Duration(1 * time.Hour)
	defaultLookback = Duration(1 * time.Hour)
	defaultAddr     = ":8080"
)
