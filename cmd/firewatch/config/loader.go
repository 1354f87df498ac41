// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the firewatch YAML configuration
// and converts it into the runtime source descriptors.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Firewatch/pkg/validation"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("source_id", func(fl validator.FieldLevel) bool {
		return validation.ValidateSourceID(fl.Field().String()) == nil
	})
	return v
}

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.API.Enabled && c.API.Addr == "" {
		c.API.Addr = defaultAddr
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Hostname == "" {
			src.Hostname = src.ID
		}
		if src.Lookback <= 0 {
			src.Lookback = defaultLookback
		}
		if src.Timezone == "" {
			src.Timezone = "UTC"
		}
	}
}

// Validate checks the configuration beyond what struct tags express:
// duplicate source IDs and unknown timezones are rejected here because
// both would otherwise fail at an arbitrary later point in a cycle.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}

		if _, err := time.LoadLocation(src.Timezone); err != nil {
			return fmt.Errorf("source %q: unknown timezone %q", src.ID, src.Timezone)
		}
	}
	return nil
}

// RuntimeSources converts the configured sources into runtime
// descriptors.
func (c *Config) RuntimeSources() ([]source.Source, error) {
	out := make([]source.Source, 0, len(c.Sources))
	for _, sc := range c.Sources {
		loc, err := time.LoadLocation(sc.Timezone)
		if err != nil {
			return nil, fmt.Errorf("source %q: unknown timezone %q", sc.ID, sc.Timezone)
		}

		reset := true
		if sc.ResetCounterOnEmptyRollup != nil {
			reset = *sc.ResetCounterOnEmptyRollup
		}

		out = append(out, source.Source{
			ID:                        sc.ID,
			Hostname:                  sc.Hostname,
			LogPath:                   sc.LogPath,
			Lookback:                  time.Duration(sc.Lookback),
			Location:                  loc,
			Recipients:                sc.Recipients,
			RollupEvery:               sc.RollupEvery,
			RollupRecipients:          sc.RollupRecipients,
			BonusContext:              sc.BonusContext,
			ResetCounterOnEmptyRollup: reset,
		})
	}
	return out, nil
}
