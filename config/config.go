// Copyright (C) 2025 sigil contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads sigil's orchestrator configuration from YAML (or
// JSON) files, with ${VAR}/${VAR:default} environment substitution and
// environment-variable overrides. The on-disk shape is a plain,
// serializable mirror of orchestrator.Config; ToOrchestratorConfig does the
// conversion (string durations, string origins) into the types the core
// packages actually consume.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/laphilosophia/sigil/orchestrator"
	"github.com/laphilosophia/sigil/policy"
)

// Config is the on-disk configuration shape: the orchestrator's knobs
// plus the logging, metrics, and health sections the CLI wires up.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	MasterSecret      string   `yaml:"master_secret" json:"master_secret"`
	TokenTTL          string   `yaml:"token_ttl" json:"token_ttl"`
	GraceWindow       string   `yaml:"grace_window" json:"grace_window"`
	AllowedOrigins    []string `yaml:"allowed_origins" json:"allowed_origins"`
	LegacyBrowserMode string   `yaml:"legacy_browser_mode" json:"legacy_browser_mode"`
	AllowApiMode      bool     `yaml:"allow_api_mode" json:"allow_api_mode"`
	ProtectedMethods  []string `yaml:"protected_methods" json:"protected_methods"`

	ContextBindingTier        string `yaml:"context_binding_tier" json:"context_binding_tier"`
	ContextBindingGracePeriod string `yaml:"context_binding_grace_period" json:"context_binding_grace_period"`

	OneShotEnabled bool   `yaml:"one_shot_enabled" json:"one_shot_enabled"`
	OneShotTTL     string `yaml:"one_shot_ttl" json:"one_shot_ttl"`

	NonceCacheMaxEntries int    `yaml:"nonce_cache_max_entries" json:"nonce_cache_max_entries"`
	NonceCacheGCInterval string `yaml:"nonce_cache_gc_interval" json:"nonce_cache_gc_interval"`

	DisableClientModeOverride bool   `yaml:"disable_client_mode_override" json:"disable_client_mode_override"`
	HeaderName                string `yaml:"header_name" json:"header_name"`
	OneShotHeaderName         string `yaml:"one_shot_header_name" json:"one_shot_header_name"`

	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
}

// LoggingConfig controls the internal/logger output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// MetricsConfig controls the internal/metrics Prometheus collector.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig controls the health checker surface.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile reads path and parses it as YAML, falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: parse file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by file extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.LegacyBrowserMode == "" {
		cfg.LegacyBrowserMode = string(policy.FetchMetadataDegraded)
	}
	if cfg.ContextBindingTier == "" {
		cfg.ContextBindingTier = string(policy.TierHigh)
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{Level: "info"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Path: "/metrics"}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health == nil {
		cfg.Health = &HealthConfig{Path: "/healthz"}
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}

// ValidationIssue is a single configuration problem. Level "error" fails
// Load; Level "warning" is surfaced but not fatal.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string
}

// ValidateConfiguration checks cfg for the one hard requirement (a master
// secret of at least 32 bytes) plus a few soft warnings about
// commonly-misconfigured fields.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if len(cfg.MasterSecret) < 32 {
		issues = append(issues, ValidationIssue{
			Field:   "master_secret",
			Message: "must be at least 32 bytes",
			Level:   "error",
		})
	}
	if cfg.OneShotEnabled && cfg.OneShotTTL == "" {
		issues = append(issues, ValidationIssue{
			Field:   "one_shot_ttl",
			Message: "one-shot tokens enabled without an explicit TTL; default will be used",
			Level:   "warning",
		})
	}
	if len(cfg.AllowedOrigins) == 0 {
		issues = append(issues, ValidationIssue{
			Field:   "allowed_origins",
			Message: "no allowed origins configured; every browser request will fail origin validation",
			Level:   "warning",
		})
	}

	return issues
}

// parseDuration returns def if s is empty, failing loudly (not silently
// falling back) on an unparseable non-empty value.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	return d, nil
}

// ToOrchestratorConfig converts the on-disk shape into orchestrator.Config.
func (cfg *Config) ToOrchestratorConfig() (orchestrator.Config, error) {
	tokenTTL, err := parseDuration(cfg.TokenTTL, orchestrator.DefaultTokenTTL)
	if err != nil {
		return orchestrator.Config{}, err
	}
	grace, err := parseDuration(cfg.GraceWindow, orchestrator.DefaultGraceWindow)
	if err != nil {
		return orchestrator.Config{}, err
	}
	oneShotTTL, err := parseDuration(cfg.OneShotTTL, orchestrator.DefaultOneShotTTL)
	if err != nil {
		return orchestrator.Config{}, err
	}
	gcInterval, err := parseDuration(cfg.NonceCacheGCInterval, 0)
	if err != nil {
		return orchestrator.Config{}, err
	}
	gracePeriod, err := parseDuration(cfg.ContextBindingGracePeriod, 0)
	if err != nil {
		return orchestrator.Config{}, err
	}

	binding := policy.NewContextBinding(policy.ContextTier(cfg.ContextBindingTier), gracePeriod)

	return orchestrator.Config{
		MasterSecret:              []byte(cfg.MasterSecret),
		TokenTTL:                  tokenTTL,
		GraceWindow:               grace,
		AllowedOrigins:            cfg.AllowedOrigins,
		LegacyBrowserMode:         policy.FetchMetadataMode(cfg.LegacyBrowserMode),
		AllowApiMode:              cfg.AllowApiMode,
		ProtectedMethods:          cfg.ProtectedMethods,
		ContextBinding:            &binding,
		OneShotEnabled:            cfg.OneShotEnabled,
		OneShotTTL:                oneShotTTL,
		NonceCacheMaxEntries:      cfg.NonceCacheMaxEntries,
		NonceCacheGCInterval:      gcInterval,
		DisableClientModeOverride: cfg.DisableClientModeOverride,
		HeaderName:                cfg.HeaderName,
		OneShotHeaderName:         cfg.OneShotHeaderName,
	}, nil
}
