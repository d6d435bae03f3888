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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoaderOptions configures the configuration loader
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config)
	ConfigDir string
	// Environment overrides automatic environment detection
	Environment string
	// SkipEnvSubstitution disables environment variable substitution
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir:           "config",
		Environment:         "",
		SkipEnvSubstitution: false,
		SkipValidation:      false,
	}
}

// Load loads configuration with automatic environment detection
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	// Determine environment
	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	// Try to load environment-specific config file
	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		// Fall back to default config file
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			// Fall back to config.yaml
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				// Return empty config with defaults
				cfg = &Config{}
			}
		}
	}

	// Set environment
	if cfg.Environment == "" {
		cfg.Environment = env
	}

	// Apply defaults
	setDefaults(cfg)

	// Substitute environment variables
	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	// Override with environment variables (highest priority)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if !options.SkipValidation {
		issues := ValidateConfiguration(cfg)
		// Only fail on error-level validation issues
		for _, iss := range issues {
			if iss.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s - %s", iss.Field, iss.Message)
			}
		}
	}

	return cfg, nil
}

// loadConfigFile loads a single config file
func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides config with environment variables,
// which take priority over both the file contents and ${VAR} substitution.
func applyEnvironmentOverrides(cfg *Config) {
	if secret := os.Getenv("SIGIL_MASTER_SECRET"); secret != "" {
		cfg.MasterSecret = secret
	}
	if ttl := os.Getenv("SIGIL_TOKEN_TTL"); ttl != "" {
		cfg.TokenTTL = ttl
	}
	if grace := os.Getenv("SIGIL_GRACE_WINDOW"); grace != "" {
		cfg.GraceWindow = grace
	}
	if origins := os.Getenv("SIGIL_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}
	if mode := os.Getenv("SIGIL_LEGACY_BROWSER_MODE"); mode != "" {
		cfg.LegacyBrowserMode = mode
	}
	if api := os.Getenv("SIGIL_ALLOW_API_MODE"); api != "" {
		if v, err := strconv.ParseBool(api); err == nil {
			cfg.AllowApiMode = v
		}
	}
	if oneShot := os.Getenv("SIGIL_ONE_SHOT_ENABLED"); oneShot != "" {
		if v, err := strconv.ParseBool(oneShot); err == nil {
			cfg.OneShotEnabled = v
		}
	}

	// Logging overrides
	if logLevel := os.Getenv("SIGIL_LOG_LEVEL"); logLevel != "" && cfg.Logging != nil {
		cfg.Logging.Level = logLevel
	}

	// Metrics overrides
	if cfg.Metrics != nil {
		if os.Getenv("SIGIL_METRICS_ENABLED") == "true" {
			cfg.Metrics.Enabled = true
		}
		if os.Getenv("SIGIL_METRICS_ENABLED") == "false" {
			cfg.Metrics.Enabled = false
		}
	}
}

// splitAndTrim splits a comma-separated environment value into a trimmed
// slice, discarding empty entries.
func splitAndTrim(s string) []string {
	var out []string
	for _, piece := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(piece); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadForEnvironment loads configuration for a specific environment
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{
		ConfigDir:   "config",
		Environment: environment,
	})
}

// MustLoad loads configuration or panics on error
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
