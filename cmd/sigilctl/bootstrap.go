// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/laphilosophia/sigil/config"
	"github.com/laphilosophia/sigil/cryptocore"
	"github.com/laphilosophia/sigil/orchestrator"
)

// buildOrchestrator loads configuration the same way a long-running service
// would (config.LoadFromFile on configPath when set, config.Load otherwise)
// and constructs an
// Orchestrator from it. Every subcommand that touches tokens or keys shares
// this one bootstrap path so the CLI can never drift from the library's
// own notion of a valid configuration.
func buildOrchestrator() (*orchestrator.Orchestrator, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if issues := config.ValidateConfiguration(cfg); len(issues) > 0 {
		for _, iss := range issues {
			if iss.Level == "error" {
				return nil, fmt.Errorf("config: %s: %s", iss.Field, iss.Message)
			}
		}
	}

	orchCfg, err := cfg.ToOrchestratorConfig()
	if err != nil {
		return nil, fmt.Errorf("convert config: %w", err)
	}

	orch, err := orchestrator.New(cryptocore.New(), orchCfg)
	if err != nil {
		return nil, fmt.Errorf("construct orchestrator: %w", err)
	}
	return orch, nil
}
