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

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sigilctl",
	Short: "sigilctl - CSRF token engine and policy evaluator CLI",
	Long: `sigilctl drives the sigil orchestrator from the command line: mint and
validate tokens, rotate signing keys, and run the health/metrics HTTP
surface, against the same orchestrator.Config a long-running service would
use.`,
}

var configPath string

func main() {
	// Local development convenience: load a .env file, if present, before
	// config.Load() reads SIGIL_* environment overrides. Silently ignored
	// when absent; this mirrors production, where no .env file exists.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a sigil config file (YAML or JSON); falls back to config.Load()'s search path when unset")

	// Commands are registered in their respective files:
	// - generate.go: generateCmd
	// - validate.go: validateCmd
	// - rotate.go: rotateCmd
	// - serve.go: serveHealthCmd
}
