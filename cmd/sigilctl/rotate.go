// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the CSRF (and, if enabled, one-shot) signing keyrings",
	Long: `Derives a new HKDF-derived key epoch for each keyring the orchestrator
owns and prepends it as the active key, retaining up to two prior epochs
for grace-window validation of tokens already issued.`,
	RunE: runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) error {
	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.RotateKeys(); err != nil {
		return fmt.Errorf("rotate keys: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rotated csrf keyring (now %d active epoch(s))\n", orch.CSRFKeyring().Len())
	if ks := orch.OneShotKeyring(); ks != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "rotated one-shot keyring (now %d active epoch(s))\n", ks.Len())
	}
	return nil
}
