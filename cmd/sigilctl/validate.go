// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	validateOneShot bool
	validateAction  string
	validateBind    []string
	validateToken   string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a CSRF token",
	Long: `Checks a token's signature, lifetime, and context binding. With
--one-shot, also checks the action match and consumes the token's nonce on
success, exactly as Orchestrator.ValidateOneShot does for a live request.`,
	Example: `  sigilctl validate --token <tok> --bind session-abc123
  sigilctl validate --one-shot --token <tok> --action delete-account --bind session-abc123`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateToken, "token", "", "token to validate (required)")
	validateCmd.Flags().BoolVar(&validateOneShot, "one-shot", false, "validate as a one-shot token")
	validateCmd.Flags().StringVar(&validateAction, "action", "", "action the one-shot token must match (required with --one-shot)")
	validateCmd.Flags().StringArrayVar(&validateBind, "bind", nil, "context binding value; repeatable, must match the values used at generation")
	_ = validateCmd.MarkFlagRequired("token")
}

func runValidate(cmd *cobra.Command, args []string) error {
	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	var valid bool
	var r string

	if validateOneShot {
		if validateAction == "" {
			return fmt.Errorf("--action is required with --one-shot")
		}
		ok, rr := orch.ValidateOneShot(validateToken, validateAction, validateBind...)
		valid, r = ok, string(rr)
	} else {
		ok, rr := orch.Validate(validateToken, validateBind...)
		valid, r = ok, string(rr)
	}

	out := struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason,omitempty"`
	}{Valid: valid, Reason: r}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !valid {
		os.Exit(1)
	}
	return nil
}
