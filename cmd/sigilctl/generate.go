// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	generateOneShot bool
	generateAction  string
	generateBind    []string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Mint a CSRF token",
	Long: `Mint either a regular (long-lived, reusable) token or, with --one-shot,
a single-use token scoped to --action, bound to the optional --bind values
(session id, user id, etc).`,
	Example: `  sigilctl generate --bind session-abc123
  sigilctl generate --one-shot --action delete-account --bind session-abc123`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVar(&generateOneShot, "one-shot", false, "mint a one-shot token instead of a regular token")
	generateCmd.Flags().StringVar(&generateAction, "action", "", "action the one-shot token is scoped to (required with --one-shot)")
	generateCmd.Flags().StringArrayVar(&generateBind, "bind", nil, "context binding value; repeatable")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	var outcome struct {
		OK        bool   `json:"ok"`
		Token     string `json:"token,omitempty"`
		ExpiresAt string `json:"expires_at,omitempty"`
		Action    string `json:"action,omitempty"`
		Reason    string `json:"reason,omitempty"`
		RequestID string `json:"request_id"`
	}

	if generateOneShot {
		if generateAction == "" {
			return fmt.Errorf("--action is required with --one-shot")
		}
		res := orch.GenerateOneShot(generateAction, generateBind...)
		outcome.OK = res.OK
		outcome.Token = res.Token
		outcome.Action = res.Action
		outcome.RequestID = res.RequestID
		if !res.OK {
			outcome.Reason = string(res.Reason)
		} else {
			outcome.ExpiresAt = res.ExpiresAt.Format(timeFormat)
		}
	} else {
		res := orch.Generate(generateBind...)
		outcome.OK = res.OK
		outcome.Token = res.Token
		outcome.RequestID = res.RequestID
		if !res.OK {
			outcome.Reason = string(res.Reason)
		} else {
			outcome.ExpiresAt = res.ExpiresAt.Format(timeFormat)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}
	if !outcome.OK {
		os.Exit(1)
	}
	return nil
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
