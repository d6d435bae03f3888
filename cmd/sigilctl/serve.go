// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/laphilosophia/sigil/health"
	"github.com/laphilosophia/sigil/internal/metrics"
)

var serveAddr string

var serveHealthCmd = &cobra.Command{
	Use:   "serve-health",
	Short: "Run the health and Prometheus metrics HTTP endpoints",
	Long: `Starts an HTTP server exposing GET /healthz (keyring occupancy, nonce
cache pressure, and clock-sanity checks against a live orchestrator) and
GET /metrics (the Prometheus registry populated by generate/validate/rotate
activity), for use as a readiness/liveness probe and scrape target.`,
	RunE: runServeHealth,
}

func init() {
	rootCmd.AddCommand(serveHealthCmd)
	serveHealthCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "listen address")
}

func runServeHealth(cmd *cobra.Command, args []string) error {
	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	checker := health.NewHealthChecker(5 * time.Second)
	checker.RegisterCheck("csrf-keyring", health.KeyringHealthCheck(func() int {
		return orch.CSRFKeyring().Len()
	}))
	if ks := orch.OneShotKeyring(); ks != nil {
		checker.RegisterCheck("oneshot-keyring", health.KeyringHealthCheck(func() int {
			return ks.Len()
		}))
		checker.RegisterCheck("nonce-cache", health.NonceCacheHealthCheck(orch.NonceCacheLen, 0))
	}
	checker.RegisterCheck("clock", health.ClockSanityHealthCheck(time.Now, 5*time.Second))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sys := checker.GetSystemHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if sys.Status != health.StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(sys)
	})
	mux.Handle("/metrics", metrics.Handler())

	fmt.Fprintf(cmd.OutOrStdout(), "serving health and metrics on %s\n", serveAddr)
	srv := &http.Server{Addr: serveAddr, Handler: mux}

	go func() {
		<-cmd.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
