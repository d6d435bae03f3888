// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	if TokensIssued == nil {
		t.Error("TokensIssued metric is nil")
	}
	if ValidationsTotal == nil {
		t.Error("ValidationsTotal metric is nil")
	}
	if PolicyChainEvaluations == nil {
		t.Error("PolicyChainEvaluations metric is nil")
	}
	if NonceCacheSize == nil {
		t.Error("NonceCacheSize metric is nil")
	}
	if KeyRotations == nil {
		t.Error("KeyRotations metric is nil")
	}
}

func TestTokensIssuedIncrementsByKind(t *testing.T) {
	TokensIssued.WithLabelValues("regular").Inc()
	TokensIssued.WithLabelValues("oneshot").Inc()
	TokensIssued.WithLabelValues("oneshot").Inc()

	if got := testutil.ToFloat64(TokensIssued.WithLabelValues("regular")); got != 1 {
		t.Errorf("regular count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TokensIssued.WithLabelValues("oneshot")); got != 2 {
		t.Errorf("oneshot count = %v, want 2", got)
	}
}

func TestNonceCacheSizeIsAGauge(t *testing.T) {
	NonceCacheSize.Set(42)
	if got := testutil.ToFloat64(NonceCacheSize); got != 42 {
		t.Errorf("NonceCacheSize = %v, want 42", got)
	}
	NonceCacheSize.Set(0)
}

func TestRegistryGathersNamespacedMetrics(t *testing.T) {
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, fam := range families {
		if strings.HasPrefix(fam.GetName(), namespace+"_") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("no metric family registered under the %q namespace", namespace)
	}
}
