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

// Package metrics exposes the orchestrator's observable counters and
// histograms via a private prometheus.Registry. Every variable here is a
// metric the orchestrator calls into directly; none is a precondition for
// a Generate/Validate/Protect result.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sigil"

// Registry is a private registry rather than prometheus.DefaultRegisterer
// so that multiple Orchestrator instances in the same process (as in
// tests) don't collide on duplicate metric registration.
var Registry = prometheus.NewRegistry()

var (
	// TokensIssued counts successful Generate/GenerateOneShot calls by
	// token kind.
	TokensIssued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "issued_total",
			Help:      "Total number of tokens issued",
		},
		[]string{"kind"}, // regular, oneshot
	)

	// TokenIssuanceErrors counts Generate/GenerateOneShot failures (no
	// active key, one-shot disabled) by reason.
	TokenIssuanceErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "issuance_errors_total",
			Help:      "Total number of token issuance failures",
		},
		[]string{"kind", "reason"},
	)

	// ValidationsTotal counts Validate/ValidateOneShot outcomes by token
	// kind, and by the Deterministic Failure Model's reason code (the
	// empty string for a Valid result).
	ValidationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "validations_total",
			Help:      "Total number of token validations by outcome reason",
		},
		[]string{"kind", "reason"},
	)

	// ValidationDuration tracks how long a single Validate/ValidateOneShot
	// call takes, by kind. The Deterministic Failure Model runs every step
	// regardless of outcome, so this should be tight and outcome-independent;
	// a widening spread here is itself a signal worth alerting on.
	ValidationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "validation_duration_seconds",
			Help:      "Token validation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 16), // 1us to 32ms
		},
		[]string{"kind"},
	)

	// PolicyChainEvaluations counts every policy that ran as part of a
	// Protect call's chain, by policy name and pass/fail.
	PolicyChainEvaluations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluations_total",
			Help:      "Total number of policy evaluations by policy name and result",
		},
		[]string{"policy", "result"}, // pass, fail
	)

	// ProtectOutcomes counts Protect's final allow/deny decision by
	// reason (empty for an allow).
	ProtectOutcomes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protect",
			Name:      "outcomes_total",
			Help:      "Total number of Protect outcomes by reason",
		},
		[]string{"reason"},
	)

	// NonceCacheSize reports the nonce cache's current occupancy.
	NonceCacheSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nonce_cache",
			Name:      "size",
			Help:      "Current number of nonces tracked by the one-shot nonce cache",
		},
	)

	// NonceCacheReplaysRejected counts nonce_reused outcomes specifically,
	// split out from ValidationsTotal because a rising rate here is a
	// distinct, actionable signal (replay attempts) rather than ordinary
	// client error noise.
	NonceCacheReplaysRejected = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nonce_cache",
			Name:      "replays_rejected_total",
			Help:      "Total number of one-shot validations rejected as nonce replays",
		},
	)

	// KeyRotations counts RotateKeys calls by keyring domain.
	KeyRotations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keyring",
			Name:      "rotations_total",
			Help:      "Total number of key rotations by domain",
		},
		[]string{"domain"},
	)
)
