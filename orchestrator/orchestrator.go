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

// Package orchestrator combines the keyrings, nonce cache, and policy
// chains behind three operations: Generate, Validate, and Protect. It is
// the package most callers import.
package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/laphilosophia/sigil/context"
	"github.com/laphilosophia/sigil/cryptocore"
	"github.com/laphilosophia/sigil/internal/logger"
	"github.com/laphilosophia/sigil/internal/metrics"
	"github.com/laphilosophia/sigil/keyring"
	"github.com/laphilosophia/sigil/noncecache"
	"github.com/laphilosophia/sigil/policy"
	"github.com/laphilosophia/sigil/reason"
	"github.com/laphilosophia/sigil/token"
)

// Orchestrator is the top-level entry point: it owns both keyrings, the
// optional nonce cache, and the two mode-specific policy chains, and is
// safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	crypto cryptocore.Provider

	csrfKeyring    *keyring.Keyring
	oneshotKeyring *keyring.Keyring // nil unless cfg.OneShotEnabled
	nonceCache     *noncecache.Cache // nil unless cfg.OneShotEnabled

	classifier    policy.MethodClassifier
	browserChain  policy.Chain
	apiChain      policy.Chain
	contextBinder policy.ContextBinding

	// kidCounter is the instance-scoped 8-bit key-epoch counter driving
	// RotateKeys; it is never shared across Orchestrator instances.
	kidCounter atomic.Uint32

	rotateMu sync.Mutex

	log logger.Logger
}

// New validates cfg and constructs an Orchestrator. The master secret must
// be at least 32 bytes; construction is the only place a weak secret can
// be rejected, every later operation assumes it.
func New(provider cryptocore.Provider, cfg Config) (*Orchestrator, error) {
	if len(cfg.MasterSecret) < 32 {
		return nil, fmt.Errorf("orchestrator: master secret must be at least 32 bytes, got %d", len(cfg.MasterSecret))
	}

	csrfKeyring, err := keyring.New(provider, cfg.MasterSecret, 0, keyring.DomainCSRF)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: csrf keyring: %w", err)
	}

	var oneshotKeyring *keyring.Keyring
	var nonceCache *noncecache.Cache
	if cfg.OneShotEnabled {
		oneshotKeyring, err = keyring.New(provider, cfg.MasterSecret, 0, keyring.DomainOneShot)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: oneshot keyring: %w", err)
		}
		nonceCache = noncecache.New(cfg.NonceCacheMaxEntries, cfg.NonceCacheGCInterval)
	}

	classifier := policy.NewMethodClassifier(cfg.ProtectedMethods)
	originPolicy := policy.NewOriginRefererPolicy(cfg.AllowedOrigins)
	contentTypePolicy := policy.NewContentTypePolicy(classifier, nil)
	fetchMetadataPolicy := policy.NewFetchMetadataPolicy(cfg.LegacyBrowserMode)

	binder := policy.NewContextBinding(policy.TierHigh, 0)
	if cfg.ContextBinding != nil {
		binder = *cfg.ContextBinding
	}

	return &Orchestrator{
		cfg:            cfg,
		crypto:         provider,
		csrfKeyring:    csrfKeyring,
		oneshotKeyring: oneshotKeyring,
		nonceCache:     nonceCache,
		classifier:     classifier,
		browserChain:   policy.NewChain(classifier, fetchMetadataPolicy, originPolicy, contentTypePolicy),
		apiChain:       policy.NewChain(classifier, contentTypePolicy),
		contextBinder:  binder,
		log:            logger.GetDefaultLogger(),
	}, nil
}

// SetLogger overrides the orchestrator's logger, e.g. to attach request-scoped
// fields via logger.Logger.WithFields. The zero value (no call to SetLogger)
// uses logger.GetDefaultLogger().
func (o *Orchestrator) SetLogger(l logger.Logger) {
	o.log = l
}

// GenerateOutcome is the result of Generate/GenerateOneShot: either a
// minted token or a failure reason. Never both.
type GenerateOutcome struct {
	OK         bool
	Token      string
	ExpiresAt  time.Time
	Action     string
	Reason     reason.Reason
	RequestID  string
}

// Generate mints a regular token bound to bindings, signed under the
// active CSRF key.
func (o *Orchestrator) Generate(bindings ...string) GenerateOutcome {
	reqID := uuid.NewString()
	entry, ok := o.csrfKeyring.Active()
	if !ok {
		metrics.TokenIssuanceErrors.WithLabelValues("regular", string(reason.NoActiveKey)).Inc()
		return GenerateOutcome{Reason: reason.NoActiveKey, RequestID: reqID}
	}

	ctx := context.Compute(bindings...)
	now := time.Now()
	tok, err := token.GenerateRegular(o.crypto, entry.Key, int(entry.Kid), &ctx, now)
	if err != nil {
		metrics.TokenIssuanceErrors.WithLabelValues("regular", "generate_failed").Inc()
		return GenerateOutcome{Reason: reason.Reason("generate_failed"), RequestID: reqID}
	}

	metrics.TokensIssued.WithLabelValues("regular").Inc()
	return GenerateOutcome{OK: true, Token: tok, ExpiresAt: now.Add(o.cfg.tokenTTL()), RequestID: reqID}
}

// GenerateOneShot mints a one-shot token bound to action. Fails with
// reason.OneShotNotEnabled if the orchestrator was not configured for
// one-shot tokens.
func (o *Orchestrator) GenerateOneShot(action string, bindings ...string) GenerateOutcome {
	reqID := uuid.NewString()
	if !o.cfg.OneShotEnabled {
		metrics.TokenIssuanceErrors.WithLabelValues("oneshot", string(reason.OneShotNotEnabled)).Inc()
		return GenerateOutcome{Reason: reason.OneShotNotEnabled, RequestID: reqID}
	}

	entry, ok := o.oneshotKeyring.Active()
	if !ok {
		metrics.TokenIssuanceErrors.WithLabelValues("oneshot", string(reason.NoActiveKey)).Inc()
		return GenerateOutcome{Reason: reason.NoActiveKey, RequestID: reqID}
	}

	ctx := context.Compute(bindings...)
	now := time.Now()
	tok, err := token.GenerateOneShot(o.crypto, entry.Key, action, &ctx, now)
	if err != nil {
		metrics.TokenIssuanceErrors.WithLabelValues("oneshot", "generate_failed").Inc()
		return GenerateOutcome{Reason: reason.Reason("generate_failed"), RequestID: reqID}
	}

	metrics.TokensIssued.WithLabelValues("oneshot").Inc()
	return GenerateOutcome{OK: true, Token: tok, ExpiresAt: now.Add(o.cfg.oneShotTTL()), Action: action, RequestID: reqID}
}

// Validate checks a regular token's signature, lifetime, and context
// binding, without consulting the policy chain.
func (o *Orchestrator) Validate(tok string, bindings ...string) (bool, reason.Reason) {
	ctx := context.Compute(bindings...)
	start := time.Now()
	valid, r := token.ValidateRegular(o.crypto, o.csrfKeyring, tok, ctx, start, o.cfg.tokenTTL(), o.cfg.graceWindow())
	metrics.ValidationDuration.WithLabelValues("regular").Observe(time.Since(start).Seconds())
	metrics.ValidationsTotal.WithLabelValues("regular", string(r)).Inc()
	return valid, r
}

// ValidateOneShot checks a one-shot token against action, consuming its
// nonce on success. Fails with reason.OneShotNotEnabled if one-shot tokens
// are not configured.
func (o *Orchestrator) ValidateOneShot(tok, action string, bindings ...string) (bool, reason.Reason) {
	if !o.cfg.OneShotEnabled {
		metrics.ValidationsTotal.WithLabelValues("oneshot", string(reason.OneShotNotEnabled)).Inc()
		return false, reason.OneShotNotEnabled
	}
	ctx := context.Compute(bindings...)
	start := time.Now()
	valid, r := token.ValidateOneShot(o.crypto, o.oneshotKeyring, o.nonceCache, tok, action, ctx, start, o.cfg.oneShotTTL())
	metrics.ValidationDuration.WithLabelValues("oneshot").Observe(time.Since(start).Seconds())
	metrics.ValidationsTotal.WithLabelValues("oneshot", string(r)).Inc()
	if r == reason.NonceReused {
		metrics.NonceCacheReplaysRejected.Inc()
	}
	metrics.NonceCacheSize.Set(float64(o.NonceCacheLen()))
	return valid, r
}

// ProtectResult is the outcome of Protect: an allow/deny decision plus the
// full policy evaluation trail for observability.
type ProtectResult struct {
	Allowed      bool
	Reason       reason.Reason
	Expired      bool
	PolicyResult *policy.Result
	RequestID    string
}

// Protect runs the full request-gating pipeline: method classification,
// client-mode detection, the mode-appropriate policy chain, token-presence
// check, and finally token validation. Bindings (if any) are hashed into
// the expected context via context.Compute, exactly as Generate does.
func (o *Orchestrator) Protect(meta policy.Metadata, bindings ...string) ProtectResult {
	reqID := uuid.NewString()

	if !o.classifier.IsProtected(meta.Method) {
		return ProtectResult{Allowed: true, RequestID: reqID}
	}

	mode := policy.DetectMode(meta, o.cfg.DisableClientModeOverride)
	if mode == policy.ModeAPI && !o.cfg.AllowApiMode {
		return ProtectResult{Reason: reason.APIModeNotAllowed, RequestID: reqID}
	}

	chain := o.apiChain
	if mode == policy.ModeBrowser {
		chain = o.browserChain
	}
	policyResult := chain.Evaluate(meta)
	recordPolicyMetrics(policyResult)
	if !policyResult.Allowed {
		o.log.Debug("protect denied by policy chain",
			logger.String("request_id", reqID),
			logger.String("reason", string(policyResult.Reason)),
		)
		metrics.ProtectOutcomes.WithLabelValues(string(policyResult.Reason)).Inc()
		return ProtectResult{Reason: policyResult.Reason, PolicyResult: &policyResult, RequestID: reqID}
	}

	if meta.TokenSource.Kind == policy.TokenSourceNone {
		metrics.ProtectOutcomes.WithLabelValues(string(reason.NoTokenPresent)).Inc()
		return ProtectResult{Reason: reason.NoTokenPresent, PolicyResult: &policyResult, RequestID: reqID}
	}

	valid, r := o.Validate(meta.TokenSource.Value, bindings...)
	if !valid && r == reason.ContextMismatch && !o.contextBinder.ShouldEnforce(meta.SessionAge, meta.SessionAgeKnown) {
		o.log.Debug("context mismatch tolerated by context-binding tier",
			logger.String("request_id", reqID),
			logger.String("tier", string(o.contextBinder.Tier)),
		)
		valid, r = true, reason.None
	}
	if !valid {
		o.log.Debug("protect denied by token validation",
			logger.String("request_id", reqID),
			logger.String("reason", string(r)),
		)
		metrics.ProtectOutcomes.WithLabelValues(string(r)).Inc()
		return ProtectResult{Reason: r, Expired: r == reason.Expired, PolicyResult: &policyResult, RequestID: reqID}
	}

	metrics.ProtectOutcomes.WithLabelValues("").Inc()
	return ProtectResult{Allowed: true, PolicyResult: &policyResult, RequestID: reqID}
}

// recordPolicyMetrics reports every policy the chain ran, pass or fail, so
// PolicyChainEvaluations reflects the chain's no-short-circuit evaluation,
// not just the first failure.
func recordPolicyMetrics(res policy.Result) {
	failed := make(map[string]bool, len(res.Failures))
	for _, name := range res.Failures {
		failed[name] = true
	}
	for _, name := range res.Evaluated {
		result := "pass"
		if failed[name] {
			result = "fail"
		}
		metrics.PolicyChainEvaluations.WithLabelValues(name, result).Inc()
	}
}

// RotateKeys advances the instance-scoped kid counter and rotates both
// keyrings (csrf, and oneshot if enabled) to the same new kid.
func (o *Orchestrator) RotateKeys() error {
	o.rotateMu.Lock()
	defer o.rotateMu.Unlock()

	newKid := int(o.kidCounter.Add(1) & 0xff)

	if _, err := o.csrfKeyring.Rotate(newKid); err != nil {
		return fmt.Errorf("orchestrator: rotate csrf keyring: %w", err)
	}
	metrics.KeyRotations.WithLabelValues(string(keyring.DomainCSRF)).Inc()
	o.log.Info("rotated csrf keyring", logger.Int("new_kid", newKid))

	if o.oneshotKeyring != nil {
		if _, err := o.oneshotKeyring.Rotate(newKid); err != nil {
			return fmt.Errorf("orchestrator: rotate oneshot keyring: %w", err)
		}
		metrics.KeyRotations.WithLabelValues(string(keyring.DomainOneShot)).Inc()
		o.log.Info("rotated oneshot keyring", logger.Int("new_kid", newKid))
	}
	return nil
}

// HeaderName returns the transport header adapters should read a token
// from, resolving Config.HeaderName's default.
func (o *Orchestrator) HeaderName() string { return o.cfg.headerName() }

// CSRFKeyring exposes the csrf keyring for health/metrics reporting via
// Keyring.Snapshot(); callers must not mutate the ring directly.
func (o *Orchestrator) CSRFKeyring() *keyring.Keyring { return o.csrfKeyring }

// OneShotKeyring exposes the oneshot keyring, or nil if one-shot tokens are
// not enabled.
func (o *Orchestrator) OneShotKeyring() *keyring.Keyring { return o.oneshotKeyring }

// NonceCacheLen reports the nonce cache's current occupancy, or 0 if
// one-shot tokens are not enabled.
func (o *Orchestrator) NonceCacheLen() int {
	if o.nonceCache == nil {
		return 0
	}
	return o.nonceCache.Len()
}

// Close stops the nonce cache's background sweep goroutine. Safe to call
// even when one-shot tokens were never enabled.
func (o *Orchestrator) Close() {
	if o.nonceCache != nil {
		o.nonceCache.Close()
	}
}
