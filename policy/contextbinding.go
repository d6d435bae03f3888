// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import "time"

// ContextTier is the risk tier a deployment assigns to context-binding
// enforcement. Unlike the other evaluators in this package, the tier is
// not a chain Policy: it is a decision function the orchestrator consults
// directly after the token validator has already reported a context
// mismatch, because only the orchestrator knows the session's age.
type ContextTier string

const (
	// TierLow never enforces a context mismatch; it is recorded for logs
	// only.
	TierLow ContextTier = "low"
	// TierMedium tolerates a mismatch within a grace period (e.g. right
	// after a session is renewed, its bound context legitimately changes)
	// and enforces outside of it.
	TierMedium ContextTier = "medium"
	// TierHigh always enforces a context mismatch.
	TierHigh ContextTier = "high"
)

// DefaultGracePeriod is used by TierMedium when no grace period is
// configured.
const DefaultGracePeriod = 5 * time.Minute

// ContextBinding holds the configured tier and grace period for context
// mismatch enforcement.
type ContextBinding struct {
	Tier        ContextTier
	GracePeriod time.Duration
}

// NewContextBinding normalizes a zero-value GracePeriod to
// DefaultGracePeriod.
func NewContextBinding(tier ContextTier, gracePeriod time.Duration) ContextBinding {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return ContextBinding{Tier: tier, GracePeriod: gracePeriod}
}

// ShouldEnforce decides whether a context mismatch should be treated as a
// validation failure, given the tier and the session's age. known is false
// for a caller that never tracked session age at all; under TierMedium,
// that and a negative sessionAge both always enforce, since there is no
// information to extend leniency on. TierLow never enforces and TierHigh
// always does, whatever the age.
func (b ContextBinding) ShouldEnforce(sessionAge time.Duration, known bool) bool {
	switch b.Tier {
	case TierLow:
		return false
	case TierHigh:
		return true
	case TierMedium:
		if !known || sessionAge < 0 {
			return true
		}
		return !(sessionAge < b.GracePeriod)
	default:
		return true
	}
}
