// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import "github.com/laphilosophia/sigil/reason"

// Policy evaluates one provenance check against request metadata. Name
// identifies the policy for the chain's evaluated[]/failures[] bookkeeping;
// Evaluate returns (allow, reason); reason is only meaningful when
// allow is false.
type Policy interface {
	Name() string
	Evaluate(meta Metadata) (bool, reason.Reason)
}

// Result is the outcome of running a Chain: a single allow/deny decision
// plus the full evaluation trail. Every policy in the chain runs
// regardless of earlier failures, mirroring the token validator's
// Deterministic Failure Model: a provenance check chain that stopped at
// the first failure would leak, via response timing, which specific check
// tripped.
type Result struct {
	Allowed   bool
	Reason    reason.Reason
	Evaluated []string
	Failures  []string
}

// Chain is an ordered, no-short-circuit composition of policies.
type Chain struct {
	policies []Policy
}

// NewChain builds a chain from an ordered policy list.
func NewChain(policies ...Policy) Chain {
	return Chain{policies: policies}
}

// Evaluate runs every policy in order, regardless of earlier failures, and
// reports the first failure's reason as the chain's reason. An empty chain
// fails closed with reason.EmptyPolicyChain.
func (c Chain) Evaluate(meta Metadata) Result {
	if len(c.policies) == 0 {
		return Result{Allowed: false, Reason: reason.EmptyPolicyChain}
	}

	res := Result{Allowed: true}
	firstFailureSet := false

	for _, p := range c.policies {
		res.Evaluated = append(res.Evaluated, p.Name())
		ok, r := p.Evaluate(meta)
		if !ok {
			res.Failures = append(res.Failures, p.Name())
			res.Allowed = false
			if !firstFailureSet {
				res.Reason = r
				firstFailureSet = true
			}
		}
	}

	return res
}
