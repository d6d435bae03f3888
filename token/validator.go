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

package token

import (
	"time"

	"github.com/laphilosophia/sigil/cryptocore"
	"github.com/laphilosophia/sigil/keyring"
	"github.com/laphilosophia/sigil/reason"
)

// NonceMarker is the one method the one-shot validator needs from a nonce
// cache: attempt to atomically mark a nonce consumed, returning false if it
// was already consumed (a replay). Kept as a narrow interface here rather
// than importing the noncecache package directly, so this package stays
// free of any dependency on cache eviction policy.
type NonceMarker interface {
	MarkUsed(nonce [NonceSize]byte, expiresAt time.Time) bool
}

// ValidateRegular implements the Deterministic Failure Model for regular
// tokens: every step runs unconditionally, in a fixed order, regardless of
// whether an earlier step already failed, and each step ANDs its boolean
// into a running accumulator. The reason, by contrast, is only claimed by
// a step that failed on its own merits: a step whose result was forced
// false because an earlier step already failed (a MAC verified against a
// dummy payload, a context compared after a failed parse) ran purely to
// keep the timing profile flat and does not overwrite the reason. Among
// genuinely failing steps, the last one's tag wins. The boolean result is
// the single source of truth for "accept or reject"; reason is for logs
// and metrics only.
func ValidateRegular(provider cryptocore.Provider, kr *keyring.Keyring, tok string, expectedCtx [32]byte, now time.Time, ttl, grace time.Duration) (bool, reason.Reason) {
	valid := true
	r := reason.None

	// Step 1: parse. On failure, fall through with a zero-value Regular so
	// every later step still runs against well-defined (if meaningless)
	// data, never on a nil pointer, never via early return.
	parsed, ok := ParseRegular(tok)
	if !ok {
		parsed = &Regular{}
	}
	valid = valid && ok
	if !ok {
		r = reason.ParseFailed
	}

	// Step 2: resolve the signing key for the presented kid, against a ring
	// snapshot taken once so a concurrent rotation is never observable
	// mid-validation. If the kid is unknown we still pick a throwaway key
	// (the ring's newest entry) purely so step 4 performs the same HMAC
	// computation either way.
	entries := kr.All()
	var verifyKey []byte
	found := false
	for _, e := range entries {
		if e.Kid == parsed.Kid {
			verifyKey = e.Key
			found = true
		}
	}
	if !found && len(entries) > 0 {
		verifyKey = entries[0].Key
	}
	valid = valid && found
	if ok && !found {
		r = reason.UnknownKid
	}

	// Step 3: lifetime, with grace window. Any negative age (a timestamp in
	// the future) is rejected outright.
	ageMillis := now.UnixMilli() - parsed.Timestamp
	withinTTL := ageMillis >= 0 && ageMillis <= (ttl+grace).Milliseconds()
	valid = valid && withinTTL
	if ok && !withinTTL {
		r = reason.Expired
	}

	// Step 4: MAC, constant-time, always computed even when verifyKey is a
	// throwaway key from an unresolved kid, but the result only counts
	// when the kid actually resolved, so an accidental match against the
	// fallback key can never pass. An empty ring fails closed as an
	// invalid MAC.
	payload := regularPayload(parsed)
	expectedMAC := provider.Sign(verifyKey, payload)
	macMatch := cryptocore.ConstantTimeEqual(expectedMAC, parsed.MAC[:])
	valid = valid && macMatch && found
	if ok && ((found && !macMatch) || len(entries) == 0) {
		r = reason.InvalidMAC
	}

	// Step 5: context binding, constant-time. On a parse failure the
	// comparison has run against the zero-value token's context; its result
	// is discarded and forced false.
	ctxMatch := cryptocore.ConstantTimeEqual(parsed.Context[:], expectedCtx[:])
	valid = valid && ctxMatch && ok
	if ok && !ctxMatch {
		r = reason.ContextMismatch
	}

	if valid {
		r = reason.None
	}
	return valid, r
}

// ValidateOneShot implements the one-shot variant of the Deterministic
// Failure Model, with the same accumulator-and-genuine-failure discipline
// as ValidateRegular: every step runs unconditionally, in order (parse,
// TTL, MAC, context, action), each ANDs its result into the accumulator,
// and only a step that failed on its own merits claims the reason. One-shot
// tokens carry no kid, so the MAC step verifies against every key
// currently in the ring and passes if any of them matches; every key is
// tried even after a match, so the number of HMAC computations never
// depends on which key signed the token.
//
// Nonce consumption is two-phase: the nonce is only marked used once every
// other check has already passed. A token that fails validation for any
// other reason must not burn its nonce, so a legitimate retry with the
// correct action is still possible.
func ValidateOneShot(provider cryptocore.Provider, kr *keyring.Keyring, marker NonceMarker, tok, action string, expectedCtx [32]byte, now time.Time, ttl time.Duration) (bool, reason.Reason) {
	valid := true
	r := reason.None

	// Step 1: parse. As in ValidateRegular, a failed parse falls through
	// with a zero-value token so every later step still runs.
	parsed, ok := ParseOneShot(tok)
	if !ok {
		parsed = &OneShot{}
	}
	valid = valid && ok
	if !ok {
		r = reason.ParseFailed
	}

	// Step 2: lifetime. One-shot tokens have no grace window.
	ageMillis := now.UnixMilli() - parsed.Timestamp
	withinTTL := ageMillis >= 0 && ageMillis <= ttl.Milliseconds()
	valid = valid && withinTTL
	if ok && !withinTTL {
		r = reason.Expired
	}

	// Step 3: MAC against every ring key. An empty ring fails closed.
	payload := oneShotPayload(parsed)
	entries := kr.All()
	macOK := false
	for _, entry := range entries {
		expectedMAC := provider.Sign(entry.Key, payload)
		if cryptocore.ConstantTimeEqual(expectedMAC, parsed.MAC[:]) {
			macOK = true
		}
	}
	valid = valid && macOK
	if ok && !macOK {
		r = reason.InvalidMAC
	}

	// Step 4: context binding, constant-time, forced false on parse failure.
	ctxMatch := cryptocore.ConstantTimeEqual(parsed.Context[:], expectedCtx[:])
	valid = valid && ctxMatch && ok
	if ok && !ctxMatch {
		r = reason.ContextMismatch
	}

	// Step 5: action binding, constant-time.
	actionHash := provider.SHA256([]byte(action))
	actionMatch := cryptocore.ConstantTimeEqual(parsed.Action[:], actionHash[:])
	valid = valid && actionMatch
	if ok && !actionMatch {
		r = reason.ActionMismatch
	}

	if !valid {
		return false, r
	}

	// Phase two: the token is otherwise fully valid. Consuming the nonce
	// now is the only remaining way this validation can fail.
	if !marker.MarkUsed(parsed.Nonce, now.Add(ttl)) {
		return false, reason.NonceReused
	}
	return true, reason.None
}
