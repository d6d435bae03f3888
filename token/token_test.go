// SPDX-License-Identifier: LGPL-3.0-or-later

package token

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laphilosophia/sigil/context"
	"github.com/laphilosophia/sigil/cryptocore"
	"github.com/laphilosophia/sigil/encoding"
	"github.com/laphilosophia/sigil/keyring"
)

func testMaster() []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func newTestKeyring(t *testing.T, domain keyring.Domain) *keyring.Keyring {
	t.Helper()
	kr, err := keyring.New(cryptocore.New(), testMaster(), 1, domain)
	require.NoError(t, err)
	return kr
}

// fakeMarker is an in-memory, test-only NonceMarker: a nonce can be marked
// used exactly once.
type fakeMarker struct {
	mu   sync.Mutex
	used map[[NonceSize]byte]bool
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{used: make(map[[NonceSize]byte]bool)}
}

func (m *fakeMarker) MarkUsed(nonce [NonceSize]byte, _ time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[nonce] {
		return false
	}
	m.used[nonce] = true
	return true
}

func TestRegularRoundTripValid(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	ctx := context.Compute("session-1")
	now := time.Now()

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, now)
	require.NoError(t, err)

	valid, rsn := ValidateRegular(p, kr, tok, ctx, now.Add(time.Second), time.Minute, 10*time.Second)
	assert.True(t, valid)
	assert.Empty(t, string(rsn))
}

// An expired token (past TTL+grace) is rejected with Expired.
func TestRegularExpiredPastGrace(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	ctx := context.Compute("session-1")
	issued := time.Now().Add(-2 * time.Hour)

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, issued)
	require.NoError(t, err)

	valid, rsn := ValidateRegular(p, kr, tok, ctx, time.Now(), time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "expired", string(rsn))
}

// A timestamp within the grace window past the strict TTL still validates.
func TestRegularWithinGraceWindow(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	ctx := context.Compute("session-1")
	ttl := time.Minute
	grace := 10 * time.Second
	issued := time.Now().Add(-(ttl + grace/2))

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, issued)
	require.NoError(t, err)

	valid, _ := ValidateRegular(p, kr, tok, ctx, time.Now(), ttl, grace)
	assert.True(t, valid)
}

// A tampered token (context mismatch) fails with ContextMismatch, and the
// overall boolean is the single source of truth regardless of reason text.
func TestRegularContextMismatch(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	issued := context.Compute("session-1")
	now := time.Now()

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &issued, now)
	require.NoError(t, err)

	wrongCtx := context.Compute("session-2")
	valid, rsn := ValidateRegular(p, kr, tok, wrongCtx, now, time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "context_mismatch", string(rsn))
}

// An unknown kid is rejected, and verification still performs a full MAC
// computation against a fallback key rather than short-circuiting.
func TestRegularUnknownKid(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	ctx := context.Empty()
	now := time.Now()

	// Sign with a key the ring never derived.
	foreignKey := make([]byte, cryptocore.MACSize)
	tok, err := GenerateRegular(p, foreignKey, 200, &ctx, now)
	require.NoError(t, err)

	valid, rsn := ValidateRegular(p, kr, tok, ctx, now, time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "unknown_kid", string(rsn))
}

// A malformed token (not valid base64url, or wrong length) fails parsing;
// the validator must not panic and must still report a deterministic
// boolean.
func TestRegularMalformedToken(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	ctx := context.Empty()

	valid, rsn := ValidateRegular(p, kr, "not-a-real-token!!", ctx, time.Now(), time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "parse_failed", string(rsn))
}

// Validation of a token whose signing epoch has been rotated entirely off
// the ring fails closed, never panics.
func TestRegularEvictedKidFailsClosed(t *testing.T) {
	p := cryptocore.New()
	kr, err := keyring.New(p, testMaster(), 1, keyring.DomainCSRF)
	require.NoError(t, err)
	entry, _ := kr.Active()
	ctx := context.Empty()
	now := time.Now()

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, now)
	require.NoError(t, err)

	// Rotate MaxEntries times with kids guaranteed not to collide, evicting
	// the original signing key off the ring entirely.
	kr.Rotate(2)
	kr.Rotate(3)
	kr.Rotate(4)

	valid, rsn := ValidateRegular(p, kr, tok, ctx, now, time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "unknown_kid", string(rsn))
}

func TestOneShotRoundTripValid(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainOneShot)
	entry, _ := kr.Active()
	ctx := context.Compute("session-1")
	now := time.Now()
	marker := newFakeMarker()

	tok, err := GenerateOneShot(p, entry.Key, "delete-account", &ctx, now)
	require.NoError(t, err)

	valid, rsn := ValidateOneShot(p, kr, marker, tok, "delete-account", ctx, now.Add(time.Second), time.Minute)
	assert.True(t, valid)
	assert.Empty(t, string(rsn))
}

// Presenting a one-shot token against the wrong action must
// fail WITHOUT burning the nonce, so a subsequent presentation with the
// correct action still succeeds.
func TestOneShotWrongActionDoesNotConsumeNonce(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainOneShot)
	entry, _ := kr.Active()
	ctx := context.Compute("session-1")
	now := time.Now()
	marker := newFakeMarker()

	tok, err := GenerateOneShot(p, entry.Key, "delete-account", &ctx, now)
	require.NoError(t, err)

	valid, rsn := ValidateOneShot(p, kr, marker, tok, "transfer-funds", ctx, now, time.Minute)
	assert.False(t, valid)
	assert.Equal(t, "action_mismatch", string(rsn))

	// Retried with the correct action, it must still succeed: the first
	// (failed) attempt must not have consumed the nonce.
	valid, rsn = ValidateOneShot(p, kr, marker, tok, "delete-account", ctx, now, time.Minute)
	assert.True(t, valid)
	assert.Empty(t, string(rsn))
}

// A second presentation of an already-consumed, otherwise-valid token is a
// replay and must be rejected with NonceReused.
func TestOneShotReplayRejected(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainOneShot)
	entry, _ := kr.Active()
	ctx := context.Compute("session-1")
	now := time.Now()
	marker := newFakeMarker()

	tok, err := GenerateOneShot(p, entry.Key, "delete-account", &ctx, now)
	require.NoError(t, err)

	valid, _ := ValidateOneShot(p, kr, marker, tok, "delete-account", ctx, now, time.Minute)
	require.True(t, valid)

	valid, rsn := ValidateOneShot(p, kr, marker, tok, "delete-account", ctx, now, time.Minute)
	assert.False(t, valid)
	assert.Equal(t, "nonce_reused", string(rsn))
}

// A one-shot token still signed under a retired (but not yet evicted) key
// validates: the validator tries every ring entry, not just the active one.
func TestOneShotValidatesAgainstRetiredKey(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainOneShot)
	oldEntry, _ := kr.Active()
	ctx := context.Empty()
	now := time.Now()
	marker := newFakeMarker()

	tok, err := GenerateOneShot(p, oldEntry.Key, "logout", &ctx, now)
	require.NoError(t, err)

	_, err = kr.Rotate(2)
	require.NoError(t, err)

	valid, rsn := ValidateOneShot(p, kr, marker, tok, "logout", ctx, now, time.Minute)
	assert.True(t, valid)
	assert.Empty(t, string(rsn))
}

func TestOneShotEvictedKeyFailsClosed(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainOneShot)
	entry, _ := kr.Active()
	ctx := context.Empty()
	now := time.Now()
	marker := newFakeMarker()

	tok, err := GenerateOneShot(p, entry.Key, "logout", &ctx, now)
	require.NoError(t, err)

	kr.Rotate(2)
	kr.Rotate(3)
	kr.Rotate(4)

	valid, rsn := ValidateOneShot(p, kr, marker, tok, "logout", ctx, now, time.Minute)
	assert.False(t, valid)
	assert.Equal(t, "invalid_mac", string(rsn))
}

// countingProvider wraps the default provider and counts Sign calls, so a
// test can observe that the validator performs a MAC computation even on
// paths where the result is predetermined (unknown kid, failed parse).
type countingProvider struct {
	cryptocore.Provider
	signs int
}

func (c *countingProvider) Sign(key, data []byte) []byte {
	c.signs++
	return c.Provider.Sign(key, data)
}

// An unknown kid must not skip the MAC step: the validator verifies
// against a fallback key so kid validity is not observable through the
// number of HMAC computations performed.
func TestRegularUnknownKidStillComputesMAC(t *testing.T) {
	p := &countingProvider{Provider: cryptocore.New()}
	kr := newTestKeyring(t, keyring.DomainCSRF)
	ctx := context.Empty()
	now := time.Now()

	foreignKey := make([]byte, cryptocore.MACSize)
	tok, err := GenerateRegular(p, foreignKey, 200, &ctx, now)
	require.NoError(t, err)

	signsBefore := p.signs
	valid, rsn := ValidateRegular(p, kr, tok, ctx, now, time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "unknown_kid", string(rsn))
	assert.Equal(t, signsBefore+1, p.signs, "exactly one MAC computation must run despite the unknown kid")
}

// A parse failure must not skip the MAC step either.
func TestRegularParseFailureStillComputesMAC(t *testing.T) {
	p := &countingProvider{Provider: cryptocore.New()}
	kr := newTestKeyring(t, keyring.DomainCSRF)
	ctx := context.Empty()

	signsBefore := p.signs
	valid, rsn := ValidateRegular(p, kr, "!!!", ctx, time.Now(), time.Minute, 10*time.Second)
	assert.False(t, valid)
	assert.Equal(t, "parse_failed", string(rsn))
	assert.Equal(t, signsBefore+1, p.signs)
}

// The wire layout is fixed: 89 decoded bytes, kid at offset 0, big-endian
// millisecond timestamp at bytes [17,25).
func TestRegularWireLayout(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	ctx := context.Compute("session123")
	issued := time.UnixMilli(1_700_000_000_000)

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, issued)
	require.NoError(t, err)

	raw, err := encoding.DecodeString(tok)
	require.NoError(t, err)
	require.Len(t, raw, RegularSize)
	assert.Equal(t, byte(0x01), raw[0])
	assert.Equal(t, uint64(1_700_000_000_000), encoding.Uint64BE(raw, 17))

	parsed, ok := ParseRegular(tok)
	require.True(t, ok)
	assert.Equal(t, uint8(1), parsed.Kid)
	assert.Equal(t, int64(1_700_000_000_000), parsed.Timestamp)
	assert.Equal(t, ctx, parsed.Context)
	assert.Equal(t, tok, SerializeRegular(parsed), "serialization must reconstruct the exact wire form")
}

func TestOneShotWireLayout(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainOneShot)
	entry, _ := kr.Active()
	ctx := context.Empty()
	issued := time.UnixMilli(1_700_000_000_000)

	tok, err := GenerateOneShot(p, entry.Key, "POST:/api/delete", &ctx, issued)
	require.NoError(t, err)

	raw, err := encoding.DecodeString(tok)
	require.NoError(t, err)
	require.Len(t, raw, OneShotSize)
	assert.Equal(t, uint64(1_700_000_000_000), encoding.Uint64BE(raw, 16))

	parsed, ok := ParseOneShot(tok)
	require.True(t, ok)
	actionHash := p.SHA256([]byte("POST:/api/delete"))
	assert.Equal(t, actionHash, parsed.Action)
	assert.Equal(t, tok, SerializeOneShot(parsed))
}

// Millisecond-exact lifetime boundaries: with TTL 1000ms and grace 500ms,
// age 1400ms is in-grace, age 1500ms is the last in-grace instant, age
// 1501ms is expired, and a future-dated token (negative age) is expired.
func TestRegularLifetimeBoundaries(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	ctx := context.Empty()
	issued := time.UnixMilli(1_700_000_000_000)
	ttl := time.Second
	grace := 500 * time.Millisecond

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, issued)
	require.NoError(t, err)

	cases := []struct {
		at    time.Time
		valid bool
	}{
		{issued.Add(1400 * time.Millisecond), true},
		{issued.Add(1500 * time.Millisecond), true},
		{issued.Add(1501 * time.Millisecond), false},
		{issued.Add(-time.Millisecond), false},
	}
	for _, c := range cases {
		valid, rsn := ValidateRegular(p, kr, tok, ctx, c.at, ttl, grace)
		assert.Equal(t, c.valid, valid, "at %v", c.at)
		if !c.valid {
			assert.Equal(t, "expired", string(rsn), "at %v", c.at)
		}
	}
}

// Keys derived for the one-shot domain must not validate a token against a
// ring derived for the csrf domain, even with the same master and kid.
func TestOneShotCrossDomainIsolation(t *testing.T) {
	p := cryptocore.New()
	oneshotRing := newTestKeyring(t, keyring.DomainOneShot)
	csrfRing := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := oneshotRing.Active()
	ctx := context.Empty()
	now := time.Now()
	marker := newFakeMarker()

	tok, err := GenerateOneShot(p, entry.Key, "logout", &ctx, now)
	require.NoError(t, err)

	valid, rsn := ValidateOneShot(p, csrfRing, marker, tok, "logout", ctx, now, time.Minute)
	assert.False(t, valid)
	assert.Equal(t, "invalid_mac", string(rsn))
}

// A regular token is reusable: validating it twice in a row succeeds both
// times, unlike a one-shot token.
func TestRegularTokenIsReplayable(t *testing.T) {
	p := cryptocore.New()
	kr := newTestKeyring(t, keyring.DomainCSRF)
	entry, _ := kr.Active()
	ctx := context.Empty()
	now := time.Now()

	tok, err := GenerateRegular(p, entry.Key, int(entry.Kid), &ctx, now)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		valid, _ := ValidateRegular(p, kr, tok, ctx, now, time.Minute, 10*time.Second)
		assert.True(t, valid, "presentation %d", i)
	}
}
