// SPDX-License-Identifier: LGPL-3.0-or-later

package keyring

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laphilosophia/sigil/cryptocore"
)

func testMaster() []byte {
	return bytes.Repeat([]byte{0x7a}, 32)
}

func TestNewRejectsShortMaster(t *testing.T) {
	_, err := New(cryptocore.New(), []byte("too-short"), 1, DomainCSRF)
	require.Error(t, err)
}

func TestNewRejectsOutOfRangeKid(t *testing.T) {
	_, err := New(cryptocore.New(), testMaster(), 256, DomainCSRF)
	require.Error(t, err)

	_, err = New(cryptocore.New(), testMaster(), -1, DomainCSRF)
	require.Error(t, err)
}

func TestActiveAndResolve(t *testing.T) {
	kr, err := New(cryptocore.New(), testMaster(), 1, DomainCSRF)
	require.NoError(t, err)

	active, ok := kr.Active()
	require.True(t, ok)
	assert.Equal(t, uint8(1), active.Kid)

	_, ok = kr.Resolve(99)
	assert.False(t, ok, "unresolved kid must not be found")
}

func TestRotatePrependsAndTruncates(t *testing.T) {
	kr, err := New(cryptocore.New(), testMaster(), 1, DomainCSRF)
	require.NoError(t, err)

	if _, err := kr.Rotate(2); err != nil {
		t.Fatal(err)
	}
	if _, err := kr.Rotate(3); err != nil {
		t.Fatal(err)
	}
	// Still within 3-key window: kid=1 (the original) must still resolve.
	_, ok := kr.Resolve(1)
	assert.True(t, ok)
	assert.Equal(t, 3, kr.Len())

	if _, err := kr.Rotate(4); err != nil {
		t.Fatal(err)
	}
	// kid=1 has now rolled off the 3-entry window.
	_, ok = kr.Resolve(1)
	assert.False(t, ok, "kid 1 should have been evicted by the fourth rotation")
	assert.Equal(t, MaxEntries, kr.Len())

	active, _ := kr.Active()
	assert.Equal(t, uint8(4), active.Kid)
}

func TestCrossDomainKeysDiffer(t *testing.T) {
	p := cryptocore.New()
	csrf, err := New(p, testMaster(), 1, DomainCSRF)
	require.NoError(t, err)
	oneshot, err := New(p, testMaster(), 1, DomainOneShot)
	require.NoError(t, err)

	c, _ := csrf.Active()
	o, _ := oneshot.Active()
	assert.NotEqual(t, c.Key, o.Key, "same kid in different domains must derive different keys")

	msg := []byte("same message")
	macUnderCSRF := p.Sign(c.Key, msg)
	assert.False(t, p.Verify(o.Key, macUnderCSRF, msg), "a MAC from one domain must not verify under another domain's key")
}

func TestHistoryNewestFirst(t *testing.T) {
	kr, err := New(cryptocore.New(), testMaster(), 1, DomainCSRF)
	require.NoError(t, err)
	kr.Rotate(2)
	kr.Rotate(3)

	hist := kr.History()
	require.Len(t, hist, 2)
	assert.Equal(t, uint8(3), hist[0].NewKid)
	assert.Equal(t, uint8(2), hist[1].NewKid)
}

func TestSnapshotHidesKeyMaterial(t *testing.T) {
	kr, err := New(cryptocore.New(), testMaster(), 1, DomainCSRF)
	require.NoError(t, err)
	snap := kr.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Active)
}
