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

// Package keyring derives and holds the HMAC signing keys the token
// engine signs and verifies with. A Keyring is a small (<=3 entries),
// domain-tagged, append-and-truncate ring: rotation prepends a freshly
// derived key and drops anything beyond index 2.
//
// Rotation is mutex-serialized and recorded in an audit history; readers
// never take the lock, they load an atomically swapped snapshot pointer.
package keyring

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/laphilosophia/sigil/cryptocore"
)

// Domain separates keys derived from the same master secret so a key
// minted for one purpose cannot produce a valid MAC for another.
type Domain string

const (
	DomainCSRF     Domain = "csrf"
	DomainOneShot  Domain = "oneshot"
	DomainInternal Domain = "internal"
)

// hkdfSalt is the fixed HKDF salt for every derivation in this module.
const hkdfSalt = "sigil-v1"

// MaxEntries bounds the ring: rotation keeps at most this many keys so a
// token signed under a recently-retired kid still validates for one
// rotation cycle.
const MaxEntries = 3

// Entry is a single derived signing key.
type Entry struct {
	Kid       uint8
	Key       []byte
	CreatedAt time.Time
}

// snapshot is the immutable value a Keyring's pointer is swapped to on
// rotation. Readers that load the pointer once see a consistent ring for
// the duration of their operation, even if a rotation happens concurrently.
type snapshot struct {
	entries   []Entry // newest first
	activeKid uint8
}

// Keyring derives and stores signing keys for one domain.
type Keyring struct {
	domain Domain
	master []byte
	crypto cryptocore.Provider

	cur atomic.Pointer[snapshot]

	mu      sync.Mutex // serializes Rotate calls
	history []RotationEvent
	sf      singleflight.Group
}

// RotationEvent records a single rotation for audit/metrics purposes.
type RotationEvent struct {
	Timestamp time.Time
	OldKid    uint8
	NewKid    uint8
	HadOld    bool
}

// New derives the first key for the ring and returns the initialized
// Keyring. kid must be in [0,255]; master must be at least 32 bytes (the
// orchestrator enforces this on the shared master secret, but a Keyring
// constructed directly is checked again here; construction is an error
// path, unlike validation, which never returns one).
func New(provider cryptocore.Provider, master []byte, kid int, domain Domain) (*Keyring, error) {
	if kid < 0 || kid > 255 {
		return nil, fmt.Errorf("keyring: kid %d out of range [0,255]", kid)
	}
	if len(master) < 32 {
		return nil, fmt.Errorf("keyring: master secret must be at least 32 bytes, got %d", len(master))
	}

	kr := &Keyring{domain: domain, master: master, crypto: provider}
	entry, err := kr.derive(uint8(kid))
	if err != nil {
		return nil, err
	}
	kr.cur.Store(&snapshot{entries: []Entry{entry}, activeKid: entry.Kid})
	return kr, nil
}

// derive computes HKDF-SHA256(master, salt="sigil-v1", info="{domain}-signing-key-{kid}").
// Concurrent derivations of the same (domain, kid) collapse onto a single
// HKDF call via singleflight.
func (kr *Keyring) derive(kid uint8) (Entry, error) {
	info := fmt.Sprintf("%s-signing-key-%d", kr.domain, kid)
	v, err, _ := kr.sf.Do(info, func() (any, error) {
		key, err := kr.crypto.DeriveKey(kr.master, []byte(hkdfSalt), []byte(info), cryptocore.MACSize)
		if err != nil {
			return nil, fmt.Errorf("keyring: derive kid=%d domain=%s: %w", kid, kr.domain, err)
		}
		return key, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return Entry{Kid: kid, Key: v.([]byte), CreatedAt: time.Now()}, nil
}

// Domain returns the domain this ring's keys were derived for.
func (kr *Keyring) Domain() Domain { return kr.domain }

// Resolve returns the entry matching kid, if present in the current
// snapshot.
func (kr *Keyring) Resolve(kid uint8) (Entry, bool) {
	snap := kr.cur.Load()
	for _, e := range snap.entries {
		if e.Kid == kid {
			return e, true
		}
	}
	return Entry{}, false
}

// Active returns the entry whose kid equals the ring's active kid.
func (kr *Keyring) Active() (Entry, bool) {
	snap := kr.cur.Load()
	return kr.Resolve(snap.activeKid)
}

// Len returns the number of entries currently in the ring.
func (kr *Keyring) Len() int {
	return len(kr.cur.Load().entries)
}

// All returns every entry in the current snapshot, newest first. The
// one-shot validator loops over every ring entry (rather than resolving a
// single kid embedded in the token, which one-shot tokens don't carry) to
// find whichever key produces a valid MAC.
func (kr *Keyring) All() []Entry {
	snap := kr.cur.Load()
	out := make([]Entry, len(snap.entries))
	copy(out, snap.entries)
	return out
}

// Rotate derives a key for newKid, prepends it, and truncates the ring to
// MaxEntries. The new entry becomes active. Rotation produces a brand new
// snapshot value and atomically swaps the pointer; any validation already
// in flight keeps whatever snapshot it loaded at its start, so a rotation
// race is never observable mid-validation.
func (kr *Keyring) Rotate(newKid int) (Entry, error) {
	if newKid < 0 || newKid > 255 {
		return Entry{}, fmt.Errorf("keyring: kid %d out of range [0,255]", newKid)
	}

	kr.mu.Lock()
	defer kr.mu.Unlock()

	entry, err := kr.derive(uint8(newKid))
	if err != nil {
		return Entry{}, err
	}

	prev := kr.cur.Load()
	next := make([]Entry, 0, MaxEntries)
	next = append(next, entry)
	for _, e := range prev.entries {
		if len(next) >= MaxEntries {
			break
		}
		if e.Kid == entry.Kid {
			continue // replacing an already-present kid, don't duplicate it
		}
		next = append(next, e)
	}

	event := RotationEvent{Timestamp: time.Now(), NewKid: entry.Kid}
	if len(prev.entries) > 0 {
		event.OldKid = prev.activeKid
		event.HadOld = true
	}
	kr.history = append(kr.history, event)

	kr.cur.Store(&snapshot{entries: next, activeKid: entry.Kid})
	return entry, nil
}

// History returns rotation events, newest first.
func (kr *Keyring) History() []RotationEvent {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	out := make([]RotationEvent, len(kr.history))
	for i, e := range kr.history {
		out[len(kr.history)-1-i] = e
	}
	return out
}

// EntrySnapshot is a key-material-free view of a ring entry, safe to log
// or export via metrics/health checks.
type EntrySnapshot struct {
	Kid       uint8
	CreatedAt time.Time
	Active    bool
}

// Snapshot returns an immutable, key-material-free view of the ring for
// health and metrics reporting.
func (kr *Keyring) Snapshot() []EntrySnapshot {
	snap := kr.cur.Load()
	out := make([]EntrySnapshot, len(snap.entries))
	for i, e := range snap.entries {
		out[i] = EntrySnapshot{Kid: e.Kid, CreatedAt: e.CreatedAt, Active: e.Kid == snap.activeKid}
	}
	return out
}
