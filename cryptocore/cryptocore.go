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

// Package cryptocore defines the crypto capability set the token engine
// depends on, and a default implementation over the standard library plus
// golang.org/x/crypto/hkdf. Callers depend on the Provider interface, not
// on this package's concrete type, so a KMS-backed or hardware-backed
// provider can be swapped in without touching the keyring, codec, or
// validator: static dispatch by default, pluggable by interface.
package cryptocore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MACSize is the fixed length of an HMAC-SHA256 output. The codec never
// truncates it.
const MACSize = sha256.Size

// Provider is the capability set the token engine requires. All methods
// are safe for concurrent use.
type Provider interface {
	// Sign computes HMAC-SHA256(key, data).
	Sign(key, data []byte) []byte

	// Verify reports whether mac is the HMAC-SHA256 of data under key,
	// using a constant-time comparison.
	Verify(key, mac, data []byte) bool

	// DeriveKey runs HKDF-SHA256(master, salt, info) and returns a key of
	// the requested length.
	DeriveKey(master, salt, info []byte, length int) ([]byte, error)

	// Random returns n cryptographically random bytes.
	Random(n int) ([]byte, error)

	// SHA256 returns the SHA-256 digest of data.
	SHA256(data []byte) [32]byte
}

// Default is the standard-library-backed Provider. It has no state and a
// single shared instance is safe to reuse across an entire process.
type Default struct{}

// New returns the default crypto provider.
func New() Provider {
	return Default{}
}

func (Default) Sign(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify delegates to hmac.Equal, which is documented to run in constant
// time with respect to the contents (not the lengths) of its arguments.
// The validator is responsible for always computing a
// same-length dummy MAC on the failure paths so that the comparison
// itself never becomes a length oracle.
func (Default) Verify(key, mac, data []byte) bool {
	expected := hmac.New(sha256.New, key)
	expected.Write(data)
	return hmac.Equal(mac, expected.Sum(nil))
}

func (Default) DeriveKey(master, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, master, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("cryptocore: hkdf derive: %w", err)
	}
	return out, nil
}

func (Default) Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("cryptocore: random: %w", err)
	}
	return buf, nil
}

func (Default) SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeEqual implements the comparator spec'd for the validator:
// r := (len(a) XOR len(b)) | OR_i (a[i] XOR b[i]) over i in [0, max(len)),
// zero-filling past the shorter buffer's end. Equal iff r == 0. There is
// no early return on a differing byte; every index is visited regardless
// of earlier mismatches, which is the property the Deterministic Failure
// Model requires from every comparison it performs. The length term is
// accumulated at full int width, not truncated to a byte, so a length
// difference that happens to be a multiple of 256 still registers.
func ConstantTimeEqual(a, b []byte) bool {
	r := len(a) ^ len(b)
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		r |= int(av ^ bv)
	}
	return r == 0
}
