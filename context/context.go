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

// Package context computes the 32-byte context binding hashed into a
// token. The construction is length-prefixed as a defense against
// concatenation collisions: a naive concatenation of bindings lets an
// attacker shift a byte from one field into the next and reconstruct an
// unrelated equal hash.
package context

import (
	"crypto/sha256"
	"strconv"
)

// Size is the fixed length of a context value.
const Size = sha256.Size

// Compute returns SHA-256( sum_i ascii_dec(len(bindings[i])) + ":" +
// bindings[i] + 0x00 ) for the given ordered bindings. With zero bindings
// it returns the same value as Empty().
func Compute(bindings ...string) [Size]byte {
	h := sha256.New()
	if len(bindings) == 0 {
		h.Write([]byte{0x00})
		var out [Size]byte
		copy(out[:], h.Sum(nil))
		return out
	}
	for _, b := range bindings {
		h.Write([]byte(strconv.Itoa(len(b))))
		h.Write([]byte(":"))
		h.Write([]byte(b))
		h.Write([]byte{0x00})
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Empty returns SHA-256(0x00), the context value for a token generated
// with no bindings at all.
func Empty() [Size]byte {
	return Compute()
}
