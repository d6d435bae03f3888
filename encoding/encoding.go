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

// Package encoding holds the wire-level primitives the token codec builds
// on: unpadded base64url, fixed-offset big-endian u64, and buffer
// concatenation. Nothing here is token-aware.
package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// b64 is RFC 4648 base64url with the `-`/`_` alphabet and no padding.
var b64 = base64.RawURLEncoding

// EncodeToString returns the unpadded base64url encoding of data.
func EncodeToString(data []byte) string {
	return b64.EncodeToString(data)
}

// DecodeString decodes unpadded base64url. Missing padding is accepted
// (RawURLEncoding never expects it); any character outside the `-`/`_`
// alphabet is rejected.
func DecodeString(s string) ([]byte, error) {
	out, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encoding: invalid base64url: %w", err)
	}
	return out, nil
}

// PutUint64BE writes v as 8 big-endian bytes into buf at offset.
// Values up to 2^53 (millisecond epoch timestamps comfortably fit) round
// trip exactly; this is a plain fixed-width write, not a varint.
func PutUint64BE(buf []byte, offset int, v uint64) {
	binary.BigEndian.PutUint64(buf[offset:offset+8], v)
}

// Uint64BE reads 8 big-endian bytes from buf at offset.
func Uint64BE(buf []byte, offset int) uint64 {
	return binary.BigEndian.Uint64(buf[offset : offset+8])
}

// Concat returns a new contiguous buffer holding parts in order.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
