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

// Package token implements the two fixed-layout wire formats and the
// Deterministic Failure Model validator for both of them. Tokens are a
// fixed-offset nonce|timestamp|hmac layout, extended with a key epoch
// (kid) for keyring rotation and an optional context binding instead of a
// single process-wide secret.
package token

import (
	"time"

	"github.com/laphilosophia/sigil/context"
)

const (
	// NonceSize is the width of the random nonce embedded in both token
	// kinds.
	NonceSize = 16

	// RegularSize is the exact decoded length of a regular token:
	// kid(1) || nonce(16) || ts(8) || ctx(32) || mac(32).
	RegularSize = 1 + NonceSize + 8 + context.Size + 32

	// OneShotSize is the exact decoded length of a one-shot token:
	// nonce(16) || ts(8) || action(32) || ctx(32) || mac(32).
	OneShotSize = NonceSize + 8 + context.Size + context.Size + 32
)

// Offsets within the regular token buffer.
const (
	regKidOff   = 0
	regNonceOff = regKidOff + 1
	regTSOff    = regNonceOff + NonceSize
	regCtxOff   = regTSOff + 8
	regMACOff   = regCtxOff + context.Size
	// regMACOff+32 == RegularSize
)

// Offsets within the one-shot token buffer.
const (
	osNonceOff  = 0
	osTSOff     = osNonceOff + NonceSize
	osActionOff = osTSOff + 8
	osCtxOff    = osActionOff + context.Size
	osMACOff    = osCtxOff + context.Size
	// osMACOff+32 == OneShotSize
)

// Regular is a parsed regular token. The wire format has no length field;
// a decoded buffer of any length other than RegularSize is rejected
// outright by ParseRegular, never partially interpreted.
type Regular struct {
	Kid       uint8
	Nonce     [NonceSize]byte
	Timestamp int64 // epoch milliseconds
	Context   [context.Size]byte
	MAC       [32]byte
}

// OneShot is a parsed one-shot token.
type OneShot struct {
	Nonce     [NonceSize]byte
	Timestamp int64 // epoch milliseconds
	Action    [32]byte // SHA-256 of the action string
	Context   [context.Size]byte
	MAC       [32]byte
}

func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
