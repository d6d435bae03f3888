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

package orchestrator

import (
	"time"

	"github.com/laphilosophia/sigil/policy"
)

// Default configuration values, per the Configuration Surface.
const (
	DefaultTokenTTL    = 20 * time.Minute
	DefaultGraceWindow = 60 * time.Second
	DefaultOneShotTTL  = 5 * time.Minute
)

// Config is the orchestrator's resolved configuration.
type Config struct {
	// MasterSecret is HKDF input for every keyring this orchestrator owns.
	// Must be at least 32 bytes.
	MasterSecret []byte

	// TokenTTL is the regular token's validity window. Zero uses
	// DefaultTokenTTL.
	TokenTTL time.Duration
	// GraceWindow is the post-TTL tolerance for regular tokens. Zero uses
	// DefaultGraceWindow.
	GraceWindow time.Duration

	AllowedOrigins    []string
	LegacyBrowserMode policy.FetchMetadataMode
	AllowApiMode      bool
	ProtectedMethods  []string

	// ContextBinding is optional; a nil value means context mismatches are
	// always enforced as an ordinary validation failure (tier high
	// behavior), which is also the behavior when ContextBinding is
	// explicitly set to TierHigh.
	ContextBinding *policy.ContextBinding

	OneShotEnabled bool
	// OneShotTTL is the one-shot token's validity window. Zero uses
	// DefaultOneShotTTL.
	OneShotTTL time.Duration

	NonceCacheMaxEntries int
	NonceCacheGCInterval time.Duration

	// DisableClientModeOverride, when true, ignores a caller-declared
	// ClientTypeAPI and falls through to Sec-Fetch-Site-based detection.
	DisableClientModeOverride bool

	// HeaderName is the transport header an adapter reads the token from
	// before falling back to a JSON/form body field. The core never reads
	// headers itself; this is carried on Config purely so adapters share
	// one source of truth for the default (`x-csrf-token`) instead of
	// hardcoding it independently. Empty uses DefaultHeaderName.
	HeaderName string

	// OneShotHeaderName is accepted but not read by the core. Reserved for
	// a future adapter convention distinguishing one-shot token transport
	// from regular token transport.
	OneShotHeaderName string
}

// DefaultHeaderName is the transport header adapters read a token from
// when Config.HeaderName is unset.
const DefaultHeaderName = "x-csrf-token"

func (c Config) headerName() string {
	if c.HeaderName == "" {
		return DefaultHeaderName
	}
	return c.HeaderName
}

func (c Config) tokenTTL() time.Duration {
	if c.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return c.TokenTTL
}

func (c Config) graceWindow() time.Duration {
	if c.GraceWindow <= 0 {
		return DefaultGraceWindow
	}
	return c.GraceWindow
}

func (c Config) oneShotTTL() time.Duration {
	if c.OneShotTTL <= 0 {
		return DefaultOneShotTTL
	}
	return c.OneShotTTL
}
