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

// Package policy implements the provenance-check evaluators and the
// no-short-circuit chain that composes them. Every evaluator here
// consumes normalized request metadata, never an *http.Request directly,
// so the package stays agnostic to any particular HTTP framework, mirroring
// how the token package never touches a transport.
package policy

import "time"

// TokenSourceKind tags where (if anywhere) a CSRF token was found in the
// incoming request.
type TokenSourceKind int

const (
	TokenSourceNone TokenSourceKind = iota
	TokenSourceHeader
	TokenSourceJSONBody
	TokenSourceFormBody
)

// TokenSource is the tagged union of where a token value was extracted
// from. Adapters are responsible for the extraction itself, in strict
// precedence order: header, then JSON body field, then form body field.
// Query-string transport is never consulted.
type TokenSource struct {
	Kind  TokenSourceKind
	Value string
}

// ClientType is the caller-declared client classification, consulted only
// when override is not disabled.
type ClientType string

const (
	ClientTypeUnspecified ClientType = ""
	ClientTypeAPI         ClientType = "api"
)

// Mode is the detected client mode a request is evaluated under.
type Mode string

const (
	ModeBrowser Mode = "browser"
	ModeAPI     Mode = "api"
)

// Metadata is the normalized, framework-agnostic view of an incoming
// request that every policy evaluator and the orchestrator operate on.
// Adapters build this from raw headers/body: case-folding header names,
// stripping Content-Type parameters, and uppercasing the method are the
// adapter's responsibility, not this package's.
type Metadata struct {
	Method        string
	Origin        string
	Referer       string
	SecFetchSite  string
	SecFetchMode  string
	SecFetchDest  string
	ContentType   string
	TokenSource   TokenSource
	ClientType    ClientType

	// SessionAge is how long the caller's session has existed at request
	// time, consulted only by the context-binding tier decision when a
	// presented token's context fails to match. SessionAgeKnown distinguishes
	// a legitimate zero age ("session just created") from an adapter that
	// never tracked session age at all. The struct's zero value leaves
	// SessionAgeKnown false, which every tier other than low treats as
	// must-enforce, matching spec's "unknown or negative age always
	// enforces."
	SessionAge      time.Duration
	SessionAgeKnown bool
}
