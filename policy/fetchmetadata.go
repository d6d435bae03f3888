// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import (
	"strings"

	"github.com/laphilosophia/sigil/reason"
)

// FetchMetadataMode governs how the Fetch-Metadata policy treats a request
// that supplies no Sec-Fetch-Site header at all, typically a legacy
// browser or a non-browser client that never sends Fetch Metadata headers.
type FetchMetadataMode string

const (
	// FetchMetadataDegraded allows an absent header, relying on the other
	// policies in the chain (Origin/Referer, Content-Type) for coverage.
	FetchMetadataDegraded FetchMetadataMode = "degraded"
	// FetchMetadataStrict rejects any request missing the header.
	FetchMetadataStrict FetchMetadataMode = "strict"
)

// FetchMetadataPolicy classifies a request by its Sec-Fetch-Site value.
type FetchMetadataPolicy struct {
	Mode FetchMetadataMode
}

func NewFetchMetadataPolicy(mode FetchMetadataMode) FetchMetadataPolicy {
	if mode == "" {
		mode = FetchMetadataDegraded
	}
	return FetchMetadataPolicy{Mode: mode}
}

func (FetchMetadataPolicy) Name() string { return "fetch-metadata" }

func (p FetchMetadataPolicy) Evaluate(meta Metadata) (bool, reason.Reason) {
	site := strings.ToLower(strings.TrimSpace(meta.SecFetchSite))

	if site == "" {
		if p.Mode == FetchMetadataStrict {
			return false, reason.FetchMetadataMissingStrict
		}
		return true, reason.None
	}

	switch site {
	case "same-origin", "same-site":
		return true, reason.None
	case "cross-site":
		return false, reason.FetchMetadataCrossSite
	case "none":
		return false, reason.FetchMetadataNone
	default:
		return false, reason.FetchMetadataInvalidValue(site)
	}
}
