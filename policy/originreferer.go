// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import (
	"net/url"
	"strings"

	"github.com/laphilosophia/sigil/reason"
)

// OriginSet is a normalized, deduplicated set of allowed origins. Entries
// that fail to parse as an absolute URL are discarded at construction time
// rather than causing a configuration error: an operator typo in one
// allowed origin shouldn't make the whole list unusable.
type OriginSet struct {
	origins map[string]struct{}
}

// NewOriginSet normalizes and indexes allowedOrigins, silently discarding
// any entry that does not parse as an absolute URL with a scheme and host.
func NewOriginSet(allowedOrigins []string) OriginSet {
	set := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if norm, ok := normalizeOrigin(o); ok {
			set[norm] = struct{}{}
		}
	}
	return OriginSet{origins: set}
}

func (s OriginSet) contains(origin string) bool {
	_, ok := s.origins[origin]
	return ok
}

// normalizeOrigin parses s as an absolute URL and returns its
// scheme://host origin component. The literal string "null" (what browsers
// send for an opaque/sandboxed origin) is explicitly never parseable here
// and must never match any allowed origin.
func normalizeOrigin(s string) (string, bool) {
	if s == "" || strings.EqualFold(s, "null") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

// OriginRefererPolicy validates a request's claimed origin, falling back
// to the Referer header's origin component when Origin is absent.
type OriginRefererPolicy struct {
	Allowed OriginSet
}

func NewOriginRefererPolicy(allowedOrigins []string) OriginRefererPolicy {
	return OriginRefererPolicy{Allowed: NewOriginSet(allowedOrigins)}
}

func (OriginRefererPolicy) Name() string { return "origin" }

func (p OriginRefererPolicy) Evaluate(meta Metadata) (bool, reason.Reason) {
	if meta.Origin != "" {
		norm, ok := normalizeOrigin(meta.Origin)
		if !ok || !p.Allowed.contains(norm) {
			return false, reason.OriginMismatch(meta.Origin)
		}
		return true, reason.None
	}

	if meta.Referer != "" {
		norm, ok := normalizeOrigin(meta.Referer)
		if !ok {
			return false, reason.OriginRefererInvalid
		}
		if !p.Allowed.contains(norm) {
			return false, reason.OriginRefererMismatch(norm)
		}
		return true, reason.None
	}

	return false, reason.OriginMissing
}
