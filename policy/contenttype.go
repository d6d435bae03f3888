// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import (
	"strings"

	"github.com/laphilosophia/sigil/reason"
)

// DefaultAllowedContentTypes are accepted when no custom set is configured.
var DefaultAllowedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// ContentTypePolicy requires a recognized Content-Type on protected
// (state-changing) methods; absent on a safe method is fine.
type ContentTypePolicy struct {
	classifier MethodClassifier
	allowed    map[string]struct{}
}

func NewContentTypePolicy(classifier MethodClassifier, allowedContentTypes []string) ContentTypePolicy {
	if len(allowedContentTypes) == 0 {
		allowedContentTypes = DefaultAllowedContentTypes
	}
	set := make(map[string]struct{}, len(allowedContentTypes))
	for _, ct := range allowedContentTypes {
		set[strings.ToLower(ct)] = struct{}{}
	}
	return ContentTypePolicy{classifier: classifier, allowed: set}
}

func (ContentTypePolicy) Name() string { return "content-type" }

// normalizeContentType strips any parameters (";" onward), trims, and
// lowercases.
func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func (p ContentTypePolicy) Evaluate(meta Metadata) (bool, reason.Reason) {
	ct := normalizeContentType(meta.ContentType)

	if ct == "" {
		if p.classifier.IsProtected(meta.Method) {
			return false, reason.ContentTypeMissingOnStateChange
		}
		return true, reason.None
	}

	if _, ok := p.allowed[ct]; !ok {
		return false, reason.ContentTypeDisallowed(ct)
	}
	return true, reason.None
}
