// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import (
	"strings"

	"github.com/laphilosophia/sigil/reason"
)

// DefaultProtectedMethods are the HTTP methods gated by the core when no
// custom set is configured.
var DefaultProtectedMethods = []string{"POST", "PUT", "PATCH", "DELETE"}

// MethodClassifier classifies a request's method as protected (state
// changing) or safe. It always allows within the policy chain: the
// classification itself is consulted by the orchestrator as a gate, not
// enforced here, so that "this method isn't protected" is never confused
// with "this policy denied the request."
type MethodClassifier struct {
	protected map[string]struct{}
}

func NewMethodClassifier(protectedMethods []string) MethodClassifier {
	if len(protectedMethods) == 0 {
		protectedMethods = DefaultProtectedMethods
	}
	set := make(map[string]struct{}, len(protectedMethods))
	for _, m := range protectedMethods {
		set[strings.ToUpper(m)] = struct{}{}
	}
	return MethodClassifier{protected: set}
}

// IsProtected reports whether method requires CSRF protection.
func (c MethodClassifier) IsProtected(method string) bool {
	_, ok := c.protected[strings.ToUpper(method)]
	return ok
}

func (MethodClassifier) Name() string { return "method" }

func (c MethodClassifier) Evaluate(meta Metadata) (bool, reason.Reason) {
	return true, reason.None
}
