// SPDX-License-Identifier: LGPL-3.0-or-later

package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/laphilosophia/sigil/reason"
)

func TestFetchMetadataAllowsSameOriginAndSameSite(t *testing.T) {
	p := NewFetchMetadataPolicy(FetchMetadataDegraded)
	for _, v := range []string{"same-origin", "Same-Site", "SAME-ORIGIN"} {
		ok, _ := p.Evaluate(Metadata{SecFetchSite: v})
		assert.True(t, ok, v)
	}
}

func TestFetchMetadataRejectsCrossSiteAndNone(t *testing.T) {
	p := NewFetchMetadataPolicy(FetchMetadataDegraded)

	ok, r := p.Evaluate(Metadata{SecFetchSite: "cross-site"})
	assert.False(t, ok)
	assert.Equal(t, reason.FetchMetadataCrossSite, r)

	ok, r = p.Evaluate(Metadata{SecFetchSite: "none"})
	assert.False(t, ok)
	assert.Equal(t, reason.FetchMetadataNone, r)
}

func TestFetchMetadataInvalidValue(t *testing.T) {
	p := NewFetchMetadataPolicy(FetchMetadataDegraded)
	ok, r := p.Evaluate(Metadata{SecFetchSite: "bogus"})
	assert.False(t, ok)
	assert.Equal(t, reason.FetchMetadataInvalidValue("bogus"), r)
}

func TestFetchMetadataMissingDegradedVsStrict(t *testing.T) {
	degraded := NewFetchMetadataPolicy(FetchMetadataDegraded)
	ok, _ := degraded.Evaluate(Metadata{})
	assert.True(t, ok)

	strict := NewFetchMetadataPolicy(FetchMetadataStrict)
	ok, r := strict.Evaluate(Metadata{})
	assert.False(t, ok)
	assert.Equal(t, reason.FetchMetadataMissingStrict, r)
}

func TestOriginRefererAllowsConfiguredOrigin(t *testing.T) {
	p := NewOriginRefererPolicy([]string{"https://example.com"})
	ok, _ := p.Evaluate(Metadata{Origin: "https://example.com"})
	assert.True(t, ok)
}

func TestOriginRefererRejectsNullOrigin(t *testing.T) {
	p := NewOriginRefererPolicy([]string{"https://example.com"})
	ok, r := p.Evaluate(Metadata{Origin: "null"})
	assert.False(t, ok)
	assert.Equal(t, reason.OriginMismatch("null"), r)
}

func TestOriginRefererFallsBackToReferer(t *testing.T) {
	p := NewOriginRefererPolicy([]string{"https://example.com"})
	ok, _ := p.Evaluate(Metadata{Referer: "https://example.com/page?x=1"})
	assert.True(t, ok)
}

func TestOriginRefererBothAbsent(t *testing.T) {
	p := NewOriginRefererPolicy([]string{"https://example.com"})
	ok, r := p.Evaluate(Metadata{})
	assert.False(t, ok)
	assert.Equal(t, reason.OriginMissing, r)
}

func TestContentTypeRequiredOnProtectedMethod(t *testing.T) {
	classifier := NewMethodClassifier(nil)
	p := NewContentTypePolicy(classifier, nil)

	ok, r := p.Evaluate(Metadata{Method: "POST"})
	assert.False(t, ok)
	assert.Equal(t, reason.ContentTypeMissingOnStateChange, r)

	ok, _ = p.Evaluate(Metadata{Method: "GET"})
	assert.True(t, ok)
}

func TestContentTypeStripsParametersAndLowercases(t *testing.T) {
	classifier := NewMethodClassifier(nil)
	p := NewContentTypePolicy(classifier, nil)
	ok, _ := p.Evaluate(Metadata{Method: "POST", ContentType: "Application/JSON; charset=utf-8"})
	assert.True(t, ok)
}

func TestClientModeDetection(t *testing.T) {
	assert.Equal(t, ModeAPI, DetectMode(Metadata{ClientType: ClientTypeAPI}, false))
	assert.Equal(t, ModeBrowser, DetectMode(Metadata{SecFetchSite: "same-origin"}, false))
	assert.Equal(t, ModeAPI, DetectMode(Metadata{}, false))
	// Override disabled: declared api type is ignored, falls through to
	// sec-fetch-site based detection.
	assert.Equal(t, ModeBrowser, DetectMode(Metadata{ClientType: ClientTypeAPI, SecFetchSite: "same-origin"}, true))
}

func TestContextBindingTiers(t *testing.T) {
	low := NewContextBinding(TierLow, 0)
	assert.False(t, low.ShouldEnforce(time.Hour, true))

	high := NewContextBinding(TierHigh, 0)
	assert.True(t, high.ShouldEnforce(0, true))

	medium := NewContextBinding(TierMedium, time.Minute)
	assert.False(t, medium.ShouldEnforce(30*time.Second, true), "within grace period, tolerate mismatch")
	assert.True(t, medium.ShouldEnforce(2*time.Minute, true), "outside grace period, enforce")
	assert.True(t, medium.ShouldEnforce(-time.Second, true), "unknown/negative age must enforce")
	assert.True(t, medium.ShouldEnforce(0, false), "age not tracked at all must enforce")
}

func TestChainEmptyFailsClosed(t *testing.T) {
	c := NewChain()
	res := c.Evaluate(Metadata{})
	assert.False(t, res.Allowed)
	assert.Equal(t, reason.EmptyPolicyChain, res.Reason)
}

// A cross-site POST with an untrusted origin must have every non-method
// policy evaluated (no short-circuit), with fetch-metadata's cross-site
// failure reported as the chain's reason because it runs first.
func TestChainEvaluatesEveryPolicyAndReportsFirstFailure(t *testing.T) {
	classifier := NewMethodClassifier(nil)
	chain := NewChain(
		classifier,
		NewFetchMetadataPolicy(FetchMetadataDegraded),
		NewOriginRefererPolicy([]string{"https://example.com"}),
		NewContentTypePolicy(classifier, nil),
	)

	meta := Metadata{
		Method:       "POST",
		Origin:       "https://evil.com",
		SecFetchSite: "cross-site",
		ContentType:  "application/json",
	}

	res := chain.Evaluate(meta)
	assert.False(t, res.Allowed)
	assert.Equal(t, reason.FetchMetadataCrossSite, res.Reason)
	assert.Contains(t, res.Evaluated, "fetch-metadata")
	assert.Contains(t, res.Evaluated, "origin")
	assert.Contains(t, res.Evaluated, "content-type")
	assert.Contains(t, res.Failures, "fetch-metadata")
	assert.Contains(t, res.Failures, "origin")
	assert.NotContains(t, res.Failures, "content-type")
}
