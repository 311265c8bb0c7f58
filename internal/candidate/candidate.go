// Package candidate finds, filters, ranks and normalizes image addresses
// discovered in a search-results document.
package candidate

import (
	"net/url"
	"strings"
	"time"
)

// Origin records which scanning strategy produced a candidate.
type Origin string

const (
	OriginInlineAttribute Origin = "inline-attribute"
	OriginLazyAttribute   Origin = "lazily-populated-attribute"
	OriginPreviewImage    Origin = "preview-image"
	OriginAnchorParameter Origin = "anchor-parameter"
	OriginInlineScript    Origin = "inline-script"
	OriginFallbackScan    Origin = "fallback-scan"
)

// Candidate is a provisional image address. It is a value: copies never
// share state, and the With* helpers return new candidates.
type Candidate struct {
	URL        string    `json:"url"`
	Origin     Origin    `json:"origin"`
	PixelArea  int       `json:"pixel_area,omitempty"` // 0 when unknown
	ObservedAt time.Time `json:"observed_at"`
}

// New builds a candidate from a raw address. It reports false unless the
// address is absolute and scheme-qualified. Protocol-relative addresses are
// promoted to https.
func New(raw string, origin Origin, area int, at time.Time) (Candidate, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return Candidate{}, false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return Candidate{}, false
	}
	if area < 0 {
		area = 0
	}
	return Candidate{URL: raw, Origin: origin, PixelArea: area, ObservedAt: at}, true
}

// WithURL returns a copy of c pointing at u.
func (c Candidate) WithURL(u string) Candidate {
	c.URL = u
	return c
}

// WithOrigin returns a copy of c tagged with origin.
func (c Candidate) WithOrigin(origin Origin) Candidate {
	c.Origin = origin
	return c
}
