package candidate

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Policy rejects addresses that cannot be an original image and ranks the
// rest.
type Policy struct {
	deny      []hostPattern
	minLength int
}

// hostPattern is one denylist entry. A bare domain matches itself and its
// subdomains; a glob matches a single host; path narrows the match to a
// path prefix.
type hostPattern struct {
	host string
	glob bool
	path string
}

// NewPolicy builds a Policy from denylist host patterns such as
// "gstatic.com", "lh*.googleusercontent.com" or "google.com/images".
func NewPolicy(denylist []string, minLength int) (*Policy, error) {
	p := &Policy{minLength: minLength}
	for _, raw := range denylist {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		host, rest, _ := strings.Cut(raw, "/")
		if host == "" {
			return nil, fmt.Errorf("invalid denylist pattern %q: empty host", raw)
		}
		hp := hostPattern{host: host, glob: strings.ContainsAny(host, "*?[")}
		if hp.glob {
			if _, err := path.Match(host, ""); err != nil {
				return nil, fmt.Errorf("invalid denylist pattern %q: %w", raw, err)
			}
		}
		if rest != "" {
			hp.path = "/" + rest
		}
		p.deny = append(p.deny, hp)
	}
	return p, nil
}

func (hp hostPattern) match(host, p string) bool {
	var ok bool
	if hp.glob {
		ok, _ = path.Match(hp.host, host)
	} else {
		ok = host == hp.host || strings.HasSuffix(host, "."+hp.host)
	}
	return ok && (hp.path == "" || strings.HasPrefix(p, hp.path))
}

// Accept reports whether c may be selected: a network scheme, a host, a
// plausible length, and no denylisted host.
func (p *Policy) Accept(c Candidate) bool {
	if len(c.URL) < p.minLength {
		return false
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	p2 := strings.ToLower(u.Path)
	for _, hp := range p.deny {
		if hp.match(host, p2) {
			return false
		}
	}
	return true
}

// Filter returns the accepted candidates in their original order.
func (p *Policy) Filter(cands []Candidate) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if p.Accept(c) {
			out = append(out, c)
		}
	}
	return out
}

// Select returns the best accepted candidate.
func (p *Policy) Select(cands []Candidate) (Candidate, bool) {
	kept := p.Filter(cands)
	if len(kept) == 0 {
		return Candidate{}, false
	}
	return Rank(kept)[0], true
}

// Rank returns a sorted copy of cands, best first.
//
// The order is a heuristic tuned to how image search pages look today:
// larger known pixel area wins, and among equal areas the longer address
// wins, since original-source paths tend to be longer than thumbnail paths.
// The remaining keys only make the order total, so the same set of
// candidates always yields the same first element whatever its input order.
func Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PixelArea != b.PixelArea {
			return a.PixelArea > b.PixelArea
		}
		if len(a.URL) != len(b.URL) {
			return len(a.URL) > len(b.URL)
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.ObservedAt.Before(b.ObservedAt)
	})
	return out
}
