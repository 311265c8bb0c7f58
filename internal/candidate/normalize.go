package candidate

import (
	"net/url"
	"regexp"
	"strings"
)

const sizeToken = `(?:-(?:[wsh]\d+|[a-z]{1,3}))*`

var (
	// photo=w400-h300, photo=s1600-rw
	equalsSuffix = regexp.MustCompile(`=[wsh]\d+` + sizeToken + `$`)
	// /photo/w400-h300, /photo/s1600/
	segmentSuffix = regexp.MustCompile(`/[wsh]\d{2,}` + sizeToken + `/?$`)

	sizeValue = regexp.MustCompile(`^(?:\d{1,5}(?:px)?|[wsh]\d{1,5}` + sizeToken + `)$`)

	sizeParams = map[string]bool{
		"w": true, "h": true, "s": true,
		"width": true, "height": true,
		"sz": true, "size": true,
	}
)

// Normalize strips size-encoding suffixes that image hosts append to serve
// scaled renditions, recovering the unscaled address. It never changes the
// scheme or host and is idempotent: every rewrite shortens the address and
// rewriting stops at the first fixed point.
func Normalize(raw string) string {
	before, err := url.Parse(raw)
	if err != nil || !before.IsAbs() {
		return raw
	}

	out := raw
	for {
		next := normalizeOnce(out)
		if next == out {
			break
		}
		out = next
	}

	after, err := url.Parse(out)
	if err != nil ||
		!strings.EqualFold(after.Scheme, before.Scheme) ||
		!strings.EqualFold(after.Host, before.Host) {
		return raw
	}
	return out
}

func normalizeOnce(s string) string {
	var frag string
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s, frag = s[:i], s[i:]
	}
	head, query, hasQuery := strings.Cut(s, "?")

	if hasQuery {
		if trimmed := trimSizeParams(query); trimmed != query {
			return join(head, trimmed) + frag
		}
	}

	i := strings.Index(head, "://")
	if i < 0 {
		return s + frag
	}
	slash := strings.IndexByte(head[i+3:], '/')
	if slash < 0 {
		return s + frag
	}
	origin, p := head[:i+3+slash], head[i+3+slash:]

	for _, re := range []*regexp.Regexp{equalsSuffix, segmentSuffix} {
		if m := re.FindStringIndex(p); m != nil && m[0] > 0 {
			rebuilt := origin + p[:m[0]]
			if hasQuery {
				rebuilt = join(rebuilt, query)
			}
			return rebuilt + frag
		}
	}
	return s + frag
}

// trimSizeParams drops size parameters from the end of a raw query string.
func trimSizeParams(query string) string {
	parts := strings.Split(query, "&")
	for len(parts) > 0 {
		k, v, _ := strings.Cut(parts[len(parts)-1], "=")
		if !sizeParams[strings.ToLower(k)] || !sizeValue.MatchString(strings.ToLower(v)) {
			break
		}
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "&")
}

func join(head, query string) string {
	if query == "" {
		return head
	}
	return head + "?" + query
}
