package candidate

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	// ["https://host/a.jpg",1200,800]
	arrayPattern = regexp.MustCompile(`\[\s*"(https?://[^"\s]+)"\s*,\s*(\d{1,6})\s*,\s*(\d{1,6})\s*\]`)

	// An address runs to the first character that cannot appear in one.
	addressPattern = regexp.MustCompile(`(?i)(?:https?:)?//[^\s"'<>\\\[\]{}|^` + "`" + `]+`)
	schemePattern  = regexp.MustCompile(`(?i)https?://`)
	imageSuffix    = regexp.MustCompile(`(?i)\.(?:jpe?g|png|webp|gif|bmp|avif|tiff?)$`)
	// an image extension closing a path that runs on into CSS or a list
	extensionEnd = regexp.MustCompile(`(?i)\.(?:jpe?g|png|webp|gif|bmp|avif|tiff?)[?#&,;)]`)
)

// Rules selects which attributes, query parameters and document regions the
// scanner treats as image sources.
type Rules struct {
	// LazyAttributes are attributes the host fills in after first render
	// (data-src, data-iurl, srcset, ...).
	LazyAttributes []string
	// AnchorParams are query parameter names that carry an image address
	// (imgurl, mediaurl, ...).
	AnchorParams []string
	// PreviewSelectors match the preview surface that opens on activation.
	PreviewSelectors []string
}

// Scanner enumerates image address candidates in markup and raw payloads.
// It is read-only and safe for concurrent use.
type Scanner struct {
	lazy      map[string]bool
	params    []string
	paramText *regexp.Regexp
	preview   cascadia.Selector
}

// NewScanner compiles rules into a Scanner.
func NewScanner(rules Rules) (*Scanner, error) {
	s := &Scanner{lazy: make(map[string]bool, len(rules.LazyAttributes))}
	for _, a := range rules.LazyAttributes {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			s.lazy[a] = true
		}
	}

	quoted := make([]string, 0, len(rules.AnchorParams))
	for _, p := range rules.AnchorParams {
		if p = strings.TrimSpace(p); p != "" {
			s.params = append(s.params, p)
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}
	if len(quoted) > 0 {
		s.paramText = regexp.MustCompile(`(?i)(?:^|[?&;"'\s])(?:` + strings.Join(quoted, "|") + `)=([^&"'\s<>\\]+)`)
	}

	if len(rules.PreviewSelectors) > 0 {
		sel, err := cascadia.Compile(strings.Join(rules.PreviewSelectors, ", "))
		if err != nil {
			return nil, fmt.Errorf("failed to compile preview selectors: %w", err)
		}
		s.preview = sel
	}
	return s, nil
}

// ScanText finds addresses in an attribute value or script payload after
// decoding escapes. It recognises extension-terminated addresses,
// ["url",width,height] tuples (which carry a pixel area) and image
// parameters such as imgurl=. Malformed input yields no candidates.
func (s *Scanner) ScanText(payload string, origin Origin, at time.Time) []Candidate {
	if strings.TrimSpace(payload) == "" {
		return nil
	}
	text := Decode(payload)

	var c collector
	for _, m := range arrayPattern.FindAllStringSubmatch(text, -1) {
		c.add(m[1], origin, area(m[2], m[3]), at)
	}
	for _, m := range addressPattern.FindAllString(text, -1) {
		for _, a := range imageAddresses(m) {
			c.add(a, origin, 0, at)
		}
	}
	if s.paramText != nil {
		for _, m := range s.paramText.FindAllStringSubmatch(text, -1) {
			v, err := url.QueryUnescape(m[1])
			if err != nil {
				continue
			}
			c.add(v, OriginAnchorParameter, 0, at)
		}
	}
	return c.items
}

// ScanAnchor extracts image addresses carried as named query parameters on
// an anchor target, then any address the target itself spells out.
func (s *Scanner) ScanAnchor(href string, at time.Time) []Candidate {
	href = strings.TrimSpace(Decode(href))
	if href == "" {
		return nil
	}

	var c collector
	if u, err := url.Parse(href); err == nil {
		q := u.Query()
		for _, name := range s.params {
			for key, values := range q {
				if !strings.EqualFold(key, name) {
					continue
				}
				for _, v := range values {
					c.add(v, OriginAnchorParameter, 0, at)
				}
			}
		}
	}
	c.merge(s.ScanText(href, OriginFallbackScan, at))
	return c.items
}

// imageAddresses splits a run of address characters at every embedded
// scheme and keeps the pieces whose path ends in an image extension. An
// extension in the host name or in an inner segment does not count.
func imageAddresses(run string) []string {
	var out []string
	starts := schemePattern.FindAllStringIndex(run, -1)
	bounds := []int{0}
	for _, loc := range starts {
		if loc[0] > 0 {
			bounds = append(bounds, loc[0])
		}
	}
	bounds = append(bounds, len(run))
	for i := 0; i+1 < len(bounds); i++ {
		if a, ok := imageAddress(run[bounds[i]:bounds[i+1]]); ok {
			out = append(out, a)
		}
	}
	return out
}

func imageAddress(piece string) (string, bool) {
	piece = strings.TrimRight(piece, ".,;:)")
	if hasImagePath(piece) {
		return piece, true
	}
	locs := extensionEnd.FindAllStringIndex(piece, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		prefix := piece[:locs[i][1]-1]
		if hasImagePath(prefix) {
			return prefix, true
		}
	}
	return "", false
}

func hasImagePath(raw string) bool {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return imageSuffix.MatchString(u.Path)
}

// ScanHTML walks a markup fragment and classifies every address it finds by
// where it sits: image sources, lazily populated attributes, anchor
// parameters, inline scripts, and anything else as a fallback.
func (s *Scanner) ScanHTML(fragment string, at time.Time) []Candidate {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	var c collector
	doc.Find("*").Each(func(_ int, el *goquery.Selection) {
		node := el.Get(0)
		switch node.Data {
		case "script":
			c.merge(s.ScanText(el.Text(), OriginInlineScript, at))
			return
		case "style":
			c.merge(s.ScanText(el.Text(), OriginFallbackScan, at))
			return
		}

		preview := s.inPreview(el)
		size := 0
		if node.Data == "img" {
			size = dimensions(el)
		}

		for _, a := range node.Attr {
			key := strings.ToLower(a.Key)
			switch {
			case node.Data == "img" && key == "src":
				s.addSource(&c, a.Val, pick(preview, OriginPreviewImage, OriginInlineAttribute), size, at)
			case s.lazy[key]:
				s.addSource(&c, a.Val, pick(preview, OriginPreviewImage, OriginLazyAttribute), size, at)
			case node.Data == "a" && key == "href":
				c.merge(s.ScanAnchor(a.Val, at))
			case mayHoldAddress(a.Val):
				c.merge(s.ScanText(a.Val, OriginFallbackScan, at))
			}
		}

		for ch := node.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type == html.TextNode && mayHoldAddress(ch.Data) {
				c.merge(s.ScanText(ch.Data, OriginFallbackScan, at))
			}
		}
	})
	return c.items
}

// addSource handles attributes that hold an address directly, a srcset list,
// or failing both, free text.
func (s *Scanner) addSource(c *collector, val string, origin Origin, size int, at time.Time) {
	val = strings.TrimSpace(Decode(val))
	if val == "" {
		return
	}
	if c.add(val, origin, size, at) {
		return
	}

	added := false
	for _, part := range strings.Split(val, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if c.add(fields[0], origin, size, at) {
			added = true
		}
	}
	if !added {
		c.merge(s.ScanText(val, origin, at))
	}
}

func (s *Scanner) inPreview(el *goquery.Selection) bool {
	if s.preview == nil {
		return false
	}
	return el.ClosestMatcher(s.preview).Length() > 0
}

// dimensions reads declared or original size attributes.
func dimensions(el *goquery.Selection) int {
	best := 0
	for _, pair := range [][2]string{{"width", "height"}, {"data-ow", "data-oh"}} {
		w, _ := el.Attr(pair[0])
		h, _ := el.Attr(pair[1])
		if a := area(w, h); a > best {
			best = a
		}
	}
	return best
}

func area(w, h string) int {
	wi, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(w), "px"))
	if err != nil || wi <= 0 {
		return 0
	}
	hi, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(h), "px"))
	if err != nil || hi <= 0 {
		return 0
	}
	return wi * hi
}

func mayHoldAddress(v string) bool {
	return strings.Contains(v, "//") || strings.Contains(v, `\/\/`) || strings.Contains(strings.ToLower(v), `\u002f`)
}

func pick(cond bool, yes, no Origin) Origin {
	if cond {
		return yes
	}
	return no
}

// collector keeps candidates in discovery order, one per address, with the
// largest pixel area seen for it.
type collector struct {
	index map[string]int
	items []Candidate
}

func (c *collector) add(raw string, origin Origin, size int, at time.Time) bool {
	cand, ok := New(raw, origin, size, at)
	if !ok {
		return false
	}
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, seen := c.index[cand.URL]; seen {
		if cand.PixelArea > c.items[i].PixelArea {
			c.items[i].PixelArea = cand.PixelArea
		}
		return true
	}
	c.index[cand.URL] = len(c.items)
	c.items = append(c.items, cand)
	return true
}

func (c *collector) merge(cands []Candidate) {
	for _, cand := range cands {
		c.add(cand.URL, cand.Origin, cand.PixelArea, cand.ObservedAt)
	}
}
