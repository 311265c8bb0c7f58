package candidate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hires/internal/candidate"
)

var at = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newScanner(t *testing.T) *candidate.Scanner {
	t.Helper()
	s, err := candidate.NewScanner(candidate.Rules{
		LazyAttributes:   []string{"data-src", "data-iurl", "srcset"},
		AnchorParams:     []string{"imgurl", "mediaurl"},
		PreviewSelectors: []string{"#preview", "[data-preview]"},
	})
	require.NoError(t, err)
	return s
}

func urls(cands []candidate.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.URL)
	}
	return out
}

func TestScanText_AttributeStringYieldsBothAddresses(t *testing.T) {
	s := newScanner(t)
	payload := `...https://gstatic.com/x.jpg...https://cdn.example.com/gallery/2024/full-res-sunset.jpg...`

	got := s.ScanText(payload, candidate.OriginInlineAttribute, at)

	assert.Equal(t, []string{
		"https://gstatic.com/x.jpg",
		"https://cdn.example.com/gallery/2024/full-res-sunset.jpg",
	}, urls(got))
	for _, c := range got {
		assert.Equal(t, candidate.OriginInlineAttribute, c.Origin)
		assert.Equal(t, at, c.ObservedAt)
	}
}

func TestScanText_ArrayPatternCarriesPixelArea(t *testing.T) {
	s := newScanner(t)
	payload := `AF_initDataCallback({data:[["https://cdn.example.com/a.jpg",1200,800],["https://cdn.example.com/b.jpg",300,200]]});`

	got := s.ScanText(payload, candidate.OriginInlineScript, at)

	require.Len(t, got, 2)
	assert.Equal(t, "https://cdn.example.com/a.jpg", got[0].URL)
	assert.Equal(t, 960000, got[0].PixelArea)
	assert.Equal(t, "https://cdn.example.com/b.jpg", got[1].URL)
	assert.Equal(t, 60000, got[1].PixelArea)
}

func TestScanText_DecodesEscapes(t *testing.T) {
	s := newScanner(t)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "slash escapes",
			payload: `"ou":"https:\/\/images.example.org\/2023\/photo.png"`,
			want:    "https://images.example.org/2023/photo.png",
		},
		{
			name:    "unicode escapes",
			payload: `https:\u002F\u002Fimages.example.org\u002Fwide.webp?v\u003d2`,
			want:    "https://images.example.org/wide.webp?v=2",
		},
		{
			name:    "hex escapes",
			payload: `https://images.example.org/photo.jpeg?a\x3d1`,
			want:    "https://images.example.org/photo.jpeg?a=1",
		},
		{
			name:    "protocol relative",
			payload: `background:url(//static.example.net/bg.gif)`,
			want:    "https://static.example.net/bg.gif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ScanText(tt.payload, candidate.OriginInlineScript, at)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want, got[0].URL)
		})
	}
}

func TestScanText_ExtensionOnlyCountsAtEndOfPath(t *testing.T) {
	s := newScanner(t)

	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{
			name:    "extension in host name",
			payload: `"https://www.pngall.com/wp-content/uploads/2016/04/Sunset-PNG-File.png"`,
			want:    []string{"https://www.pngall.com/wp-content/uploads/2016/04/Sunset-PNG-File.png"},
		},
		{
			name:    "extension in subdomain",
			payload: `src=https://png.pngtree.com/thumb_back/fw800/background/mountain.jpg alt`,
			want:    []string{"https://png.pngtree.com/thumb_back/fw800/background/mountain.jpg"},
		},
		{
			name:    "extension inside a segment",
			payload: `https://cdn.example.com/photo.jpgx/real/full-res.jpg`,
			want:    []string{"https://cdn.example.com/photo.jpgx/real/full-res.jpg"},
		},
		{
			name:    "query after extension",
			payload: `'https://img.example.com/a.gif.cache/b.webp?w=1200#top'`,
			want:    []string{"https://img.example.com/a.gif.cache/b.webp?w=1200#top"},
		},
		{
			name:    "css declaration runs on",
			payload: `background:url(//static.example.net/bg.gif);color:red`,
			want:    []string{"https://static.example.net/bg.gif"},
		},
		{
			name:    "no image path",
			payload: `https://www.pngall.com/category/landscapes/ and https://cdn.example.com/photo.jpgx/`,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ScanText(tt.payload, candidate.OriginFallbackScan, at)
			assert.Equal(t, tt.want, urls(got))
		})
	}
}

func TestScanText_ImageParameter(t *testing.T) {
	s := newScanner(t)
	payload := `/imgres?imgurl=https%3A%2F%2Fphotos.example.com%2Fraw%2Fimage&amp;imgrefurl=https%3A%2F%2Fexample.com`

	got := s.ScanText(payload, candidate.OriginInlineScript, at)

	require.Len(t, got, 1)
	assert.Equal(t, "https://photos.example.com/raw/image", got[0].URL)
	assert.Equal(t, candidate.OriginAnchorParameter, got[0].Origin)
}

func TestScanText_MalformedInputYieldsNothing(t *testing.T) {
	s := newScanner(t)

	for _, payload := range []string{
		"",
		"   ",
		`\uZZZZ\x`,
		`["https://",abc,def]`,
		"imgurl=%zz",
		"no addresses here at all",
	} {
		assert.Empty(t, s.ScanText(payload, candidate.OriginInlineScript, at), payload)
	}
}

func TestScanAnchor(t *testing.T) {
	s := newScanner(t)

	got := s.ScanAnchor("/imgres?imgurl=https%3A%2F%2Fwww.example.com%2Fimages%2Fbig.jpg&imgrefurl=https%3A%2F%2Fwww.example.com%2Fpage&h=1080&w=1920", at)

	require.NotEmpty(t, got)
	assert.Equal(t, "https://www.example.com/images/big.jpg", got[0].URL)
	assert.Equal(t, candidate.OriginAnchorParameter, got[0].Origin)
}

func TestScanHTML_ClassifiesOrigins(t *testing.T) {
	s := newScanner(t)
	fragment := `
<div data-id="r1">
  <a href="/imgres?imgurl=https%3A%2F%2Forigin.example.com%2Ffull%2Fimage-0001.jpg">
    <img src="https://encrypted-tbn0.gstatic.com/images?q=tbn:abc" data-iurl="https://lazy.example.com/pictures/late.jpg" width="180" height="120">
  </a>
  <div data-meta='{"u":"https:\/\/meta.example.com\/m.png"}'></div>
  <script>var d = ["https://script.example.com/s.jpg",640,480];</script>
  <div id="preview"><img src="https://preview.example.com/open.jpg"></div>
</div>`

	got := s.ScanHTML(fragment, at)

	byURL := map[string]candidate.Candidate{}
	for _, c := range got {
		byURL[c.URL] = c
	}

	tests := []struct {
		url    string
		origin candidate.Origin
		area   int
	}{
		{"https://origin.example.com/full/image-0001.jpg", candidate.OriginAnchorParameter, 0},
		{"https://encrypted-tbn0.gstatic.com/images?q=tbn:abc", candidate.OriginInlineAttribute, 21600},
		{"https://lazy.example.com/pictures/late.jpg", candidate.OriginLazyAttribute, 21600},
		{"https://meta.example.com/m.png", candidate.OriginFallbackScan, 0},
		{"https://script.example.com/s.jpg", candidate.OriginInlineScript, 307200},
		{"https://preview.example.com/open.jpg", candidate.OriginPreviewImage, 0},
	}
	for _, tt := range tests {
		c, ok := byURL[tt.url]
		if assert.True(t, ok, "missing %s", tt.url) {
			assert.Equal(t, tt.origin, c.Origin, tt.url)
			assert.Equal(t, tt.area, c.PixelArea, tt.url)
		}
	}
}

func TestScanHTML_SrcsetAndDuplicates(t *testing.T) {
	s := newScanner(t)
	fragment := `<img srcset="https://img.example.com/a-small.jpg 1x, https://img.example.com/a-large.jpg 2x">
<img src="https://img.example.com/a-large.jpg" width="1000" height="800">`

	got := s.ScanHTML(fragment, at)

	assert.Equal(t, []string{
		"https://img.example.com/a-small.jpg",
		"https://img.example.com/a-large.jpg",
	}, urls(got))
	assert.Equal(t, 800000, got[1].PixelArea, "duplicate keeps largest area")
}

func TestScanHTML_Garbage(t *testing.T) {
	s := newScanner(t)
	assert.Empty(t, s.ScanHTML("", at))
	assert.Empty(t, s.ScanHTML("<<<>>>&&&", at))
	assert.Empty(t, s.ScanHTML(`<img src="/relative/only.jpg">`, at))
}

func TestNewScanner_InvalidPreviewSelector(t *testing.T) {
	_, err := candidate.NewScanner(candidate.Rules{PreviewSelectors: []string{"div[[["}})
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	_, ok := candidate.New("not a url", candidate.OriginFallbackScan, 0, at)
	assert.False(t, ok)

	_, ok = candidate.New("/relative.jpg", candidate.OriginFallbackScan, 0, at)
	assert.False(t, ok)

	c, ok := candidate.New("//cdn.example.com/x.jpg", candidate.OriginFallbackScan, -5, at)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/x.jpg", c.URL)
	assert.Zero(t, c.PixelArea)

	moved := c.WithURL("https://cdn.example.com/y.jpg")
	assert.Equal(t, "https://cdn.example.com/x.jpg", c.URL)
	assert.Equal(t, "https://cdn.example.com/y.jpg", moved.URL)
}
