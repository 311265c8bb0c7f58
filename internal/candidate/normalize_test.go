package candidate_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hires/internal/candidate"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"equals size suffix", "https://img.example.com/photo=w400-h300", "https://img.example.com/photo"},
		{"equals single size", "https://lh3.googleusercontent.com/abc123=s1600-rw", "https://lh3.googleusercontent.com/abc123"},
		{"size segment", "https://cdn.example.com/img/w1200-h800/", "https://cdn.example.com/img"},
		{"trailing size params", "https://cdn.example.com/pic.jpg?id=7&w=300&h=200", "https://cdn.example.com/pic.jpg?id=7"},
		{"only size params", "https://cdn.example.com/pic.jpg?w=300", "https://cdn.example.com/pic.jpg"},
		{"keeps fragment", "https://cdn.example.com/photo=s800#top", "https://cdn.example.com/photo#top"},
		{"non size value", "https://cdn.example.com/pic.jpg?size=large", "https://cdn.example.com/pic.jpg?size=large"},
		{"size param not trailing", "https://cdn.example.com/pic.jpg?w=300&id=7", "https://cdn.example.com/pic.jpg?w=300&id=7"},
		{"plain address", "https://cdn.example.com/gallery/2024/full-res-sunset.jpg", "https://cdn.example.com/gallery/2024/full-res-sunset.jpg"},
		{"host only", "https://w400.example.com", "https://w400.example.com"},
		{"relative", "photo=w400", "photo=w400"},
		{"garbage", "::::", "::::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, candidate.Normalize(tt.in))
		})
	}
}

func TestNormalize_IdempotentAndHostPreserving(t *testing.T) {
	inputs := []string{
		"https://img.example.com/photo=w400-h300",
		"https://img.example.com/photo=w400-h300?w=10&h=10",
		"https://img.example.com/a/s1600/b=s100-c#frag",
		"https://cdn.example.com/img/w1200-h800/",
		"http://cdn.example.com/pic.jpg?id=7&sz=640",
		"https://cdn.example.com/gallery/2024/full-res-sunset.jpg",
		"https://example.com/=w400",
	}

	for _, in := range inputs {
		once := candidate.Normalize(in)
		assert.Equal(t, once, candidate.Normalize(once), in)

		before, err := url.Parse(in)
		require.NoError(t, err)
		after, err := url.Parse(once)
		require.NoError(t, err)
		assert.Equal(t, before.Scheme, after.Scheme, in)
		assert.Equal(t, before.Host, after.Host, in)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`https:\/\/a.example.com\/x.jpg`, "https://a.example.com/x.jpg"},
		{`https://a.example.com/x.jpg?a=1&b=2`, "https://a.example.com/x.jpg?a=1&b=2"},
		{`https://a.example.com/x.jpg?a=1&amp;b=2`, "https://a.example.com/x.jpg?a=1&b=2"},
		{`https:\u002F\u002Fa.example.com`, "https://a.example.com"},
		{`https:\\u002F\\u002Fa.example.com`, "https://a.example.com"},
		{`\x3d\x`, `=\x`},
		{`&copy=1`, `&copy=1`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, candidate.Decode(tt.in), tt.in)
	}
}
