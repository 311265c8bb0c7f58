package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hires/internal/scraper"
)

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://www.google.com/search?tbm=isch&q=red+kite+%26+buzzard", SearchURL("red kite & buzzard"))
}

func TestRegistered(t *testing.T) {
	s, ok := scraper.Get("Google")
	require.True(t, ok)
	assert.Equal(t, "google", s.Name())
}

func TestParseCapture(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Thumbnail
		wantErr bool
	}{
		{
			name:    "image",
			payload: `{"ref":"h12","src":"https://encrypted-tbn0.gstatic.com/images?q=tbn:abc"}`,
			want:    Thumbnail{Ref: "h12", Src: "https://encrypted-tbn0.gstatic.com/images?q=tbn:abc"},
		},
		{
			name:    "element without source",
			payload: `{"ref":"h3","src":""}`,
			want:    Thumbnail{Ref: "h3"},
		},
		{name: "no element", payload: `{"ref":"","src":"x"}`, wantErr: true},
		{name: "garbage", payload: `h12`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCapture(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The page keeps running between resolutions, so every id handed to Go
// must not pin its element.
func TestRegistryHoldsElementsWeakly(t *testing.T) {
	assert.Contains(t, registryJS, "byId.set(id, new WeakRef(el))")
	assert.Contains(t, registryJS, "held.deref()")
	assert.Contains(t, registryJS, "gone.register(el, id)")
	assert.NotContains(t, registryJS, "byId.set(id, el)")
}
