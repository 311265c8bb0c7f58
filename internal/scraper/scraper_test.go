package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"hires/internal/config"
)

func TestOptions_Window(t *testing.T) {
	tests := []struct {
		name         string
		index, count int
		n            int
		start, end   int
	}{
		{"first five", 1, 5, 20, 0, 5},
		{"offset", 3, 2, 20, 2, 4},
		{"count past end", 18, 5, 20, 17, 20},
		{"index past end", 30, 5, 20, 20, 20},
		{"all", 1, 0, 7, 0, 7},
		{"zero index means first", 0, 2, 7, 0, 2},
		{"empty page", 1, 5, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := Options{Index: tt.index, Count: tt.count}.Window(tt.n)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestOptions_Thumbnails(t *testing.T) {
	assert.Equal(t, config.Default().Selectors.Thumbnails, Options{}.Thumbnails())
	assert.Equal(t, "img.t", Options{Selector: "img.t"}.Thumbnails())

	cfg := config.Default()
	cfg.Selectors.Thumbnails = "div.grid img"
	assert.Equal(t, "div.grid img", Options{Config: cfg}.Thumbnails())
}

func TestOptions_LogDefaultsToNop(t *testing.T) {
	assert.NotNil(t, Options{}.Log())
}

type stub struct{ name string }

func (s stub) Name() string { return s.name }

func (stub) Scrape(_ context.Context, _ string, _ Options) (Content, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	Register(stub{name: "Stub"})
	s, ok := Get("STUB")
	assert.True(t, ok)
	assert.Equal(t, "Stub", s.Name())
	assert.Contains(t, Names(), "stub")

	_, ok = Get("missing")
	assert.False(t, ok)
}
