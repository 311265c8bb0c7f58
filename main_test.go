package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T) {
	t.Helper()
	outputFormat, waitFor, waitTarget = "text", "", ""
	index, count, deadline = 1, 5, 0
	saveLevel, saveSelector = "full", ""
	site, watch = "google", false
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		set     func()
		wantErr string
	}{
		{"defaults", func() {}, ""},
		{"bad format", func() { outputFormat = "yaml" }, "invalid output format"},
		{"bad strategy", func() { waitFor = "network" }, "invalid wait strategy"},
		{"element needs target", func() { waitFor = "element" }, "--wait-target is required"},
		{"time with target", func() { waitFor, waitTarget = "time", "500" }, ""},
		{"idle", func() { waitFor = "idle" }, ""},
		{"zero index", func() { index = 0 }, "--index"},
		{"negative count", func() { count = -1 }, "--count"},
		{"all thumbnails", func() { count = 0 }, ""},
		{"negative deadline", func() { deadline = -time.Second }, "--deadline"},
		{"bad save level", func() { saveLevel = "body" }, "invalid save level"},
		{"css save needs selector", func() { saveLevel = "css" }, "--save-selector"},
		{"watch offline", func() { site, watch = "file", true }, "--watch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			tt.set()
			err := validateFlags()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
	resetFlags(t)
}

func TestInferFormatFromExtension(t *testing.T) {
	assert.Equal(t, "markdown", inferFormatFromExtension("out.MD"))
	assert.Equal(t, "csv", inferFormatFromExtension("/tmp/kites.csv"))
	assert.Equal(t, "html", inferFormatFromExtension("a.htm"))
	assert.Equal(t, "", inferFormatFromExtension("noext"))
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders([]string{"Accept-Language: de-DE,de;q=0.9", "broken", ": empty", "X-A:b:c"})
	assert.Equal(t, map[string]string{
		"Accept-Language": "de-DE,de;q=0.9",
		"X-A":             "b:c",
	}, got)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.Timing.Deadline)

	path := filepath.Join(t.TempDir(), "hires.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timing:\n  deadline: 2s\n"), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Timing.Deadline)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")
}
