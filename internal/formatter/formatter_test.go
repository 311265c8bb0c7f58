package formatter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hires/internal/formatter"
	"hires/internal/output"
)

func results() *output.Results {
	r := output.NewResults("file", "", "saved.html", time.Millisecond)
	r.Add(1, "https://encrypted-tbn0.gstatic.com/images?q=tbn:a", "https://photos.example.com/a.jpg", time.Millisecond)
	return r
}

func TestFormat_EndsInOneNewline(t *testing.T) {
	for _, f := range formatter.Formats {
		t.Run(f, func(t *testing.T) {
			out, err := formatter.Format(results(), f)
			require.NoError(t, err)
			assert.Regexp(t, `[^\n]\n$`, out)
		})
	}
}

func TestFormat_CaseInsensitive(t *testing.T) {
	out, err := formatter.Format(results(), "TEXT")
	require.NoError(t, err)
	assert.Equal(t, "https://photos.example.com/a.jpg\n", out)
}

func TestFormat_Unsupported(t *testing.T) {
	_, err := formatter.Format(results(), "yaml")
	assert.ErrorContains(t, err, "unsupported output format")
	assert.False(t, formatter.Supported("yaml"))
	assert.True(t, formatter.Supported("Markdown"))
}

type failing struct{ *output.Results }

func (failing) ToCSV() (string, error) { return "", errors.New("boom") }

func TestFormat_PropagatesErrors(t *testing.T) {
	_, err := formatter.Format(failing{results()}, "csv")
	assert.EqualError(t, err, "boom")
}
