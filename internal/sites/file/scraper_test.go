package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hires/internal/output"
	"hires/internal/scraper"
)

const savedPage = `<!DOCTYPE html>
<html><body>
<div id="islrg">
  <div data-ri="0">
    <a href="/imgres?imgurl=https%3A%2F%2Fphotos.example.com%2Falps%2Fmatterhorn-dawn.jpg&amp;tbnid=x">
      <img src="https://encrypted-tbn0.gstatic.com/images?q=tbn:one" width="180" height="120">
    </a>
  </div>
  <div data-ri="1">
    <a href="#"><img data-src="https://encrypted-tbn0.gstatic.com/images?q=tbn:two" width="180" height="120"></a>
  </div>
  <div data-ri="2">
    <a href="/imgres?imgurl=https%3A%2F%2Fcdn.example.net%2Fimages%2Flake.png%3Fw%3D400%26h%3D300"><img src="https://encrypted-tbn0.gstatic.com/images?q=tbn:three"></a>
  </div>
</div>
</body></html>`

func save(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.html")
	require.NoError(t, os.WriteFile(path, []byte(savedPage), 0o644))
	return path
}

func rows(t *testing.T, c scraper.Content) []output.Row {
	t.Helper()
	r, ok := c.(*output.Results)
	require.True(t, ok)
	return r.Rows()
}

func TestFileScraper_ResolvesSavedPage(t *testing.T) {
	content, err := (&FileScraper{}).Scrape(context.Background(), save(t), scraper.Options{Index: 1})
	require.NoError(t, err)

	got := rows(t, content)
	require.Len(t, got, 3)

	assert.True(t, got[0].Resolved)
	assert.Equal(t, "https://photos.example.com/alps/matterhorn-dawn.jpg", got[0].Original)

	assert.False(t, got[1].Resolved)
	assert.Equal(t, "https://encrypted-tbn0.gstatic.com/images?q=tbn:two", got[1].Original)

	assert.True(t, got[2].Resolved)
	assert.Equal(t, "https://cdn.example.net/images/lake.png", got[2].Original)
}

func TestFileScraper_Window(t *testing.T) {
	content, err := (&FileScraper{}).Scrape(context.Background(), save(t), scraper.Options{Index: 2, Count: 1})
	require.NoError(t, err)

	got := rows(t, content)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Index)
}

func TestFileScraper_Errors(t *testing.T) {
	s := &FileScraper{}
	ctx := context.Background()

	_, err := s.Scrape(ctx, "", scraper.Options{})
	assert.Error(t, err)

	_, err = s.Scrape(ctx, filepath.Join(t.TempDir(), "missing.html"), scraper.Options{})
	assert.Error(t, err)

	_, err = s.Scrape(ctx, save(t), scraper.Options{Selector: "img.nothing"})
	assert.ErrorContains(t, err, "no thumbnails matched")
}
