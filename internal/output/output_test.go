package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Results {
	r := NewResults("google", "red kites", "https://www.google.com/search?tbm=isch&q=red+kites", 1500*time.Millisecond)
	r.Add(1, "https://encrypted-tbn0.gstatic.com/images?q=tbn:a", "https://birds.example.org/kite|full.jpg", 420*time.Millisecond)
	r.Add(2, "https://encrypted-tbn0.gstatic.com/images?q=tbn:b", "", 4*time.Second)
	return r
}

func TestResults_AddFallsBackToThumbnail(t *testing.T) {
	r := sample()
	rows := r.Rows()
	require.Len(t, rows, 2)

	assert.True(t, rows[0].Resolved)
	assert.False(t, rows[1].Resolved)
	assert.Equal(t, rows[1].Thumbnail, rows[1].Original)
	assert.Equal(t, 1, r.Resolved())
}

func TestResults_ToText(t *testing.T) {
	text, err := sample().ToText()
	require.NoError(t, err)
	assert.Equal(t,
		"https://birds.example.org/kite|full.jpg\n"+
			"https://encrypted-tbn0.gstatic.com/images?q=tbn:b\t(thumbnail)\n",
		text)
}

func TestResults_ToMarkdown(t *testing.T) {
	markdown, err := sample().ToMarkdown()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(markdown, "# Original images (google): red kites"))
	assert.Contains(t, markdown, "| # | Status | Original | Thumbnail | Time |")
	assert.Contains(t, markdown, "| --- | --- | --- | --- | --- |")
	assert.Contains(t, markdown, `| 1 | resolved | https://birds.example.org/kite\|full.jpg |`)
	assert.Contains(t, markdown, "| 2 | fallback | https://encrypted-tbn0.gstatic.com/images?q=tbn:b |")
	assert.NotContains(t, markdown, "MARKDOWNTABLE")
	assert.NotContains(t, markdown, "<table")
}

func TestResults_ToHTMLEscapes(t *testing.T) {
	r := NewResults("file", "", "", 0)
	r.Add(1, "https://t.example.com/a.jpg?x=1&y=2", "https://o.example.com/<b>.jpg", 0)

	out, err := r.ToHTML()
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Original images (file)</h1>")
	assert.Contains(t, out, "https://o.example.com/&lt;b&gt;.jpg")
	assert.Contains(t, out, "x=1&amp;y=2")
	assert.NotContains(t, out, "Source:")
}

func TestResults_ToJSON(t *testing.T) {
	raw, err := sample().ToJSON()
	require.NoError(t, err)

	var got struct {
		Site     string `json:"site"`
		Query    string `json:"query"`
		LoadTime int64  `json:"load_time"`
		Resolved int    `json:"resolved"`
		Results  []struct {
			Index     int    `json:"index"`
			Original  string `json:"original"`
			Resolved  bool   `json:"resolved"`
			ElapsedMS int64  `json:"elapsed_ms"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "google", got.Site)
	assert.Equal(t, "red kites", got.Query)
	assert.EqualValues(t, 1500, got.LoadTime)
	assert.Equal(t, 1, got.Resolved)
	require.Len(t, got.Results, 2)
	assert.EqualValues(t, 420, got.Results[0].ElapsedMS)
	assert.False(t, got.Results[1].Resolved)
}

func TestResults_ToCSV(t *testing.T) {
	out, err := sample().ToCSV()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Index,Resolved,Original,Thumbnail,ElapsedMS", lines[0])
	assert.Equal(t, "1,true,https://birds.example.org/kite|full.jpg,https://encrypted-tbn0.gstatic.com/images?q=tbn:a,420", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2,false,"))
}

func TestConvertTablesInHTML_LeavesOtherMarkup(t *testing.T) {
	out, tables := convertTablesInHTML(`<p>intro</p><table><tr><td>a</td><td>b</td></tr><tr><td>1</td><td>2</td></tr></table>`)
	require.Len(t, tables, 1)
	assert.Equal(t, "<p>intro</p><p>MARKDOWNTABLE0</p>", out)
	assert.Equal(t, "| a | b |\n| --- | --- |\n| 1 | 2 |\n", tables[0])

	out, tables = convertTablesInHTML(`<table></table>`)
	assert.Empty(t, tables)
	assert.Equal(t, `<table></table>`, out)
}
