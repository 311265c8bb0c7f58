package formatter

import (
	"fmt"
	"strings"

	"hires/internal/scraper"
)

// Formats lists the accepted format names.
var Formats = []string{"text", "html", "markdown", "json", "csv"}

// Supported reports whether format names a known format.
func Supported(format string) bool {
	for _, f := range Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// Format renders content. The result always ends in exactly one newline so
// stdout and file output look the same.
func Format(content scraper.Content, format string) (string, error) {
	var (
		out string
		err error
	)
	switch strings.ToLower(format) {
	case "html":
		out, err = content.ToHTML()
	case "text":
		out, err = content.ToText()
	case "markdown":
		out, err = content.ToMarkdown()
	case "csv":
		out, err = content.ToCSV()
	case "json":
		var b []byte
		b, err = content.ToJSON()
		out = string(b)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}
