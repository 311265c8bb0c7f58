package candidate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	unicodeEscape = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)
	hexEscape     = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)

	slashQuoteEscapes = strings.NewReplacer(`\/`, `/`, `\"`, `"`, `\'`, `'`)

	// Only the entities that show up inside serialized addresses. A full
	// HTML unescape would turn query keys such as "&copy=" into symbols.
	entityEscapes = strings.NewReplacer(
		"&amp;", "&",
		"&quot;", `"`,
		"&#34;", `"`,
		"&#39;", "'",
		"&#x27;", "'",
		"&#x2F;", "/",
		"&#x2f;", "/",
		"&#47;", "/",
		"&lt;", "<",
		"&gt;", ">",
	)
)

// Decode undoes the escape encodings host pages use when they embed
// addresses in attributes and script payloads: \uXXXX, \xXX, \/ and \",
// and the common HTML entities. Nested escaping is peeled up to three times.
// Sequences that are not valid escapes are left as they are.
func Decode(s string) string {
	for i := 0; i < 3; i++ {
		next := decodeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func decodeOnce(s string) string {
	if strings.Contains(s, `\u`) {
		s = unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
			v, err := strconv.ParseUint(m[2:], 16, 32)
			if err != nil {
				return m
			}
			return string(rune(v))
		})
	}
	if strings.Contains(s, `\x`) {
		s = hexEscape.ReplaceAllStringFunc(s, func(m string) string {
			v, err := strconv.ParseUint(m[2:], 16, 8)
			if err != nil {
				return m
			}
			return string(rune(v))
		})
	}
	if strings.Contains(s, `\`) {
		s = slashQuoteEscapes.Replace(s)
	}
	if strings.Contains(s, "&") {
		s = entityEscapes.Replace(s)
	}
	return s
}
