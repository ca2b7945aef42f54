package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reScript = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	reStyle  = regexp.MustCompile(`(?i)<style[^>]*>[\s\S]*?</style>`)

	stripPolicy = bluemonday.StripTagsPolicy()

	// Transformer chain to remove accents
	accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// SanitizeHTML strips HTML tags, script/style content, and decodes entities.
func SanitizeHTML(s string) string {
	// 1. Decode HTML entities first (e.g. &lt; -> <) so tags are recognized
	s = html.UnescapeString(s)

	// 2. Remove script and style blocks content
	s = reScript.ReplaceAllString(s, "")
	s = reStyle.ReplaceAllString(s, "")

	// 3. Strip tags using bluemonday
	s = stripPolicy.Sanitize(s)

	// 4. Decode entities again: bluemonday re-escapes and we want plain text
	s = html.UnescapeString(s)

	// 5. Collapse extra whitespace
	s = strings.Join(strings.Fields(s), " ")

	return s
}

// NormalizeText lowercases and folds accents so keyword matching is not
// defeated by diacritics.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return folded
}

// ToValidUTF8 cleans strings to ensure they are valid UTF-8
func ToValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
