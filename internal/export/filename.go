package export

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultTitle names downloads when the user left the title empty.
const DefaultTitle = "informe-tecnico"

// Slug folds accents and keeps [a-z0-9] separated by single dashes.
// "Informe Técnico 2025" becomes "informe-tecnico-2025".
func Slug(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// FileName is the download name for title in format.
func FileName(title, format string) string {
	s := Slug(title)
	if s == "" {
		s = DefaultTitle
	}
	return s + "." + format
}
