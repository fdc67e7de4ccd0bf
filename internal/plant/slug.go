package plant

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks after canonical decomposition, so
// accented letters fold to their ASCII base ("Monstera deliciosa Borsigiana"
// survives, "Fougère" becomes "fougere").
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify normalizes free text into a lowercase identifier: diacritics are
// stripped, any run of non-alphanumeric characters collapses to a single
// underscore, and leading/trailing underscores are trimmed.
func Slugify(s string) string {
	return SlugifyWithSeparator(s, "_")
}

// SlugifyWithSeparator is Slugify with a caller-chosen separator. The image
// fetcher uses a space separator when deriving filenames.
func SlugifyWithSeparator(s, sep string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteString(sep)
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
