package plant

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProperCase formats a free-text name into title case. Blank or
// whitespace-only input is returned unchanged; anything else is trimmed
// first. Applying it twice yields the same result as applying it once.
func ProperCase(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	// Casers are stateful, so build one per call rather than sharing.
	return cases.Title(language.Und).String(strings.TrimSpace(text))
}

// ProperCaseAll maps ProperCase over a list, dropping entries that are blank
// after trimming. Used for category lists.
func ProperCaseAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		out = append(out, ProperCase(item))
	}
	return out
}

// SplitCategories parses the legacy comma-separated category format into a
// clean list.
func SplitCategories(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
