package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenize splits text into lowercased letter/number runs with diacritics
// removed, the way the FTS5 unicode61 tokenizer does.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(foldDiacritics(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Co, r)
	})
}

// foldDiacritics decomposes text and drops combining marks ("Café" -> "Cafe").
func foldDiacritics(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

// queryTerms returns the distinct tokens of a query in first-seen order.
func queryTerms(query string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, t := range tokenize(query) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// ftsMatch builds an FTS5 expression matching any of the terms. Each term is
// quoted so user input cannot inject FTS syntax.
func ftsMatch(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
