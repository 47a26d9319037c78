package verify

import (
	"unicode/utf8"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// allocate splits total runes across texts. Each text first gets an even share of
// what is left; a text shorter than its share leaves the remainder to the texts
// after it.
func allocate(texts []string, total int) []int {
	shares := make([]int, len(texts))
	remaining := total
	for i, text := range texts {
		if remaining <= 0 {
			break
		}
		share := remaining / (len(texts) - i)
		if n := utf8.RuneCountInString(text); n < share {
			share = n
		}
		shares[i] = share
		remaining -= share
	}
	return shares
}

// budgetSources truncates source contents to fit the aggregate budget
func budgetSources(sources []model.SourceDocument, total int) []model.SourceDocument {
	texts := make([]string, len(sources))
	for i, s := range sources {
		texts[i] = s.Content
	}

	shares := allocate(texts, total)
	out := make([]model.SourceDocument, len(sources))
	for i, s := range sources {
		s.Content = model.TruncateRunes(s.Content, shares[i])
		out[i] = s
	}
	return out
}
