package model

import "unicode/utf8"

// MaxContextChars bounds the surrounding text carried with a claim
const MaxContextChars = 2000

// Claim is the text under verification
type Claim struct {
	Text             string `json:"text"`                       // Raw selected text
	Context          string `json:"context,omitempty"`          // Surrounding document text (bounded)
	Decontextualized string `json:"decontextualized,omitempty"` // Self-contained rewrite, if any
	WasModified      bool   `json:"was_modified"`               // Whether the rewrite changed the wording
}

// NewClaim creates a claim, truncating the context to MaxContextChars runes
func NewClaim(text, context string) Claim {
	return Claim{
		Text:    text,
		Context: TruncateRunes(context, MaxContextChars),
	}
}

// Statement returns the text that should be checked against sources:
// the rewrite when one exists, otherwise the raw selection.
func (c Claim) Statement() string {
	if c.Decontextualized != "" {
		return c.Decontextualized
	}
	return c.Text
}

// TruncateRunes cuts s to at most max runes without splitting a UTF-8 sequence
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
