package model

import (
	"net/url"
	"regexp"
	"strings"
)

// VerdictStatus is the outcome of checking a claim against its sources
type VerdictStatus string

const (
	VerdictSupported    VerdictStatus = "supported"    // Sources contain text backing the claim
	VerdictUnsupported  VerdictStatus = "unsupported"  // Sources contradict the claim
	VerdictPartial      VerdictStatus = "partial"      // Some parts supported, others not
	VerdictInconclusive VerdictStatus = "inconclusive" // Nothing relevant found
)

// VerdictStatuses lists every valid verdict, in schema order
var VerdictStatuses = []VerdictStatus{
	VerdictSupported,
	VerdictUnsupported,
	VerdictPartial,
	VerdictInconclusive,
}

// Valid reports whether v is one of the four known verdicts
func (v VerdictStatus) Valid() bool {
	for _, s := range VerdictStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Evidence is a verbatim quote and the source it was drawn from
type Evidence struct {
	Quote     string `json:"quote"`
	SourceURL string `json:"sourceUrl"`
}

// VerificationResult is the immutable outcome of one verification run
type VerificationResult struct {
	Status      VerdictStatus `json:"status"`
	Evidence    []Evidence    `json:"evidence"`
	Explanation string        `json:"explanation"`
}

// Inconclusive builds an inconclusive result with no evidence
func Inconclusive(explanation string) VerificationResult {
	return VerificationResult{
		Status:      VerdictInconclusive,
		Evidence:    []Evidence{},
		Explanation: explanation,
	}
}

const maxHighlightChars = 150

var whitespaceRun = regexp.MustCompile(`\s+`)

// HighlightURL links to the quote inside its source using a text fragment
// (`#:~:text=`), so browsers scroll to and highlight the quoted passage.
func (e Evidence) HighlightURL() string {
	base := e.SourceURL
	if idx := strings.Index(base, "#"); idx >= 0 {
		base = base[:idx]
	}

	text := whitespaceRun.ReplaceAllString(strings.TrimSpace(e.Quote), " ")
	text = TruncateRunes(text, maxHighlightChars)
	if text == "" {
		return base
	}

	// '-', ',' and '&' are fragment directive delimiters
	encoded := url.PathEscape(text)
	encoded = strings.NewReplacer("-", "%2D", ",", "%2C", "&", "%26").Replace(encoded)

	return base + "#:~:text=" + encoded
}
