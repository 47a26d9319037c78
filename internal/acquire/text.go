package acquire

import (
	"bytes"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ppiankov/sourcecheck/internal/model"
	"golang.org/x/net/html"
)

// Extraction modes
const (
	ExtractPlain       = "plain"
	ExtractReadability = "readability"
)

var hiddenElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// StripMarkup reduces an HTML document to its visible text: hidden elements and
// comments are dropped, entities decoded, whitespace collapsed, and the result
// cut to maxChars runes (no cut when maxChars <= 0).
func StripMarkup(body []byte, maxChars int) string {
	z := html.NewTokenizer(bytes.NewReader(body))

	var buf strings.Builder
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return finishText(buf.String(), maxChars)

		case html.StartTagToken:
			name, _ := z.TagName()
			if hiddenElements[string(name)] {
				hidden++
			}
			buf.WriteByte(' ')

		case html.EndTagToken:
			name, _ := z.TagName()
			if hiddenElements[string(name)] && hidden > 0 {
				hidden--
			}
			buf.WriteByte(' ')

		case html.SelfClosingTagToken:
			buf.WriteByte(' ')

		case html.TextToken:
			if hidden == 0 {
				buf.Write(z.Text())
			}
		}
	}
}

// Readable extracts the main article text, falling back to StripMarkup when no
// article can be found
func Readable(body []byte, pageURL string, maxChars int) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return StripMarkup(body, maxChars)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return StripMarkup(body, maxChars)
	}
	return finishText(article.TextContent, maxChars)
}

// PlainText normalizes a non-HTML body
func PlainText(body []byte, maxChars int) string {
	return finishText(string(body), maxChars)
}

func finishText(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars > 0 {
		text = model.TruncateRunes(text, maxChars)
	}
	return text
}
