package extract

import (
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
	"golang.org/x/net/html"
)

// blockElements end the climb when looking for the text surrounding a selection
var blockElements = map[string]bool{
	"p": true, "li": true, "td": true, "th": true, "dd": true, "blockquote": true,
	"section": true, "article": true, "div": true, "figcaption": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// LocateSelection returns the deepest node whose visible text contains the
// selected text, comparing with collapsed whitespace and case-insensitively.
// It returns nil when the text does not occur in the document.
func LocateSelection(doc *html.Node, text string) *html.Node {
	needle := strings.ToLower(collapseSpace(text))
	if doc == nil || needle == "" {
		return nil
	}

	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && skippedElement(n.Data) {
			return false
		}
		if n.Type == html.TextNode {
			if strings.Contains(strings.ToLower(collapseSpace(n.Data)), needle) {
				found = n
				return true
			}
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		if strings.Contains(strings.ToLower(collapseSpace(extractVisibleText(n))), needle) {
			found = n
			return true
		}
		return false
	}
	walk(doc)

	return found
}

// SurroundingText returns the visible text of the closest block around anchor that
// holds more than the selection itself, cut to model.MaxContextChars runes.
func SurroundingText(anchor *html.Node, selection string) string {
	if anchor == nil {
		return ""
	}

	selected := collapseSpace(selection)
	var text string
	for n := anchor; n != nil; n = n.Parent {
		if n.Type != html.ElementNode && n.Type != html.TextNode {
			continue
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			break
		}
		candidate := collapseSpace(extractVisibleText(n))
		if candidate == "" {
			continue
		}
		text = candidate
		if n.Type == html.ElementNode && blockElements[n.Data] && len(candidate) > len(selected) {
			break
		}
	}

	return model.TruncateRunes(text, model.MaxContextChars)
}

// VisibleText returns the visible text under n with whitespace collapsed
func VisibleText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return collapseSpace(extractVisibleText(n))
}

// extractVisibleText extracts text nodes from HTML, skipping scripts/styles
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElement(n.Data) {
			return
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

func skippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "template":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
