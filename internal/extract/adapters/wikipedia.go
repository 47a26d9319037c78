package adapters

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/sourcecheck/internal/model"
)

// WikipediaAdapter resolves footnote markers on Wikipedia articles to the
// external links of the cited references
type WikipediaAdapter struct{}

// NewWikipediaAdapter creates a new Wikipedia adapter
func NewWikipediaAdapter() *WikipediaAdapter {
	return &WikipediaAdapter{}
}

// Name returns the adapter name
func (a *WikipediaAdapter) Name() string {
	return "wikipedia"
}

// Mode returns the generic page mode
func (a *WikipediaAdapter) Mode() model.PageMode {
	return model.PageModeGeneric
}

// CanHandle checks if this is a Wikipedia URL
func (a *WikipediaAdapter) CanHandle(pageURL string) bool {
	host := hostOf(pageURL)
	return host == "wikipedia.org" || strings.HasSuffix(host, ".wikipedia.org")
}

// Detect returns the article body
func (a *WikipediaAdapter) Detect(doc *goquery.Document) *goquery.Selection {
	content := doc.Find(".mw-parser-output").First()
	if content.Length() == 0 {
		content = doc.Find("#mw-content-text").First()
	}
	if content.Length() == 0 {
		return nil
	}
	return content
}

// Plan walks like a generic page but expands citation markers in place, so the
// references nearest the selection come first
func (a *WikipediaAdapter) Plan(doc *goquery.Document) Plan {
	plan := Plan{
		MaxDepth:          15,
		PageWide:          doc.Find("ol.references").Nodes,
		FallbackThreshold: 10,
		ExcludeHosts:      []string{"wikipedia.org", "wikimedia.org", "wikidata.org", "mediawiki.org"},
		ResolveFragment: func(id string) []string {
			return citationLinks(doc, id)
		},
	}
	if content := a.Detect(doc); content != nil {
		plan.Fallbacks = content.Nodes
	}
	return plan
}

// citationLinks returns the external links inside the reference with the given id
func citationLinks(doc *goquery.Document, id string) []string {
	if !strings.HasPrefix(id, "cite_note") {
		return nil
	}

	target := doc.Find("li[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()

	var hrefs []string
	target.Find("a.external").Each(func(_ int, link *goquery.Selection) {
		if href, ok := link.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
