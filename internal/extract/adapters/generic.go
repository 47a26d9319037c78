package adapters

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/sourcecheck/internal/model"
)

var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	".post",
	".entry",
	"#content",
}

// GenericAdapter is the fallback adapter for any other page
type GenericAdapter struct{}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// Mode returns the generic page mode
func (a *GenericAdapter) Mode() model.PageMode {
	return model.PageModeGeneric
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(pageURL string) bool {
	return true
}

// Detect returns the first content container, or the body
func (a *GenericAdapter) Detect(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return nil
}

// Plan walks fifteen levels up and only looks at content containers and the body
// while fewer than ten URLs were found
func (a *GenericAdapter) Plan(doc *goquery.Document) Plan {
	return Plan{
		MaxDepth:          15,
		Fallbacks:         firstMatches(doc, contentSelectors),
		PageWide:          doc.Find("body").Nodes,
		FallbackThreshold: 10,
	}
}
