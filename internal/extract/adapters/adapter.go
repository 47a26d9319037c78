package adapters

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/model"
	"golang.org/x/net/html"
)

// Adapter defines how a kind of page is recognized and where its source links live
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// Mode returns the page mode reported while this adapter is active
	Mode() model.PageMode

	// CanHandle checks if this adapter can handle the given page URL
	CanHandle(pageURL string) bool

	// Detect returns the primary content region, or nil when the page does not
	// carry the content this adapter targets
	Detect(doc *goquery.Document) *goquery.Selection

	// Plan describes how URLs are gathered around a selection on doc
	Plan(doc *goquery.Document) Plan
}

// Plan holds the per-page parameters for proximity prioritization
type Plan struct {
	MaxDepth          int
	Fallbacks         []*html.Node
	PageWide          []*html.Node
	FallbackThreshold int
	ExcludeHosts      []string
	ResolveFragment   func(id string) []string
}

// Options converts the plan into prioritizer options
func (p Plan) Options(limit int) extract.PriorityOptions {
	return extract.PriorityOptions{
		MaxDepth:          p.MaxDepth,
		Limit:             limit,
		Fallbacks:         p.Fallbacks,
		PageWide:          p.PageWide,
		FallbackThreshold: p.FallbackThreshold,
	}
}

// Extractor returns a fresh extractor configured for the plan
func (p Plan) Extractor(pageURL string) *extract.Extractor {
	ex := extract.NewExtractor(pageURL)
	ex.ExcludeHosts(p.ExcludeHosts...)
	ex.ResolveFragment = p.ResolveFragment
	return ex
}

// Registry manages page adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	// Register built-in adapters
	registry.Register(NewSearchOverviewAdapter())
	registry.Register(NewWikipediaAdapter())

	// Set generic adapter as fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the best adapter for the given page URL
func (r *Registry) FindAdapter(pageURL string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(pageURL) {
			return adapter
		}
	}

	return r.generic
}

// Generic returns the fallback adapter
func (r *Registry) Generic() Adapter {
	return r.generic
}

// DetectURLs collects up to limit URLs from the adapter's primary region followed by
// its page-wide regions. The boolean is false when the region is absent.
func DetectURLs(a Adapter, doc *goquery.Document, pageURL string, limit int) ([]string, bool) {
	region := a.Detect(doc)
	if region == nil || region.Length() == 0 {
		return nil, false
	}

	plan := a.Plan(doc)
	containers := append([]*html.Node{region.Get(0)}, plan.PageWide...)
	return extract.Collect(plan.Extractor(pageURL), containers, limit), true
}

// firstMatches returns the first element for each selector, in selector order
func firstMatches(doc *goquery.Document, selectors []string) []*html.Node {
	var found []*html.Node
	for _, sel := range selectors {
		if first := doc.Find(sel).First(); first.Length() > 0 {
			found = append(found, first.Get(0))
		}
	}
	return found
}

func hostOf(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
