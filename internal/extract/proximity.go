package extract

import "golang.org/x/net/html"

// DefaultLimit caps how many URLs a prioritization returns
const DefaultLimit = 25

// PriorityOptions controls how far and wide URLs are collected around a selection
type PriorityOptions struct {
	MaxDepth int // ancestor levels visited, the anchor counting as the first
	Limit    int // zero means DefaultLimit

	// Fallbacks are containers consulted after the ancestor walk, in order.
	Fallbacks []*html.Node
	// PageWide regions are consulted last.
	PageWide []*html.Node
	// FallbackThreshold skips fallbacks and page-wide regions once this many URLs
	// are collected. Zero means Limit.
	FallbackThreshold int
}

// Prioritize orders URLs by proximity to anchor: links in closer ancestors come first,
// then those in fallback containers, then page-wide ones. URLs are deduplicated across
// all stages through ex.
func Prioritize(ex *Extractor, anchor *html.Node, opts PriorityOptions) []string {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	threshold := opts.FallbackThreshold
	if threshold <= 0 || threshold > limit {
		threshold = limit
	}

	urls := make([]string, 0, limit)

	depth := 0
	for n := anchor; n != nil && depth < opts.MaxDepth && len(urls) < limit; n = n.Parent {
		if n.Type == html.ElementNode {
			urls = append(urls, ex.FromNode(n)...)
		}
		depth++
	}

	for _, group := range [][]*html.Node{opts.Fallbacks, opts.PageWide} {
		for _, container := range group {
			if len(urls) >= threshold {
				break
			}
			urls = append(urls, ex.FromNode(container)...)
		}
	}

	if len(urls) > limit {
		urls = urls[:limit]
	}
	return urls
}

// Collect gathers URLs from containers in order, capped at limit
func Collect(ex *Extractor, containers []*html.Node, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	urls := make([]string, 0, limit)
	for _, c := range containers {
		if len(urls) >= limit {
			break
		}
		urls = append(urls, ex.FromNode(c)...)
	}

	if len(urls) > limit {
		urls = urls[:limit]
	}
	return urls
}
