package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// maxUnwrapDepth bounds nested redirector unwrapping
const maxUnwrapDepth = 5

// redirector describes a wrapping URL whose query parameter carries the real target
type redirector struct {
	host   *regexp.Regexp
	path   string
	params []string
}

var redirectors = []redirector{
	{host: regexp.MustCompile(`^(www\.)?google\.[a-z.]+$`), path: "/url", params: []string{"url", "q"}},
	{host: regexp.MustCompile(`^(l|lm)\.facebook\.com$`), path: "/l.php", params: []string{"u"}},
	{host: regexp.MustCompile(`^(html\.)?duckduckgo\.com$`), path: "/l/", params: []string{"uddg"}},
}

// noisePatterns match share, intent and auth endpoints that never hold content
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`facebook\.com/sharer`),
	regexp.MustCompile(`twitter\.com/intent`),
	regexp.MustCompile(`(^|[/.])x\.com/intent`),
	regexp.MustCompile(`linkedin\.com/share`),
	regexp.MustCompile(`pinterest\.com/pin`),
	regexp.MustCompile(`reddit\.com/submit`),
	regexp.MustCompile(`accounts\.`),
	regexp.MustCompile(`login`),
	regexp.MustCompile(`signin`),
	regexp.MustCompile(`signup`),
	regexp.MustCompile(`auth\.`),
}

// Unwrap follows known redirector URLs to their target. Anything that is not a
// redirector, or a redirector whose target cannot be recovered, is returned unchanged.
// Unwrap(Unwrap(u)) == Unwrap(u).
func Unwrap(raw string) string {
	current := raw
	for i := 0; i < maxUnwrapDepth; i++ {
		target, ok := unwrapOnce(current)
		if !ok {
			return current
		}
		current = target
	}
	return current
}

func unwrapOnce(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	for _, r := range redirectors {
		if !r.host.MatchString(host) || parsed.Path != r.path {
			continue
		}
		query := parsed.Query()
		for _, param := range r.params {
			target := strings.TrimSpace(query.Get(param))
			if target == "" {
				continue
			}
			t, err := url.Parse(target)
			if err != nil || (t.Scheme != "http" && t.Scheme != "https") || t.Host == "" {
				continue
			}
			return target, true
		}
		return "", false
	}
	return "", false
}

// IsRedirector reports whether raw matches a known redirector pattern
func IsRedirector(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, r := range redirectors {
		if r.host.MatchString(host) && parsed.Path == r.path {
			return true
		}
	}
	return false
}

// Normalize turns a raw hyperlink reference into a canonical absolute URL.
// base resolves relative references and may be nil. The boolean is false when the
// reference is rejected.
func Normalize(raw string, base *url.URL) (string, bool) {
	href := strings.TrimSpace(raw)
	if href == "" {
		return "", false
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") {
		return "", false
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}

	target := Unwrap(parsed.String())
	if target != parsed.String() {
		if parsed, err = url.Parse(target); err != nil {
			return "", false
		}
	}

	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	canonical := parsed.String()

	if isNoise(canonical) {
		return "", false
	}
	return canonical, true
}

func isNoise(u string) bool {
	lower := strings.ToLower(u)
	for _, p := range noisePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Extractor collects normalized URLs in encounter order, skipping any it has seen.
// An Extractor is not safe for concurrent use.
type Extractor struct {
	base         *url.URL
	seen         map[string]struct{}
	excludeHosts []string

	// ResolveFragment, when set, expands an in-page reference ("#cite_note-3")
	// into the hrefs found at its target, e.g. a footnote's external links.
	ResolveFragment func(id string) []string
}

// NewExtractor creates an extractor resolving relative references against baseURL
func NewExtractor(baseURL string) *Extractor {
	e := &Extractor{seen: make(map[string]struct{})}
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil && parsed.IsAbs() {
			e.base = parsed
		}
	}
	return e
}

// ExcludeHosts drops URLs whose host is, or is a subdomain of, any given host
func (e *Extractor) ExcludeHosts(hosts ...string) {
	e.excludeHosts = append(e.excludeHosts, hosts...)
}

// Add normalizes raw and records it. It returns the canonical URL and true only
// the first time a URL is seen.
func (e *Extractor) Add(raw string) (string, bool) {
	normalized, ok := Normalize(raw, e.base)
	if !ok || e.excluded(normalized) {
		return "", false
	}
	if _, dup := e.seen[normalized]; dup {
		return "", false
	}
	e.seen[normalized] = struct{}{}
	return normalized, true
}

// Len returns how many distinct URLs have been collected
func (e *Extractor) Len() int {
	return len(e.seen)
}

// FromStrings adds each raw reference in order and returns the new ones
func (e *Extractor) FromStrings(raws []string) []string {
	var urls []string
	for _, raw := range raws {
		if u, ok := e.Add(raw); ok {
			urls = append(urls, u)
		}
	}
	return urls
}

// FromNode collects hrefs of every <a> under n (n included) in document order
func (e *Extractor) FromNode(n *html.Node) []string {
	if n == nil {
		return nil
	}

	var urls []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			urls = append(urls, e.fromAnchor(node)...)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return urls
}

func (e *Extractor) fromAnchor(a *html.Node) []string {
	href := attr(a, "href")
	if href == "" {
		return nil
	}
	if strings.HasPrefix(href, "#") && e.ResolveFragment != nil {
		return e.FromStrings(e.ResolveFragment(strings.TrimPrefix(href, "#")))
	}
	if u, ok := e.Add(href); ok {
		return []string{u}
	}
	return nil
}

func (e *Extractor) excluded(u string) bool {
	if len(e.excludeHosts) == 0 {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return true
	}
	host := parsed.Hostname()
	for _, h := range e.excludeHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ExtractURLs normalizes and deduplicates a list of raw references
func ExtractURLs(raws []string) []string {
	urls := NewExtractor("").FromStrings(raws)
	if urls == nil {
		return []string{}
	}
	return urls
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
