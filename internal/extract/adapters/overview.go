package adapters

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/sourcecheck/internal/model"
)

// overviewMinChars is the text length a candidate region needs to count as an overview
const overviewMinChars = 100

var overviewSelectors = []string{
	`[data-attrid*="ai_overview"]`,
	`[data-sgrd="true"]`,
	`.kp-wholepage-osrp`,
	`#m-x-content`,
	`[data-async-token]`,
	`.wDYxhc[data-md]`,
}

var searchHost = regexp.MustCompile(`^(www\.)?google\.[a-z.]+$`)

// SearchOverviewAdapter handles search result pages carrying a generated overview
type SearchOverviewAdapter struct{}

// NewSearchOverviewAdapter creates a new search overview adapter
func NewSearchOverviewAdapter() *SearchOverviewAdapter {
	return &SearchOverviewAdapter{}
}

// Name returns the adapter name
func (a *SearchOverviewAdapter) Name() string {
	return "search-overview"
}

// Mode returns the AI overview page mode
func (a *SearchOverviewAdapter) Mode() model.PageMode {
	return model.PageModeAIOverview
}

// CanHandle checks if this is a search results page
func (a *SearchOverviewAdapter) CanHandle(pageURL string) bool {
	return searchHost.MatchString(hostOf(pageURL)) && strings.Contains(pageURL, "/search")
}

// Detect finds the overview region: the first known selector whose text is long
// enough, otherwise a knowledge panel headed "AI Overview". Returns nil when absent.
func (a *SearchOverviewAdapter) Detect(doc *goquery.Document) *goquery.Selection {
	for _, sel := range overviewSelectors {
		candidate := doc.Find(sel).First()
		if candidate.Length() == 0 {
			continue
		}
		if utf8.RuneCountInString(candidate.Text()) > overviewMinChars {
			return candidate
		}
	}

	var found *goquery.Selection
	doc.Find(`div[class*="kp"], div[data-attrid]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		heading := s.Find(`h2, [role="heading"]`).First()
		if strings.Contains(strings.ToLower(heading.Text()), "ai overview") {
			found = s
			return false
		}
		return true
	})
	return found
}

// Plan walks ten levels up, then the overview itself, then the result list
func (a *SearchOverviewAdapter) Plan(doc *goquery.Document) Plan {
	plan := Plan{
		MaxDepth:     10,
		PageWide:     doc.Find("#search, #rso").Nodes,
		ExcludeHosts: []string{"google.com", "gstatic.com", "googleusercontent.com"},
	}
	if overview := a.Detect(doc); overview != nil {
		plan.Fallbacks = overview.Nodes
	}
	return plan
}
