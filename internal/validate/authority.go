package validate

import (
	"net/url"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// AuthorityClassifier classifies sources into authority tiers
type AuthorityClassifier struct {
	domainMap    map[string]model.AuthorityTier
	primaryMap   map[string]bool
	secondaryMap map[string]bool
}

// NewAuthorityClassifier creates a new authority classifier
func NewAuthorityClassifier(cfg model.AuthorityConfig) *AuthorityClassifier {
	classifier := &AuthorityClassifier{
		domainMap:    make(map[string]model.AuthorityTier, len(cfg.DomainMap)),
		primaryMap:   make(map[string]bool, len(cfg.PrimaryDomains)),
		secondaryMap: make(map[string]bool, len(cfg.SecondaryDomains)),
	}

	for host, tier := range cfg.DomainMap {
		classifier.domainMap[normalizeHost(host)] = parseTierString(tier)
	}
	for _, domain := range cfg.PrimaryDomains {
		classifier.primaryMap[normalizeHost(domain)] = true
	}
	for _, domain := range cfg.SecondaryDomains {
		classifier.secondaryMap[normalizeHost(domain)] = true
	}

	return classifier
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return model.TierTertiary
	}
	host := normalizeHost(parsed.Hostname())

	// Explicit host mappings win
	if tier, ok := a.domainMap[host]; ok {
		return tier
	}

	// Walk up the labels so foo.nih.gov matches nih.gov
	for d := host; d != ""; d = parentDomain(d) {
		if a.primaryMap[d] {
			return model.TierPrimary
		}
		if a.secondaryMap[d] {
			return model.TierSecondary
		}
	}

	// Government and academic suffixes
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") ||
		strings.HasSuffix(host, ".ac.uk") || strings.Contains(host, ".gov.") {
		return model.TierPrimary
	}

	return model.TierTertiary
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

func parentDomain(host string) string {
	idx := strings.Index(host, ".")
	if idx < 0 {
		return ""
	}
	return host[idx+1:]
}

// parseTierString converts a tier string to AuthorityTier
func parseTierString(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}
