package model

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// SourceStatus tracks acquisition progress of a candidate source
type SourceStatus string

const (
	SourcePending  SourceStatus = "pending"
	SourceFetching SourceStatus = "fetching"
	SourceFetched  SourceStatus = "fetched"
	SourceError    SourceStatus = "error"
)

// AuthorityTier ranks how directly a source speaks for its subject
type AuthorityTier string

const (
	TierPrimary   AuthorityTier = "primary"   // Official, governmental or academic publishers
	TierSecondary AuthorityTier = "secondary" // Established news and reference works
	TierTertiary  AuthorityTier = "tertiary"  // Everything else
)

// SourceDocument is a candidate evidentiary document.
// Content is non-empty iff Status is SourceFetched.
type SourceDocument struct {
	ID       string       `json:"id"`
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Content  string       `json:"content,omitempty"`
	Status   SourceStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
	FinalURL string       `json:"final_url,omitempty"` // Post-redirect URL, when it differs

	Authority AuthorityTier `json:"authority,omitempty"`
}

// NewSourceDocument creates a pending source for a discovered URL
func NewSourceDocument(rawURL string) SourceDocument {
	return SourceDocument{
		ID:     uuid.NewString(),
		URL:    rawURL,
		Title:  TitleFromURL(rawURL),
		Status: SourcePending,
	}
}

// NewSourceDocuments creates pending sources for a URL list, preserving order
func NewSourceDocuments(urls []string) []SourceDocument {
	sources := make([]SourceDocument, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, NewSourceDocument(u))
	}
	return sources
}

// MarkFetched records successful acquisition. Empty content is recorded as an error
// so the content/status invariant holds.
func (s *SourceDocument) MarkFetched(content, finalURL string) {
	if content == "" {
		s.MarkError("empty document")
		return
	}
	s.Content = content
	s.Status = SourceFetched
	s.Error = ""
	if finalURL != s.URL {
		s.FinalURL = finalURL
	}
}

// MarkError records a failed acquisition
func (s *SourceDocument) MarkError(msg string) {
	s.Content = ""
	s.Status = SourceError
	s.Error = msg
}

// IsUsable reports whether the source can be handed to the verifier
func (s SourceDocument) IsUsable() bool {
	return s.Status == SourceFetched && s.Content != ""
}

// Summary is a one-line status description for display
func (s SourceDocument) Summary() string {
	switch s.Status {
	case SourceFetching:
		return "fetching..."
	case SourceFetched:
		return fmt.Sprintf("fetched - %dk characters", (len([]rune(s.Content))+500)/1000)
	case SourceError:
		if s.Error == "" {
			return "error - failed to fetch"
		}
		return "error - " + s.Error
	default:
		return "pending - not yet fetched"
	}
}

// TitleFromURL derives a display title from the URL host
func TitleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Hostname()
}

// CountByStatus counts sources in the given status
func CountByStatus(sources []SourceDocument, status SourceStatus) int {
	count := 0
	for _, s := range sources {
		if s.Status == status {
			count++
		}
	}
	return count
}
