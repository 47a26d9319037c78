package model

// PageMode describes what kind of page the page agent is observing
type PageMode string

const (
	PageModeAIOverview PageMode = "ai_overview" // Search page with a generated overview
	PageModeGeneric    PageMode = "generic"     // Any other page, activated on demand
	PageModeInactive   PageMode = "inactive"    // Nothing detected yet
)

// DecontextResult is a stored rewrite together with the selection it belongs to
type DecontextResult struct {
	SelectionID uint64 `json:"selection_id"`
	Text        string `json:"text"`
	WasModified bool   `json:"was_modified"`
}

// SessionState is the shared state of the current verification session.
// Writers replace the whole record; use Clone before mutating a value read from a store.
type SessionState struct {
	Version     uint64   `json:"version"`      // Bumped on every write
	SelectionID uint64   `json:"selection_id"` // Bumped on every new selection
	Detected    bool     `json:"detected"`
	Mode        PageMode `json:"mode"`
	PageURL     string   `json:"page_url,omitempty"`

	SelectedText     string           `json:"selected_text"`
	ContextText      string           `json:"context_text,omitempty"`
	Decontextualized *DecontextResult `json:"decontextualized,omitempty"`

	SourceURLs []string `json:"source_urls"`
	APIKeySet  bool     `json:"api_key_set"`
}

// DefaultSessionState returns the empty state used on tab creation and navigation
func DefaultSessionState() SessionState {
	return SessionState{
		Mode:       PageModeInactive,
		SourceURLs: []string{},
	}
}

// Clone returns a deep copy so that callers never share slices or pointers with a store
func (s SessionState) Clone() SessionState {
	out := s
	if s.SourceURLs != nil {
		out.SourceURLs = append([]string(nil), s.SourceURLs...)
	}
	if s.Decontextualized != nil {
		d := *s.Decontextualized
		out.Decontextualized = &d
	}
	return out
}

// Claim assembles the claim for the current selection, including the stored rewrite
// when it still belongs to this selection.
func (s SessionState) Claim() Claim {
	c := NewClaim(s.SelectedText, s.ContextText)
	if d := s.Decontextualized; d != nil && d.SelectionID == s.SelectionID {
		c.Decontextualized = d.Text
		c.WasModified = d.WasModified
	}
	return c
}
