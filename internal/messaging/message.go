package messaging

import (
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/ppiankov/sourcecheck/internal/settings"
)

// Kind identifies a message type on the wire
type Kind string

const (
	KindDetection            Kind = "detection"
	KindSelection            Kind = "selection"
	KindGenericPageActivated Kind = "generic_page_activated"
	KindGetState             Kind = "get_state"
	KindSaveSettings         Kind = "save_settings"
	KindReset                Kind = "reset"
	KindFetchPage            Kind = "fetch_page"
	KindDecontextualize      Kind = "decontextualize"
	KindVerifyClaim          Kind = "verify_claim"

	KindAck                Kind = "ack"
	KindState              Kind = "state"
	KindPageContent        Kind = "page_content"
	KindDecontextualized   Kind = "decontextualized"
	KindVerificationResult Kind = "verification_result"
	KindError              Kind = "error"
)

// Message is one of the types in this file. The set is closed: only this
// package can add members.
type Message interface {
	Kind() Kind
	isMessage()
}

// Detection reports what the page agent found on a page
type Detection session.Detection

// Selection reports a new text selection
type Selection session.Selection

// GenericPageActivated switches the session to generic page mode
type GenericPageActivated struct {
	PageURL string `json:"page_url,omitempty"`
}

// GetState asks for the current session state
type GetState struct{}

// SaveSettings persists settings, most importantly the API key
type SaveSettings struct {
	Settings settings.Settings `json:"settings"`
}

// Reset restores the empty session
type Reset struct{}

// FetchPage asks for one source's text
type FetchPage struct {
	URL string `json:"url"`
}

// Decontextualize asks for a self-contained rewrite of a claim
type Decontextualize struct {
	Claim   string `json:"claim"`
	Context string `json:"context,omitempty"`
}

// VerifyClaim asks for a verdict on a claim against fetched sources
type VerifyClaim struct {
	Claim   string                 `json:"claim"`
	Sources []model.SourceDocument `json:"sources"`
}

// Ack confirms a request that has no other answer
type Ack struct{}

// State carries a session snapshot
type State struct {
	State model.SessionState `json:"state"`
}

// PageContent answers FetchPage
type PageContent struct {
	URL       string `json:"url"`
	FinalURL  string `json:"final_url"`
	Content   string `json:"content"`
	FromCache bool   `json:"from_cache"`
}

// Decontextualized answers Decontextualize
type Decontextualized struct {
	Text        string `json:"text"`
	WasModified bool   `json:"was_modified"`
}

// VerificationResult answers VerifyClaim
type VerificationResult struct {
	Result  model.VerificationResult `json:"result"`
	Dropped int                      `json:"dropped_evidence"`
}

// ErrorReply is a failed request as seen on the wire
type ErrorReply struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func (Detection) Kind() Kind { return KindDetection }
func (Selection) Kind() Kind { return KindSelection }
func (GenericPageActivated) Kind() Kind { return KindGenericPageActivated }
func (GetState) Kind() Kind { return KindGetState }
func (SaveSettings) Kind() Kind { return KindSaveSettings }
func (Reset) Kind() Kind { return KindReset }
func (FetchPage) Kind() Kind { return KindFetchPage }
func (Decontextualize) Kind() Kind { return KindDecontextualize }
func (VerifyClaim) Kind() Kind { return KindVerifyClaim }
func (Ack) Kind() Kind { return KindAck }
func (State) Kind() Kind { return KindState }
func (PageContent) Kind() Kind { return KindPageContent }
func (Decontextualized) Kind() Kind { return KindDecontextualized }
func (VerificationResult) Kind() Kind { return KindVerificationResult }
func (ErrorReply) Kind() Kind { return KindError }

func (Detection) isMessage() {}
func (Selection) isMessage() {}
func (GenericPageActivated) isMessage() {}
func (GetState) isMessage() {}
func (SaveSettings) isMessage() {}
func (Reset) isMessage() {}
func (FetchPage) isMessage() {}
func (Decontextualize) isMessage() {}
func (VerifyClaim) isMessage() {}
func (Ack) isMessage() {}
func (State) isMessage() {}
func (PageContent) isMessage() {}
func (Decontextualized) isMessage() {}
func (VerificationResult) isMessage() {}
func (ErrorReply) isMessage() {}
