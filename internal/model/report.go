package model

import (
	"fmt"
	"time"
)

// RunReport is everything one orchestration run produced
type RunReport struct {
	RunID       string    `json:"run_id"`
	SelectionID uint64    `json:"selection_id"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`

	Claim   Claim              `json:"claim"`
	Sources []SourceDocument   `json:"sources"`
	Result  VerificationResult `json:"result"`

	Fetched  int      `json:"fetched"`            // Sources that reached fetched
	Total    int      `json:"total"`              // Sources attempted
	Dropped  int      `json:"dropped_evidence"`   // Evidence items rejected for unknown source URLs
	Warnings []string `json:"warnings,omitempty"` // Non-fatal issues worth showing
}

// FetchSummary is the aggregate acquisition signal, e.g. "2 of 3 sources fetched"
func (r RunReport) FetchSummary() string {
	return FetchSummary(r.Fetched, r.Total)
}

// FetchSummary formats an N-of-M acquisition count
func FetchSummary(fetched, total int) string {
	return fmt.Sprintf("%d of %d sources fetched", fetched, total)
}
