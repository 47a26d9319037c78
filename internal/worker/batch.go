package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
	"gopkg.in/yaml.v3"
)

// ClaimVerifier defines the interface for checking one claim against its sources
type ClaimVerifier interface {
	Verify(ctx context.Context, claim model.Claim, urls []string) (*model.RunReport, error)
}

// ClaimEntry is one claim in a claims file
type ClaimEntry struct {
	Claim   string   `yaml:"claim"`
	Context string   `yaml:"context,omitempty"`
	URLs    []string `yaml:"urls"`
}

// claimsFile is the on-disk layout of a batch
type claimsFile struct {
	// URLs are appended to every claim's own list
	URLs   []string     `yaml:"urls,omitempty"`
	Claims []ClaimEntry `yaml:"claims"`
}

// ClaimJob represents a claim verification job
type ClaimJob struct {
	Entry    ClaimEntry
	Verifier ClaimVerifier
}

// Execute executes the claim job
func (j *ClaimJob) Execute(ctx context.Context) Result {
	claim := model.NewClaim(j.Entry.Claim, j.Entry.Context)
	report, err := j.Verifier.Verify(ctx, claim, j.Entry.URLs)
	return &ClaimResult{
		Claim:  j.Entry.Claim,
		Report: report,
		Error:  err,
	}
}

// ClaimResult represents the result of a claim job. Report may be set alongside
// Error when the run failed after it started.
type ClaimResult struct {
	Claim  string
	Report *model.RunReport
	Error  error
}

// GetError returns the error from the claim result
func (r *ClaimResult) GetError() error {
	return r.Error
}

// BatchProcessor verifies many claims concurrently
type BatchProcessor struct {
	verifier    ClaimVerifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier ClaimVerifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessClaims verifies entries and returns results in entry order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, entries []ClaimEntry) []*ClaimResult {
	if len(entries) == 0 {
		return []*ClaimResult{}
	}

	jobs := make([]Job, len(entries))
	for i, entry := range entries {
		jobs[i] = &ClaimJob{Entry: entry, Verifier: b.verifier}
	}

	results := NewPool(b.concurrency).Run(ctx, jobs)

	claimResults := make([]*ClaimResult, len(results))
	for i, result := range results {
		claimResults[i] = result.(*ClaimResult)
	}
	return claimResults
}

// ProcessFile reads a claims file and verifies its entries
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	entries, err := ReadClaimsFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, entries), nil
}

// ReadClaimsFile reads a YAML claims file. Entries without claim text are skipped
// and repeated URLs within an entry are kept once.
func ReadClaimsFile(filePath string) ([]ClaimEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return ParseClaims(data)
}

// ParseClaims decodes claims file content
func ParseClaims(data []byte) ([]ClaimEntry, error) {
	var file claimsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	var entries []ClaimEntry
	for _, entry := range file.Claims {
		entry.Claim = strings.TrimSpace(entry.Claim)
		if entry.Claim == "" {
			continue
		}
		entry.URLs = dedupe(append(entry.URLs, file.URLs...))
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, errors.New("no claims in file")
	}
	return entries, nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
