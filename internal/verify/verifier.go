package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/llm"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

const (
	// DefaultMaxPromptChars caps the source text sent in one verification prompt
	DefaultMaxPromptChars = 60000

	// NoSourcesExplanation is the verdict explanation when nothing could be fetched
	NoSourcesExplanation = "no fetchable sources"
)

const instructions = `You are a fact-checking assistant. Decide whether the claim is backed by the
provided sources, using only the sources and no outside knowledge.

Status meanings:
- supported: the sources contain text that directly backs the claim
- unsupported: the sources contradict the claim
- partial: some parts of the claim are backed and others are not
- inconclusive: the sources contain nothing relevant to the claim

Evidence quotes must be copied verbatim from a source, and sourceUrl must be the exact URL
shown for that source. Return an empty evidence list when nothing relevant is found.`

// Schema is the structured verdict returned by the model
var Schema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"status": {
			Type: jsonschema.String,
			Enum: []string{
				string(model.VerdictSupported),
				string(model.VerdictUnsupported),
				string(model.VerdictPartial),
				string(model.VerdictInconclusive),
			},
		},
		"evidence": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"quote":     {Type: jsonschema.String, Description: "Verbatim text from the source."},
					"sourceUrl": {Type: jsonschema.String, Description: "URL of the source the quote is from."},
				},
				Required:             []string{"quote", "sourceUrl"},
				AdditionalProperties: false,
			},
		},
		"explanation": {
			Type:        jsonschema.String,
			Description: "Short reasoning for the status.",
		},
	},
	Required:             []string{"status", "evidence", "explanation"},
	AdditionalProperties: false,
}

// Outcome is a verification result plus bookkeeping about what was filtered
type Outcome struct {
	Result  model.VerificationResult
	Dropped int // Evidence items citing URLs that were not fetched
	Sources int // Sources included in the prompt
}

// Verifier checks a claim against fetched source documents
type Verifier struct {
	provider       llm.Provider
	logger         *zap.Logger
	model          string
	maxTokens      int
	maxPromptChars int
}

// Option configures a Verifier
type Option func(*Verifier)

// WithModel overrides the provider's default model
func WithModel(name string) Option {
	return func(v *Verifier) { v.model = name }
}

// WithMaxTokens bounds the response size
func WithMaxTokens(n int) Option {
	return func(v *Verifier) { v.maxTokens = n }
}

// WithMaxPromptChars sets the aggregate source text budget
func WithMaxPromptChars(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxPromptChars = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a verifier backed by provider
func New(provider llm.Provider, opts ...Option) *Verifier {
	v := &Verifier{
		provider:       provider,
		logger:         zap.NewNop(),
		maxPromptChars: DefaultMaxPromptChars,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks claim against sources. Only fetched sources are used; with none,
// the result is inconclusive and no completion is requested.
func (v *Verifier) Verify(ctx context.Context, claim string, sources []model.SourceDocument) (model.VerificationResult, error) {
	outcome, err := v.VerifyDetailed(ctx, claim, sources)
	if err != nil {
		return model.VerificationResult{}, err
	}
	return outcome.Result, nil
}

// VerifyDetailed is Verify that also reports filtered evidence
func (v *Verifier) VerifyDetailed(ctx context.Context, claim string, sources []model.SourceDocument) (Outcome, error) {
	usable := make([]model.SourceDocument, 0, len(sources))
	for _, s := range sources {
		if s.IsUsable() {
			usable = append(usable, s)
		}
	}

	if len(usable) == 0 {
		metrics.Verdicts.WithLabelValues(string(model.VerdictInconclusive)).Inc()
		return Outcome{Result: model.Inconclusive(NoSourcesExplanation)}, nil
	}

	usable = budgetSources(usable, v.maxPromptChars)

	resp, err := v.provider.Complete(ctx, llm.CompletionRequest{
		Instructions: instructions,
		Prompt:       buildPrompt(claim, usable),
		SchemaName:   "claim_verification",
		Schema:       Schema,
		Model:        v.model,
		MaxTokens:    v.maxTokens,
	})
	if err != nil {
		metrics.Completions.WithLabelValues("verify", "error").Inc()
		return Outcome{}, &Error{Kind: KindProvider, Err: err}
	}

	var result model.VerificationResult
	if err := llm.Decode(resp.Content, Schema, &result); err != nil {
		metrics.Completions.WithLabelValues("verify", "invalid").Inc()
		return Outcome{}, decodeError(err)
	}
	if !result.Status.Valid() {
		metrics.Completions.WithLabelValues("verify", "invalid").Inc()
		return Outcome{}, &Error{Kind: KindSchema, Err: fmt.Errorf("%w: unknown status %q", llm.ErrSchemaMismatch, result.Status)}
	}

	metrics.Completions.WithLabelValues("verify", "ok").Inc()
	metrics.CompletionTokens.WithLabelValues("verify").Observe(float64(resp.TokensUsed))

	kept, dropped := filterEvidence(result.Evidence, usable)
	result.Evidence = kept
	if dropped > 0 {
		metrics.DroppedEvidence.Add(float64(dropped))
		v.logger.Warn("dropped evidence citing unknown sources", zap.Int("dropped", dropped))
	}

	metrics.Verdicts.WithLabelValues(string(result.Status)).Inc()
	v.logger.Debug("claim verified",
		zap.String("status", string(result.Status)),
		zap.Int("evidence", len(result.Evidence)),
		zap.Int("sources", len(usable)))

	return Outcome{Result: result, Dropped: dropped, Sources: len(usable)}, nil
}

func buildPrompt(claim string, sources []model.SourceDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CLAIM:\n%s\n\nSOURCES:\n", claim)
	for i, s := range sources {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n---\n", i+1, s.URL, s.Content)
	}
	return b.String()
}

// filterEvidence keeps evidence whose sourceUrl names one of the sources, either
// by requested or by final URL, and returns it with the count of dropped items.
// Kept evidence is rewritten to cite the source URL it matched.
func filterEvidence(evidence []model.Evidence, sources []model.SourceDocument) ([]model.Evidence, int) {
	known := make(map[string]string, len(sources)*4)
	for _, s := range sources {
		for _, u := range []string{s.URL, s.FinalURL} {
			if u == "" {
				continue
			}
			known[u] = u
		}
	}
	for _, s := range sources {
		for _, u := range []string{s.URL, s.FinalURL} {
			if u == "" {
				continue
			}
			if n, ok := extract.Normalize(u, nil); ok {
				if _, exists := known[n]; !exists {
					known[n] = u
				}
			}
		}
	}

	kept := make([]model.Evidence, 0, len(evidence))
	dropped := 0
	for _, e := range evidence {
		if strings.TrimSpace(e.Quote) == "" {
			dropped++
			continue
		}
		cited := strings.TrimSpace(e.SourceURL)
		canonical, ok := known[cited]
		if !ok {
			if n, valid := extract.Normalize(cited, nil); valid {
				canonical, ok = known[n]
			}
		}
		if !ok {
			dropped++
			continue
		}
		e.SourceURL = canonical
		kept = append(kept, e)
	}
	return kept, dropped
}
