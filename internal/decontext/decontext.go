package decontext

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/llm"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

const instructions = `You rewrite a selected sentence so it can be understood on its own.
Resolve pronouns and vague references ("it", "this", "the company", "that year") using the
surrounding text. Keep the meaning, scope and hedging of the original. Do not add facts that
are not in the surrounding text. If the sentence already stands on its own, return it unchanged
and set was_modified to false.`

// Schema is the structured response of a decontextualization call
var Schema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"decontextualized_text": {
			Type:        jsonschema.String,
			Description: "The selected sentence rewritten to stand alone.",
		},
		"was_modified": {
			Type:        jsonschema.Boolean,
			Description: "Whether the sentence was changed.",
		},
	},
	Required:             []string{"decontextualized_text", "was_modified"},
	AdditionalProperties: false,
}

// Result is a claim after decontextualization
type Result struct {
	Text        string
	WasModified bool
}

type response struct {
	Text        string `json:"decontextualized_text"`
	WasModified bool   `json:"was_modified"`
}

// Decontextualizer rewrites claims to be self-contained. It never fails: any
// problem yields the original claim unchanged.
type Decontextualizer struct {
	provider  llm.Provider
	logger    *zap.Logger
	model     string
	maxTokens int
}

// New creates a decontextualizer backed by provider
func New(provider llm.Provider, logger *zap.Logger) *Decontextualizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decontextualizer{
		provider:  provider,
		logger:    logger,
		maxTokens: 512,
	}
}

// WithModel overrides the provider's default model
func (d *Decontextualizer) WithModel(model string) *Decontextualizer {
	d.model = model
	return d
}

// Decontextualize rewrites claim using surrounding. An empty surrounding text
// returns the claim without calling the provider.
func (d *Decontextualizer) Decontextualize(ctx context.Context, claim, surrounding string) Result {
	unchanged := Result{Text: claim}
	if strings.TrimSpace(surrounding) == "" || strings.TrimSpace(claim) == "" || d.provider == nil {
		return unchanged
	}

	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		Instructions: instructions,
		Prompt:       buildPrompt(claim, surrounding),
		SchemaName:   "decontextualized_claim",
		Schema:       Schema,
		Model:        d.model,
		MaxTokens:    d.maxTokens,
	})
	if err != nil {
		metrics.Completions.WithLabelValues("decontextualize", "error").Inc()
		d.logger.Warn("decontextualization failed, using original claim", zap.Error(err))
		return unchanged
	}

	var out response
	if err := llm.Decode(resp.Content, Schema, &out); err != nil {
		metrics.Completions.WithLabelValues("decontextualize", "invalid").Inc()
		d.logger.Warn("decontextualization response rejected, using original claim", zap.Error(err))
		return unchanged
	}

	metrics.Completions.WithLabelValues("decontextualize", "ok").Inc()
	metrics.CompletionTokens.WithLabelValues("decontextualize").Observe(float64(resp.TokensUsed))

	text := strings.TrimSpace(out.Text)
	if !out.WasModified || text == "" || text == strings.TrimSpace(claim) {
		return unchanged
	}

	d.logger.Debug("claim decontextualized", zap.String("claim", claim), zap.String("rewritten", text))
	return Result{Text: text, WasModified: true}
}

func buildPrompt(claim, surrounding string) string {
	return fmt.Sprintf("Surrounding text:\n%s\n\nSelected sentence:\n%s", surrounding, claim)
}
