package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/sourcecheck/internal/acquire"
	"github.com/ppiankov/sourcecheck/internal/decontext"
	"github.com/ppiankov/sourcecheck/internal/llm"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/ppiankov/sourcecheck/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcquirer struct {
	pages map[string]string
	calls int32
}

func (f *fakeAcquirer) Acquire(ctx context.Context, rawURL string) (acquire.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	content, ok := f.pages[rawURL]
	if !ok {
		return acquire.Result{}, &acquire.Error{Kind: acquire.KindStatus, URL: rawURL, StatusCode: 500}
	}
	return acquire.Result{Content: content, FinalURL: rawURL}, nil
}

type fakeDecontextualizer struct {
	calls int
}

func (f *fakeDecontextualizer) Decontextualize(ctx context.Context, claim, surrounding string) decontext.Result {
	f.calls++
	return decontext.Result{Text: "The Eiffel Tower opened in 1889.", WasModified: true}
}

// countingProvider answers every completion with a fixed verdict
type countingProvider struct {
	content string
	err     error
	calls   int32
	prompts []string
	mu      sync.Mutex
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) IsAvailable(ctx context.Context) bool { return true }

func (c *countingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	c.prompts = append(c.prompts, req.Prompt)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.content}, nil
}

type verifierFunc func(ctx context.Context, claim string, sources []model.SourceDocument) (verify.Outcome, error)

func (f verifierFunc) VerifyDetailed(ctx context.Context, claim string, sources []model.SourceDocument) (verify.Outcome, error) {
	return f(ctx, claim, sources)
}

const supportedVerdict = `{"status": "supported", "evidence": [{"quote": "opened in 1889", "sourceUrl": "https://a.test/"}], "explanation": "A says so."}`

func TestPipeline_PartialAcquisitionFailure(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://a.test/": "The tower opened in 1889.",
		"https://c.test/": "Other page.",
	}}
	provider := &countingProvider{content: supportedVerdict}
	p := NewPipeline(acq, nil, verify.New(provider))

	report, err := p.Verify(context.Background(), model.NewClaim("The tower opened in 1889.", ""),
		[]string{"https://a.test/", "https://b.test/", "https://c.test/"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, model.CountByStatus(report.Sources, model.SourceError))
	assert.Equal(t, "2 of 3 sources fetched", report.FetchSummary())
	assert.Contains(t, report.Warnings, "2 of 3 sources fetched")

	assert.Equal(t, model.SourceError, report.Sources[1].Status)
	assert.Empty(t, report.Sources[1].Content)
	assert.Equal(t, "https://b.test/", report.Sources[1].URL)

	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
	assert.Equal(t, model.VerdictSupported, report.Result.Status)
	assert.NotContains(t, provider.prompts[0], "https://b.test/")
}

type suffixClassifier string

func (s suffixClassifier) Classify(rawURL string) model.AuthorityTier {
	if strings.Contains(rawURL, string(s)) {
		return model.TierPrimary
	}
	return model.TierTertiary
}

func TestPipeline_ClassifiesFetchedSources(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://a.gov/":  "The tower opened in 1889.",
		"https://c.test/": "Other page.",
	}}
	provider := &countingProvider{content: supportedVerdict}
	p := NewPipeline(acq, nil, verify.New(provider), WithClassifier(suffixClassifier(".gov")))

	report, err := p.Verify(context.Background(), model.NewClaim("The tower opened in 1889.", ""),
		[]string{"https://a.gov/", "https://b.gov/", "https://c.test/"})
	require.NoError(t, err)

	assert.Equal(t, model.TierPrimary, report.Sources[0].Authority)
	assert.Empty(t, report.Sources[1].Authority, "failed sources are not classified")
	assert.Equal(t, model.TierTertiary, report.Sources[2].Authority)
}

func TestPipeline_MissingCredentials(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{"https://a.test/": "text"}}
	provider := &countingProvider{content: supportedVerdict}
	dec := &fakeDecontextualizer{}

	var stages []Stage
	p := NewPipeline(acq, dec, verify.New(provider),
		WithPreflight(func() error { return &ConfigError{Reason: "no API key configured"} }),
		WithObserver(func(e Event) {
			if e.Type == EventStage {
				stages = append(stages, e.Stage)
			}
		}))

	report, err := p.Verify(context.Background(), model.NewClaim("A claim.", "Some context."), []string{"https://a.test/"})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "no API key")
	require.NotNil(t, report)
	assert.Equal(t, int32(0), atomic.LoadInt32(&acq.calls), "no fetch before the credentials check")
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.calls), "no completion before the credentials check")
	assert.Zero(t, dec.calls)
	assert.Equal(t, []Stage{StageErrored}, stages)
}

func TestPipeline_EmptyClaim(t *testing.T) {
	acq := &fakeAcquirer{}
	p := NewPipeline(acq, nil, verify.New(&countingProvider{}))

	report, err := p.Verify(context.Background(), model.NewClaim("   ", ""), []string{"https://a.test/"})
	assert.ErrorIs(t, err, ErrEmptyClaim)
	assert.Nil(t, report)
	assert.Zero(t, atomic.LoadInt32(&acq.calls))
}

func TestPipeline_NoFetchableSources(t *testing.T) {
	provider := &countingProvider{content: supportedVerdict}
	p := NewPipeline(&fakeAcquirer{}, nil, verify.New(provider))

	report, err := p.Verify(context.Background(), model.NewClaim("A claim.", ""), []string{"https://down.test/"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictInconclusive, report.Result.Status)
	assert.Empty(t, report.Result.Evidence)
	assert.Zero(t, atomic.LoadInt32(&provider.calls))
}

func TestPipeline_DuplicateURLsFetchedOnce(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{"https://a.test/page": "text"}}
	p := NewPipeline(acq, nil, verify.New(&countingProvider{content: `{"status": "inconclusive", "evidence": [], "explanation": ""}`}))

	report, err := p.Verify(context.Background(), model.NewClaim("A claim.", ""),
		[]string{"https://a.test/page", "https://A.test/page#section", "https://www.google.com/url?q=https%3A%2F%2Fa.test%2Fpage"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, int32(1), atomic.LoadInt32(&acq.calls))
}

func TestPipeline_StagesAndSourceEvents(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{"https://a.test/": "The tower opened in 1889."}}
	dec := &fakeDecontextualizer{}

	var mu sync.Mutex
	var stages []Stage
	statuses := map[int][]model.SourceStatus{}
	p := NewPipeline(acq, dec, verify.New(&countingProvider{content: supportedVerdict}),
		WithObserver(func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			switch e.Type {
			case EventStage:
				stages = append(stages, e.Stage)
			case EventSource:
				statuses[e.Index] = append(statuses[e.Index], e.Source.Status)
			}
		}))

	report, err := p.Verify(context.Background(), model.NewClaim("It opened in 1889.", "The Eiffel Tower is in Paris. It opened in 1889."),
		[]string{"https://a.test/", "https://b.test/"})
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageAcquiring, StageDecontextualizing, StageVerifying, StageDone}, stages)
	assert.Equal(t, []model.SourceStatus{model.SourcePending, model.SourceFetching, model.SourceFetched}, statuses[0])
	assert.Equal(t, []model.SourceStatus{model.SourcePending, model.SourceFetching, model.SourceError}, statuses[1])

	assert.Equal(t, 1, dec.calls)
	assert.True(t, report.Claim.WasModified)
	assert.Equal(t, "The Eiffel Tower opened in 1889.", report.Claim.Statement())
	assert.NotEmpty(t, report.RunID)
	assert.NotEmpty(t, report.Duration)
}

func TestPipeline_NoContextSkipsDecontextualization(t *testing.T) {
	dec := &fakeDecontextualizer{}
	p := NewPipeline(&fakeAcquirer{}, dec, verify.New(&countingProvider{}))

	_, err := p.Verify(context.Background(), model.NewClaim("A claim.", ""), nil)
	require.NoError(t, err)
	assert.Zero(t, dec.calls)
}

func TestPipeline_VerificationErrorSurfaces(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{"https://a.test/": "text"}}
	var stages []Stage
	p := NewPipeline(acq, nil, verify.New(&countingProvider{err: errors.New("503 from provider")}),
		WithObserver(func(e Event) {
			if e.Type == EventStage {
				stages = append(stages, e.Stage)
			}
		}))

	report, err := p.Verify(context.Background(), model.NewClaim("A claim.", ""), []string{"https://a.test/"})
	var verErr *verify.Error
	require.ErrorAs(t, err, &verErr)
	assert.Equal(t, verify.KindProvider, verErr.Kind)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, StageErrored, stages[len(stages)-1])
}

func TestPipeline_MaxSources(t *testing.T) {
	acq := &fakeAcquirer{}
	p := NewPipeline(acq, nil, verify.New(&countingProvider{}), WithMaxSources(2))

	report, err := p.Verify(context.Background(), model.NewClaim("A claim.", ""),
		[]string{"https://a.test/", "https://b.test/", "https://c.test/"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, int32(2), atomic.LoadInt32(&acq.calls))
}

func newCoordinator(t *testing.T) *session.Coordinator {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return session.NewCoordinator(store, nil)
}

func TestPipeline_VerifySelection(t *testing.T) {
	coord := newCoordinator(t)
	ctx := context.Background()

	_, err := coord.OnSelection(ctx, session.Selection{
		Text:    "It opened in 1889.",
		Context: "The Eiffel Tower is in Paris. It opened in 1889.",
		URLs:    []string{"https://a.test/"},
	})
	require.NoError(t, err)

	acq := &fakeAcquirer{pages: map[string]string{"https://a.test/": "The tower opened in 1889."}}
	p := NewPipeline(acq, &fakeDecontextualizer{}, verify.New(&countingProvider{content: supportedVerdict}), WithCoordinator(coord))

	report, err := p.VerifySelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.SelectionID)
	assert.Equal(t, model.VerdictSupported, report.Result.Status)

	state, err := coord.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Decontextualized)
	assert.Equal(t, "The Eiffel Tower opened in 1889.", state.Claim().Statement())
}

func TestPipeline_SupersededSelection(t *testing.T) {
	coord := newCoordinator(t)
	ctx := context.Background()

	_, err := coord.OnSelection(ctx, session.Selection{Text: "First claim.", URLs: []string{"https://a.test/"}})
	require.NoError(t, err)

	acq := &fakeAcquirer{pages: map[string]string{"https://a.test/": "text"}}
	ver := verifierFunc(func(ctx context.Context, claim string, sources []model.SourceDocument) (verify.Outcome, error) {
		// The user selects something else while the verdict is being computed
		_, err := coord.OnSelection(ctx, session.Selection{Text: "Second claim."})
		require.NoError(t, err)
		return verify.Outcome{Result: model.VerificationResult{Status: model.VerdictSupported, Evidence: []model.Evidence{}}}, nil
	})
	p := NewPipeline(acq, nil, ver, WithCoordinator(coord))

	_, err = p.VerifySelection(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)
}

func TestPipeline_VerifySelectionWithoutCoordinator(t *testing.T) {
	p := NewPipeline(&fakeAcquirer{}, nil, verify.New(&countingProvider{}))

	_, err := p.VerifySelection(context.Background())
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStageTransitions(t *testing.T) {
	assert.True(t, StageIdle.CanTransition(StageAcquiring))
	assert.True(t, StageIdle.CanTransition(StageErrored))
	assert.True(t, StageVerifying.CanTransition(StageErrored))
	assert.False(t, StageIdle.CanTransition(StageVerifying))
	assert.False(t, StageAcquiring.CanTransition(StageVerifying))
	assert.False(t, StageDone.CanTransition(StageAcquiring))
	assert.False(t, StageErrored.CanTransition(StageIdle))
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageErrored.Terminal())
	assert.False(t, StageVerifying.Terminal())

	m := newMachine(nil)
	require.NoError(t, m.advance(StageAcquiring))
	assert.Error(t, m.advance(StageDone))
	assert.Equal(t, StageAcquiring, m.stage)
}

func TestRenderer_Markdown(t *testing.T) {
	report := &model.RunReport{
		RunID: "run-1",
		Claim: model.Claim{Text: "It opened in 1889.", Decontextualized: "The tower opened in 1889.", WasModified: true},
		Sources: []model.SourceDocument{
			{URL: "https://a.test/", Title: "a.test", Status: model.SourceFetched, Content: strings.Repeat("x", 12000), Authority: model.TierPrimary},
			{URL: "https://b.test/", Title: "b.test", Status: model.SourceError, Error: "HTTP 404"},
		},
		Result: model.VerificationResult{
			Status:      model.VerdictSupported,
			Evidence:    []model.Evidence{{Quote: "opened in 1889", SourceURL: "https://a.test/"}},
			Explanation: "A says so.",
		},
		Fetched: 1,
		Total:   2,
	}

	md := NewRenderer().Markdown(report)
	assert.Contains(t, md, "# Claim check: SUPPORTED")
	assert.Contains(t, md, "Checked as: _The tower opened in 1889._")
	assert.Contains(t, md, "https://a.test/#:~:text=opened%20in%201889")
	assert.Contains(t, md, "## Sources (1 of 2 sources fetched)")
	assert.Contains(t, md, "(primary): fetched - 12k characters")
	assert.Contains(t, md, "error - HTTP 404")

	var sb strings.Builder
	NewRenderer().RenderSummary(&sb, report)
	assert.Contains(t, sb.String(), "Verdict: SUPPORTED")
}

func TestRenderer_Files(t *testing.T) {
	dir := t.TempDir()
	report := &model.RunReport{RunID: "run-2", Claim: model.Claim{Text: "c"}, Result: model.Inconclusive("nothing")}

	r := NewRenderer()
	require.NoError(t, r.RenderJSON(report, dir+"/out/report.json"))
	require.NoError(t, r.RenderMarkdown(report, dir+"/out/report.md"))
}
