package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/sourcecheck/internal/acquire"
	"github.com/ppiankov/sourcecheck/internal/decontext"
	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/metrics"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/ppiankov/sourcecheck/internal/verify"
	"github.com/ppiankov/sourcecheck/internal/worker"
	"go.uber.org/zap"
)

// Acquirer fetches source text
type Acquirer interface {
	Acquire(ctx context.Context, rawURL string) (acquire.Result, error)
}

// Decontextualizer rewrites claims to stand alone; it must not fail
type Decontextualizer interface {
	Decontextualize(ctx context.Context, claim, surrounding string) decontext.Result
}

// Verifier produces verdicts
type Verifier interface {
	VerifyDetailed(ctx context.Context, claim string, sources []model.SourceDocument) (verify.Outcome, error)
}

// Classifier assigns an authority tier to a source URL
type Classifier interface {
	Classify(rawURL string) model.AuthorityTier
}

// EventType distinguishes progress events
type EventType string

const (
	EventStage  EventType = "stage"  // The run entered a new stage
	EventSource EventType = "source" // A source changed status
)

// Event is a progress notification
type Event struct {
	Type   EventType             `json:"type"`
	RunID  string                `json:"run_id"`
	Stage  Stage                 `json:"stage,omitempty"`
	Index  int                   `json:"index"`
	Source *model.SourceDocument `json:"source,omitempty"`
}

// Observer receives progress events. Source events may arrive from several
// goroutines but are never delivered concurrently.
type Observer func(Event)

// Pipeline orchestrates acquisition, decontextualization and verification
type Pipeline struct {
	acquirer         Acquirer
	decontextualizer Decontextualizer
	verifier         Verifier
	classifier       Classifier
	coordinator      *session.Coordinator
	preflight        func() error
	observer         Observer
	logger           *zap.Logger
	workers          int
	maxSources       int
	now              func() time.Time

	notifyMu sync.Mutex
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCoordinator enables selection runs and staleness checks
func WithCoordinator(c *session.Coordinator) Option {
	return func(p *Pipeline) { p.coordinator = c }
}

// WithPreflight sets a check that runs before any network call
func WithPreflight(check func() error) Option {
	return func(p *Pipeline) { p.preflight = check }
}

// WithClassifier tags fetched sources with an authority tier
func WithClassifier(c Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithObserver sets the progress observer
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkers bounds concurrent acquisitions
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxSources caps how many URLs are acquired per run
func WithMaxSources(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxSources = n
		}
	}
}

// WithoutDecontextualization skips the rewrite stage; claims are verified as selected
func WithoutDecontextualization() Option {
	return func(p *Pipeline) { p.decontextualizer = nil }
}

// NewPipeline creates a pipeline. dec may be nil to skip rewriting.
func NewPipeline(acq Acquirer, dec Decontextualizer, ver Verifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		acquirer:         acq,
		decontextualizer: dec,
		verifier:         ver,
		logger:           zap.NewNop(),
		workers:          8,
		maxSources:       extract.DefaultLimit,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runSpec is the input of one run
type runSpec struct {
	claim       model.Claim
	urls        []string
	selectionID uint64
	tracked     bool // Compare selectionID with the coordinator before publishing
}

// Verify runs the pipeline for a claim and candidate URLs. The report is returned
// even on failure, filled as far as the run got.
func (p *Pipeline) Verify(ctx context.Context, claim model.Claim, urls []string) (*model.RunReport, error) {
	return p.run(ctx, runSpec{claim: claim, urls: urls})
}

// VerifySelection runs the pipeline for the coordinator's current selection
func (p *Pipeline) VerifySelection(ctx context.Context) (*model.RunReport, error) {
	if p.coordinator == nil {
		return nil, &ConfigError{Reason: "no session coordinator"}
	}
	state, err := p.coordinator.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return p.run(ctx, runSpec{
		claim:       state.Claim(),
		urls:        state.SourceURLs,
		selectionID: state.SelectionID,
		tracked:     true,
	})
}

func (p *Pipeline) run(ctx context.Context, job runSpec) (*model.RunReport, error) {
	claim := job.claim
	claim.Text = strings.TrimSpace(claim.Text)
	if claim.Text == "" {
		return nil, ErrEmptyClaim
	}

	report := &model.RunReport{
		RunID:       uuid.NewString(),
		SelectionID: job.selectionID,
		StartedAt:   p.now().UTC(),
		Claim:       claim,
		Sources:     []model.SourceDocument{},
		Result:      model.Inconclusive(""),
	}
	logger := p.logger.With(zap.String("run_id", report.RunID))
	m := newMachine(func(s Stage) {
		p.notify(Event{Type: EventStage, RunID: report.RunID, Stage: s, Index: -1})
	})

	fail := func(err error) (*model.RunReport, error) {
		_ = m.advance(StageErrored)
		p.finish(report, m.stage)
		logger.Warn("run failed", zap.Error(err))
		return report, err
	}

	if p.preflight != nil {
		if err := p.preflight(); err != nil {
			return fail(err)
		}
	}
	if p.verifier == nil {
		return fail(&ConfigError{Reason: "no verifier configured"})
	}

	// Acquire
	if err := m.advance(StageAcquiring); err != nil {
		return fail(err)
	}
	urls := extract.ExtractURLs(job.urls)
	if len(urls) > p.maxSources {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d candidate URLs, only the first %d were used", len(urls), p.maxSources))
		urls = urls[:p.maxSources]
	}
	report.Sources = p.acquireAll(ctx, report.RunID, urls, logger)
	report.Total = len(report.Sources)
	report.Fetched = model.CountByStatus(report.Sources, model.SourceFetched)
	logger.Info("acquisition finished", zap.String("summary", report.FetchSummary()))
	if report.Fetched < report.Total {
		report.Warnings = append(report.Warnings, report.FetchSummary())
	}

	// Decontextualize
	if err := m.advance(StageDecontextualizing); err != nil {
		return fail(err)
	}
	if p.decontextualizer != nil && claim.Context != "" && claim.Decontextualized == "" {
		rewritten := p.decontextualizer.Decontextualize(ctx, claim.Text, claim.Context)
		if rewritten.WasModified {
			claim.Decontextualized = rewritten.Text
			claim.WasModified = true
		}
		if job.tracked {
			if _, err := p.coordinator.SetDecontextualized(ctx, job.selectionID, rewritten.Text, rewritten.WasModified); err != nil {
				logger.Warn("could not store rewrite", zap.Error(err))
			}
		}
	}
	report.Claim = claim

	// Verify
	if err := m.advance(StageVerifying); err != nil {
		return fail(err)
	}
	outcome, err := p.verifier.VerifyDetailed(ctx, claim.Statement(), report.Sources)
	if err != nil {
		return fail(err)
	}
	report.Result = outcome.Result
	report.Dropped = outcome.Dropped
	if outcome.Dropped > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d evidence items cited unknown sources and were dropped", outcome.Dropped))
	}

	if job.tracked {
		current, err := p.coordinator.IsCurrent(ctx, job.selectionID)
		if err != nil {
			return fail(fmt.Errorf("read session: %w", err))
		}
		if !current {
			return fail(ErrSuperseded)
		}
	}

	if err := m.advance(StageDone); err != nil {
		return fail(err)
	}
	p.finish(report, m.stage)
	logger.Info("run finished",
		zap.String("status", string(report.Result.Status)),
		zap.Int("evidence", len(report.Result.Evidence)),
		zap.String("duration", report.Duration))
	return report, nil
}

// acquireAll fetches every URL with bounded concurrency. A failed source is
// marked as such and never stops the others.
func (p *Pipeline) acquireAll(ctx context.Context, runID string, urls []string, logger *zap.Logger) []model.SourceDocument {
	sources := model.NewSourceDocuments(urls)
	for i := range sources {
		p.notifySource(runID, i, sources[i])
	}

	return worker.Map(ctx, p.workers, sources, func(ctx context.Context, i int, src model.SourceDocument) model.SourceDocument {
		src.Status = model.SourceFetching
		p.notifySource(runID, i, src)

		res, err := p.acquirer.Acquire(ctx, src.URL)
		if err != nil {
			src.MarkError(err.Error())
			logger.Debug("source failed", zap.String("url", src.URL), zap.Error(err))
		} else {
			src.MarkFetched(res.Content, res.FinalURL)
			if p.classifier != nil {
				target := src.URL
				if src.FinalURL != "" {
					target = src.FinalURL
				}
				src.Authority = p.classifier.Classify(target)
			}
		}

		p.notifySource(runID, i, src)
		return src
	})
}

func (p *Pipeline) finish(report *model.RunReport, stage Stage) {
	elapsed := p.now().Sub(report.StartedAt)
	report.Duration = elapsed.Round(time.Millisecond).String()
	metrics.Runs.WithLabelValues(string(stage)).Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
}

func (p *Pipeline) notify(e Event) {
	if p.observer == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.observer(e)
}

func (p *Pipeline) notifySource(runID string, index int, src model.SourceDocument) {
	p.notify(Event{Type: EventSource, RunID: runID, Index: index, Source: &src})
}
