package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/sourcecheck/internal/acquire"
	"github.com/ppiankov/sourcecheck/internal/decontext"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/session"
	"github.com/ppiankov/sourcecheck/internal/settings"
	"github.com/ppiankov/sourcecheck/internal/verify"
	"go.uber.org/zap"
)

var (
	// ErrUnexpectedMessage means a reply type was sent as a request, or vice versa
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrUnavailable means the service a request needs is not wired
	ErrUnavailable = errors.New("service unavailable")
)

// Acquirer fetches source text
type Acquirer interface {
	Acquire(ctx context.Context, rawURL string) (acquire.Result, error)
}

// Decontextualizer rewrites claims to stand alone
type Decontextualizer interface {
	Decontextualize(ctx context.Context, claim, surrounding string) decontext.Result
}

// Verifier produces verdicts
type Verifier interface {
	VerifyDetailed(ctx context.Context, claim string, sources []model.SourceDocument) (verify.Outcome, error)
}

// Services are what the router dispatches to. Only Coordinator is required.
type Services struct {
	Coordinator      *session.Coordinator
	Settings         settings.Store
	Acquirer         Acquirer
	Decontextualizer Decontextualizer
	Verifier         Verifier

	// OnSettingsSaved runs after settings are persisted, e.g. to rebuild the provider
	OnSettingsSaved func(settings.Settings) error

	Logger *zap.Logger
}

// Router is the coordinator-side Handler
type Router struct {
	Services
}

// NewRouter creates a router over services
func NewRouter(services Services) *Router {
	if services.Logger == nil {
		services.Logger = zap.NewNop()
	}
	return &Router{Services: services}
}

// Handle dispatches one request
func (r *Router) Handle(ctx context.Context, msg Message) (Message, error) {
	switch m := msg.(type) {
	case Detection:
		if _, err := r.Coordinator.OnDetection(ctx, session.Detection(m)); err != nil {
			return nil, err
		}
		return Ack{}, nil

	case Selection:
		if _, err := r.Coordinator.OnSelection(ctx, session.Selection(m)); err != nil {
			return nil, err
		}
		return Ack{}, nil

	case GenericPageActivated:
		if _, err := r.Coordinator.ActivateGeneric(ctx, m.PageURL); err != nil {
			return nil, err
		}
		return Ack{}, nil

	case GetState:
		state, err := r.Coordinator.Get(ctx)
		if err != nil {
			return nil, err
		}
		return State{State: state}, nil

	case SaveSettings:
		return r.saveSettings(m.Settings)

	case Reset:
		if _, err := r.Coordinator.Reset(ctx); err != nil {
			return nil, err
		}
		return Ack{}, nil

	case FetchPage:
		if r.Acquirer == nil {
			return nil, fmt.Errorf("%w: acquisition", ErrUnavailable)
		}
		res, err := r.Acquirer.Acquire(ctx, m.URL)
		if err != nil {
			return nil, err
		}
		return PageContent{URL: m.URL, FinalURL: res.FinalURL, Content: res.Content, FromCache: res.FromCache}, nil

	case Decontextualize:
		if r.Decontextualizer == nil {
			return Decontextualized{Text: m.Claim}, nil
		}
		res := r.Decontextualizer.Decontextualize(ctx, m.Claim, m.Context)
		return Decontextualized{Text: res.Text, WasModified: res.WasModified}, nil

	case VerifyClaim:
		if r.Verifier == nil {
			return nil, fmt.Errorf("%w: verification", ErrUnavailable)
		}
		outcome, err := r.Verifier.VerifyDetailed(ctx, m.Claim, m.Sources)
		if err != nil {
			return nil, err
		}
		return VerificationResult{Result: outcome.Result, Dropped: outcome.Dropped}, nil

	case Ack, State, PageContent, Decontextualized, VerificationResult, ErrorReply:
		return nil, fmt.Errorf("%w: %s is a reply", ErrUnexpectedMessage, m.Kind())

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}

func (r *Router) saveSettings(next settings.Settings) (Message, error) {
	if r.Settings == nil {
		return nil, fmt.Errorf("%w: settings", ErrUnavailable)
	}

	current, err := r.Settings.Load()
	if err != nil {
		return nil, err
	}
	merged := current.Merge(next)
	if err := r.Settings.Save(merged); err != nil {
		return nil, err
	}

	if r.OnSettingsSaved != nil {
		if err := r.OnSettingsSaved(merged); err != nil {
			r.Logger.Warn("settings saved but could not be applied", zap.Error(err))
			return nil, err
		}
	}
	r.Logger.Info("settings saved", zap.String("provider", merged.Provider), zap.Bool("api_key_set", merged.APIKey != ""))
	return Ack{}, nil
}
