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
)

// Requester sends a request and waits for its reply
type Requester interface {
	Request(ctx context.Context, msg Message) (Message, error)
}

// Client is the typed sender side of the protocol. It satisfies the acquisition,
// decontextualization and verification interfaces of the orchestrator, so a run
// can be driven entirely over the bus.
type Client struct {
	bus Requester
}

// NewClient creates a client sending over bus
func NewClient(bus Requester) *Client {
	return &Client{bus: bus}
}

// Acquire fetches one source through the coordinator
func (c *Client) Acquire(ctx context.Context, rawURL string) (acquire.Result, error) {
	reply, err := c.request(ctx, FetchPage{URL: rawURL})
	if err != nil {
		return acquire.Result{}, err
	}
	page, ok := reply.(PageContent)
	if !ok {
		return acquire.Result{}, unexpected(reply)
	}
	return acquire.Result{Content: page.Content, FinalURL: page.FinalURL, FromCache: page.FromCache}, nil
}

// Decontextualize never fails: on any error the claim comes back unchanged
func (c *Client) Decontextualize(ctx context.Context, claim, surrounding string) decontext.Result {
	reply, err := c.request(ctx, Decontextualize{Claim: claim, Context: surrounding})
	if err != nil {
		return decontext.Result{Text: claim}
	}
	d, ok := reply.(Decontextualized)
	if !ok || d.Text == "" {
		return decontext.Result{Text: claim}
	}
	return decontext.Result{Text: d.Text, WasModified: d.WasModified}
}

// VerifyDetailed asks for a verdict
func (c *Client) VerifyDetailed(ctx context.Context, claim string, sources []model.SourceDocument) (verify.Outcome, error) {
	reply, err := c.request(ctx, VerifyClaim{Claim: claim, Sources: sources})
	if err != nil {
		return verify.Outcome{}, err
	}
	v, ok := reply.(VerificationResult)
	if !ok {
		return verify.Outcome{}, unexpected(reply)
	}
	return verify.Outcome{Result: v.Result, Dropped: v.Dropped}, nil
}

// State returns the session snapshot
func (c *Client) State(ctx context.Context) (model.SessionState, error) {
	reply, err := c.request(ctx, GetState{})
	if err != nil {
		return model.SessionState{}, err
	}
	s, ok := reply.(State)
	if !ok {
		return model.SessionState{}, unexpected(reply)
	}
	return s.State, nil
}

// Detect reports a page detection
func (c *Client) Detect(ctx context.Context, d session.Detection) error {
	return c.expectAck(ctx, Detection(d))
}

// Select reports a new selection
func (c *Client) Select(ctx context.Context, sel session.Selection) error {
	return c.expectAck(ctx, Selection(sel))
}

// ActivateGeneric reports a generic page activation
func (c *Client) ActivateGeneric(ctx context.Context, pageURL string) error {
	return c.expectAck(ctx, GenericPageActivated{PageURL: pageURL})
}

// SaveSettings persists settings
func (c *Client) SaveSettings(ctx context.Context, s settings.Settings) error {
	return c.expectAck(ctx, SaveSettings{Settings: s})
}

// Reset clears the session
func (c *Client) Reset(ctx context.Context) error {
	return c.expectAck(ctx, Reset{})
}

func (c *Client) expectAck(ctx context.Context, msg Message) error {
	reply, err := c.request(ctx, msg)
	if err != nil {
		return err
	}
	if _, ok := reply.(Ack); !ok {
		return unexpected(reply)
	}
	return nil
}

// request turns an ErrorReply from a remote peer into an error
func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	reply, err := c.bus.Request(ctx, msg)
	if err != nil {
		return nil, err
	}
	if e, ok := reply.(ErrorReply); ok {
		return nil, errors.New(e.Message)
	}
	return reply, nil
}

func unexpected(reply Message) error {
	if reply == nil {
		return fmt.Errorf("%w: empty reply", ErrUnexpectedMessage)
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedMessage, reply.Kind())
}
