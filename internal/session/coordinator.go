package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/sourcecheck/internal/model"
	"go.uber.org/zap"
)

const maxUpdateAttempts = 8

// Detection is what the page agent found on a page
type Detection struct {
	URLs    []string       `json:"urls"`
	Mode    model.PageMode `json:"mode"`
	PageURL string         `json:"page_url,omitempty"`
}

// Selection is a new text selection with its prioritized source URLs
type Selection struct {
	Text    string   `json:"text"`
	Context string   `json:"context,omitempty"`
	URLs    []string `json:"urls"`
}

// Coordinator is the single writer-facing API over a session Store
type Coordinator struct {
	store       Store
	logger      *zap.Logger
	credentials func() bool
}

// NewCoordinator creates a coordinator over store
func NewCoordinator(store Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, logger: logger}
}

// WithCredentials sets the check used to fill SessionState.APIKeySet on reads
func (c *Coordinator) WithCredentials(check func() bool) *Coordinator {
	c.credentials = check
	return c
}

// Get returns the current state with the credentials flag filled in
func (c *Coordinator) Get(ctx context.Context) (model.SessionState, error) {
	state, err := c.store.Load(ctx)
	if err != nil {
		return model.SessionState{}, err
	}
	if c.credentials != nil {
		state.APIKeySet = c.credentials()
	}
	return state, nil
}

// Set replaces the whole record
func (c *Coordinator) Set(ctx context.Context, next model.SessionState) (model.SessionState, error) {
	return c.Update(ctx, func(s *model.SessionState) error {
		version := s.Version
		*s = next.Clone()
		s.Version = version
		return nil
	})
}

// Update applies fn to a copy of the current state and writes it back, retrying
// when another writer got in between. An error from fn aborts without writing.
func (c *Coordinator) Update(ctx context.Context, fn func(*model.SessionState) error) (model.SessionState, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := c.store.Load(ctx)
		if err != nil {
			return model.SessionState{}, err
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			return model.SessionState{}, err
		}

		written, err := c.store.CompareAndSwap(ctx, current.Version, next)
		if errors.Is(err, ErrConflict) {
			c.logger.Debug("session write conflict, retrying", zap.Int("attempt", attempt+1))
			continue
		}
		return written, err
	}
	return model.SessionState{}, fmt.Errorf("update after %d attempts: %w", maxUpdateAttempts, ErrConflict)
}

// Subscribe streams complete states, starting with the current one. The channel
// is closed when ctx ends or the store closes.
func (c *Coordinator) Subscribe(ctx context.Context) (<-chan model.SessionState, error) {
	states, err := c.store.Subscribe(ctx)
	if err != nil || c.credentials == nil {
		return states, err
	}

	out := make(chan model.SessionState)
	go func() {
		defer close(out)
		for state := range states {
			state.APIKeySet = c.credentials()
			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Reset restores the empty default. The selection counter keeps increasing so
// that runs started before the reset are recognized as stale.
func (c *Coordinator) Reset(ctx context.Context) (model.SessionState, error) {
	return c.Update(ctx, func(s *model.SessionState) error {
		selectionID := s.SelectionID
		*s = model.DefaultSessionState()
		s.SelectionID = selectionID + 1
		return nil
	})
}

// OnDetection records what the page agent detected
func (c *Coordinator) OnDetection(ctx context.Context, d Detection) (model.SessionState, error) {
	state, err := c.Update(ctx, func(s *model.SessionState) error {
		s.Detected = d.Mode != model.PageModeInactive
		s.Mode = d.Mode
		s.PageURL = d.PageURL
		s.SourceURLs = append([]string{}, d.URLs...)
		return nil
	})
	if err == nil {
		c.logger.Info("page detected",
			zap.String("mode", string(d.Mode)),
			zap.Int("urls", len(d.URLs)))
	}
	return state, err
}

// OnSelection starts a new selection. It supersedes any run for the previous
// selection and clears the stored rewrite.
func (c *Coordinator) OnSelection(ctx context.Context, sel Selection) (model.SessionState, error) {
	claim := model.NewClaim(sel.Text, sel.Context)
	state, err := c.Update(ctx, func(s *model.SessionState) error {
		s.SelectionID++
		s.SelectedText = claim.Text
		s.ContextText = claim.Context
		s.Decontextualized = nil
		if sel.URLs != nil {
			s.SourceURLs = append([]string{}, sel.URLs...)
		}
		return nil
	})
	if err == nil {
		c.logger.Debug("selection recorded",
			zap.Uint64("selection_id", state.SelectionID),
			zap.Int("urls", len(state.SourceURLs)))
	}
	return state, err
}

// ActivateGeneric switches the session to generic page mode
func (c *Coordinator) ActivateGeneric(ctx context.Context, pageURL string) (model.SessionState, error) {
	return c.Update(ctx, func(s *model.SessionState) error {
		s.Detected = true
		s.Mode = model.PageModeGeneric
		if pageURL != "" {
			s.PageURL = pageURL
		}
		return nil
	})
}

// SetDecontextualized stores a rewrite for selectionID. It reports false and
// writes nothing when a newer selection has replaced that one.
func (c *Coordinator) SetDecontextualized(ctx context.Context, selectionID uint64, text string, modified bool) (bool, error) {
	applied := false
	_, err := c.Update(ctx, func(s *model.SessionState) error {
		applied = false
		if s.SelectionID != selectionID {
			return errStale
		}
		s.Decontextualized = &model.DecontextResult{
			SelectionID: selectionID,
			Text:        text,
			WasModified: modified,
		}
		applied = true
		return nil
	})
	if errors.Is(err, errStale) {
		return false, nil
	}
	return applied, err
}

// IsCurrent reports whether selectionID is still the active selection
func (c *Coordinator) IsCurrent(ctx context.Context, selectionID uint64) (bool, error) {
	state, err := c.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return state.SelectionID == selectionID, nil
}

var errStale = errors.New("selection superseded")
