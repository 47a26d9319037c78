package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewCoordinator(store, nil)
}

func TestCoordinator_DefaultState(t *testing.T) {
	c := newTestCoordinator(t)

	state, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PageModeInactive, state.Mode)
	assert.False(t, state.Detected)
	assert.Empty(t, state.SourceURLs)
	assert.Zero(t, state.Version)
}

func TestCoordinator_SetBumpsVersion(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	next := model.DefaultSessionState()
	next.SelectedText = "claim"
	next.Version = 42 // ignored

	written, err := c.Set(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), written.Version)
	assert.Equal(t, "claim", written.SelectedText)

	written, err = c.Set(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), written.Version)
}

func TestCoordinator_UpdateAbortsOnError(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := c.Update(ctx, func(s *model.SessionState) error {
		s.SelectedText = "half written"
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.SelectedText)
	assert.Zero(t, state.Version)
}

func TestCoordinator_ConcurrentUpdates(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	const writers = 4
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := c.Update(ctx, func(s *model.SessionState) error {
					s.SourceURLs = append(s.SourceURLs, "https://example.com/")
					return nil
				})
				if err != nil && !errors.Is(err, ErrConflict) {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected update error: %v", err)
	}

	state, err := c.Get(ctx)
	require.NoError(t, err)
	// Every successful write appended exactly once
	assert.Equal(t, int(state.Version), len(state.SourceURLs))
}

func TestCoordinator_DetectionAndSelection(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	state, err := c.OnDetection(ctx, Detection{
		URLs:    []string{"https://a.test/", "https://b.test/"},
		Mode:    model.PageModeAIOverview,
		PageURL: "https://www.google.com/search?q=x",
	})
	require.NoError(t, err)
	assert.True(t, state.Detected)
	assert.Equal(t, model.PageModeAIOverview, state.Mode)
	assert.Len(t, state.SourceURLs, 2)

	applied, err := c.SetDecontextualized(ctx, state.SelectionID, "rewritten", true)
	require.NoError(t, err)
	assert.True(t, applied)

	state, err = c.OnSelection(ctx, Selection{Text: "It was built in 1889.", Context: "The tower. It was built in 1889."})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.SelectionID)
	assert.Equal(t, "It was built in 1889.", state.SelectedText)
	assert.Nil(t, state.Decontextualized, "a new selection clears the stored rewrite")
	assert.Len(t, state.SourceURLs, 2, "selection without URLs keeps detected URLs")

	state, err = c.OnSelection(ctx, Selection{Text: "Other claim", URLs: []string{"https://c.test/"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://c.test/"}, state.SourceURLs)
}

func TestCoordinator_StaleDecontextualization(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.OnSelection(ctx, Selection{Text: "first claim"})
	require.NoError(t, err)
	_, err = c.OnSelection(ctx, Selection{Text: "second claim"})
	require.NoError(t, err)

	applied, err := c.SetDecontextualized(ctx, first.SelectionID, "late rewrite", true)
	require.NoError(t, err)
	assert.False(t, applied)

	state, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.Decontextualized)

	current, err := c.IsCurrent(ctx, first.SelectionID)
	require.NoError(t, err)
	assert.False(t, current)
}

func TestCoordinator_Reset(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	sel, err := c.OnSelection(ctx, Selection{Text: "a claim", URLs: []string{"https://a.test/"}})
	require.NoError(t, err)

	state, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.SelectedText)
	assert.Empty(t, state.SourceURLs)
	assert.Equal(t, model.PageModeInactive, state.Mode)
	assert.Greater(t, state.SelectionID, sel.SelectionID)
}

func TestCoordinator_CredentialsFlag(t *testing.T) {
	c := newTestCoordinator(t)
	set := false
	c.WithCredentials(func() bool { return set })

	state, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, state.APIKeySet)

	set = true
	state, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, state.APIKeySet)
}

func TestCoordinator_ActivateGeneric(t *testing.T) {
	c := newTestCoordinator(t)

	state, err := c.ActivateGeneric(context.Background(), "https://blog.test/post")
	require.NoError(t, err)
	assert.True(t, state.Detected)
	assert.Equal(t, model.PageModeGeneric, state.Mode)
	assert.Equal(t, "https://blog.test/post", state.PageURL)
}

func TestCoordinator_SubscribeSeesLatest(t *testing.T) {
	c := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := c.Subscribe(ctx)
	require.NoError(t, err)

	initial := <-updates
	assert.Zero(t, initial.Version)

	for i := 0; i < 10; i++ {
		_, err := c.OnSelection(ctx, Selection{Text: "claim number"})
		require.NoError(t, err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case s := <-updates:
			if s.SelectionID == 10 {
				assert.Equal(t, uint64(10), s.Version)
				return
			}
		case <-deadline:
			t.Fatal("subscriber never observed the latest state")
		}
	}
}

func TestMemoryStore_SubscriptionClosesOnCancel(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := store.Subscribe(ctx)
	require.NoError(t, err)
	<-updates

	cancel()
	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestMemoryStore_CompareAndSwapConflict(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.CompareAndSwap(ctx, 0, model.DefaultSessionState())
	require.NoError(t, err)

	_, err = store.CompareAndSwap(ctx, 0, model.DefaultSessionState())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
