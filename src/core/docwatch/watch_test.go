package docwatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/src/core/document"
	"docchat/src/core/docwatch"
)

type fakeStatusStore struct {
	mu   sync.Mutex
	docs map[string]*document.Document
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{docs: map[string]*document.Document{}}
}

func (s *fakeStatusStore) Create(ctx context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Status = document.StatusQueued
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeStatusStore) Get(ctx context.Context, id string) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStatusStore) SetStatus(ctx context.Context, id string, status document.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return document.ErrNotFound
	}
	if doc.Status.CanTransition(status) {
		doc.Status = status
		doc.FailureReason = reason
	}
	return nil
}

func (s *fakeStatusStore) SetProcessed(ctx context.Context, id string, chunkCount int) error {
	if err := s.SetStatus(ctx, id, document.StatusProcessed, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id].ChunkCount = chunkCount
	return nil
}

const testInterval = 5 * time.Millisecond

func receiveEvent(t *testing.T, events <-chan docwatch.StatusEvent) docwatch.StatusEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed before expected event")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status event")
		return docwatch.StatusEvent{}
	}
}

func requireClosed(t *testing.T, events <-chan docwatch.StatusEvent) {
	t.Helper()
	select {
	case _, ok := <-events:
		require.False(t, ok, "expected stream to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to close")
	}
}

func TestWatchObservesLifecycle(t *testing.T) {
	store := newFakeStatusStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &document.Document{ID: "doc-1", Filename: "doc.pdf"}))

	w := docwatch.NewWatcher(store, testInterval)
	events, err := w.Watch(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, document.StatusQueued, receiveEvent(t, events).Status)

	require.NoError(t, store.SetStatus(ctx, "doc-1", document.StatusProcessing, ""))
	assert.Equal(t, document.StatusProcessing, receiveEvent(t, events).Status)

	require.NoError(t, store.SetProcessed(ctx, "doc-1", 4))
	assert.Equal(t, document.StatusProcessed, receiveEvent(t, events).Status)

	requireClosed(t, events)
}

func TestWatchLateSubscriberGetsTerminalImmediately(t *testing.T) {
	store := newFakeStatusStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &document.Document{ID: "doc-1", Filename: "doc.pdf"}))
	require.NoError(t, store.SetStatus(ctx, "doc-1", document.StatusProcessing, ""))
	require.NoError(t, store.SetProcessed(ctx, "doc-1", 2))

	w := docwatch.NewWatcher(store, testInterval)
	events, err := w.Watch(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, document.StatusProcessed, receiveEvent(t, events).Status)
	requireClosed(t, events)
}

func TestWatchFailureCarriesReason(t *testing.T) {
	store := newFakeStatusStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &document.Document{ID: "doc-1", Filename: "doc.pdf"}))

	w := docwatch.NewWatcher(store, testInterval)
	events, err := w.Watch(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, document.StatusQueued, receiveEvent(t, events).Status)

	require.NoError(t, store.SetStatus(ctx, "doc-1", document.StatusFailed, "extraction failed: corrupt file"))

	ev := receiveEvent(t, events)
	assert.Equal(t, document.StatusFailed, ev.Status)
	assert.Contains(t, ev.Reason, "corrupt file")
	requireClosed(t, events)
}

func TestWatchUnknownDocument(t *testing.T) {
	w := docwatch.NewWatcher(newFakeStatusStore(), testInterval)

	_, err := w.Watch(context.Background(), "missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestWatchCancelReleasesSubscription(t *testing.T) {
	store := newFakeStatusStore()
	require.NoError(t, store.Create(context.Background(), &document.Document{ID: "doc-1", Filename: "doc.pdf"}))

	ctx, cancel := context.WithCancel(context.Background())
	w := docwatch.NewWatcher(store, testInterval)
	events, err := w.Watch(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, document.StatusQueued, receiveEvent(t, events).Status)

	cancel()
	requireClosed(t, events)
}

func TestWatchIndependentSubscribers(t *testing.T) {
	store := newFakeStatusStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &document.Document{ID: "doc-1", Filename: "doc.pdf"}))

	w := docwatch.NewWatcher(store, testInterval)

	cancelCtx, cancel := context.WithCancel(ctx)
	first, err := w.Watch(cancelCtx, "doc-1")
	require.NoError(t, err)
	second, err := w.Watch(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, document.StatusQueued, receiveEvent(t, first).Status)
	assert.Equal(t, document.StatusQueued, receiveEvent(t, second).Status)

	// Dropping one subscriber must not disturb the other
	cancel()
	requireClosed(t, first)

	require.NoError(t, store.SetProcessed(ctx, "doc-1", 1))
	assert.Equal(t, document.StatusProcessed, receiveEvent(t, second).Status)
	requireClosed(t, second)
}
