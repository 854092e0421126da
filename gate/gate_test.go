package gate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/flowkeeper/canonical"
	"github.com/hazyhaar/flowkeeper/dbopen"
	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/hashstore"
)

type fakeStore struct {
	mu   sync.Mutex
	docs map[string]string
	md   map[string]map[string]any
	adds int
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]string{}, md: map[string]map[string]any{}}
}

func (f *fakeStore) AddDocument(_ context.Context, source, docID, content string, md map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.adds++
	f.docs[source+"-"+docID] = content
	f.md[source+"-"+docID] = md
	return nil
}

func newGate(t *testing.T) (*Gate, *fakeStore) {
	t.Helper()
	hs, err := hashstore.New(dbopen.OpenMemory(t))
	require.NoError(t, err)
	store := newFakeStore()
	return New(hs, store), store
}

func TestIngest_Idempotent(t *testing.T) {
	g, store := newGate(t)
	ctx := context.Background()
	req := Request{Key: "flow::login::abcd1234", SourceType: "workflow_recorder", Content: `{"steps":[]}`}

	first, err := g.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, first.Status)
	assert.Equal(t, req.Key, first.ID)

	second, err := g.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)

	assert.Equal(t, 1, store.adds)
	assert.Len(t, store.docs, 1)
	assert.Equal(t, req.Key, store.md["workflow_recorder-"+req.Key][KeyMetadata])
}

func TestIngest_ChangedContentUpdates(t *testing.T) {
	g, store := newGate(t)
	ctx := context.Background()

	for _, content := range []string{"v1", "v2", "v2", "v1"} {
		_, err := g.Ingest(ctx, Request{Key: "PRJ-1", SourceType: "jira", Content: content})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.adds)
	assert.Equal(t, "v1", store.docs["jira-PRJ-1"])
}

func TestIngest_DerivedKey(t *testing.T) {
	g, _ := newGate(t)
	res, err := g.Ingest(context.Background(), Request{SourceType: "ui_crawl", Content: "UI Step 0: {}"})
	require.NoError(t, err)

	want, err := canonical.Hash("UI Step 0: {}")
	require.NoError(t, err)
	assert.Equal(t, want, res.ID)
}

func TestIngest_StoreFailureIsFailClosed(t *testing.T) {
	g, store := newGate(t)
	ctx := context.Background()
	store.err = faults.Unavailable(errors.New("vector db offline"))

	_, err := g.Ingest(ctx, Request{Key: "k", SourceType: "s", Content: "c"})
	require.Error(t, err)
	assert.True(t, faults.IsUnavailable(err))

	store.err = nil
	res, err := g.Ingest(ctx, Request{Key: "k", SourceType: "s", Content: "c"})
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status, "failed write must not be remembered")
}

func TestIngest_ConcurrentSameKey(t *testing.T) {
	g, store := newGate(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	statuses := make([]Status, 16)
	for i := range statuses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Ingest(ctx, Request{Key: "same", SourceType: "s", Content: "identical"})
			if err != nil {
				t.Errorf("ingest: %v", err)
				return
			}
			statuses[i] = res.Status
		}()
	}
	wg.Wait()

	updated := 0
	for _, s := range statuses {
		if s == StatusUpdated {
			updated++
		}
	}
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, store.adds)
	assert.Empty(t, g.locks)
}

func TestIngest_RequiresSourceType(t *testing.T) {
	g, _ := newGate(t)
	_, err := g.Ingest(context.Background(), Request{Key: "k", Content: "c"})
	assert.Error(t, err)
}
