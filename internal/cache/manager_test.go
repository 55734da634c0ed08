package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/store"
	"github.com/marklambrecht/lightning-local-search/internal/vault"
)

// memStore is an in-memory Store for driving snapshot scenarios.
type memStore struct {
	blobs map[string][]byte
	puts  int
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string][]byte)} }

func (s *memStore) Put(key string, blob []byte) error {
	s.puts++
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *memStore) Get(key string) ([]byte, error) {
	blob, ok := s.blobs[key]
	if !ok {
		return nil, nil
	}
	return blob, nil
}

func seededVault(n int) *vault.MemVault {
	v := vault.NewMemVault()
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("notes/note-%02d.md", i)
		body := fmt.Sprintf("# Note %d\n\ncontent for note number %d\n", i, i)
		v.Put(path, []byte(body), 1000, 2000)
	}
	return v
}

func persistingOptions() Options {
	return Options{PersistEnabled: true}
}

func TestInitialize_RebuildsWhenNoSnapshot(t *testing.T) {
	v := seededVault(3)
	m := NewManager(v, extract.NewExtractor(), newMemStore(), persistingOptions())
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Initialize(context.Background()))

	engine := m.Engine()
	require.NotNil(t, engine)
	assert.Equal(t, 3, engine.Count())
	assert.True(t, m.Info().Ready)
}

func TestInitialize_LoadsPersistedSnapshot(t *testing.T) {
	v := seededVault(3)
	kv := newMemStore()

	first := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	require.NoError(t, first.Initialize(context.Background()))
	require.NoError(t, first.Persist())
	require.NoError(t, first.Close())

	second := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Initialize(context.Background()))

	engine := second.Engine()
	require.NotNil(t, engine)
	assert.Equal(t, 3, engine.Count())

	hits, err := engine.Search(context.Background(), store.SearchRequest{Term: "content", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestInitialize_CorruptSnapshotFallsBackToRebuild(t *testing.T) {
	v := seededVault(2)
	kv := newMemStore()
	kv.blobs["index"] = []byte("{not json")

	m := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Initialize(context.Background()))

	engine := m.Engine()
	require.NotNil(t, engine)
	assert.Equal(t, 2, engine.Count())
}

func TestInitialize_SchemaMismatchForcesRebuild(t *testing.T) {
	v := seededVault(2)
	kv := newMemStore()

	first := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	require.NoError(t, first.Initialize(context.Background()))
	require.NoError(t, first.Persist())
	require.NoError(t, first.Close())

	// A snapshot written by a different schema version is untrusted.
	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(kv.blobs["index"], &snap))
	snap["schema_version"] = json.RawMessage(fmt.Sprint(store.SchemaVersion + 1))
	edited, err := json.Marshal(snap)
	require.NoError(t, err)
	kv.blobs["index"] = edited

	second := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Initialize(context.Background()))
	assert.Equal(t, 2, second.Engine().Count())
}

func TestInitialize_StaleSnapshotForcesRebuild(t *testing.T) {
	v := seededVault(10)
	kv := newMemStore()

	first := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	require.NoError(t, first.Initialize(context.Background()))
	require.NoError(t, first.Persist())
	require.NoError(t, first.Close())

	// Double the vault: 10 cached documents against 20 live files is
	// under the staleness fraction, so the snapshot is discarded.
	for i := 10; i < 20; i++ {
		v.Put(fmt.Sprintf("notes/note-%02d.md", i),
			[]byte(fmt.Sprintf("content for note number %d", i)), 1000, 2000)
	}

	second := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Initialize(context.Background()))
	assert.Equal(t, 20, second.Engine().Count())
}

func TestInitialize_EmptyVaultNeverStale(t *testing.T) {
	v := seededVault(3)
	kv := newMemStore()

	first := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	require.NoError(t, first.Initialize(context.Background()))
	require.NoError(t, first.Persist())
	require.NoError(t, first.Close())

	empty := vault.NewMemVault()
	second := NewManager(empty, extract.NewExtractor(), kv, persistingOptions())
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Initialize(context.Background()))

	// The snapshot is kept even though it holds more documents than the
	// (empty) vault.
	assert.Equal(t, 3, second.Engine().Count())
}

func TestUpsert_SamePathNeverDuplicates(t *testing.T) {
	v := seededVault(1)
	m := NewManager(v, extract.NewExtractor(), nil, Options{})
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Initialize(context.Background()))

	for i := 0; i < 5; i++ {
		doc := &store.Document{
			Path:  "notes/note-00.md",
			Title: fmt.Sprintf("revision %d", i),
			Body:  "updated body",
		}
		require.NoError(t, m.Upsert(context.Background(), doc))
	}

	engine := m.Engine()
	assert.Equal(t, 1, engine.Count())

	hits, err := engine.Search(context.Background(), store.SearchRequest{Term: "revision", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "revision 4", hits[0].Doc.Title)
}

func TestRemove_UnknownPathIsAlreadyGone(t *testing.T) {
	v := seededVault(1)
	m := NewManager(v, extract.NewExtractor(), nil, Options{})
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Initialize(context.Background()))

	assert.NoError(t, m.Remove(context.Background(), "never/indexed.md"))
	assert.Equal(t, 1, m.Engine().Count())
}

func TestRemove_DropsDocument(t *testing.T) {
	v := seededVault(2)
	m := NewManager(v, extract.NewExtractor(), nil, Options{})
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, m.Remove(context.Background(), "notes/note-00.md"))
	assert.Equal(t, 1, m.Engine().Count())

	// Removing again is a no-op.
	require.NoError(t, m.Remove(context.Background(), "notes/note-00.md"))
	assert.Equal(t, 1, m.Engine().Count())
}

func TestRemoveTree_DropsFolderSubtree(t *testing.T) {
	ctx := context.Background()
	v := vault.NewMemVault()
	v.Put("work/plan.md", []byte("plan"), 1, 1)
	v.Put("work/archive/notes.md", []byte("archive"), 1, 1)
	v.Put("workshop.md", []byte("prep"), 1, 1)

	m := NewManager(v, extract.NewExtractor(), nil, Options{})
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Initialize(ctx))
	require.Equal(t, 3, m.Engine().Count())

	// "work" covers its subtree but not "workshop.md"; prefixes stop at
	// segment boundaries.
	require.NoError(t, m.RemoveTree(ctx, "work"))
	assert.Equal(t, 1, m.Engine().Count())

	hits, err := m.Engine().Search(ctx, store.SearchRequest{Term: "prep", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "workshop.md", hits[0].Doc.Path)

	// A file path removes exactly that file.
	require.NoError(t, m.RemoveTree(ctx, "workshop.md"))
	assert.Equal(t, 0, m.Engine().Count())
}

func TestPersist_DisabledWritesNothing(t *testing.T) {
	v := seededVault(1)
	kv := newMemStore()
	m := NewManager(v, extract.NewExtractor(), kv, Options{PersistEnabled: false})
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, m.Persist())
	m.NoteChanged()
	assert.Zero(t, kv.puts)
}

func TestPersist_SnapshotSurvivesFileStore(t *testing.T) {
	v := seededVault(2)
	kv, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	m := NewManager(v, extract.NewExtractor(), kv, persistingOptions())
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Persist())
	require.NoError(t, m.Close())

	info, found := PeekSnapshot(kv, "")
	require.True(t, found)
	assert.Equal(t, 2, info.DocumentCount)
	assert.Equal(t, store.SchemaVersion, info.SchemaVersion)
	assert.False(t, info.BuiltAt.IsZero())
}

func TestPeekSnapshot_MissingKey(t *testing.T) {
	_, found := PeekSnapshot(newMemStore(), "index")
	assert.False(t, found)
}

func TestEngine_NilBeforeInitialize(t *testing.T) {
	m := NewManager(vault.NewMemVault(), extract.NewExtractor(), nil, Options{})
	defer func() { _ = m.Close() }()

	assert.Nil(t, m.Engine())
	assert.False(t, m.Info().Ready)
}

func TestRebuild_ProgressReported(t *testing.T) {
	v := seededVault(4)
	var calls int
	var lastDone, lastTotal int
	m := NewManager(v, extract.NewExtractor(), nil, Options{
		Progress: func(done, total int) {
			calls++
			lastDone, lastTotal = done, total
		},
	})
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Rebuild(context.Background()))
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, lastDone)
	assert.Equal(t, 4, lastTotal)
}

func TestRebuild_CancelledContext(t *testing.T) {
	v := seededVault(3)
	m := NewManager(v, extract.NewExtractor(), nil, Options{})
	defer func() { _ = m.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Rebuild(ctx), context.Canceled)
}
