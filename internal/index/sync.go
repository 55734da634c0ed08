// Package index keeps the search index consistent with the vault as
// files change: rapid edits to the same note are coalesced by a
// trailing debounce, deletes apply immediately, and every flushed batch
// produces exactly one change notification.
package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marklambrecht/lightning-local-search/internal/debounce"
	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/store"
	"github.com/marklambrecht/lightning-local-search/internal/vault"
)

// DefaultWindow is the trailing debounce delay before a pending batch
// is flushed into the index.
const DefaultWindow = 500 * time.Millisecond

// Indexer is the mutation surface the sync manager drives. The cache
// manager implements it; it owns the path→id table, so remove-then-
// insert ordering per path is enforced there.
type Indexer interface {
	Upsert(ctx context.Context, doc *store.Document) error
	Remove(ctx context.Context, path string) error
	RemoveTree(ctx context.Context, prefix string) error
}

// SyncManager subscribes to vault events and applies them to the index.
// Create/modify events park the path in a pending map (last-write-wins,
// one entry per path) until the debounce window closes; delete and the
// remove half of rename bypass the debounce entirely.
type SyncManager struct {
	vault     vault.Vault
	extractor *extract.Extractor
	indexer   Indexer
	onChange  func()

	mu      sync.Mutex
	pending map[string]struct{}
	ctx     context.Context
	flush   *debounce.Timer
	stopped bool
}

// NewSyncManager wires a sync manager. onChange fires once per applied
// batch (or immediate delete); nil is allowed.
func NewSyncManager(v vault.Vault, x *extract.Extractor, idx Indexer, window time.Duration, onChange func()) *SyncManager {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &SyncManager{
		vault:     v,
		extractor: x,
		indexer:   idx,
		onChange:  onChange,
		pending:   make(map[string]struct{}),
		ctx:       context.Background(),
	}
	m.flush = debounce.New(window, m.flushPending)
	return m
}

// Run consumes the vault event stream until the context is cancelled or
// the stream closes, then stops the manager.
func (m *SyncManager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	events := m.vault.Events()
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				m.Stop()
				return nil
			}
			m.Handle(ev)
		}
	}
}

// Handle applies one vault event. Events for the same path arrive in
// order; the pending map guarantees at most one queued re-index per
// path regardless of how many events hit it inside the window.
func (m *SyncManager) Handle(ev vault.Event) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	switch ev.Kind {
	case vault.Created, vault.Modified:
		m.pending[ev.Path] = struct{}{}
		m.flush.Reset()
		m.mu.Unlock()

	case vault.Deleted:
		// Deletes bypass the debounce: cancel any queued re-index and
		// drop the document now. The path may name a directory, in which
		// case every note under it leaves the index and the pending map.
		for path := range m.pending {
			if path == ev.Path || strings.HasPrefix(path, ev.Path+"/") {
				delete(m.pending, path)
			}
		}
		ctx := m.ctx
		m.mu.Unlock()

		if err := m.indexer.RemoveTree(ctx, ev.Path); err != nil {
			slog.Warn("failed to remove deleted note",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
		}
		m.notify()

	case vault.Renamed:
		// The old path leaves the index immediately; the new path is
		// queued as if freshly modified, so edits that land right after
		// the rename coalesce into the same flush.
		delete(m.pending, ev.OldPath)
		m.pending[ev.Path] = struct{}{}
		m.flush.Reset()
		ctx := m.ctx
		m.mu.Unlock()

		if err := m.indexer.Remove(ctx, ev.OldPath); err != nil {
			slog.Warn("failed to remove renamed note",
				slog.String("path", ev.OldPath),
				slog.String("error", err.Error()))
		}
		m.notify()

	default:
		m.mu.Unlock()
	}
}

// flushPending extracts and upserts everything queued, then notifies
// once for the whole batch. A file that fails extraction is skipped;
// the rest of the batch proceeds.
func (m *SyncManager) flushPending() {
	m.mu.Lock()
	if m.stopped || len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(m.pending))
	for path := range m.pending {
		batch = append(batch, path)
	}
	m.pending = make(map[string]struct{})
	ctx := m.ctx
	m.mu.Unlock()

	var applied int
	for _, path := range batch {
		doc, err := m.extractDocument(ctx, path)
		if err != nil {
			slog.Warn("skipping unextractable note",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		if err := m.indexer.Upsert(ctx, doc); err != nil {
			slog.Warn("failed to index note",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		applied++
	}

	slog.Debug("flushed pending updates",
		slog.Int("batch", len(batch)),
		slog.Int("applied", applied))
	m.notify()
}

func (m *SyncManager) extractDocument(ctx context.Context, path string) (*store.Document, error) {
	content, err := m.vault.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	info, err := m.vault.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	return m.extractor.Extract(path, content, extract.FileMeta{
		CreatedAt:  info.CreatedAt,
		ModifiedAt: info.ModifiedAt,
	})
}

// notify fires the change callback exactly once per applied batch.
func (m *SyncManager) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}

// Stop cancels the debounce timer and drops whatever is still pending.
// Extraction can be slow, so shutdown never force-flushes queued work.
func (m *SyncManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	m.flush.Cancel()
	m.pending = make(map[string]struct{})
}
