// Package cache owns the index lifecycle: load from a persisted
// snapshot when it is trustworthy, otherwise rebuild from the vault,
// and persist mutations back on a long debounce.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marklambrecht/lightning-local-search/internal/debounce"
	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/store"
	"github.com/marklambrecht/lightning-local-search/internal/vault"
)

// DefaultStalenessFraction is the minimum cached/live document ratio
// below which a snapshot is discarded and the index rebuilt.
const DefaultStalenessFraction = 0.8

// DefaultPersistDelay coalesces many small index mutations into one
// serialize-and-write.
const DefaultPersistDelay = 30 * time.Second

// snapshot is the persisted index form. It is trusted only when the
// schema version matches and the staleness check passes.
type snapshot struct {
	SchemaVersion int               `json:"schema_version"`
	DocumentCount int               `json:"document_count"`
	BuiltAt       int64             `json:"built_at"` // epoch millis
	IDs           map[string]uint64 `json:"ids"`
	Engine        json.RawMessage   `json:"engine"`
}

// Info describes the current index for status reporting.
type Info struct {
	Ready         bool
	DocumentCount int
	BuiltAt       time.Time
	SchemaVersion int
}

// Options configures the manager.
type Options struct {
	// Key is the per-collection snapshot key in the store.
	Key string
	// StalenessFraction overrides DefaultStalenessFraction when > 0.
	StalenessFraction float64
	// PersistDelay overrides DefaultPersistDelay when > 0.
	PersistDelay time.Duration
	// PersistEnabled gates all persistence. Off means the index lives
	// in memory only; nothing is ever written.
	PersistEnabled bool
	// Progress, when set, is called per document during a full rebuild.
	Progress func(done, total int)
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Key == "" {
		o.Key = "index"
	}
	if o.StalenessFraction <= 0 {
		o.StalenessFraction = DefaultStalenessFraction
	}
	if o.PersistDelay <= 0 {
		o.PersistDelay = DefaultPersistDelay
	}
	return o
}

// Manager owns the engine handle and the path→internal-id table. All
// index mutation funnels through Upsert and Remove so the table stays
// in lockstep with the engine: at most one live id per path.
type Manager struct {
	vault     vault.Vault
	extractor *extract.Extractor
	kv        Store
	opts      Options

	mu      sync.RWMutex
	engine  *store.Engine
	ids     map[string]uint64
	builtAt time.Time
	ready   bool

	persist *debounce.Timer
}

// NewManager wires the manager; call Initialize before searching.
func NewManager(v vault.Vault, x *extract.Extractor, kv Store, opts Options) *Manager {
	m := &Manager{
		vault:     v,
		extractor: x,
		kv:        kv,
		opts:      opts.WithDefaults(),
		ids:       make(map[string]uint64),
	}
	m.persist = debounce.New(m.opts.PersistDelay, func() {
		if err := m.Persist(); err != nil {
			slog.Warn("index persistence failed",
				slog.String("error", err.Error()))
		}
	})
	return m
}

// Initialize loads the persisted snapshot when usable and falls back to
// a full rebuild otherwise. Snapshot problems are warnings, never fatal.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.loadSnapshot(ctx) {
		return nil
	}
	return m.Rebuild(ctx)
}

// loadSnapshot reports whether a trusted snapshot was restored.
func (m *Manager) loadSnapshot(ctx context.Context) bool {
	if m.kv == nil {
		return false
	}
	blob, err := m.kv.Get(m.opts.Key)
	if err != nil {
		slog.Warn("snapshot read failed", slog.String("error", err.Error()))
		return false
	}
	if blob == nil {
		return false
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		slog.Warn("snapshot corrupt, rebuilding", slog.String("error", err.Error()))
		return false
	}
	if snap.SchemaVersion != store.SchemaVersion {
		slog.Warn("snapshot schema mismatch, rebuilding",
			slog.Int("snapshot_version", snap.SchemaVersion),
			slog.Int("current_version", store.SchemaVersion))
		return false
	}

	files, err := m.vault.List(ctx)
	if err != nil {
		slog.Warn("vault enumeration failed during staleness check",
			slog.String("error", err.Error()))
		return false
	}
	// An empty vault never triggers staleness: a just-opened collection
	// must not force a pointless rebuild.
	if len(files) > 0 {
		minimum := int(float64(len(files)) * m.opts.StalenessFraction)
		if snap.DocumentCount < minimum {
			slog.Warn("snapshot stale, rebuilding",
				slog.Int("cached_documents", snap.DocumentCount),
				slog.Int("live_files", len(files)))
			return false
		}
	}

	engine, err := store.Deserialize(snap.Engine)
	if err != nil {
		slog.Warn("snapshot deserialization failed, rebuilding",
			slog.String("error", err.Error()))
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		_ = m.engine.Close()
	}
	m.engine = engine
	m.ids = snap.IDs
	if m.ids == nil {
		m.ids = make(map[string]uint64)
	}
	m.builtAt = time.UnixMilli(snap.BuiltAt)
	m.ready = true

	slog.Info("index loaded from snapshot",
		slog.Int("documents", engine.Count()))
	return true
}

// Rebuild re-creates the engine from an empty state, streaming one
// document at a time from the extractor into engine inserts so the full
// set is never materialized. Cancellation is cooperative, checked
// between files; a file that fails extraction is skipped.
func (m *Manager) Rebuild(ctx context.Context) error {
	files, err := m.vault.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate vault: %w", err)
	}

	engine, err := store.NewEngine()
	if err != nil {
		return err
	}
	ids := make(map[string]uint64, len(files))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			_ = engine.Close()
			return err
		}
		doc, err := m.extractDocument(ctx, path)
		if err != nil {
			slog.Warn("skipping unextractable file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		id, err := engine.Insert(ctx, doc)
		if err != nil {
			slog.Warn("failed to index file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		ids[path] = id
		if m.opts.Progress != nil {
			m.opts.Progress(i+1, len(files))
		}
	}

	m.mu.Lock()
	if m.engine != nil {
		_ = m.engine.Close()
	}
	m.engine = engine
	m.ids = ids
	m.builtAt = time.Now()
	m.ready = true
	m.mu.Unlock()

	slog.Info("index rebuilt",
		slog.Int("documents", engine.Count()),
		slog.Int("files", len(files)))
	return nil
}

// extractDocument reads, stats and extracts one vault file.
func (m *Manager) extractDocument(ctx context.Context, path string) (*store.Document, error) {
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

// Upsert replaces the indexed document for a path: remove the previous
// id when one exists, insert the new document, update the table. The
// remove-then-insert pair runs under one lock so no other mutation of
// the same path can interleave.
func (m *Manager) Upsert(ctx context.Context, doc *store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return fmt.Errorf("index not initialized")
	}
	if old, ok := m.ids[doc.Path]; ok {
		if err := m.engine.Remove(ctx, old); err != nil {
			return fmt.Errorf("failed to supersede %s: %w", doc.Path, err)
		}
		delete(m.ids, doc.Path)
	}
	id, err := m.engine.Insert(ctx, doc)
	if err != nil {
		return err
	}
	m.ids[doc.Path] = id
	return nil
}

// Remove drops a path from the index. Unknown paths are already gone.
func (m *Manager) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil
	}
	id, ok := m.ids[path]
	if !ok {
		return nil
	}
	delete(m.ids, path)
	if err := m.engine.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// RemoveTree drops a path and everything under it. The match is
// segment-aware: "work" covers "work/plan.md" but not "workshop.md".
func (m *Manager) RemoveTree(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil
	}
	for path, id := range m.ids {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		delete(m.ids, path)
		if err := m.engine.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// Engine returns the live engine handle, nil before initialization.
func (m *Manager) Engine() *store.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil
	}
	return m.engine
}

// Info reports snapshot-style details about the live index.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{Ready: m.ready, SchemaVersion: store.SchemaVersion}
	if m.ready {
		info.DocumentCount = m.engine.Count()
		info.BuiltAt = m.builtAt
	}
	return info
}

// NoteChanged records that index contents changed; persistence runs
// after the persist delay, coalescing bursts of mutations.
func (m *Manager) NoteChanged() {
	if !m.opts.PersistEnabled {
		return
	}
	m.persist.Reset()
}

// Persist serializes the engine plus the id table into the store.
// Durability is best-effort: when persistence is disabled the call is a
// no-op, and callers treat failures as lost durability, not as faults.
func (m *Manager) Persist() error {
	if !m.opts.PersistEnabled || m.kv == nil {
		return nil
	}

	m.mu.RLock()
	if !m.ready {
		m.mu.RUnlock()
		return nil
	}
	blob, err := m.engine.Serialize()
	if err != nil {
		m.mu.RUnlock()
		return fmt.Errorf("failed to serialize engine: %w", err)
	}
	ids := make(map[string]uint64, len(m.ids))
	for k, v := range m.ids {
		ids[k] = v
	}
	count := m.engine.Count()
	builtAt := m.builtAt
	m.mu.RUnlock()

	out, err := json.Marshal(snapshot{
		SchemaVersion: store.SchemaVersion,
		DocumentCount: count,
		BuiltAt:       builtAt.UnixMilli(),
		IDs:           ids,
		Engine:        blob,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := m.kv.Put(m.opts.Key, out); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	slog.Debug("index persisted", slog.Int("documents", count))
	return nil
}

// PeekSnapshot reads snapshot metadata from the store without
// restoring the engine. found is false when no snapshot exists or it
// cannot be decoded.
func PeekSnapshot(kv Store, key string) (info Info, found bool) {
	if key == "" {
		key = "index"
	}
	blob, err := kv.Get(key)
	if err != nil || blob == nil {
		return Info{}, false
	}
	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Info{}, false
	}
	return Info{
		DocumentCount: snap.DocumentCount,
		BuiltAt:       time.UnixMilli(snap.BuiltAt),
		SchemaVersion: snap.SchemaVersion,
	}, true
}

// Close cancels pending persistence, makes one final persist attempt
// and releases the engine.
func (m *Manager) Close() error {
	m.persist.Cancel()
	if err := m.Persist(); err != nil {
		slog.Warn("final index persistence failed",
			slog.String("error", err.Error()))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	if m.engine != nil {
		err := m.engine.Close()
		m.engine = nil
		return err
	}
	return nil
}
