package vault

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"
)

// MemVault is an in-memory Vault used by tests and by callers that
// already hold note content. Mutations do not emit events on their own;
// tests drive the event stream explicitly with Emit.
type MemVault struct {
	mu     sync.Mutex
	files  map[string]memFile
	events chan Event
	closed bool
}

type memFile struct {
	content    []byte
	createdAt  int64
	modifiedAt int64
}

// NewMemVault creates an empty in-memory vault.
func NewMemVault() *MemVault {
	return &MemVault{
		files:  make(map[string]memFile),
		events: make(chan Event, 64),
	}
}

// Put stores or replaces a note. Timestamps are epoch millis.
func (m *MemVault) Put(path string, content []byte, createdAt, modifiedAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = memFile{content: content, createdAt: createdAt, modifiedAt: modifiedAt}
}

// Delete removes a note.
func (m *MemVault) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Emit pushes an event into the stream.
func (m *MemVault) Emit(ev Event) {
	m.events <- ev
}

// List enumerates note paths in sorted order.
func (m *MemVault) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read returns a note's content.
func (m *MemVault) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return f.content, nil
}

// Stat returns a note's metadata.
func (m *MemVault) Stat(ctx context.Context, path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return FileInfo{Path: path, CreatedAt: f.createdAt, ModifiedAt: f.modifiedAt}, nil
}

// Events returns the event stream.
func (m *MemVault) Events() <-chan Event {
	return m.events
}

// Close closes the event stream. Safe to call multiple times.
func (m *MemVault) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

var _ Vault = (*MemVault)(nil)
