package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSVault is the on-disk vault implementation backed by fsnotify.
// fsnotify reports a rename as Rename on the old path plus Create on
// the new one, so FSVault never emits Renamed events itself; renames
// surface as Deleted + Created, which the sync manager handles the
// same way.
type FSVault struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	mu      sync.Mutex
	closed  bool
}

var _ Vault = (*FSVault)(nil)

// NewFSVault creates a vault rooted at dir and starts watching it
// recursively. The caller owns the returned vault and must Close it.
func NewFSVault(ctx context.Context, dir string) (*FSVault, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", root)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	v := &FSVault{
		root:    root,
		watcher: w,
		events:  make(chan Event, 256),
	}
	if err := v.watchRecursive(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	go v.run(ctx)
	return v, nil
}

// List walks the vault collecting trackable note paths.
func (v *FSVault) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if hidden(d.Name()) && p != v.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !trackable(p) {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate vault: %w", err)
	}
	return paths, nil
}

// Read returns the raw content of a vault-relative path.
func (v *FSVault) Read(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(v.root, filepath.FromSlash(path)))
}

// Stat returns file metadata. Creation time is not portably available,
// so ModTime stands in for both timestamps; frontmatter overrides win
// during extraction when present.
func (v *FSVault) Stat(ctx context.Context, path string) (FileInfo, error) {
	info, err := os.Stat(filepath.Join(v.root, filepath.FromSlash(path)))
	if err != nil {
		return FileInfo{}, err
	}
	millis := info.ModTime().UnixMilli()
	return FileInfo{Path: path, CreatedAt: millis, ModifiedAt: millis}, nil
}

// Events returns the change-event stream.
func (v *FSVault) Events() <-chan Event {
	return v.events
}

// Close stops watching and closes the event stream.
func (v *FSVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.watcher.Close()
}

// run translates fsnotify events into vault events until the watcher
// or the context stops.
func (v *FSVault) run(ctx context.Context) {
	defer close(v.events)
	for {
		select {
		case <-ctx.Done():
			_ = v.Close()
			return
		case ev, ok := <-v.watcher.Events:
			if !ok {
				return
			}
			v.handle(ev)
		case err, ok := <-v.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("vault watcher error", slog.String("error", err.Error()))
		}
	}
}

func (v *FSVault) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(v.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var kind EventKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			_ = v.announceTree(ev.Name)
			return
		}
		kind = Created
	case ev.Op&fsnotify.Write != 0:
		kind = Modified
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		kind = Deleted
	default:
		return
	}

	if !trackable(rel) {
		// A removed path cannot be stat'd, so directories are recognized
		// by their missing extension. A deleted directory takes its notes
		// with it and must reach the sync manager as a subtree deletion;
		// everything else outside the note extension is ignored.
		dirLike := filepath.Ext(rel) == "" && rel != "." && !hidden(filepath.Base(rel))
		if kind != Deleted || !dirLike {
			return
		}
	}

	v.send(Event{Kind: kind, Path: rel})
}

func (v *FSVault) send(ev Event) {
	select {
	case v.events <- ev:
	default:
		slog.Warn("vault event buffer full, dropping event",
			slog.String("path", ev.Path),
			slog.String("kind", ev.Kind.String()))
	}
}

// announceTree watches a directory that appeared after startup and
// emits Created for every note already inside it. A directory moved
// into the vault arrives as a single create event for the directory
// itself, so its contents would otherwise go unnoticed.
func (v *FSVault) announceTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hidden(d.Name()) && p != dir {
				return filepath.SkipDir
			}
			if err := v.watcher.Add(p); err != nil {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			return nil
		}
		if !trackable(p) {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		v.send(Event{Kind: Created, Path: filepath.ToSlash(rel)})
		return nil
	})
}

// watchRecursive adds dir and every subdirectory to the watcher.
func (v *FSVault) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) && p != dir {
			return filepath.SkipDir
		}
		if err := v.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// trackable reports whether a path is an indexable note.
func trackable(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

// hidden reports whether a directory name is dot-prefixed.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
