package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newFSVault(t *testing.T, root string) *FSVault {
	t.Helper()
	v, err := NewFSVault(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestFSVault_ListTracksOnlyMarkdown(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "alpha")
	writeNote(t, root, "work/b.md", "beta")
	writeNote(t, root, "work/image.png", "binary")
	writeNote(t, root, ".lls/index.json", "{}")
	writeNote(t, root, ".git/config", "[core]")

	v := newFSVault(t, root)

	paths, err := v.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.md", "work/b.md"}, paths)
}

func TestFSVault_ReadAndStat(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "note.md", "hello vault")

	v := newFSVault(t, root)

	content, err := v.Read(context.Background(), "note.md")
	require.NoError(t, err)
	assert.Equal(t, "hello vault", string(content))

	info, err := v.Stat(context.Background(), "note.md")
	require.NoError(t, err)
	assert.Equal(t, "note.md", info.Path)
	assert.Positive(t, info.ModifiedAt)

	_, err = v.Read(context.Background(), "missing.md")
	assert.Error(t, err)
}

func TestFSVault_RejectsNonDirectory(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "file.md", "x")

	_, err := NewFSVault(context.Background(), filepath.Join(root, "file.md"))
	assert.Error(t, err)
}

func collectEvent(t *testing.T, v *FSVault, want func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-v.Events():
			require.True(t, ok, "event stream closed early")
			if want(ev) {
				return ev
			}
		case <-deadline:
			require.Fail(t, "expected event never arrived")
		}
	}
}

func TestFSVault_EmitsCreateAndDelete(t *testing.T) {
	root := t.TempDir()
	v := newFSVault(t, root)

	writeNote(t, root, "new.md", "fresh")
	ev := collectEvent(t, v, func(ev Event) bool {
		return ev.Path == "new.md" && ev.Kind == Created
	})
	assert.Equal(t, "new.md", ev.Path)

	require.NoError(t, os.Remove(filepath.Join(root, "new.md")))
	collectEvent(t, v, func(ev Event) bool {
		return ev.Path == "new.md" && ev.Kind == Deleted
	})
}

func TestFSVault_WatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	v := newFSVault(t, root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects"), 0o755))
	// The watcher needs a moment to pick up the new directory.
	time.Sleep(100 * time.Millisecond)

	writeNote(t, root, "projects/plan.md", "nested")
	collectEvent(t, v, func(ev Event) bool {
		return ev.Path == "projects/plan.md" && ev.Kind == Created
	})
}

func TestFSVault_DirectoryRemovalEmitsDelete(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "projects/plan.md", "nested")
	v := newFSVault(t, root)

	// Removing the directory must surface as a deletion of the subtree;
	// without it the notes underneath would linger in the index.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "projects")))
	collectEvent(t, v, func(ev Event) bool {
		return ev.Path == "projects" && ev.Kind == Deleted
	})
}

func TestFSVault_MovedInDirectoryAnnouncesNotes(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "vault")
	require.NoError(t, os.MkdirAll(root, 0o755))
	writeNote(t, base, "staging/imported/note.md", "moved in")

	v := newFSVault(t, root)

	// A directory moved into the vault arrives as one create event for
	// the directory; the notes inside must still be announced.
	require.NoError(t, os.Rename(
		filepath.Join(base, "staging", "imported"),
		filepath.Join(root, "imported")))
	collectEvent(t, v, func(ev Event) bool {
		return ev.Path == "imported/note.md" && ev.Kind == Created
	})
}

func TestFSVault_IgnoresNonMarkdownEvents(t *testing.T) {
	root := t.TempDir()
	v := newFSVault(t, root)

	writeNote(t, root, "image.png", "binary")
	writeNote(t, root, "note.md", "text")

	// Only the markdown file surfaces.
	ev := collectEvent(t, v, func(ev Event) bool { return ev.Kind == Created })
	assert.Equal(t, "note.md", ev.Path)
}

func TestFSVault_CloseEndsStream(t *testing.T) {
	root := t.TempDir()
	v := newFSVault(t, root)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	select {
	case _, ok := <-v.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not close")
	}
}
