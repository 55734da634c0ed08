// Package vault abstracts the note collection on disk: enumeration,
// content reads, per-file timestamps and a typed change-event stream.
// The sync manager consumes this interface without knowing whether
// events come from fsnotify, polling or a test fake.
package vault

import "context"

// EventKind classifies a file lifecycle event.
type EventKind int

const (
	Created EventKind = iota
	Modified
	Deleted
	Renamed
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "CREATE"
	case Modified:
		return "MODIFY"
	case Deleted:
		return "DELETE"
	case Renamed:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Event is one file lifecycle event. Paths are vault-relative with
// forward slashes. OldPath is set only for Renamed.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string
}

// FileInfo carries the metadata needed to build an indexable document.
type FileInfo struct {
	Path       string
	CreatedAt  int64 // epoch millis
	ModifiedAt int64 // epoch millis
}

// Vault is the file-system collaborator the index is built over.
type Vault interface {
	// List enumerates all trackable note paths, vault-relative.
	List(ctx context.Context) ([]string, error)

	// Read returns the raw content of a note.
	Read(ctx context.Context, path string) ([]byte, error)

	// Stat returns file metadata for a note.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Events returns the change-event stream. Closed on Close.
	Events() <-chan Event

	// Close releases watching resources. Safe to call multiple times.
	Close() error
}
