// Package filemap holds the flat path→content view of a bookmark collection
// and the change and snapshot types built on it.
package filemap

import (
	"path"
	"sort"
	"strings"
	"time"
)

const (
	// ListingName is the per-directory file recording child order.
	ListingName = "_order.json"
	// IndexName is the metadata file at the base path root.
	IndexName = "_index.json"
	// ReadmeName is the generated human-readable overview.
	ReadmeName = "README.md"
)

// FileMap maps slash-separated paths to file contents. Iteration order is
// irrelevant; use Paths for a stable order.
type FileMap map[string]string

// Paths returns the keys of m in sorted order.
func (m FileMap) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a shallow copy of m.
func (m FileMap) Clone() FileMap {
	out := make(FileMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Under returns the entries whose path lies below dir.
func (m FileMap) Under(dir string) FileMap {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	out := make(FileMap)
	for k, v := range m {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// Apply returns a copy of m with changes applied.
func (m FileMap) Apply(changes ChangeSet) FileMap {
	out := m.Clone()
	for p, c := range changes {
		if c.Tombstone {
			delete(out, p)
			continue
		}
		out[p] = c.Content
	}
	return out
}

// IsListing reports whether p names a directory listing file.
func IsListing(p string) bool {
	return path.Base(p) == ListingName
}

// IsGenerated reports whether p is regenerated as a side effect of pushing
// and must never be treated as a user change.
func IsGenerated(p string) bool {
	base := path.Base(p)
	return base == ReadmeName || base == IndexName
}

// WithoutGenerated returns a copy of m without generated paths.
func (m FileMap) WithoutGenerated() FileMap {
	out := make(FileMap, len(m))
	for k, v := range m {
		if !IsGenerated(k) {
			out[k] = v
		}
	}
	return out
}

// Change is a single proposed write: new content, or a tombstone.
type Change struct {
	Content   string
	Tombstone bool
}

// Put returns a content change.
func Put(content string) Change {
	return Change{Content: content}
}

// Delete returns a tombstone.
func Delete() Change {
	return Change{Tombstone: true}
}

// ChangeSet maps paths to changes.
type ChangeSet map[string]Change

// Paths returns the keys of cs in sorted order.
func (cs ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs))
	for p := range cs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Counts returns how many writes and tombstones cs holds.
func (cs ChangeSet) Counts() (writes, deletes int) {
	for _, c := range cs {
		if c.Tombstone {
			deletes++
		} else {
			writes++
		}
	}
	return writes, deletes
}

// Entry is one path of a Snapshot.
type Entry struct {
	// ObjectID is the remote blob id observed for the path, empty when the
	// path was not present remotely.
	ObjectID string
	Content  string
}

// Snapshot is the merge base: the file map plus remote identity recorded at
// the end of the last successful synchronization. It is replaced as a whole,
// never patched.
type Snapshot struct {
	Entries  map[string]Entry
	CommitID string
	SyncedAt time.Time
}

// NewSnapshot builds a snapshot from contents and the remote object ids.
func NewSnapshot(files FileMap, objectIDs map[string]string, commitID string, at time.Time) *Snapshot {
	entries := make(map[string]Entry, len(files))
	for p, content := range files {
		entries[p] = Entry{ObjectID: objectIDs[p], Content: content}
	}
	return &Snapshot{Entries: entries, CommitID: commitID, SyncedAt: at}
}

// Files returns the content view of the snapshot.
func (s *Snapshot) Files() FileMap {
	if s == nil {
		return FileMap{}
	}
	out := make(FileMap, len(s.Entries))
	for p, e := range s.Entries {
		out[p] = e.Content
	}
	return out
}

// BlobCache returns known contents keyed by remote object id, so unchanged
// blobs need not be downloaded again.
func (s *Snapshot) BlobCache() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, e := range s.Entries {
		if e.ObjectID != "" {
			out[e.ObjectID] = e.Content
		}
	}
	return out
}
