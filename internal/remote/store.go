// Package remote talks to a Git object store: blobs, trees, commits and a
// single branch ref. The Client layers file-level reads and the atomic
// multi-file commit protocol on top of any ObjectStore backend.
package remote

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// Commit is an immutable commit object.
type Commit struct {
	ID     string
	TreeID string
	// ParentID is empty for a root commit.
	ParentID string
	Message  string
}

// TreeEntry is one blob of a recursively listed tree.
type TreeEntry struct {
	Path   string
	BlobID string
}

// Tree is a recursively listed tree, blobs only.
type Tree struct {
	ID      string
	Entries []TreeEntry
}

// Blobs returns the tree as path → blob id.
func (t *Tree) Blobs() map[string]string {
	out := make(map[string]string, len(t.Entries))
	for _, e := range t.Entries {
		out[e.Path] = e.BlobID
	}
	return out
}

// TreeChange is one path of an incremental tree update. An empty BlobID
// deletes the path.
type TreeChange struct {
	Path   string
	BlobID string
}

// IsDelete reports whether c removes its path.
func (c TreeChange) IsDelete() bool {
	return c.BlobID == ""
}

// ObjectStore is the blob/tree/commit/ref surface of a Git remote.
//
// Implementations return errors wrapping the package sentinels: ErrNotFound
// for a missing ref or object, ErrEmptyRepo when the repository has no
// commits, ErrNonFastForward when UpdateRef loses a race, and ErrRefExists
// when CreateRef finds the ref already present.
type ObjectStore interface {
	// GetRef returns the commit id the branch points at.
	GetRef(ctx context.Context, branch string) (string, error)

	// GetCommit returns a commit object.
	GetCommit(ctx context.Context, id string) (*Commit, error)

	// GetTree lists a tree recursively.
	GetTree(ctx context.Context, id string) (*Tree, error)

	// GetBlob returns blob content.
	GetBlob(ctx context.Context, id string) (string, error)

	// CreateBlob stores content and returns its id.
	CreateBlob(ctx context.Context, content string) (string, error)

	// CreateTree derives a new tree from baseTreeID (empty for none) by
	// applying changes, and returns its id.
	CreateTree(ctx context.Context, baseTreeID string, changes []TreeChange) (string, error)

	// CreateCommit stores a commit and returns its id.
	CreateCommit(ctx context.Context, message, treeID string, parents []string) (string, error)

	// UpdateRef moves the branch to commitID provided it still points at
	// expected, or at an ancestor of commitID for stores that only enforce
	// fast-forward.
	UpdateRef(ctx context.Context, branch, commitID, expected string) error

	// CreateRef creates the branch at commitID.
	CreateRef(ctx context.Context, branch, commitID string) error
}

// Initializer is implemented by stores that cannot create objects in a
// repository without commits and need one file written first.
type Initializer interface {
	Initialize(ctx context.Context, branch, path, content, message string) error
}

// ContentReader is implemented by stores that can read a single file at the
// branch head in one request.
type ContentReader interface {
	GetContent(ctx context.Context, branch, path string) (content, blobID string, err error)
}

// BlobID returns the Git object id of a blob holding content, so unchanged
// files can be recognized without a round trip.
func BlobID(content string) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
