// Package memory provides an in-process ObjectStore with the same
// conditional-update semantics as a real Git remote. It backs tests and
// dry runs.
package memory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gitmarks/gitmarks/internal/remote"
)

// Stats counts mutating calls.
type Stats struct {
	BlobsCreated   int
	TreesCreated   int
	CommitsCreated int
	RefUpdates     int
}

// Store is an in-memory ObjectStore.
type Store struct {
	mu      sync.Mutex
	blobs   map[string]string
	trees   map[string]map[string]string
	commits map[string]*remote.Commit
	refs    map[string]string
	stats   Stats

	// requireInit mimics hosts that refuse object writes until the
	// repository has a first commit.
	requireInit bool

	// BeforeUpdateRef runs before every UpdateRef and CreateRef, outside the
	// lock. Tests use it to move the ref concurrently.
	BeforeUpdateRef func(branch string)
}

// New returns an empty store where objects can be created right away.
func New() *Store {
	return &Store{
		blobs:   make(map[string]string),
		trees:   map[string]map[string]string{emptyTreeID: {}},
		commits: make(map[string]*remote.Commit),
		refs:    make(map[string]string),
	}
}

// NewUninitialized returns a store that reports ErrEmptyRepo until a file
// is written through Initialize.
func NewUninitialized() *Store {
	s := New()
	s.requireInit = true
	return s
}

var _ remote.ObjectStore = (*Store)(nil)
var _ remote.Initializer = (*Store)(nil)

const emptyTreeID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

func (s *Store) GetRef(ctx context.Context, branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requireInit && len(s.commits) == 0 {
		return "", remote.ErrEmptyRepo
	}
	id, ok := s.refs[branch]
	if !ok {
		return "", fmt.Errorf("ref %s: %w", branch, remote.ErrNotFound)
	}
	return id, nil
}

func (s *Store) GetCommit(ctx context.Context, id string) (*remote.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[id]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", id, remote.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetTree(ctx context.Context, id string) (*remote.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", id, remote.ErrNotFound)
	}
	tree := &remote.Tree{ID: id}
	for _, p := range sortedKeys(entries) {
		tree.Entries = append(tree.Entries, remote.TreeEntry{Path: p, BlobID: entries[p]})
	}
	return tree, nil
}

func (s *Store) GetBlob(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.blobs[id]
	if !ok {
		return "", fmt.Errorf("blob %s: %w", id, remote.ErrNotFound)
	}
	return content, nil
}

func (s *Store) CreateBlob(ctx context.Context, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requireInit && len(s.commits) == 0 {
		return "", remote.ErrEmptyRepo
	}
	return s.putBlob(content), nil
}

func (s *Store) CreateTree(ctx context.Context, baseTreeID string, changes []remote.TreeChange) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putTree(baseTreeID, changes)
}

func (s *Store) CreateCommit(ctx context.Context, message, treeID string, parents []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCommit(message, treeID, parents)
}

func (s *Store) UpdateRef(ctx context.Context, branch, commitID, expected string) error {
	if hook := s.BeforeUpdateRef; hook != nil {
		hook(branch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.refs[branch]
	if !ok {
		return fmt.Errorf("ref %s: %w", branch, remote.ErrNotFound)
	}
	if current != expected {
		return fmt.Errorf("ref %s is at %s, expected %s: %w", branch, current, expected, remote.ErrNonFastForward)
	}
	if _, ok := s.commits[commitID]; !ok {
		return fmt.Errorf("commit %s: %w", commitID, remote.ErrNotFound)
	}
	s.refs[branch] = commitID
	s.stats.RefUpdates++
	return nil
}

func (s *Store) CreateRef(ctx context.Context, branch, commitID string) error {
	if hook := s.BeforeUpdateRef; hook != nil {
		hook(branch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refs[branch]; ok {
		return fmt.Errorf("ref %s: %w", branch, remote.ErrRefExists)
	}
	if _, ok := s.commits[commitID]; !ok {
		return fmt.Errorf("commit %s: %w", commitID, remote.ErrNotFound)
	}
	s.refs[branch] = commitID
	s.stats.RefUpdates++
	return nil
}

// Initialize creates the first commit holding a single file.
func (s *Store) Initialize(ctx context.Context, branch, path, content, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commits) > 0 {
		return fmt.Errorf("repository already initialized")
	}
	blob := s.putBlob(content)
	tree, err := s.putTree("", []remote.TreeChange{{Path: path, BlobID: blob}})
	if err != nil {
		return err
	}
	commit, err := s.putCommit(message, tree, nil)
	if err != nil {
		return err
	}
	s.refs[branch] = commit
	s.stats.RefUpdates++
	return nil
}

// Seed commits files on branch as a replacement of the whole tree, the way
// another replica would. It returns the new commit id.
func (s *Store) Seed(branch string, files map[string]string, message string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := make([]remote.TreeChange, 0, len(files))
	for _, p := range sortedKeys(files) {
		changes = append(changes, remote.TreeChange{Path: p, BlobID: s.putBlob(files[p])})
	}
	tree, _ := s.putTree("", changes)
	var parents []string
	if head, ok := s.refs[branch]; ok {
		parents = []string{head}
	}
	commit, _ := s.putCommit(message, tree, parents)
	s.refs[branch] = commit
	return commit
}

// Files returns the content of every file at the head of branch.
func (s *Store) Files(branch string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	head, ok := s.refs[branch]
	if !ok {
		return out
	}
	for p, blob := range s.trees[s.commits[head].TreeID] {
		out[p] = s.blobs[blob]
	}
	return out
}

// Head returns the commit id of branch, or "".
func (s *Store) Head(branch string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[branch]
}

// Stats returns a copy of the mutation counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) putBlob(content string) string {
	id := remote.BlobID(content)
	s.blobs[id] = content
	s.stats.BlobsCreated++
	return id
}

func (s *Store) putTree(baseTreeID string, changes []remote.TreeChange) (string, error) {
	entries := make(map[string]string)
	if baseTreeID != "" {
		base, ok := s.trees[baseTreeID]
		if !ok {
			return "", fmt.Errorf("tree %s: %w", baseTreeID, remote.ErrNotFound)
		}
		for p, id := range base {
			entries[p] = id
		}
	}
	for _, c := range changes {
		if c.IsDelete() {
			delete(entries, c.Path)
			continue
		}
		if _, ok := s.blobs[c.BlobID]; !ok {
			return "", fmt.Errorf("blob %s: %w", c.BlobID, remote.ErrInvalid)
		}
		entries[c.Path] = c.BlobID
	}

	var b strings.Builder
	for _, p := range sortedKeys(entries) {
		fmt.Fprintf(&b, "%s %s\n", entries[p], p)
	}
	id := hashOf("tree", b.String())
	s.trees[id] = entries
	s.stats.TreesCreated++
	return id, nil
}

func (s *Store) putCommit(message, treeID string, parents []string) (string, error) {
	if _, ok := s.trees[treeID]; !ok {
		return "", fmt.Errorf("tree %s: %w", treeID, remote.ErrInvalid)
	}
	if len(parents) > 1 {
		return "", fmt.Errorf("merge commits are not supported: %w", remote.ErrInvalid)
	}
	c := &remote.Commit{TreeID: treeID, Message: message}
	if len(parents) == 1 {
		c.ParentID = parents[0]
	}
	c.ID = hashOf("commit", fmt.Sprintf("%s\n%s\n%s\n%d", treeID, c.ParentID, message, len(s.commits)))
	s.commits[c.ID] = c
	s.stats.CommitsCreated++
	return c.ID, nil
}

func hashOf(kind, body string) string {
	sum := sha1.Sum([]byte(kind + " " + body))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
