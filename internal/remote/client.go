package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gitmarks/gitmarks/internal/filemap"
	"github.com/gitmarks/gitmarks/internal/logging"
	"github.com/gitmarks/gitmarks/internal/metrics"
)

// Config holds client settings.
type Config struct {
	// Branch is the ref that holds the bookmark tree.
	Branch string

	// Concurrency bounds parallel blob reads and writes.
	Concurrency int

	// Logger for commit progress. Defaults to stderr.
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Branch:      "main",
		Concurrency: 8,
	}
}

// Client exposes file-level reads and atomic commits over an ObjectStore.
type Client struct {
	store       ObjectStore
	branch      string
	concurrency int
	logger      *log.Logger
}

// New creates a client. A nil config uses DefaultConfig.
func New(store ObjectStore, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Client{
		store:       store,
		branch:      branch,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Branch returns the branch the client reads and advances.
func (c *Client) Branch() string {
	return c.branch
}

// GetLatestCommit returns the commit at the head of the branch. An
// uninitialized branch or repository yields an error satisfying IsEmpty.
func (c *Client) GetLatestCommit(ctx context.Context) (*Commit, error) {
	id, err := c.store.GetRef(ctx, c.branch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", c.branch, err)
	}
	commit, err := c.store.GetCommit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", id, err)
	}
	return commit, nil
}

// GetTree lists a tree recursively.
func (c *Client) GetTree(ctx context.Context, treeID string) (*Tree, error) {
	tree, err := c.store.GetTree(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree %s: %w", treeID, err)
	}
	return tree, nil
}

// GetBlob returns blob content.
func (c *Client) GetBlob(ctx context.Context, blobID string) (string, error) {
	content, err := c.store.GetBlob(ctx, blobID)
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", blobID, err)
	}
	return content, nil
}

// GetFile returns the content and blob id of one path at the branch head.
func (c *Client) GetFile(ctx context.Context, path string) (string, string, error) {
	if r, ok := c.store.(ContentReader); ok {
		content, blobID, err := r.GetContent(ctx, c.branch, path)
		if err != nil {
			return "", "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return content, blobID, nil
	}

	commit, err := c.GetLatestCommit(ctx)
	if err != nil {
		return "", "", err
	}
	tree, err := c.GetTree(ctx, commit.TreeID)
	if err != nil {
		return "", "", err
	}
	blobID, ok := tree.Blobs()[path]
	if !ok {
		return "", "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	content, err := c.GetBlob(ctx, blobID)
	if err != nil {
		return "", "", err
	}
	return content, blobID, nil
}

// State is the remote file map below a base path at one commit.
type State struct {
	CommitID  string
	TreeID    string
	Files     filemap.FileMap
	ObjectIDs map[string]string
}

// IsEmpty reports whether no files exist below the base path.
func (s *State) IsEmpty() bool {
	return s == nil || len(s.Files) == 0
}

// FetchFileMap downloads every file below basePath at the branch head.
// Blobs whose id is a key of cache are taken from it instead of the remote;
// the rest are fetched concurrently. An uninitialized remote yields an empty
// state rather than an error.
func (c *Client) FetchFileMap(ctx context.Context, basePath string, cache map[string]string) (*State, error) {
	commit, err := c.GetLatestCommit(ctx)
	if IsEmpty(err) {
		return &State{Files: make(filemap.FileMap), ObjectIDs: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, err
	}
	return c.fetchAt(ctx, commit, basePath, cache)
}

// FetchCommit is FetchFileMap at a given commit instead of the branch head.
func (c *Client) FetchCommit(ctx context.Context, commitID, basePath string, cache map[string]string) (*State, error) {
	commit, err := c.store.GetCommit(ctx, commitID)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", commitID, err)
	}
	return c.fetchAt(ctx, commit, basePath, cache)
}

// ListFiles returns the blob id of every file below basePath at the branch
// head without downloading any content.
func (c *Client) ListFiles(ctx context.Context, basePath string) (map[string]string, error) {
	ids := make(map[string]string)
	commit, err := c.GetLatestCommit(ctx)
	if IsEmpty(err) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	tree, err := c.GetTree(ctx, commit.TreeID)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(basePath, "/") + "/"
	for _, e := range tree.Entries {
		if strings.HasPrefix(e.Path, prefix) {
			ids[e.Path] = e.BlobID
		}
	}
	return ids, nil
}

func (c *Client) fetchAt(ctx context.Context, commit *Commit, basePath string, cache map[string]string) (*State, error) {
	state := &State{
		CommitID:  commit.ID,
		TreeID:    commit.TreeID,
		Files:     make(filemap.FileMap),
		ObjectIDs: make(map[string]string),
	}

	tree, err := c.GetTree(ctx, commit.TreeID)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(basePath, "/") + "/"
	var (
		mu      sync.Mutex
		hits    int
		missing []TreeEntry
	)
	for _, e := range tree.Entries {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		state.ObjectIDs[e.Path] = e.BlobID
		if content, ok := cache[e.BlobID]; ok {
			state.Files[e.Path] = content
			hits++
			continue
		}
		missing = append(missing, e)
	}
	metrics.RecordBlobCacheHits(hits)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, e := range missing {
		g.Go(func() error {
			content, err := c.GetBlob(gctx, e.BlobID)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Path, err)
			}
			mu.Lock()
			state.Files[e.Path] = content
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.Debugf(c.logger, "Fetched %d files at %s (%d from cache)", len(state.Files), shortID(commit.ID), hits)
	return state, nil
}

// CommitResult describes the outcome of AtomicCommit.
type CommitResult struct {
	// CommitID is the branch head after the call.
	CommitID string
	// Created is false when no effective change remained.
	Created bool
	// Changed counts the paths actually written or deleted.
	Changed int
	// Attempts is 2 when the single retry was used.
	Attempts int
}

// base is the branch state a commit is built on.
type base struct {
	commitID string
	treeID   string
	blobs    map[string]string
	// empty means the branch does not exist yet.
	empty bool
	// uninitialized means the repository has no commits at all.
	uninitialized bool
}

// AtomicCommit publishes changes as a single commit on the branch.
//
// Changes that would leave a path as it already is are dropped first; when
// nothing remains the current head is returned and no objects are created.
// If the branch moves between resolving the base and advancing the ref, or
// the remote fails with a transient server error, the commit is rebuilt once
// against the current head. A retry after a write that did land finds
// nothing left to change. A second failure is returned as is.
func (c *Client) AtomicCommit(ctx context.Context, message string, changes filemap.ChangeSet) (*CommitResult, error) {
	res, err := c.commitOnce(ctx, message, changes)
	if IsRetryable(err) {
		if errors.Is(err, ErrNonFastForward) {
			c.logger.Printf("Branch %s moved during commit, retrying against new head", c.branch)
		} else {
			logging.Warnf(c.logger, "Commit on %s failed, retrying once: %v", c.branch, err)
		}
		metrics.RecordCommitRetry()
		res, err = c.commitOnce(ctx, message, changes)
		if err != nil {
			return nil, fmt.Errorf("commit retry failed: %w", err)
		}
		res.Attempts = 2
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) commitOnce(ctx context.Context, message string, changes filemap.ChangeSet) (*CommitResult, error) {
	b, err := c.resolveBase(ctx)
	if err != nil {
		return nil, err
	}

	initialized := false
	if b.uninitialized {
		if init, ok := c.store.(Initializer); ok {
			if b, err = c.initialize(ctx, init, message, changes); err != nil {
				return nil, err
			}
			initialized = !b.uninitialized
		}
	}

	effective := effectiveChanges(changes, b.blobs)
	if len(effective) == 0 {
		return &CommitResult{CommitID: b.commitID, Created: initialized, Changed: boolToInt(initialized), Attempts: 1}, nil
	}

	blobIDs, err := c.createBlobs(ctx, effective)
	if err != nil {
		return nil, err
	}

	treeChanges := make([]TreeChange, 0, len(effective))
	for _, p := range effective.Paths() {
		treeChanges = append(treeChanges, TreeChange{Path: p, BlobID: blobIDs[p]})
	}

	treeID, err := c.store.CreateTree(ctx, b.treeID, treeChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree: %w", err)
	}

	var parents []string
	if !b.empty {
		parents = []string{b.commitID}
	}
	commitID, err := c.store.CreateCommit(ctx, message, treeID, parents)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit: %w", err)
	}

	if b.empty {
		err = c.store.CreateRef(ctx, c.branch, commitID)
		if errors.Is(err, ErrRefExists) {
			err = fmt.Errorf("%w: %s was created concurrently", ErrNonFastForward, c.branch)
		}
	} else {
		err = c.store.UpdateRef(ctx, c.branch, commitID, b.commitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance %s: %w", c.branch, err)
	}

	writes, deletes := effective.Counts()
	c.logger.Printf("Committed %s on %s: %d written, %d deleted", shortID(commitID), c.branch, writes, deletes)
	return &CommitResult{CommitID: commitID, Created: true, Changed: len(effective), Attempts: 1}, nil
}

func (c *Client) resolveBase(ctx context.Context) (*base, error) {
	head, err := c.store.GetRef(ctx, c.branch)
	switch {
	case errors.Is(err, ErrEmptyRepo):
		return &base{blobs: map[string]string{}, empty: true, uninitialized: true}, nil
	case errors.Is(err, ErrNotFound):
		return &base{blobs: map[string]string{}, empty: true}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to resolve %s: %w", c.branch, err)
	}

	commit, err := c.store.GetCommit(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", head, err)
	}
	tree, err := c.store.GetTree(ctx, commit.TreeID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree %s: %w", commit.TreeID, err)
	}
	return &base{commitID: head, treeID: commit.TreeID, blobs: tree.Blobs()}, nil
}

// initialize writes the first file through the store's bootstrap path and
// returns the resulting base.
func (c *Client) initialize(ctx context.Context, init Initializer, message string, changes filemap.ChangeSet) (*base, error) {
	for _, p := range changes.Paths() {
		change := changes[p]
		if change.Tombstone {
			continue
		}
		c.logger.Printf("Initializing empty repository with %s", p)
		if err := init.Initialize(ctx, c.branch, p, change.Content, message); err != nil {
			return nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		return c.resolveBase(ctx)
	}
	return &base{blobs: map[string]string{}, empty: true, uninitialized: true}, nil
}

// effectiveChanges drops writes whose content is already stored at the path
// and tombstones for paths that do not exist.
func effectiveChanges(changes filemap.ChangeSet, blobs map[string]string) filemap.ChangeSet {
	out := make(filemap.ChangeSet, len(changes))
	for p, change := range changes {
		current, exists := blobs[p]
		if change.Tombstone {
			if exists {
				out[p] = change
			}
			continue
		}
		if exists && current == BlobID(change.Content) {
			continue
		}
		out[p] = change
	}
	return out
}

func (c *Client) createBlobs(ctx context.Context, changes filemap.ChangeSet) (map[string]string, error) {
	var mu sync.Mutex
	ids := make(map[string]string, len(changes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for p, change := range changes {
		if change.Tombstone {
			continue
		}
		g.Go(func() error {
			id, err := c.store.CreateBlob(gctx, change.Content)
			if err != nil {
				return fmt.Errorf("failed to create blob for %s: %w", p, err)
			}
			mu.Lock()
			ids[p] = id
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
