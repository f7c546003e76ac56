// Package filestore is a bookmark.Host backed by a single JSON, YAML or TOML
// document on disk.
//
// Every mutation rewrites the document atomically and publishes a
// bookmark.ChangeEvent. When watching is enabled, edits made to the file by
// other programs are picked up through fsnotify and published as OpChanged
// events with an empty ID. The store's own writes are recognized by content
// hash and never echo back as external edits.
package filestore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	"github.com/gitmarks/gitmarks/internal/logging"
)

// RootID is the ID of the invisible root whose children are the top-level
// folders.
const RootID = "root"

// Default top-level folders written to a new document.
const (
	DefaultToolbarTitle = "Bookmarks bar"
	DefaultOtherTitle   = "Other bookmarks"
)

// Config configures a Store.
type Config struct {
	// Watch enables fsnotify watching of the document for external edits.
	Watch bool

	// EventBuffer is the capacity of the events channel.
	EventBuffer int

	// Logger for diagnostics (defaults to stderr).
	Logger *log.Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Watch:       false,
		EventBuffer: 100,
	}
}

// Store implements bookmark.Host and bookmark.Notifier.
type Store struct {
	path   string
	format Format
	logger *log.Logger

	mu       sync.Mutex
	root     *bookmark.Node
	lastHash uint64 // xxhash of the bytes last written or read
	closed   bool

	events  chan bookmark.ChangeEvent
	watcher *watcher
}

var (
	_ bookmark.Host     = (*Store)(nil)
	_ bookmark.Notifier = (*Store)(nil)
)

// Open loads the document at path, creating it with the two default
// top-level folders if it does not exist.
func Open(path string, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[filestore] ", log.LstdFlags)
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 100
	}

	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:   path,
		format: format,
		logger: logger,
		events: make(chan bookmark.ChangeEvent, buffer),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create bookmark directory: %w", err)
		}
		s.root = &bookmark.Node{ID: RootID, Kind: bookmark.KindFolder, Children: []*bookmark.Node{
			{ID: uuid.NewString(), Kind: bookmark.KindFolder, Title: DefaultToolbarTitle, Children: []*bookmark.Node{}},
			{ID: uuid.NewString(), Kind: bookmark.KindFolder, Title: DefaultOtherTitle, Children: []*bookmark.Node{}},
		}}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.loadLocked(); err != nil {
			return nil, err
		}
	}

	if cfg.Watch {
		w, err := newWatcher(s)
		if err != nil {
			return nil, err
		}
		s.watcher = w
	}
	return s, nil
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Close stops watching and closes the events channel.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.watcher != nil {
		err = s.watcher.stop()
	}

	s.mu.Lock()
	close(s.events)
	s.mu.Unlock()
	return err
}

// Events returns the change event channel. It is closed by Close.
func (s *Store) Events() <-chan bookmark.ChangeEvent {
	return s.events
}

func (s *Store) ListTree(ctx context.Context) (*bookmark.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return bookmark.Clone(s.root), nil
}

func (s *Store) GetChildren(ctx context.Context, id string) ([]*bookmark.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, _ := find(s.root, nil, id)
	if n == nil {
		return nil, fmt.Errorf("%s: %w", id, bookmark.ErrNodeNotFound)
	}
	out := make([]*bookmark.Node, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, bookmark.Clone(c))
	}
	return out, nil
}

func (s *Store) CreateNode(ctx context.Context, parentID string, spec bookmark.Spec) (*bookmark.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, _ := find(s.root, nil, parentID)
	if parent == nil {
		return nil, fmt.Errorf("parent %s: %w", parentID, bookmark.ErrNodeNotFound)
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("parent %s is not a folder", parentID)
	}

	n := &bookmark.Node{ID: uuid.NewString(), Kind: spec.Kind(), Title: spec.Title, URL: spec.URL}
	if n.IsFolder() {
		n.Children = []*bookmark.Node{}
	}
	parent.Children = append(parent.Children, n)

	if err := s.persistLocked(); err != nil {
		parent.Children = parent.Children[:len(parent.Children)-1]
		return nil, err
	}
	s.publishLocked(bookmark.ChangeEvent{Op: bookmark.OpCreated, ID: n.ID})
	return bookmark.Clone(n), nil
}

func (s *Store) RemoveSubtree(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == RootID {
		return fmt.Errorf("cannot remove the root")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, parent := find(s.root, nil, id)
	if n == nil {
		return fmt.Errorf("%s: %w", id, bookmark.ErrNodeNotFound)
	}

	before := parent.Children
	kept := make([]*bookmark.Node, 0, len(before))
	for _, c := range before {
		if c != n {
			kept = append(kept, c)
		}
	}
	parent.Children = kept

	if err := s.persistLocked(); err != nil {
		parent.Children = before
		return err
	}
	s.publishLocked(bookmark.ChangeEvent{Op: bookmark.OpRemoved, ID: id})
	return nil
}

// find returns the node with id and its parent.
func find(n, parent *bookmark.Node, id string) (*bookmark.Node, *bookmark.Node) {
	if n == nil {
		return nil, nil
	}
	if n.ID == id {
		return n, parent
	}
	for _, c := range n.Children {
		if found, p := find(c, n, id); found != nil {
			return found, p
		}
	}
	return nil, nil
}

// publishLocked never blocks; a full buffer drops the event since consumers
// only need to know that something changed.
func (s *Store) publishLocked(ev bookmark.ChangeEvent) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		logging.Warnf(s.logger, "Event buffer full, dropping %s event", ev.Op)
	}
}

func (s *Store) persistLocked() error {
	doc := &document{Version: documentVersion}
	for _, c := range s.root.Children {
		doc.Roots = append(doc.Roots, toRecord(c))
	}
	data, err := encode(s.format, doc)
	if err != nil {
		return fmt.Errorf("failed to encode bookmarks: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write bookmarks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write bookmarks: %w", err)
	}

	// Record the hash before the rename so the watcher sees our own write.
	s.lastHash = xxhash.Sum64(data)
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// loadLocked reads the document. It reports false when the content is the
// one already loaded or written.
func (s *Store) loadLocked() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	sum := xxhash.Sum64(data)
	if s.root != nil && sum == s.lastHash {
		return false, nil
	}

	doc, err := decode(s.format, data)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	root := &bookmark.Node{ID: RootID, Kind: bookmark.KindFolder, Children: []*bookmark.Node{}}
	for _, r := range doc.Roots {
		n := toNode(r)
		// Hand-edited folders at the top level may carry a URL by mistake.
		if n.Kind != bookmark.KindFolder {
			n.Kind = bookmark.KindFolder
			n.URL = ""
			n.Children = []*bookmark.Node{}
		}
		root.Children = append(root.Children, n)
	}
	assignMissingIDs(root)

	s.root = root
	s.lastHash = sum
	return true, nil
}

// assignMissingIDs gives hand-written records without an id a fresh one.
// The IDs are not written back until the next mutation.
func assignMissingIDs(n *bookmark.Node) {
	_ = bookmark.Walk(n, func(c *bookmark.Node, _ int) error {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		return nil
	})
}

// reload is called by the watcher when the document changed on disk.
func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	changed, err := s.loadLocked()
	if err != nil {
		logging.Warnf(s.logger, "Ignoring external edit: %v", err)
		return
	}
	if changed {
		s.publishLocked(bookmark.ChangeEvent{Op: bookmark.OpChanged})
	}
}
