package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	"github.com/gitmarks/gitmarks/internal/filemap"
	"github.com/gitmarks/gitmarks/internal/logging"
	"github.com/gitmarks/gitmarks/internal/merge"
	"github.com/gitmarks/gitmarks/internal/metrics"
	"github.com/gitmarks/gitmarks/internal/remote"
	"github.com/gitmarks/gitmarks/internal/serializer"
	"github.com/gitmarks/gitmarks/internal/state"
)

// SnapshotStore persists the merge base between operations.
// LoadSnapshot returns nil when no snapshot exists.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, key state.Key) (*filemap.Snapshot, error)
	SaveSnapshot(ctx context.Context, key state.Key, snap *filemap.Snapshot) error
	TouchSyncTime(ctx context.Context, key state.Key, at time.Time) error
}

// Config configures an Orchestrator.
type Config struct {
	// Profile names the synchronized collection; with BasePath it keys the
	// snapshot.
	Profile string

	// BasePath is the directory in the repository holding the bookmarks.
	BasePath string

	// ReplicaID is recorded in commit messages.
	ReplicaID string

	// SuppressWindow is how long Suppressed reports true after the host was
	// written to.
	SuppressWindow time.Duration

	// OnResult, if set, is called with every completed operation.
	OnResult func(op Operation, res *Result)

	// Logger for diagnostics (defaults to stderr).
	Logger *log.Logger

	// Now is the clock (defaults to time.Now).
	Now func() time.Time
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Profile:        "default",
		BasePath:       "bookmarks",
		SuppressWindow: 5 * time.Second,
	}
}

// Orchestrator runs push, pull and sync for one profile.
//
// The zero value is not usable; construct with New. An Orchestrator holds
// no state between operations other than the in-flight flag and the
// suppression deadline, so it needs no reset: every operation reloads the
// snapshot and both sides.
type Orchestrator struct {
	host      bookmark.Host
	remote    *remote.Client
	snapshots SnapshotStore
	cfg       Config
	logger    *log.Logger

	running       atomic.Bool
	suppressUntil atomic.Int64 // unix nanoseconds
}

// New creates an Orchestrator. A nil cfg uses DefaultConfig.
func New(host bookmark.Host, client *remote.Client, snapshots SnapshotStore, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	defaults := DefaultConfig()
	if c.Profile == "" {
		c.Profile = defaults.Profile
	}
	c.BasePath = strings.Trim(c.BasePath, "/")
	if c.BasePath == "" {
		c.BasePath = defaults.BasePath
	}
	if c.SuppressWindow <= 0 {
		c.SuppressWindow = defaults.SuppressWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	logger := c.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Orchestrator{
		host:      host,
		remote:    client,
		snapshots: snapshots,
		cfg:       c,
		logger:    logger,
	}
}

// Key returns the snapshot key of this orchestrator.
func (o *Orchestrator) Key() state.Key {
	return state.Key{Profile: o.cfg.Profile, BasePath: o.cfg.BasePath}
}

// Running reports whether an operation is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Suppressed reports whether host events should currently be ignored
// because they are most likely echoes of our own writes.
func (o *Orchestrator) Suppressed() bool {
	return o.cfg.Now().UnixNano() < o.suppressUntil.Load()
}

func (o *Orchestrator) suppress() {
	o.suppressUntil.Store(o.cfg.Now().Add(o.cfg.SuppressWindow).UnixNano())
}

// Push makes the remote match the host.
func (o *Orchestrator) Push(ctx context.Context) *Result {
	return o.run(ctx, OpPush, o.push)
}

// Pull makes the host match the remote.
func (o *Orchestrator) Pull(ctx context.Context) *Result {
	return o.run(ctx, OpPull, o.pull)
}

// Sync merges host and remote changes made since the last operation.
func (o *Orchestrator) Sync(ctx context.Context) *Result {
	return o.run(ctx, OpSync, o.sync)
}

func (o *Orchestrator) run(ctx context.Context, op Operation, fn func(context.Context) (*Result, error)) *Result {
	if !o.running.CompareAndSwap(false, true) {
		metrics.RecordSync(string(op), string(StatusInProgress), 0)
		return &Result{Status: StatusInProgress, Message: "a sync is already in progress"}
	}
	defer o.running.Store(false)

	start := time.Now()
	res, err := fn(ctx)
	if err != nil {
		logging.Errorf(o.logger, "%s: %v", op, err)
		res = errorResult(err)
	}
	duration := time.Since(start)

	metrics.RecordSync(string(op), string(res.Status), duration)
	if res.Success() {
		metrics.RecordSyncSuccess(o.cfg.Now())
	}
	o.logger.Printf("%s finished: %s (pushed=%d, applied=%d) in %v",
		op, res.Status, res.Pushed, res.Applied, duration.Round(time.Millisecond))

	if o.cfg.OnResult != nil {
		o.cfg.OnResult(op, res)
	}
	return res
}

func (o *Orchestrator) push(ctx context.Context) (*Result, error) {
	_, local, err := o.readLocal(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := o.snapshots.LoadSnapshot(ctx, o.Key())
	if err != nil {
		logging.Warnf(o.logger, "Ignoring unreadable snapshot: %v", err)
		snap = nil
	}

	// A nil remoteFiles means the remote content is unknown.
	var remoteFiles filemap.FileMap
	var stale []string
	rs, err := o.fetchRemote(ctx, snap)
	switch {
	case err != nil && remote.IsFatal(err):
		return nil, err
	case err != nil:
		logging.Warnf(o.logger, "Could not read remote, uploading everything: %v", err)
		stale = o.remotePaths(ctx)
	default:
		remoteFiles = rs.Files
		for p := range remoteFiles {
			stale = append(stale, p)
		}
	}

	changes := make(filemap.ChangeSet)
	for p, content := range local {
		if current, ok := remoteFiles[p]; !ok || current != content {
			changes[p] = filemap.Put(content)
		}
	}
	for _, p := range stale {
		if _, ok := local[p]; !ok {
			changes[p] = filemap.Delete()
		}
	}

	return o.commit(ctx, "Push", remoteFiles, changes, 0)
}

// remotePaths lists the managed paths at the branch head without reading
// their content. It returns nil when even the listing fails.
func (o *Orchestrator) remotePaths(ctx context.Context) []string {
	ids, err := o.remote.ListFiles(ctx, o.cfg.BasePath)
	if err != nil {
		logging.Warnf(o.logger, "Could not list remote, stale files stay: %v", err)
		return nil
	}
	var paths []string
	for p := range ids {
		if o.inScope(p) {
			paths = append(paths, p)
		}
	}
	return paths
}

func (o *Orchestrator) pull(ctx context.Context) (*Result, error) {
	snap, err := o.snapshots.LoadSnapshot(ctx, o.Key())
	if err != nil {
		logging.Warnf(o.logger, "Ignoring unreadable snapshot: %v", err)
		snap = nil
	}

	rs, err := o.fetchRemote(ctx, snap)
	if err != nil {
		return nil, err
	}
	if rs.IsEmpty() {
		return nil, ErrRemoteEmpty
	}
	return o.applyRemote(ctx, rs, rs.Files, nil)
}

func (o *Orchestrator) sync(ctx context.Context) (*Result, error) {
	tree, local, err := o.readLocal(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := o.snapshots.LoadSnapshot(ctx, o.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	rs, err := o.fetchRemote(ctx, snap)
	if err != nil {
		return nil, err
	}

	if snap == nil {
		return o.bootstrap(ctx, tree, local, rs)
	}

	base := snap.Files()
	localDiff := merge.Compute(base, local)
	remoteDiff := merge.Compute(base, rs.Files)

	switch {
	case localDiff.IsEmpty() && remoteDiff.IsEmpty():
		if err := o.snapshots.TouchSyncTime(ctx, o.Key(), o.cfg.Now()); err != nil {
			return nil, err
		}
		return &Result{Status: StatusUpToDate, Message: "already up to date", CommitID: rs.CommitID}, nil

	case remoteDiff.IsEmpty():
		return o.commit(ctx, "Sync", rs.Files, localDiff.Changes(), 0)

	case localDiff.IsEmpty():
		changes := remoteDiff.Changes()
		return o.applyRemote(ctx, rs, local.Apply(changes), o.touchedRoles(changes.Paths()))
	}

	m := merge.Merge(localDiff, remoteDiff, local, rs.Files, base)
	if m.HasConflicts() {
		metrics.RecordConflicts(len(m.Conflicts))
		paths := make([]string, 0, len(m.Conflicts))
		for _, c := range m.Conflicts {
			paths = append(paths, c.Path)
		}
		o.logger.Printf("Conflicts on %s", strings.Join(paths, ", "))
		return &Result{
			Status:    StatusConflict,
			Message:   fmt.Sprintf("%d paths changed on both sides", len(m.Conflicts)),
			CommitID:  rs.CommitID,
			Conflicts: m.Conflicts,
		}, nil
	}

	applied := 0
	if len(m.ToApplyLocally) > 0 {
		n, err := o.writeHost(ctx, local, local.Apply(m.ToApplyLocally), o.touchedRoles(m.ToApplyLocally.Paths()))
		if err != nil {
			return nil, err
		}
		applied = n
	}
	if len(m.ToPush) == 0 {
		if err := o.saveSnapshot(ctx, rs.Files, rs.CommitID); err != nil {
			return nil, err
		}
		return &Result{Status: StatusOK, Message: fmt.Sprintf("applied %d changes", applied), Applied: applied, CommitID: rs.CommitID}, nil
	}
	return o.commit(ctx, "Sync", rs.Files, m.ToPush, applied)
}

// bootstrap handles a sync without a common ancestor.
func (o *Orchestrator) bootstrap(ctx context.Context, tree *bookmark.Node, local filemap.FileMap, rs *remote.State) (*Result, error) {
	localEmpty := isEmptyTree(bookmark.RoleFolders(tree))
	remoteEmpty := rs.IsEmpty() || isEmptyTree(serializer.FileMapToTree(rs.Files, o.cfg.BasePath))

	switch {
	case localEmpty && remoteEmpty:
		return &Result{Status: StatusNothingToDo, Message: "no bookmarks on either side", CommitID: rs.CommitID}, nil
	case remoteEmpty:
		o.logger.Printf("First sync: remote is empty, pushing local bookmarks")
		return o.push(ctx)
	case localEmpty:
		o.logger.Printf("First sync: host is empty, pulling remote bookmarks")
		return o.applyRemote(ctx, rs, rs.Files, nil)
	}

	if sameFiles(local.WithoutGenerated(), rs.Files.WithoutGenerated()) {
		if err := o.saveSnapshot(ctx, rs.Files, rs.CommitID); err != nil {
			return nil, err
		}
		return &Result{Status: StatusOK, Message: "both sides already match", CommitID: rs.CommitID}, nil
	}

	return &Result{
		Status:   StatusFirstSyncConflict,
		Message:  "both the host and the remote have bookmarks: choose one side with push or pull",
		CommitID: rs.CommitID,
	}, nil
}

// commit publishes changes on top of remoteFiles and saves the resulting
// remote view as the new snapshot.
//
// When remoteFiles is nil the remote could not be read beforehand, so the
// view is read back from the commit's tree. If that fails too the previous
// snapshot is kept: a stale base only costs a convergent merge later, while a
// base missing remote files would bring them back as remote additions.
func (o *Orchestrator) commit(ctx context.Context, verb string, remoteFiles filemap.FileMap, changes filemap.ChangeSet, applied int) (*Result, error) {
	changes = o.withGenerated(remoteFiles, changes)

	cr, err := o.remote.AtomicCommit(ctx, o.message(verb, changes), changes)
	if err != nil {
		return nil, err
	}

	view := remoteFiles.Apply(changes)
	if remoteFiles == nil {
		view = o.committedView(ctx, cr.CommitID, view)
	}
	if view != nil {
		if err := o.saveSnapshot(ctx, view, cr.CommitID); err != nil {
			return nil, err
		}
	}

	res := &Result{Status: StatusOK, Pushed: cr.Changed, Applied: applied, CommitID: cr.CommitID}
	switch {
	case cr.Changed == 0 && applied == 0:
		res.Status = StatusUpToDate
		res.Message = "remote already matches"
	case applied > 0:
		res.Message = fmt.Sprintf("pushed %d and applied %d changes", cr.Changed, applied)
	default:
		res.Message = fmt.Sprintf("pushed %d changes", cr.Changed)
	}
	metrics.RecordPushed(cr.Changed)
	return res, nil
}

// withGenerated adds the index and README rewrites that the changes imply.
func (o *Orchestrator) withGenerated(remoteFiles filemap.FileMap, changes filemap.ChangeSet) filemap.ChangeSet {
	out := make(filemap.ChangeSet, len(changes)+2)
	for p, c := range changes {
		out[p] = c
	}

	indexPath := path.Join(o.cfg.BasePath, filemap.IndexName)
	if _, ok := remoteFiles[indexPath]; !ok {
		if c, ok := out[indexPath]; !ok || c.Tombstone {
			out[indexPath] = filemap.Put(serializer.IndexContent())
		}
	}

	after := remoteFiles.Apply(out)
	readmePath := path.Join(o.cfg.BasePath, filemap.ReadmeName)
	readme := serializer.WithReadme(after, o.cfg.BasePath)[readmePath]
	if current, ok := remoteFiles[readmePath]; !ok || current != readme {
		out[readmePath] = filemap.Put(readme)
	} else {
		delete(out, readmePath)
	}
	return out
}

// applyRemote writes target into the host and records rs as the new base.
func (o *Orchestrator) applyRemote(ctx context.Context, rs *remote.State, target filemap.FileMap, touched map[bookmark.Role]bool) (*Result, error) {
	_, before, err := o.readLocal(ctx)
	if err != nil {
		return nil, err
	}
	applied, err := o.writeHost(ctx, before, target, touched)
	if err != nil {
		return nil, err
	}
	if err := o.saveSnapshot(ctx, rs.Files, rs.CommitID); err != nil {
		return nil, err
	}
	return &Result{
		Status:   StatusOK,
		Message:  fmt.Sprintf("applied %d changes", applied),
		Applied:  applied,
		CommitID: rs.CommitID,
	}, nil
}

// writeHost applies target to the host and returns how many paths of the
// local file map changed as a result.
func (o *Orchestrator) writeHost(ctx context.Context, before, target filemap.FileMap, touched map[bookmark.Role]bool) (int, error) {
	created, err := o.applyFileMap(ctx, target, touched)
	if err != nil {
		return 0, err
	}
	_, after, err := o.readLocal(ctx)
	if err != nil {
		return 0, err
	}
	applied := merge.Compute(before, after).Len()
	logging.Debugf(o.logger, "Wrote %d nodes to host, %d paths changed", created, applied)
	metrics.RecordApplied(applied)
	return applied, nil
}

// saveSnapshot records files, as they now exist on the remote, as the base.
//
// The base is the remote's form rather than the host's re-serialization, so
// a hand-edited remote converges through one normalizing push instead of
// being re-applied on every sync.
func (o *Orchestrator) saveSnapshot(ctx context.Context, files filemap.FileMap, commitID string) error {
	ids := make(map[string]string, len(files))
	for p, content := range files {
		ids[p] = remote.BlobID(content)
	}
	snap := filemap.NewSnapshot(files, ids, commitID, o.cfg.Now())
	if err := o.snapshots.SaveSnapshot(ctx, o.Key(), snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (o *Orchestrator) readLocal(ctx context.Context) (*bookmark.Node, filemap.FileMap, error) {
	tree, err := o.host.ListTree(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read host bookmarks: %w", err)
	}
	fm, err := serializer.TreeToFileMap(tree, o.cfg.BasePath)
	if err != nil {
		return nil, nil, err
	}
	return tree, fm, nil
}

// fetchRemote downloads the remote files that take part in sync, reusing
// snapshot contents for unchanged blobs.
func (o *Orchestrator) fetchRemote(ctx context.Context, snap *filemap.Snapshot) (*remote.State, error) {
	rs, err := o.remote.FetchFileMap(ctx, o.cfg.BasePath, snap.BlobCache())
	if err != nil {
		return nil, fmt.Errorf("failed to read remote: %w", err)
	}
	o.dropUnmanaged(rs)
	return rs, nil
}

// committedView reads the managed files of commitID. Blobs this replica just
// wrote come from written; only files it did not write are downloaded.
func (o *Orchestrator) committedView(ctx context.Context, commitID string, written filemap.FileMap) filemap.FileMap {
	if commitID == "" {
		return nil
	}
	cache := make(map[string]string, len(written))
	for _, content := range written {
		cache[remote.BlobID(content)] = content
	}
	rs, err := o.remote.FetchCommit(ctx, commitID, o.cfg.BasePath, cache)
	if err != nil {
		logging.Warnf(o.logger, "Keeping previous snapshot, could not read commit %s: %v", commitID, err)
		return nil
	}
	o.dropUnmanaged(rs)
	return rs.Files
}

func (o *Orchestrator) dropUnmanaged(rs *remote.State) {
	for p := range rs.Files {
		if !o.inScope(p) {
			delete(rs.Files, p)
			delete(rs.ObjectIDs, p)
		}
	}
}

// inScope reports whether a remote path is managed by sync: the generated
// files at the base path and JSON files below the role directories. Other
// files stored next to the bookmarks are neither read nor deleted.
func (o *Orchestrator) inScope(p string) bool {
	rel, ok := strings.CutPrefix(p, o.cfg.BasePath+"/")
	if !ok {
		return false
	}
	if rel == filemap.IndexName || rel == filemap.ReadmeName {
		return true
	}
	if !strings.HasSuffix(rel, ".json") {
		return false
	}
	for _, role := range bookmark.Roles {
		if strings.HasPrefix(rel, role.String()+"/") {
			return true
		}
	}
	return false
}

func (o *Orchestrator) message(verb string, changes filemap.ChangeSet) string {
	writes, deletes := changes.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "%s bookmarks: %d written, %d deleted\n\n", verb, writes, deletes)
	fmt.Fprintf(&b, "Profile: %s\n", o.cfg.Profile)
	if o.cfg.ReplicaID != "" {
		fmt.Fprintf(&b, "Replica: %s\n", o.cfg.ReplicaID)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sameFiles(a, b filemap.FileMap) bool {
	if len(a) != len(b) {
		return false
	}
	for p, content := range a {
		if other, ok := b[p]; !ok || other != content {
			return false
		}
	}
	return true
}
