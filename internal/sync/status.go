package sync

import (
	"context"
	"time"

	"github.com/gitmarks/gitmarks/internal/merge"
)

// Report describes the sync state of a profile without changing anything.
type Report struct {
	Profile  string
	BasePath string
	Branch   string

	// HasSnapshot is false before the first successful operation.
	HasSnapshot    bool
	LastSync       time.Time
	SnapshotCommit string
	SnapshotFiles  int

	// LocalChanges counts host paths changed since the last sync.
	LocalChanges int

	// Remote fields are only set when the remote was checked.
	RemoteChecked bool
	RemoteHead    string
	RemoteChanges int

	Running    bool
	Suppressed bool
}

// Inspect reports pending changes. With checkRemote false the remote is not
// contacted. Inspect does not take the in-flight guard.
func (o *Orchestrator) Inspect(ctx context.Context, checkRemote bool) (*Report, error) {
	r := &Report{
		Profile:    o.cfg.Profile,
		BasePath:   o.cfg.BasePath,
		Branch:     o.remote.Branch(),
		Running:    o.Running(),
		Suppressed: o.Suppressed(),
	}

	snap, err := o.snapshots.LoadSnapshot(ctx, o.Key())
	if err != nil {
		return nil, err
	}
	if snap != nil {
		r.HasSnapshot = true
		r.LastSync = snap.SyncedAt
		r.SnapshotCommit = snap.CommitID
		r.SnapshotFiles = len(snap.Entries)
	}
	base := snap.Files()

	_, local, err := o.readLocal(ctx)
	if err != nil {
		return nil, err
	}
	r.LocalChanges = merge.Compute(base, local).Len()

	if !checkRemote {
		return r, nil
	}
	rs, err := o.fetchRemote(ctx, snap)
	if err != nil {
		return nil, err
	}
	r.RemoteChecked = true
	r.RemoteHead = rs.CommitID
	r.RemoteChanges = merge.Compute(base, rs.Files).Len()
	return r, nil
}
