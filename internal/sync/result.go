package sync

import (
	"errors"
	"fmt"

	"github.com/gitmarks/gitmarks/internal/merge"
	"github.com/gitmarks/gitmarks/internal/remote"
)

// Operation names a public entry point.
type Operation string

const (
	OpPush Operation = "push"
	OpPull Operation = "pull"
	OpSync Operation = "sync"
)

// Status classifies a Result.
type Status string

const (
	// StatusOK means changes were pushed, applied, or both.
	StatusOK Status = "ok"
	// StatusInProgress means another operation was running; nothing was done.
	StatusInProgress Status = "in_progress"
	// StatusUpToDate means neither side changed since the last sync.
	StatusUpToDate Status = "up_to_date"
	// StatusNothingToDo means both sides are empty and no snapshot exists.
	StatusNothingToDo Status = "nothing_to_do"
	// StatusConflict means both sides changed the same paths incompatibly.
	StatusConflict Status = "conflict"
	// StatusFirstSyncConflict means both sides have content and there is no
	// common ancestor to merge against.
	StatusFirstSyncConflict Status = "first_sync_conflict"
	// StatusError means the operation failed; see Err.
	StatusError Status = "error"
)

// ErrRemoteEmpty is returned by Pull when the remote holds no bookmarks.
var ErrRemoteEmpty = errors.New("remote has no bookmarks")

// Result is the structured outcome of an operation. Operations never return
// a bare error; failures are reported with StatusError and Err set.
type Result struct {
	Status  Status
	Message string

	// Pushed is the number of paths changed on the remote.
	Pushed int
	// Applied is the number of paths changed on the host.
	Applied int

	// CommitID is the remote head after the operation, when known.
	CommitID string

	// Conflicts is set for StatusConflict.
	Conflicts []merge.Conflict

	Err error
}

// Success reports whether the operation finished without error or conflict.
func (r *Result) Success() bool {
	switch r.Status {
	case StatusOK, StatusUpToDate, StatusNothingToDo:
		return true
	default:
		return false
	}
}

func errorResult(err error) *Result {
	return &Result{Status: StatusError, Message: describe(err), Err: err}
}

// describe turns remote failures into operator-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, remote.ErrUnauthenticated):
		return "authentication failed: check the remote token"
	case errors.Is(err, remote.ErrRateLimited):
		return "rate limited by the remote: try again later"
	case errors.Is(err, remote.ErrForbidden):
		return "access to the remote repository was denied"
	case errors.Is(err, remote.ErrNonFastForward):
		return "the remote changed during the commit: run sync again"
	case errors.Is(err, ErrRemoteEmpty):
		return "nothing to pull: the remote has no bookmarks yet"
	default:
		return fmt.Sprintf("sync failed: %v", err)
	}
}
