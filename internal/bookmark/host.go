package bookmark

import (
	"context"
	"errors"
)

// ErrNodeNotFound is returned by a Host when an ID does not resolve.
var ErrNodeNotFound = errors.New("bookmark node not found")

// Host is the bookmark collection the engine synchronizes. The engine only
// reads snapshots of it and writes through these primitives.
type Host interface {
	// ListTree returns the full tree. The returned root's children are the
	// top-level folders whose roles decide what is synchronized.
	ListTree(ctx context.Context) (*Node, error)

	// CreateNode appends a node to parentID and returns it with its new ID.
	CreateNode(ctx context.Context, parentID string, spec Spec) (*Node, error)

	// RemoveSubtree deletes the node and everything below it.
	RemoveSubtree(ctx context.Context, id string) error

	// GetChildren returns the direct children of a folder in display order.
	GetChildren(ctx context.Context, id string) ([]*Node, error)
}

// EventOp is the kind of change a host reports.
type EventOp int

const (
	// OpCreated indicates a node was added.
	OpCreated EventOp = iota
	// OpRemoved indicates a node was removed.
	OpRemoved
	// OpChanged indicates a node's title or URL changed.
	OpChanged
	// OpMoved indicates a node was moved or reordered.
	OpMoved
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreated:
		return "created"
	case OpRemoved:
		return "removed"
	case OpChanged:
		return "changed"
	case OpMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// ChangeEvent is a host-side change notification.
type ChangeEvent struct {
	Op EventOp
	// ID is the affected node, empty when the host cannot tell (external edit).
	ID string
}

// Notifier is implemented by hosts that publish change events.
type Notifier interface {
	// Events returns the channel of change events. It is closed when the
	// host stops watching.
	Events() <-chan ChangeEvent
}
