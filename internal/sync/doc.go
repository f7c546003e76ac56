// Package sync sequences push, pull and three-way sync between a bookmark
// host and a remote Git object store.
//
// # Operations
//
//   - Push serializes the host tree and commits every difference to the
//     remote, deleting remote-only files. Local wins.
//   - Pull replaces the synchronized host folders with the remote tree.
//     Remote wins.
//   - Sync diffs both sides against the snapshot saved by the last
//     successful operation and merges them. Without a snapshot it bootstraps:
//     an empty side takes the other side's content, two non-empty sides are
//     reported as a first-sync conflict for the operator to settle with Push
//     or Pull.
//
// At most one operation runs at a time per Orchestrator. A call made while
// another is running returns immediately with StatusInProgress.
//
// # Ordering
//
// Local mutations happen first, then the remote commit, then the snapshot
// is saved. A failure at any step leaves the previous snapshot in place, so
// re-running Sync recomputes the same diffs.
//
// # Suppression
//
// Writing remote changes into the host produces host change events. For a
// short window after such a write Suppressed reports true, and the auto-sync
// daemon ignores events during that window.
package sync
