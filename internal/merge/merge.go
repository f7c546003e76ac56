package merge

import (
	"github.com/gitmarks/gitmarks/internal/filemap"
	"github.com/gitmarks/gitmarks/internal/serializer"
)

// Conflict is a path both sides changed incompatibly. A nil side means the
// path was deleted there.
type Conflict struct {
	Path   string
	Local  *string
	Remote *string
}

// Result is the outcome of a three-way merge.
type Result struct {
	// ToPush holds changes to commit to the remote.
	ToPush filemap.ChangeSet
	// ToApplyLocally holds changes to write back to the host.
	ToApplyLocally filemap.ChangeSet
	// Conflicts blocks both change sets when non-empty.
	Conflicts []Conflict
}

// HasConflicts reports whether any path conflicted.
func (r Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// Merge reconciles the local and remote diffs against base. local and remote
// are the full current file maps the diffs were computed from.
//
// Paths changed on one side only flow to the other side. Paths changed on
// both sides are no-ops when they converge, merged entry-wise when they are
// listing files, and conflicts otherwise.
func Merge(localDiff, remoteDiff Diff, local, remote, base filemap.FileMap) Result {
	res := Result{
		ToPush:         make(filemap.ChangeSet),
		ToApplyLocally: make(filemap.ChangeSet),
	}

	seen := make(map[string]bool)
	paths := append(localDiff.Paths(), remoteDiff.Paths()...)

	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true

		localChanged := localDiff.Touches(p)
		remoteChanged := remoteDiff.Touches(p)
		localContent, inLocal := local[p]
		remoteContent, inRemote := remote[p]

		switch {
		case localChanged && !remoteChanged:
			if inLocal {
				res.ToPush[p] = filemap.Put(localContent)
			} else {
				res.ToPush[p] = filemap.Delete()
			}

		case remoteChanged && !localChanged:
			if inRemote {
				res.ToApplyLocally[p] = filemap.Put(remoteContent)
			} else {
				res.ToApplyLocally[p] = filemap.Delete()
			}

		case !inLocal && !inRemote:
			// Deleted on both sides.

		case inLocal && inRemote && localContent == remoteContent:
			// Convergent edit.

		default:
			if inLocal && inRemote && filemap.IsListing(p) {
				if merged, ok := MergeListing(base[p], localContent, remoteContent); ok {
					if merged != localContent {
						res.ToApplyLocally[p] = filemap.Put(merged)
					}
					if merged != remoteContent {
						res.ToPush[p] = filemap.Put(merged)
					}
					continue
				}
			}
			c := Conflict{Path: p}
			if inLocal {
				c.Local = &localContent
			}
			if inRemote {
				c.Remote = &remoteContent
			}
			res.Conflicts = append(res.Conflicts, c)
		}
	}

	return res
}

// MergeListing merges two divergent versions of a listing file against their
// base. The result starts from the local order, drops entries the remote
// removed, then appends remote additions in remote order. It reports false
// when either side is not a valid listing. A missing or malformed base counts
// as empty.
func MergeListing(base, local, remote string) (string, bool) {
	localEntries, err := serializer.ParseListing(local)
	if err != nil {
		return "", false
	}
	remoteEntries, err := serializer.ParseListing(remote)
	if err != nil {
		return "", false
	}
	baseEntries, _ := serializer.ParseListing(base)

	baseKeys := keySet(baseEntries)
	remoteKeys := keySet(remoteEntries)

	merged := make([]serializer.OrderEntry, 0, len(localEntries)+len(remoteEntries))
	added := make(map[string]bool)

	for _, e := range localEntries {
		k := e.Key()
		if added[k] {
			continue
		}
		if baseKeys[k] && !remoteKeys[k] {
			continue
		}
		added[k] = true
		merged = append(merged, e)
	}
	for _, e := range remoteEntries {
		k := e.Key()
		if added[k] || baseKeys[k] {
			continue
		}
		added[k] = true
		merged = append(merged, e)
	}

	out, err := serializer.EncodeListing(merged)
	if err != nil {
		return "", false
	}
	return out, true
}

func keySet(entries []serializer.OrderEntry) map[string]bool {
	keys := make(map[string]bool, len(entries))
	for _, e := range entries {
		keys[e.Key()] = true
	}
	return keys
}
