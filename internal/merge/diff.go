// Package merge computes file map diffs and reconciles a local and a remote
// diff against their common ancestor.
package merge

import (
	"sort"

	"github.com/gitmarks/gitmarks/internal/filemap"
)

// Diff is the set of changes that turn a base file map into a current one.
type Diff struct {
	Added    map[string]string
	Removed  map[string]bool
	Modified map[string]string
}

// Compute returns the changes from base to current. Generated paths are
// ignored on both sides.
func Compute(base, current filemap.FileMap) Diff {
	d := Diff{
		Added:    make(map[string]string),
		Removed:  make(map[string]bool),
		Modified: make(map[string]string),
	}
	for p, content := range current {
		if filemap.IsGenerated(p) {
			continue
		}
		old, ok := base[p]
		switch {
		case !ok:
			d.Added[p] = content
		case old != content:
			d.Modified[p] = content
		}
	}
	for p := range base {
		if filemap.IsGenerated(p) {
			continue
		}
		if _, ok := current[p]; !ok {
			d.Removed[p] = true
		}
	}
	return d
}

// IsEmpty reports whether d holds no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Len returns the number of touched paths.
func (d Diff) Len() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// Touches reports whether p is added, removed or modified.
func (d Diff) Touches(p string) bool {
	if _, ok := d.Added[p]; ok {
		return true
	}
	if _, ok := d.Modified[p]; ok {
		return true
	}
	return d.Removed[p]
}

// Paths returns every touched path in sorted order.
func (d Diff) Paths() []string {
	paths := make([]string, 0, d.Len())
	for p := range d.Added {
		paths = append(paths, p)
	}
	for p := range d.Modified {
		paths = append(paths, p)
	}
	for p := range d.Removed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Changes converts d into a change set: writes for added and modified paths,
// tombstones for removed ones.
func (d Diff) Changes() filemap.ChangeSet {
	cs := make(filemap.ChangeSet, d.Len())
	for p, c := range d.Added {
		cs[p] = filemap.Put(c)
	}
	for p, c := range d.Modified {
		cs[p] = filemap.Put(c)
	}
	for p := range d.Removed {
		cs[p] = filemap.Delete()
	}
	return cs
}
