// Package serializer converts between the nested bookmark tree and the flat
// file map stored in the remote repository.
//
// Layout under basePath:
//
//	basePath/
//	├── _index.json              {"version": 2}
//	├── README.md                generated overview
//	├── toolbar/
//	│   ├── _order.json          ["github_1a2b.json", {"dir": "news", "title": "News"}]
//	│   ├── github_1a2b.json     {"title": "GitHub", "url": "https://github.com"}
//	│   └── news/
//	│       └── _order.json
//	└── other/
//	    └── _order.json
//
// Only the toolbar and other roles are synchronized.
package serializer

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	"github.com/gitmarks/gitmarks/internal/filemap"
)

// TreeToFileMap serializes the synchronized roles of root below basePath.
func TreeToFileMap(root *bookmark.Node, basePath string) (filemap.FileMap, error) {
	fm := make(filemap.FileMap)
	folders := bookmark.RoleFolders(root)

	for _, role := range bookmark.Roles {
		folder, ok := folders[role]
		if !ok {
			continue
		}
		if err := writeFolder(fm, path.Join(basePath, role.String()), folder); err != nil {
			return nil, fmt.Errorf("failed to serialize %s: %w", role, err)
		}
	}

	fm[path.Join(basePath, filemap.IndexName)] = IndexContent()

	return fm, nil
}

// writeFolder emits the listing of folder at dir plus every descendant file.
func writeFolder(fm filemap.FileMap, dir string, folder *bookmark.Node) error {
	entries := make([]OrderEntry, 0, len(folder.Children))
	names := newDirNamer()
	written := make(map[string]bool)

	for _, child := range folder.Children {
		switch child.Kind {
		case bookmark.KindBookmark:
			name := Filename(child.Title, child.URL)
			if written[name] {
				continue
			}
			content, err := EncodeBookmark(child.Title, child.URL)
			if err != nil {
				return fmt.Errorf("failed to encode bookmark %q: %w", child.Title, err)
			}
			fm[path.Join(dir, name)] = content
			written[name] = true
			entries = append(entries, BookmarkRef(name))

		case bookmark.KindFolder:
			name := names.next(child.Title)
			entries = append(entries, FolderRef(name, child.Title))
			if err := writeFolder(fm, path.Join(dir, name), child); err != nil {
				return err
			}
		}
	}

	listing, err := EncodeListing(entries)
	if err != nil {
		return fmt.Errorf("failed to encode listing for %s: %w", dir, err)
	}
	fm[path.Join(dir, filemap.ListingName)] = listing
	return nil
}

// FileMapToTree rebuilds the role folders stored below basePath.
//
// Reconstruction is tolerant: entries pointing at missing or unparsable files
// are skipped, a malformed listing contributes no listed children, and a
// second pass surfaces bookmark files and folders that exist but are not
// referenced by any listing. Roles with no files at all are absent from the
// result.
func FileMapToTree(fm filemap.FileMap, basePath string) map[bookmark.Role]*bookmark.Node {
	idx := indexDirs(fm)
	out := make(map[bookmark.Role]*bookmark.Node, len(bookmark.Roles))

	for _, role := range bookmark.Roles {
		dir := path.Join(basePath, role.String())
		if !idx.exists(dir) {
			continue
		}
		out[role] = readFolder(fm, idx, dir, role.String())
	}
	return out
}

func readFolder(fm filemap.FileMap, idx *dirIndex, dir, title string) *bookmark.Node {
	folder := bookmark.NewFolder(title)
	listed := make(map[string]bool)

	if content, ok := fm[path.Join(dir, filemap.ListingName)]; ok {
		entries, err := ParseListing(content)
		if err != nil {
			entries = nil
		}
		for _, e := range entries {
			key := e.Key()
			if listed[key] {
				continue
			}
			listed[key] = true

			if e.IsFolder() {
				sub := path.Join(dir, e.Dir)
				if path.Dir(sub) != dir || !idx.exists(sub) {
					continue
				}
				folder.Children = append(folder.Children, readFolder(fm, idx, sub, e.Title))
				continue
			}

			file := path.Join(dir, e.File)
			if path.Dir(file) != dir {
				continue
			}
			if node := readBookmark(fm, file); node != nil {
				folder.Children = append(folder.Children, node)
			}
		}
	}

	// Orphan pass: unlisted bookmark files, then unlisted folders.
	for _, name := range idx.filesIn(dir) {
		if !isBookmarkName(name) || listed["file:"+name] {
			continue
		}
		if node := readBookmark(fm, path.Join(dir, name)); node != nil {
			folder.Children = append(folder.Children, node)
		}
	}
	for _, name := range idx.subdirsOf(dir) {
		sub := path.Join(dir, name)
		if listed["dir:"+name] || !idx.hasJSON(sub) {
			continue
		}
		folder.Children = append(folder.Children, readFolder(fm, idx, sub, name))
	}

	return folder
}

func readBookmark(fm filemap.FileMap, p string) *bookmark.Node {
	content, ok := fm[p]
	if !ok {
		return nil
	}
	bm, err := ParseBookmark(content)
	if err != nil {
		return nil
	}
	return bookmark.NewBookmark(bm.Title, bm.URL)
}

func isBookmarkName(name string) bool {
	return strings.HasSuffix(name, ".json") &&
		name != filemap.ListingName &&
		name != filemap.IndexName
}

// dirIndex answers directory questions about a flat file map.
type dirIndex struct {
	files    map[string][]string
	subdirs  map[string]map[string]bool
	jsonDirs map[string]bool
}

func indexDirs(fm filemap.FileMap) *dirIndex {
	idx := &dirIndex{
		files:    make(map[string][]string),
		subdirs:  make(map[string]map[string]bool),
		jsonDirs: make(map[string]bool),
	}
	for p := range fm {
		dir, name := path.Split(p)
		dir = strings.TrimSuffix(dir, "/")
		idx.files[dir] = append(idx.files[dir], name)

		isJSON := strings.HasSuffix(name, ".json")
		for d := dir; d != "" && d != "." && d != "/"; {
			if isJSON {
				idx.jsonDirs[d] = true
			}
			parent, child := path.Split(d)
			parent = strings.TrimSuffix(parent, "/")
			if idx.subdirs[parent] == nil {
				idx.subdirs[parent] = make(map[string]bool)
			}
			idx.subdirs[parent][child] = true
			d = parent
		}
	}
	for dir := range idx.files {
		sort.Strings(idx.files[dir])
	}
	return idx
}

func (idx *dirIndex) exists(dir string) bool {
	if len(idx.files[dir]) > 0 {
		return true
	}
	return len(idx.subdirs[dir]) > 0
}

func (idx *dirIndex) hasJSON(dir string) bool {
	return idx.jsonDirs[dir]
}

func (idx *dirIndex) filesIn(dir string) []string {
	return idx.files[dir]
}

func (idx *dirIndex) subdirsOf(dir string) []string {
	names := make([]string, 0, len(idx.subdirs[dir]))
	for name := range idx.subdirs[dir] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
