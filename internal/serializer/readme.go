package serializer

import (
	"fmt"
	"path"
	"strings"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	"github.com/gitmarks/gitmarks/internal/filemap"
)

var roleHeadings = map[bookmark.Role]string{
	bookmark.RoleToolbar: "Toolbar",
	bookmark.RoleOther:   "Other Bookmarks",
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`, `*`, `\*`, `_`, `\_`)

// Readme renders the generated overview of the synchronized roles.
func Readme(roles map[bookmark.Role]*bookmark.Node) string {
	var b strings.Builder
	b.WriteString("# Bookmarks\n\n")
	b.WriteString("> Generated by gitmarks on every push. Edits to this file are overwritten.\n")

	for _, role := range bookmark.Roles {
		folder, ok := roles[role]
		if !ok {
			continue
		}
		bookmarks, folders := bookmark.Count(folder)
		fmt.Fprintf(&b, "\n## %s\n\n", roleHeadings[role])
		fmt.Fprintf(&b, "_%d bookmarks, %d folders_\n\n", bookmarks, folders)
		writeItems(&b, folder.Children, 0)
	}
	return b.String()
}

func writeItems(b *strings.Builder, nodes []*bookmark.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		switch n.Kind {
		case bookmark.KindBookmark:
			title := n.Title
			if title == "" {
				title = n.URL
			}
			fmt.Fprintf(b, "%s- [%s](%s)\n", indent, mdEscaper.Replace(title), n.URL)
		case bookmark.KindFolder:
			fmt.Fprintf(b, "%s- **%s**\n", indent, mdEscaper.Replace(n.Title))
			writeItems(b, n.Children, depth+1)
		}
	}
}

// WithReadme returns a copy of fm with the README regenerated from its own
// contents.
func WithReadme(fm filemap.FileMap, basePath string) filemap.FileMap {
	out := fm.Clone()
	out[path.Join(basePath, filemap.ReadmeName)] = Readme(FileMapToTree(fm, basePath))
	return out
}
