// Package bookmark defines the in-memory bookmark tree shared by the host
// collaborator, the serializer and the sync orchestrator.
package bookmark

import "fmt"

// Kind discriminates the two node variants.
type Kind int

const (
	// KindBookmark is a leaf with a title and a URL.
	KindBookmark Kind = iota
	// KindFolder is an ordered container of child nodes.
	KindFolder
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindBookmark:
		return "bookmark"
	case KindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// Node is either a bookmark or a folder, selected by Kind.
//
// ID is assigned by the host and carries no meaning across replicas.
// URL is only meaningful for bookmarks; Children only for folders.
type Node struct {
	ID       string
	Kind     Kind
	Title    string
	URL      string
	Children []*Node
}

// NewBookmark returns a bookmark leaf.
func NewBookmark(title, url string) *Node {
	return &Node{Kind: KindBookmark, Title: title, URL: url}
}

// NewFolder returns a folder holding the given children.
func NewFolder(title string, children ...*Node) *Node {
	return &Node{Kind: KindFolder, Title: title, Children: children}
}

// IsFolder reports whether n is a folder.
func (n *Node) IsFolder() bool {
	return n != nil && n.Kind == KindFolder
}

// IsBookmark reports whether n is a bookmark.
func (n *Node) IsBookmark() bool {
	return n != nil && n.Kind == KindBookmark
}

// Spec describes a node to be created through the host.
// An empty URL creates a folder.
type Spec struct {
	Title string
	URL   string
}

// Kind is KindFolder for an empty URL and KindBookmark otherwise.
func (s Spec) Kind() Kind {
	if s.URL == "" {
		return KindFolder
	}
	return KindBookmark
}

// Walk visits n and all of its descendants depth-first, in display order.
// Returning a non-nil error from fn stops the walk.
func Walk(n *Node, fn func(n *Node, depth int) error) error {
	return walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(n *Node, depth int) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n, depth); err != nil {
		return err
	}
	if n.Kind != KindFolder {
		return nil
	}
	for _, child := range n.Children {
		if err := walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of bookmarks and folders below n (n excluded).
func Count(n *Node) (bookmarks, folders int) {
	_ = Walk(n, func(c *Node, depth int) error {
		if depth == 0 {
			return nil
		}
		switch c.Kind {
		case KindBookmark:
			bookmarks++
		case KindFolder:
			folders++
		}
		return nil
	})
	return bookmarks, folders
}

// Clone returns a deep copy of n.
func Clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, Kind: n.Kind, Title: n.Title, URL: n.URL}
	if n.Kind == KindFolder {
		out.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			out.Children = append(out.Children, Clone(c))
		}
	}
	return out
}

// String renders a compact description, mainly for test failures.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.Kind == KindBookmark {
		return fmt.Sprintf("bookmark(%q, %q)", n.Title, n.URL)
	}
	return fmt.Sprintf("folder(%q, %d children)", n.Title, len(n.Children))
}
