package filestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/gitmarks/gitmarks/internal/bookmark"
)

// Format is the on-disk encoding of the bookmark document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported bookmark file extension %q (want .json, .yaml or .toml)", filepath.Ext(path))
	}
}

const documentVersion = 1

// document is the file layout. Top-level folders live in Roots.
type document struct {
	Version int       `json:"version" yaml:"version" toml:"version"`
	Roots   []*record `json:"roots" yaml:"roots" toml:"roots"`
}

// record is one node. A record without a URL is a folder.
type record struct {
	ID       string    `json:"id" yaml:"id" toml:"id"`
	Title    string    `json:"title" yaml:"title" toml:"title"`
	URL      string    `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Children []*record `json:"children,omitempty" yaml:"children,omitempty" toml:"children,omitempty"`
}

func encode(f Format, doc *document) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}

func decode(f Format, data []byte) (*document, error) {
	doc := &document{}
	var err error
	switch f {
	case FormatJSON:
		err = json.Unmarshal(data, doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, doc)
	case FormatTOML:
		_, err = toml.Decode(string(data), doc)
	default:
		err = fmt.Errorf("unknown format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// toNode converts a record. Folder-ness comes from the URL, matching
// bookmark.Spec.
func toNode(r *record) *bookmark.Node {
	if r.URL != "" {
		return &bookmark.Node{ID: r.ID, Kind: bookmark.KindBookmark, Title: r.Title, URL: r.URL}
	}
	n := &bookmark.Node{ID: r.ID, Kind: bookmark.KindFolder, Title: r.Title, Children: []*bookmark.Node{}}
	for _, c := range r.Children {
		n.Children = append(n.Children, toNode(c))
	}
	return n
}

func toRecord(n *bookmark.Node) *record {
	r := &record{ID: n.ID, Title: n.Title, URL: n.URL}
	for _, c := range n.Children {
		r.Children = append(r.Children, toRecord(c))
	}
	return r
}
