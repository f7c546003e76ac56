package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FormatVersion is written to the root metadata file.
const FormatVersion = 2

// BookmarkFile is the content of one bookmark file.
type BookmarkFile struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// IndexFile is the content of the root metadata file.
type IndexFile struct {
	Version int `json:"version"`
}

// OrderEntry is one line of a directory listing: a bookmark file name or a
// subfolder reference.
type OrderEntry struct {
	// File is the bookmark file name; empty for folder entries.
	File string
	// Dir and Title describe a folder entry.
	Dir   string
	Title string
}

// BookmarkRef returns a listing entry for a bookmark file.
func BookmarkRef(filename string) OrderEntry {
	return OrderEntry{File: filename}
}

// FolderRef returns a listing entry for a subfolder.
func FolderRef(dir, title string) OrderEntry {
	return OrderEntry{Dir: dir, Title: title}
}

// IsFolder reports whether e refers to a subfolder.
func (e OrderEntry) IsFolder() bool {
	return e.File == "" && e.Dir != ""
}

// Key identifies the entry within its listing: the file name for bookmarks,
// the directory for folders.
func (e OrderEntry) Key() string {
	if e.IsFolder() {
		return "dir:" + e.Dir
	}
	return "file:" + e.File
}

type folderRef struct {
	Dir   string `json:"dir"`
	Title string `json:"title"`
}

// MarshalJSON writes bookmarks as bare strings and folders as objects.
func (e OrderEntry) MarshalJSON() ([]byte, error) {
	if e.IsFolder() {
		return marshalNoEscape(folderRef{Dir: e.Dir, Title: e.Title})
	}
	return marshalNoEscape(e.File)
}

// UnmarshalJSON accepts either form.
func (e *OrderEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if !validEntryName(name) {
			return fmt.Errorf("invalid file entry %q", name)
		}
		*e = OrderEntry{File: name}
		return nil
	}
	var ref folderRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	if ref.Dir == "" {
		return fmt.Errorf("folder entry without dir")
	}
	if !validEntryName(ref.Dir) {
		return fmt.Errorf("invalid dir entry %q", ref.Dir)
	}
	*e = OrderEntry{Dir: ref.Dir, Title: ref.Title}
	return nil
}

// validEntryName reports whether name names a direct child of the listing's
// directory.
func validEntryName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// ParseListing decodes a listing file. It fails only when the content is not
// a JSON array; individual malformed elements are dropped.
func ParseListing(content string) ([]OrderEntry, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("listing is not a JSON array: %w", err)
	}
	if raw == nil && strings.TrimSpace(content) != "[]" {
		return nil, fmt.Errorf("listing is not a JSON array")
	}
	entries := make([]OrderEntry, 0, len(raw))
	for _, item := range raw {
		var e OrderEntry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// EncodeListing renders a listing file.
func EncodeListing(entries []OrderEntry) (string, error) {
	if entries == nil {
		entries = []OrderEntry{}
	}
	return encodeJSON(entries)
}

// ParseBookmark decodes a bookmark file.
func ParseBookmark(content string) (BookmarkFile, error) {
	var bm BookmarkFile
	if err := json.Unmarshal([]byte(content), &bm); err != nil {
		return BookmarkFile{}, fmt.Errorf("failed to parse bookmark file: %w", err)
	}
	if bm.URL == "" {
		return BookmarkFile{}, fmt.Errorf("bookmark file has no url")
	}
	return bm, nil
}

// EncodeBookmark renders a bookmark file.
func EncodeBookmark(title, url string) (string, error) {
	return encodeJSON(BookmarkFile{Title: title, URL: url})
}

// encodeJSON renders v with two-space indentation, without HTML escaping
// and without a trailing newline.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// IndexContent returns the root metadata file for the current format.
func IndexContent() string {
	// Encoding a struct of one int cannot fail.
	s, _ := encodeJSON(IndexFile{Version: FormatVersion})
	return s
}
