package serializer

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	maxSlugLen   = 40
	hashLen      = 4
	untitledSlug = "untitled"
)

// Slug turns a title into a filesystem-safe name: lowercase ASCII letters and
// digits, with every other run of characters collapsed into a single '-'.
func Slug(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return untitledSlug
	}
	return s
}

// ShortHash returns a short content hash of a URL.
func ShortHash(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))[:hashLen]
}

// Filename returns the deterministic file name of a bookmark. Two bookmarks
// with the same title and URL share a name.
func Filename(title, url string) string {
	return Slug(title) + "_" + ShortHash(url) + ".json"
}

// dirNamer hands out folder directory names unique within one sibling set.
type dirNamer struct {
	used map[string]bool
}

func newDirNamer() *dirNamer {
	return &dirNamer{used: make(map[string]bool)}
}

// next returns slug(title), or slug(title)-N for the N-th duplicate.
func (d *dirNamer) next(title string) string {
	base := Slug(title)
	name := base
	for i := 2; d.used[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	d.used[name] = true
	return name
}
