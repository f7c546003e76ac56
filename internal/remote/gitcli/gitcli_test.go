package gitcli

import (
	"context"
	"errors"
	"io"
	"log"
	"os/exec"
	"testing"

	"github.com/gitmarks/gitmarks/internal/filemap"
	"github.com/gitmarks/gitmarks/internal/remote"
)

// setupTestRepo creates a bare repository in a temp dir.
func setupTestRepo(t *testing.T) *Git {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	g, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return g
}

func TestParseCommit(t *testing.T) {
	raw := "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		"parent 1111111111111111111111111111111111111111\n" +
		"author a <a@b> 1700000000 +0000\n" +
		"committer a <a@b> 1700000000 +0000\n" +
		"\n" +
		"Sync bookmarks\n\nbody line\n"

	c := parseCommit("abc", raw)
	if c.TreeID != "4b825dc642cb6eb9a060e54bf8d69288fbee4904" {
		t.Errorf("TreeID = %q", c.TreeID)
	}
	if c.ParentID != "1111111111111111111111111111111111111111" {
		t.Errorf("ParentID = %q", c.ParentID)
	}
	if c.Message != "Sync bookmarks\n\nbody line" {
		t.Errorf("Message = %q", c.Message)
	}
}

func TestClientOverGit(t *testing.T) {
	g := setupTestRepo(t)
	client := remote.New(g, &remote.Config{Branch: "main", Logger: log.New(io.Discard, "", 0)})
	ctx := context.Background()

	state, err := client.FetchFileMap(ctx, "bookmarks", nil)
	if err != nil {
		t.Fatalf("FetchFileMap() on empty repo failed: %v", err)
	}
	if !state.IsEmpty() {
		t.Fatalf("expected empty state, got %v", state.Files)
	}

	first, err := client.AtomicCommit(ctx, "initial", filemap.ChangeSet{
		"bookmarks/_index.json":           filemap.Put("{\n  \"version\": 2\n}"),
		"bookmarks/toolbar/_order.json":   filemap.Put(`["git_1a2b.json"]`),
		"bookmarks/toolbar/git_1a2b.json": filemap.Put(`{"title": "Git", "url": "https://git-scm.com"}`),
		"bookmarks/other/stale.json":      filemap.Delete(),
	})
	if err != nil {
		t.Fatalf("AtomicCommit() failed: %v", err)
	}
	if !first.Created || first.Changed != 3 {
		t.Errorf("unexpected result %+v", first)
	}

	second, err := client.AtomicCommit(ctx, "edit", filemap.ChangeSet{
		"bookmarks/toolbar/_order.json":   filemap.Put(`[]`),
		"bookmarks/toolbar/git_1a2b.json": filemap.Delete(),
	})
	if err != nil {
		t.Fatalf("AtomicCommit() failed: %v", err)
	}

	commit, err := client.GetLatestCommit(ctx)
	if err != nil {
		t.Fatalf("GetLatestCommit() failed: %v", err)
	}
	if commit.ID != second.CommitID || commit.ParentID != first.CommitID || commit.Message != "edit" {
		t.Errorf("unexpected head %+v", commit)
	}

	state, err = client.FetchFileMap(ctx, "bookmarks", nil)
	if err != nil {
		t.Fatalf("FetchFileMap() failed: %v", err)
	}
	if len(state.Files) != 2 || state.Files["bookmarks/toolbar/_order.json"] != `[]` {
		t.Errorf("unexpected files %v", state.Files)
	}
	if state.ObjectIDs["bookmarks/toolbar/_order.json"] != remote.BlobID(`[]`) {
		t.Error("object id does not match the locally computed blob id")
	}

	noop, err := client.AtomicCommit(ctx, "noop", filemap.ChangeSet{
		"bookmarks/toolbar/_order.json": filemap.Put(`[]`),
	})
	if err != nil {
		t.Fatalf("AtomicCommit() failed: %v", err)
	}
	if noop.Created || noop.CommitID != second.CommitID {
		t.Errorf("expected no new commit, got %+v", noop)
	}
}

func TestRefConditions(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	if _, err := g.GetRef(ctx, "main"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("GetRef() on missing branch = %v, want ErrNotFound", err)
	}

	blob, err := g.CreateBlob(ctx, "x")
	if err != nil {
		t.Fatalf("CreateBlob() failed: %v", err)
	}
	tree, err := g.CreateTree(ctx, "", []remote.TreeChange{{Path: "a/x.json", BlobID: blob}})
	if err != nil {
		t.Fatalf("CreateTree() failed: %v", err)
	}
	c1, err := g.CreateCommit(ctx, "one", tree, nil)
	if err != nil {
		t.Fatalf("CreateCommit() failed: %v", err)
	}
	c2, err := g.CreateCommit(ctx, "two", tree, []string{c1})
	if err != nil {
		t.Fatalf("CreateCommit() failed: %v", err)
	}

	if err := g.CreateRef(ctx, "main", c1); err != nil {
		t.Fatalf("CreateRef() failed: %v", err)
	}
	if err := g.CreateRef(ctx, "main", c2); !errors.Is(err, remote.ErrRefExists) {
		t.Errorf("CreateRef() on existing branch = %v, want ErrRefExists", err)
	}
	if err := g.UpdateRef(ctx, "main", c2, c2); !errors.Is(err, remote.ErrNonFastForward) {
		t.Errorf("UpdateRef() with stale expectation = %v, want ErrNonFastForward", err)
	}
	if err := g.UpdateRef(ctx, "main", c2, c1); err != nil {
		t.Errorf("UpdateRef() failed: %v", err)
	}

	head, err := g.GetRef(ctx, "main")
	if err != nil || head != c2 {
		t.Errorf("GetRef() = %s, %v; want %s", head, err, c2)
	}
}
