package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitmarks/gitmarks/internal/filemap"
)

// testStore opens a database in a temp dir.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "gitmarks.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadMissingSnapshot(t *testing.T) {
	s := testStore(t)

	snap, err := s.LoadSnapshot(context.Background(), Key{Profile: "default", BasePath: "bookmarks"})
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot, got %+v", snap)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := Key{Profile: "default", BasePath: "bookmarks"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	files := filemap.FileMap{
		"bookmarks/toolbar/_order.json": `["a_1234.json"]`,
		"bookmarks/toolbar/a_1234.json": `{"title": "A", "url": "https://a"}`,
	}
	ids := map[string]string{"bookmarks/toolbar/_order.json": "abc123"}

	if err := s.SaveSnapshot(ctx, key, filemap.NewSnapshot(files, ids, "c1", at)); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	snap, err := s.LoadSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if snap.CommitID != "c1" || !snap.SyncedAt.Equal(at) {
		t.Errorf("unexpected metadata %q %v", snap.CommitID, snap.SyncedAt)
	}
	if got := snap.Files(); len(got) != 2 || got["bookmarks/toolbar/a_1234.json"] != files["bookmarks/toolbar/a_1234.json"] {
		t.Errorf("unexpected files %v", got)
	}
	if snap.Entries["bookmarks/toolbar/_order.json"].ObjectID != "abc123" {
		t.Error("object id not preserved")
	}
	if snap.Entries["bookmarks/toolbar/a_1234.json"].ObjectID != "" {
		t.Error("missing object id should load as empty")
	}

	// Replacing drops paths absent from the new snapshot.
	smaller := filemap.FileMap{"bookmarks/toolbar/_order.json": `[]`}
	if err := s.SaveSnapshot(ctx, key, filemap.NewSnapshot(smaller, nil, "c2", at.Add(time.Hour))); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	snap, err = s.LoadSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if len(snap.Entries) != 1 || snap.CommitID != "c2" {
		t.Errorf("snapshot not replaced: %+v", snap)
	}

	// Other keys are independent.
	other, err := s.LoadSnapshot(ctx, Key{Profile: "work", BasePath: "bookmarks"})
	if err != nil || other != nil {
		t.Errorf("expected no snapshot for other profile, got %+v, %v", other, err)
	}
}

func TestEmptySnapshotIsNotMissing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := Key{Profile: "default", BasePath: "bookmarks"}

	if err := s.SaveSnapshot(ctx, key, filemap.NewSnapshot(nil, nil, "", time.Now())); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	snap, err := s.LoadSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if snap == nil || len(snap.Entries) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestTouchAndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := Key{Profile: "default", BasePath: "bookmarks"}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.SaveSnapshot(ctx, key, filemap.NewSnapshot(filemap.FileMap{"a": "b"}, nil, "c1", at)); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	later := at.Add(48 * time.Hour)
	if err := s.TouchSyncTime(ctx, key, later); err != nil {
		t.Fatalf("TouchSyncTime() failed: %v", err)
	}
	snap, _ := s.LoadSnapshot(ctx, key)
	if !snap.SyncedAt.Equal(later) || len(snap.Entries) != 1 {
		t.Errorf("TouchSyncTime changed more than the time: %+v", snap)
	}

	if err := s.DeleteSnapshot(ctx, key); err != nil {
		t.Fatalf("DeleteSnapshot() failed: %v", err)
	}
	snap, _ = s.LoadSnapshot(ctx, key)
	if snap != nil {
		t.Errorf("snapshot survived delete: %+v", snap)
	}

	var files int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM snapshot_files`).Scan(&files); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if files != 0 {
		t.Errorf("snapshot files not cascaded: %d left", files)
	}
}

func TestReplicaIDStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gitmarks.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	id, err := s.ReplicaID(context.Background())
	if err != nil || id == "" {
		t.Fatalf("ReplicaID() = %q, %v", id, err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	again, err := s.ReplicaID(context.Background())
	if err != nil {
		t.Fatalf("ReplicaID() failed: %v", err)
	}
	if again != id {
		t.Errorf("replica id changed across opens: %s != %s", again, id)
	}
}
