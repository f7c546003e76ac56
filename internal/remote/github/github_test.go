package github

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitmarks/gitmarks/internal/filemap"
	"github.com/gitmarks/gitmarks/internal/remote"
	"github.com/gitmarks/gitmarks/internal/remote/memory"
)

const testToken = "test-token"

// fakeAPI serves the subset of the GitHub REST API the store uses, backed by
// an in-memory object store.
func fakeAPI(t *testing.T, backing *memory.Store) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	const prefix = "/repos/octo/marks"

	fail := func(w http.ResponseWriter, err error) {
		status, msg := http.StatusUnprocessableEntity, err.Error()
		switch {
		case errors.Is(err, remote.ErrNotFound):
			status, msg = http.StatusNotFound, "Not Found"
		case errors.Is(err, remote.ErrEmptyRepo):
			status, msg = http.StatusConflict, "Git Repository is empty."
		case errors.Is(err, remote.ErrRefExists):
			msg = "Reference already exists"
		case errors.Is(err, remote.ErrNonFastForward):
			msg = "Update is not a fast forward"
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
	}
	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	decode := func(r *http.Request, v any) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(v))
	}

	mux.HandleFunc("GET "+prefix+"/git/ref/heads/{branch...}", func(w http.ResponseWriter, r *http.Request) {
		sha, err := backing.GetRef(r.Context(), r.PathValue("branch"))
		if err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusOK, map[string]any{"object": map[string]string{"sha": sha, "type": "commit"}})
	})

	mux.HandleFunc("GET "+prefix+"/git/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		c, err := backing.GetCommit(r.Context(), r.PathValue("sha"))
		if err != nil {
			fail(w, err)
			return
		}
		parents := []map[string]string{}
		if c.ParentID != "" {
			parents = append(parents, map[string]string{"sha": c.ParentID})
		}
		reply(w, http.StatusOK, map[string]any{
			"sha":     c.ID,
			"message": c.Message,
			"tree":    map[string]string{"sha": c.TreeID},
			"parents": parents,
		})
	})

	mux.HandleFunc("GET "+prefix+"/git/trees/{sha}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		tree, err := backing.GetTree(r.Context(), r.PathValue("sha"))
		if err != nil {
			fail(w, err)
			return
		}
		items := []map[string]string{}
		dirs := map[string]bool{}
		for _, e := range tree.Entries {
			if i := strings.LastIndex(e.Path, "/"); i > 0 && !dirs[e.Path[:i]] {
				dirs[e.Path[:i]] = true
				items = append(items, map[string]string{"path": e.Path[:i], "type": "tree", "sha": "d"})
			}
			items = append(items, map[string]string{"path": e.Path, "type": "blob", "mode": "100644", "sha": e.BlobID})
		}
		reply(w, http.StatusOK, map[string]any{"sha": tree.ID, "tree": items, "truncated": false})
	})

	mux.HandleFunc("GET "+prefix+"/git/blobs/{sha}", func(w http.ResponseWriter, r *http.Request) {
		content, err := backing.GetBlob(r.Context(), r.PathValue("sha"))
		if err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusOK, map[string]string{"content": wrapBase64(content), "encoding": "base64"})
	})

	mux.HandleFunc("POST "+prefix+"/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Content, Encoding string }
		decode(r, &body)
		assert.Equal(t, "utf-8", body.Encoding)
		sha, err := backing.CreateBlob(r.Context(), body.Content)
		if err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusCreated, map[string]string{"sha": sha})
	})

	mux.HandleFunc("POST "+prefix+"/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BaseTree string `json:"base_tree"`
			Tree     []struct {
				Path string  `json:"path"`
				SHA  *string `json:"sha"`
			} `json:"tree"`
		}
		decode(r, &body)
		var changes []remote.TreeChange
		for _, item := range body.Tree {
			c := remote.TreeChange{Path: item.Path}
			if item.SHA != nil {
				c.BlobID = *item.SHA
			}
			changes = append(changes, c)
		}
		sha, err := backing.CreateTree(r.Context(), body.BaseTree, changes)
		if err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusCreated, map[string]string{"sha": sha})
	})

	mux.HandleFunc("POST "+prefix+"/git/commits", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string
			Tree    string
			Parents []string
		}
		decode(r, &body)
		require.NotNil(t, body.Parents, "parents must be an array")
		sha, err := backing.CreateCommit(r.Context(), body.Message, body.Tree, body.Parents)
		if err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusCreated, map[string]string{"sha": sha})
	})

	mux.HandleFunc("PATCH "+prefix+"/git/refs/heads/{branch...}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SHA   string
			Force bool
		}
		decode(r, &body)
		assert.False(t, body.Force)
		branch := r.PathValue("branch")
		head, err := backing.GetRef(r.Context(), branch)
		if err != nil {
			fail(w, err)
			return
		}
		c, err := backing.GetCommit(r.Context(), body.SHA)
		if err != nil {
			fail(w, err)
			return
		}
		if c.ParentID != head {
			fail(w, remote.ErrNonFastForward)
			return
		}
		if err := backing.UpdateRef(r.Context(), branch, body.SHA, head); err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusOK, map[string]any{"object": map[string]string{"sha": body.SHA}})
	})

	mux.HandleFunc("POST "+prefix+"/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Ref, SHA string }
		decode(r, &body)
		if err := backing.CreateRef(r.Context(), strings.TrimPrefix(body.Ref, "refs/heads/"), body.SHA); err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusCreated, map[string]any{"ref": body.Ref})
	})

	mux.HandleFunc("GET "+prefix+"/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		files := backing.Files(r.URL.Query().Get("ref"))
		content, ok := files[r.PathValue("path")]
		if !ok {
			fail(w, remote.ErrNotFound)
			return
		}
		reply(w, http.StatusOK, map[string]string{
			"type":     "file",
			"sha":      remote.BlobID(content),
			"content":  wrapBase64(content),
			"encoding": "base64",
		})
	})

	mux.HandleFunc("PUT "+prefix+"/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Message, Content string }
		decode(r, &body)
		data, err := base64.StdEncoding.DecodeString(body.Content)
		require.NoError(t, err)
		if err := backing.Initialize(r.Context(), "main", r.PathValue("path"), string(data), body.Message); err != nil {
			fail(w, err)
			return
		}
		reply(w, http.StatusCreated, map[string]any{})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message": "Bad credentials"}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// wrapBase64 encodes content the way GitHub does, in 60-column lines.
func wrapBase64(content string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(content))
	var b strings.Builder
	for len(enc) > 60 {
		b.WriteString(enc[:60])
		b.WriteByte('\n')
		enc = enc[60:]
	}
	b.WriteString(enc)
	return b.String()
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *remote.Client {
	t.Helper()
	store, err := New(Config{BaseURL: srv.URL, Owner: "octo", Repo: "marks", Token: token})
	require.NoError(t, err)
	return remote.New(store, &remote.Config{Branch: "main", Logger: log.New(io.Discard, "", 0)})
}

func TestRoundTripThroughAPI(t *testing.T) {
	backing := memory.NewUninitialized()
	srv := fakeAPI(t, backing)
	client := newTestClient(t, srv, testToken)
	ctx := t.Context()

	state, err := client.FetchFileMap(ctx, "bookmarks", nil)
	require.NoError(t, err)
	assert.True(t, state.IsEmpty())

	long := `{"title": "` + strings.Repeat("x", 200) + `", "url": "https://example.com/?a=1&b=2"}`
	first, err := client.AtomicCommit(ctx, "initial", filemap.ChangeSet{
		"bookmarks/_index.json":            filemap.Put("{\n  \"version\": 2\n}"),
		"bookmarks/toolbar/_order.json":    filemap.Put(`["long_abcd.json"]`),
		"bookmarks/toolbar/long_abcd.json": filemap.Put(long),
	})
	require.NoError(t, err)
	assert.True(t, first.Created)

	state, err = client.FetchFileMap(ctx, "bookmarks", nil)
	require.NoError(t, err)
	assert.Equal(t, first.CommitID, state.CommitID)
	assert.Equal(t, long, state.Files["bookmarks/toolbar/long_abcd.json"])
	assert.Len(t, state.Files, 3)

	second, err := client.AtomicCommit(ctx, "remove", filemap.ChangeSet{
		"bookmarks/toolbar/_order.json":    filemap.Put(`[]`),
		"bookmarks/toolbar/long_abcd.json": filemap.Delete(),
	})
	require.NoError(t, err)
	assert.True(t, second.Created)

	again, err := client.AtomicCommit(ctx, "noop", filemap.ChangeSet{
		"bookmarks/toolbar/_order.json": filemap.Put(`[]`),
	})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, second.CommitID, again.CommitID)

	content, sha, err := client.GetFile(ctx, "bookmarks/toolbar/_order.json")
	require.NoError(t, err)
	assert.Equal(t, `[]`, content)
	assert.Equal(t, remote.BlobID(`[]`), sha)
}

func TestMovedRefIsRetriedOverAPI(t *testing.T) {
	backing := memory.New()
	backing.Seed("main", map[string]string{"bookmarks/a.json": "A"}, "seed")
	srv := fakeAPI(t, backing)
	client := newTestClient(t, srv, testToken)

	moved := false
	backing.BeforeUpdateRef = func(branch string) {
		if !moved {
			moved = true
			backing.Seed("main", map[string]string{"bookmarks/a.json": "A", "bookmarks/x.json": "X"}, "other")
		}
	}

	res, err := client.AtomicCommit(t.Context(), "mine", filemap.ChangeSet{"bookmarks/b.json": filemap.Put("B")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, map[string]string{
		"bookmarks/a.json": "A",
		"bookmarks/b.json": "B",
		"bookmarks/x.json": "X",
	}, backing.Files("main"))
}

func TestBadCredentials(t *testing.T) {
	srv := fakeAPI(t, memory.New())
	client := newTestClient(t, srv, "wrong")

	_, err := client.FetchFileMap(t.Context(), "bookmarks", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrUnauthenticated))
	assert.True(t, remote.IsFatal(err))
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode(err))
}

func TestRateLimitMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message": "API rate limit exceeded for 203.0.113.7."}`)
	}))
	defer srv.Close()

	store, err := New(Config{BaseURL: srv.URL, Owner: "octo", Repo: "marks"})
	require.NoError(t, err)

	_, err = store.GetRef(t.Context(), "main")
	assert.True(t, errors.Is(err, remote.ErrRateLimited))
	assert.False(t, errors.Is(err, remote.ErrForbidden))
}

func TestTruncatedTreeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"sha": "t", "tree": [], "truncated": true}`)
	}))
	defer srv.Close()

	store, err := New(Config{BaseURL: srv.URL, Owner: "octo", Repo: "marks"})
	require.NoError(t, err)

	_, err = store.GetTree(t.Context(), "t")
	assert.Error(t, err)
}

func TestNewRequiresRepository(t *testing.T) {
	_, err := New(Config{Owner: "octo"})
	assert.Error(t, err)
}
