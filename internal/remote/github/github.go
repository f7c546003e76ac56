// Package github implements remote.ObjectStore on the GitHub REST API
// (git database endpoints plus the contents API).
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gitmarks/gitmarks/internal/metrics"
	"github.com/gitmarks/gitmarks/internal/remote"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// Config holds store configuration.
type Config struct {
	// BaseURL of the API, for GitHub Enterprise or tests.
	BaseURL string
	// Owner and Repo name the repository.
	Owner string
	Repo  string
	// Token is sent as a bearer credential.
	Token string
	// Timeout per request. Zero leaves it to the transport.
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Store talks to one GitHub repository.
type Store struct {
	baseURL    string
	repoPath   string
	token      string
	httpClient *http.Client
}

var (
	_ remote.ObjectStore   = (*Store)(nil)
	_ remote.Initializer   = (*Store)(nil)
	_ remote.ContentReader = (*Store)(nil)
)

// New creates a store.
func New(cfg Config) (*Store, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Store{
		baseURL:    baseURL,
		repoPath:   "/repos/" + url.PathEscape(cfg.Owner) + "/" + url.PathEscape(cfg.Repo),
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type shaRef struct {
	SHA string `json:"sha"`
}

type commitResponse struct {
	SHA     string   `json:"sha"`
	Message string   `json:"message"`
	Tree    shaRef   `json:"tree"`
	Parents []shaRef `json:"parents"`
}

type treeResponse struct {
	SHA  string `json:"sha"`
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type contentResponse struct {
	Type     string `json:"type"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type treeItem struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
}

func (s *Store) GetRef(ctx context.Context, branch string) (string, error) {
	var resp refResponse
	if err := s.do(ctx, "get_ref", http.MethodGet, "/git/ref/heads/"+branch, nil, &resp); err != nil {
		return "", err
	}
	return resp.Object.SHA, nil
}

func (s *Store) GetCommit(ctx context.Context, id string) (*remote.Commit, error) {
	var resp commitResponse
	if err := s.do(ctx, "get_commit", http.MethodGet, "/git/commits/"+id, nil, &resp); err != nil {
		return nil, err
	}
	c := &remote.Commit{ID: resp.SHA, TreeID: resp.Tree.SHA, Message: resp.Message}
	if len(resp.Parents) > 0 {
		c.ParentID = resp.Parents[0].SHA
	}
	return c, nil
}

func (s *Store) GetTree(ctx context.Context, id string) (*remote.Tree, error) {
	var resp treeResponse
	if err := s.do(ctx, "get_tree", http.MethodGet, "/git/trees/"+id+"?recursive=1", nil, &resp); err != nil {
		return nil, err
	}
	// A truncated listing would make missing files look deleted.
	if resp.Truncated {
		return nil, fmt.Errorf("tree %s is too large for a recursive listing: %w", id, remote.ErrInvalid)
	}
	tree := &remote.Tree{ID: resp.SHA}
	for _, e := range resp.Tree {
		if e.Type != "blob" {
			continue
		}
		tree.Entries = append(tree.Entries, remote.TreeEntry{Path: e.Path, BlobID: e.SHA})
	}
	return tree, nil
}

func (s *Store) GetBlob(ctx context.Context, id string) (string, error) {
	var resp blobResponse
	if err := s.do(ctx, "get_blob", http.MethodGet, "/git/blobs/"+id, nil, &resp); err != nil {
		return "", err
	}
	return decodeContent(resp.Content, resp.Encoding)
}

func (s *Store) CreateBlob(ctx context.Context, content string) (string, error) {
	body := map[string]string{"content": content, "encoding": "utf-8"}
	var resp shaRef
	if err := s.do(ctx, "create_blob", http.MethodPost, "/git/blobs", body, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

func (s *Store) CreateTree(ctx context.Context, baseTreeID string, changes []remote.TreeChange) (string, error) {
	items := make([]treeItem, 0, len(changes))
	for _, c := range changes {
		item := treeItem{Path: c.Path, Mode: "100644", Type: "blob"}
		if !c.IsDelete() {
			sha := c.BlobID
			item.SHA = &sha
		}
		items = append(items, item)
	}
	body := struct {
		BaseTree string     `json:"base_tree,omitempty"`
		Tree     []treeItem `json:"tree"`
	}{BaseTree: baseTreeID, Tree: items}

	var resp shaRef
	if err := s.do(ctx, "create_tree", http.MethodPost, "/git/trees", body, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

func (s *Store) CreateCommit(ctx context.Context, message, treeID string, parents []string) (string, error) {
	if parents == nil {
		parents = []string{}
	}
	body := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{message, treeID, parents}

	var resp shaRef
	if err := s.do(ctx, "create_commit", http.MethodPost, "/git/commits", body, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

// UpdateRef advances the branch without force. GitHub has no compare-and-swap
// on refs; the fast-forward check rejects the update when the branch moved
// away from the commit's parent, which is expected.
func (s *Store) UpdateRef(ctx context.Context, branch, commitID, expected string) error {
	body := map[string]any{"sha": commitID, "force": false}
	return s.do(ctx, "update_ref", http.MethodPatch, "/git/refs/heads/"+branch, body, nil)
}

func (s *Store) CreateRef(ctx context.Context, branch, commitID string) error {
	body := map[string]string{"ref": "refs/heads/" + branch, "sha": commitID}
	return s.do(ctx, "create_ref", http.MethodPost, "/git/refs", body, nil)
}

// Initialize writes the first file of an empty repository through the
// contents API. GitHub creates the default branch; when that is not branch,
// the first atomic commit creates branch as a root commit.
func (s *Store) Initialize(ctx context.Context, branch, path, content, message string) error {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	return s.do(ctx, "put_content", http.MethodPut, "/contents/"+escapePath(path), body, nil)
}

// GetContent reads one file at the head of branch.
func (s *Store) GetContent(ctx context.Context, branch, path string) (string, string, error) {
	var resp contentResponse
	endpoint := "/contents/" + escapePath(path) + "?ref=" + url.QueryEscape(branch)
	if err := s.do(ctx, "get_content", http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", "", err
	}
	if resp.Type != "file" {
		return "", "", fmt.Errorf("%s is a %s: %w", path, resp.Type, remote.ErrInvalid)
	}
	content, err := decodeContent(resp.Content, resp.Encoding)
	if err != nil {
		return "", "", err
	}
	return content, resp.SHA, nil
}

// do performs one API call. out may be nil.
func (s *Store) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+s.repoPath+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "gitmarks")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(op, 0, time.Since(start))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.RecordRemoteRequest(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %w", op, remote.NewAPIError(resp.StatusCode, errorMessage(resp.Body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}

func decodeContent(content, encoding string) (string, error) {
	switch encoding {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("failed to decode blob: %w", err)
		}
		return string(data), nil
	case "", "utf-8":
		return content, nil
	default:
		return "", fmt.Errorf("unsupported blob encoding %q", encoding)
	}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
