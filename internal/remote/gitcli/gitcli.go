// Package gitcli implements remote.ObjectStore on a local Git repository
// through git plumbing commands. Pointing it at a bare repository that other
// tools push and pull gives a self-hosted remote without any HTTP API.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gitmarks/gitmarks/internal/remote"
)

const zeroOID = "0000000000000000000000000000000000000000"

// Git is an object store backed by a repository on disk.
type Git struct {
	// gitDir is the repository's object directory (.git or a bare repo)
	gitDir string

	// author is used for commits created through CreateCommit
	authorName  string
	authorEmail string
}

var _ remote.ObjectStore = (*Git)(nil)

// Open returns a store for the repository at path. The path may be a work
// tree or a bare repository.
func Open(path string) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git binary not available: %w", err)
	}
	cmd := exec.Command("git", "rev-parse", "--absolute-git-dir")
	cmd.Dir = path
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", path, err)
	}
	return &Git{
		gitDir:      strings.TrimSpace(string(output)),
		authorName:  "gitmarks",
		authorEmail: "gitmarks@localhost",
	}, nil
}

// Init creates a bare repository at path and opens it.
func Init(path string) (*Git, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	cmd := exec.Command("git", "init", "--bare", "--quiet", path)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git init failed: %w\n%s", err, string(output))
	}
	return Open(path)
}

// SetAuthor sets the identity recorded on new commits.
func (g *Git) SetAuthor(name, email string) {
	g.authorName = name
	g.authorEmail = email
}

// GitDir returns the repository directory.
func (g *Git) GitDir() string {
	return g.gitDir
}

// exec runs git against the repository. stdin may be empty.
func (g *Git) exec(ctx context.Context, stdin string, env []string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"--git-dir", g.gitDir}, args...)...)
	cmd.Env = append(os.Environ(), env...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (g *Git) exists(ctx context.Context, kind, id string) bool {
	out, err := g.exec(ctx, "", nil, "cat-file", "-t", id)
	return err == nil && strings.TrimSpace(string(out)) == kind
}

func (g *Git) GetRef(ctx context.Context, branch string) (string, error) {
	out, err := g.exec(ctx, "", nil, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("ref %s: %w", branch, remote.ErrNotFound)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Git) GetCommit(ctx context.Context, id string) (*remote.Commit, error) {
	if !g.exists(ctx, "commit", id) {
		return nil, fmt.Errorf("commit %s: %w", id, remote.ErrNotFound)
	}
	out, err := g.exec(ctx, "", nil, "cat-file", "commit", id)
	if err != nil {
		return nil, err
	}
	return parseCommit(id, string(out)), nil
}

// parseCommit reads the raw commit object format: header lines, a blank
// line, then the message.
func parseCommit(id, raw string) *remote.Commit {
	c := &remote.Commit{ID: id}
	header, message, _ := strings.Cut(raw, "\n\n")
	for _, line := range strings.Split(header, "\n") {
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "tree":
			c.TreeID = value
		case "parent":
			if c.ParentID == "" {
				c.ParentID = value
			}
		}
	}
	c.Message = strings.TrimSuffix(message, "\n")
	return c
}

func (g *Git) GetTree(ctx context.Context, id string) (*remote.Tree, error) {
	if !g.exists(ctx, "tree", id) {
		return nil, fmt.Errorf("tree %s: %w", id, remote.ErrNotFound)
	}
	out, err := g.exec(ctx, "", nil, "ls-tree", "-r", "-z", id)
	if err != nil {
		return nil, err
	}

	tree := &remote.Tree{ID: id}
	for _, record := range strings.Split(string(out), "\x00") {
		if record == "" {
			continue
		}
		// Format: <mode> SP <type> SP <object> TAB <path>
		meta, path, ok := strings.Cut(record, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) < 3 || fields[1] != "blob" {
			continue
		}
		tree.Entries = append(tree.Entries, remote.TreeEntry{Path: path, BlobID: fields[2]})
	}
	return tree, nil
}

func (g *Git) GetBlob(ctx context.Context, id string) (string, error) {
	if !g.exists(ctx, "blob", id) {
		return "", fmt.Errorf("blob %s: %w", id, remote.ErrNotFound)
	}
	out, err := g.exec(ctx, "", nil, "cat-file", "blob", id)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (g *Git) CreateBlob(ctx context.Context, content string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "--git-dir", g.gitDir, "hash-object", "-w", "--stdin")
	cmd.Stdin = strings.NewReader(content)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git hash-object failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CreateTree builds the new tree in a throwaway index so the repository's
// own index, if any, is left alone.
func (g *Git) CreateTree(ctx context.Context, baseTreeID string, changes []remote.TreeChange) (string, error) {
	tmp, err := os.MkdirTemp("", "gitmarks-index-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp index dir: %w", err)
	}
	defer os.RemoveAll(tmp)
	env := []string{"GIT_INDEX_FILE=" + filepath.Join(tmp, "index")}

	if baseTreeID != "" {
		if _, err := g.exec(ctx, "", env, "read-tree", baseTreeID); err != nil {
			return "", err
		}
	} else {
		if _, err := g.exec(ctx, "", env, "read-tree", "--empty"); err != nil {
			return "", err
		}
	}

	var info strings.Builder
	for _, c := range changes {
		if c.IsDelete() {
			fmt.Fprintf(&info, "0 %s\t%s\n", zeroOID, c.Path)
			continue
		}
		fmt.Fprintf(&info, "100644 %s\t%s\n", c.BlobID, c.Path)
	}
	if info.Len() > 0 {
		if _, err := g.exec(ctx, info.String(), env, "update-index", "--index-info"); err != nil {
			return "", err
		}
	}

	out, err := g.exec(ctx, "", env, "write-tree")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Git) CreateCommit(ctx context.Context, message, treeID string, parents []string) (string, error) {
	args := []string{"commit-tree", treeID}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	env := []string{
		"GIT_AUTHOR_NAME=" + g.authorName,
		"GIT_AUTHOR_EMAIL=" + g.authorEmail,
		"GIT_COMMITTER_NAME=" + g.authorName,
		"GIT_COMMITTER_EMAIL=" + g.authorEmail,
	}
	// Message on stdin keeps it verbatim, including leading dashes.
	out, err := g.exec(ctx, message+"\n", env, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// UpdateRef is a compare-and-swap through update-ref's old-value check.
func (g *Git) UpdateRef(ctx context.Context, branch, commitID, expected string) error {
	_, err := g.exec(ctx, "", nil, "update-ref", "-m", "gitmarks", "refs/heads/"+branch, commitID, expected)
	if err == nil {
		return nil
	}
	current, refErr := g.GetRef(ctx, branch)
	if errors.Is(refErr, remote.ErrNotFound) {
		return refErr
	}
	if current != expected {
		return fmt.Errorf("ref %s is at %s, expected %s: %w", branch, current, expected, remote.ErrNonFastForward)
	}
	return err
}

// CreateRef uses the all-zero old value, which update-ref treats as "must
// not exist".
func (g *Git) CreateRef(ctx context.Context, branch, commitID string) error {
	_, err := g.exec(ctx, "", nil, "update-ref", "-m", "gitmarks", "refs/heads/"+branch, commitID, zeroOID)
	if err == nil {
		return nil
	}
	if _, refErr := g.GetRef(ctx, branch); refErr == nil {
		return fmt.Errorf("ref %s: %w", branch, remote.ErrRefExists)
	}
	return err
}
