package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the config and data directories at a temp dir so the
// user's own files are never read.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("GITHUB_TOKEN", "")
	return dir
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error without a config file, got: %v", err)
	}

	if cfg.Profile != "default" {
		t.Errorf("Expected profile 'default', got %q", cfg.Profile)
	}
	if cfg.Remote.Backend != "memory" || cfg.Remote.Branch != "main" || cfg.Remote.BasePath != "bookmarks" {
		t.Errorf("Unexpected remote defaults: %+v", cfg.Remote)
	}
	if cfg.Sync.Debounce != 5*time.Second || cfg.Sync.MaxWait != 60*time.Second {
		t.Errorf("Unexpected sync timing: %+v", cfg.Sync)
	}
	if !cfg.Sync.SyncOnStart || !cfg.Host.Watch {
		t.Error("Expected sync_on_start and host.watch to default to true")
	}
	if want := filepath.Join(dir, "data", "gitmarks", "state.db"); cfg.State.Path != want {
		t.Errorf("Expected state path %q, got %q", want, cfg.State.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Output != "stderr" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "config.yaml", `
profile: laptop
remote:
  backend: github
  branch: sync
  base_path: /marks/
  github:
    owner: alice
    repo: bookmarks
    token: secret
sync:
  debounce: 2s
  max_wait: 30s
  poll_interval: 5m
logging:
  level: DEBUG
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Profile != "laptop" || cfg.Remote.Backend != "github" || cfg.Remote.Branch != "sync" {
		t.Errorf("Unexpected values: %+v", cfg)
	}
	if cfg.Remote.BasePath != "marks" {
		t.Errorf("Expected base path trimmed to 'marks', got %q", cfg.Remote.BasePath)
	}
	if cfg.Remote.GitHub.Owner != "alice" || cfg.Remote.GitHub.Token != "secret" {
		t.Errorf("Unexpected github config: %+v", cfg.Remote.GitHub)
	}
	if cfg.Sync.Debounce != 2*time.Second || cfg.Sync.PollInterval != 5*time.Minute {
		t.Errorf("Unexpected sync config: %+v", cfg.Sync)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level normalized to 'debug', got %q", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Remote.Concurrency != 8 || cfg.Dashboard.Port != 7420 {
		t.Errorf("Expected defaults for unset keys, got concurrency=%d port=%d",
			cfg.Remote.Concurrency, cfg.Dashboard.Port)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "config.toml", `
profile = "desktop"

[remote]
backend = "git"

[remote.git]
path = "/srv/bookmarks.git"
init = true

[dashboard]
enabled = true
port = 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Remote.Backend != "git" || cfg.Remote.Git.Path != "/srv/bookmarks.git" || !cfg.Remote.Git.Init {
		t.Errorf("Unexpected git config: %+v", cfg.Remote)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Port != 9000 {
		t.Errorf("Unexpected dashboard config: %+v", cfg.Dashboard)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "config.yaml", "remote:\n  branch: main\n")

	t.Setenv("GITMARKS_REMOTE_BRANCH", "from-env")
	t.Setenv("GITMARKS_SYNC_DEBOUNCE", "750ms")
	t.Setenv("GITMARKS_PROFILE", "ci")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Remote.Branch != "from-env" {
		t.Errorf("Expected branch from environment, got %q", cfg.Remote.Branch)
	}
	if cfg.Sync.Debounce != 750*time.Millisecond {
		t.Errorf("Expected debounce from environment, got %v", cfg.Sync.Debounce)
	}
	if cfg.Profile != "ci" {
		t.Errorf("Expected profile from environment, got %q", cfg.Profile)
	}
}

func TestLoad_GitHubTokenFallback(t *testing.T) {
	isolate(t)
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Remote.GitHub.Token != "ghp_fallback" {
		t.Errorf("Expected token from GITHUB_TOKEN, got %q", cfg.Remote.GitHub.Token)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			file:    "bad.yaml",
			content: "remote:\n  branch: main\n  invalid yaml here [[[\n",
			wantErr: "failed to read config file",
		},
		{
			name:    "unknown backend",
			file:    "config.yaml",
			content: "remote:\n  backend: s3\n",
			wantErr: "Backend",
		},
		{
			name:    "github without repository",
			file:    "config.yaml",
			content: "remote:\n  backend: github\n",
			wantErr: "owner and repo are required",
		},
		{
			name:    "git without path",
			file:    "config.yaml",
			content: "remote:\n  backend: git\n",
			wantErr: "path is required",
		},
		{
			name:    "max wait below debounce",
			file:    "config.yaml",
			content: "sync:\n  debounce: 10s\n  max_wait: 5s\n",
			wantErr: "MaxWait",
		},
		{
			name:    "bad log level",
			file:    "config.yaml",
			content: "logging:\n  level: chatty\n",
			wantErr: "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := writeConfig(t, dir, tt.file, tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "nonexistent.yaml")); err == nil {
		t.Fatal("Expected an error for a missing explicit config file")
	}
}

func TestRedactedAndYAML(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.Remote.GitHub.Token = "secret"

	out, err := cfg.Redacted().YAML()
	if err != nil {
		t.Fatalf("YAML() failed: %v", err)
	}
	if strings.Contains(out, "secret") {
		t.Error("Redacted output leaks the token")
	}
	if !strings.Contains(out, "base_path: bookmarks") {
		t.Errorf("Expected snake_case keys in output:\n%s", out)
	}
	if cfg.Remote.GitHub.Token != "secret" {
		t.Error("Redacted must not modify the original")
	}
}
