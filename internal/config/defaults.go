package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers a default for every key. Registering the keys is
// also what lets AutomaticEnv override values absent from the file.
func setDefaults(v *viper.Viper) {
	dataDir := GetDataDir()

	v.SetDefault("profile", "default")

	v.SetDefault("remote.backend", "memory")
	v.SetDefault("remote.branch", "main")
	v.SetDefault("remote.base_path", "bookmarks")
	v.SetDefault("remote.concurrency", 8)
	v.SetDefault("remote.github.base_url", "https://api.github.com")
	v.SetDefault("remote.github.owner", "")
	v.SetDefault("remote.github.repo", "")
	v.SetDefault("remote.github.token", "")
	v.SetDefault("remote.github.timeout", 30*time.Second)
	v.SetDefault("remote.git.path", "")
	v.SetDefault("remote.git.init", false)
	v.SetDefault("remote.git.author_name", "gitmarks")
	v.SetDefault("remote.git.author_email", "gitmarks@localhost")

	v.SetDefault("sync.debounce", 5*time.Second)
	v.SetDefault("sync.max_wait", 60*time.Second)
	v.SetDefault("sync.poll_interval", time.Duration(0))
	v.SetDefault("sync.suppress_window", 5*time.Second)
	v.SetDefault("sync.sync_on_start", true)

	v.SetDefault("host.path", filepath.Join(dataDir, "bookmarks.json"))
	v.SetDefault("host.watch", true)

	v.SetDefault("state.path", filepath.Join(dataDir, "state.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 7420)
}

// ApplyDefaults normalizes loaded values and fills what viper cannot.
//
// Values set explicitly are preserved, except that the log level is
// lowercased and the base path loses surrounding slashes.
func ApplyDefaults(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Remote.BasePath = strings.Trim(cfg.Remote.BasePath, "/")

	// The conventional variable used by git tooling.
	if cfg.Remote.GitHub.Token == "" {
		cfg.Remote.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Remote.Concurrency == 0 {
		cfg.Remote.Concurrency = 8
	}
}
