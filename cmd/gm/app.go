package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gitmarks/gitmarks/internal/config"
	"github.com/gitmarks/gitmarks/internal/host/filestore"
	"github.com/gitmarks/gitmarks/internal/logging"
	"github.com/gitmarks/gitmarks/internal/remote"
	"github.com/gitmarks/gitmarks/internal/remote/gitcli"
	"github.com/gitmarks/gitmarks/internal/remote/github"
	"github.com/gitmarks/gitmarks/internal/remote/memory"
	"github.com/gitmarks/gitmarks/internal/state"
	gmsync "github.com/gitmarks/gitmarks/internal/sync"
)

// app holds the components one command works with.
type app struct {
	state  *state.Store
	host   *filestore.Store
	client *remote.Client
	orch   *gmsync.Orchestrator
}

type appOptions struct {
	// watch enables host file watching when the config allows it.
	watch    bool
	onResult func(gmsync.Operation, *gmsync.Result)
}

// openApp wires state, host, remote and orchestrator from cfg.
func openApp(ctx context.Context, cfg *config.Config, logs *logging.Logging, opts appOptions) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.state, err = state.OpenContext(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	replicaID, err := a.state.ReplicaID(ctx)
	if err != nil {
		return nil, err
	}

	a.host, err = filestore.Open(cfg.Host.Path, &filestore.Config{
		Watch:       opts.watch && cfg.Host.Watch,
		EventBuffer: filestore.DefaultConfig().EventBuffer,
		Logger:      logs.New("host"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmarks: %w", err)
	}

	store, err := openStore(cfg.Remote)
	if err != nil {
		return nil, err
	}
	a.client = remote.New(store, &remote.Config{
		Branch:      cfg.Remote.Branch,
		Concurrency: cfg.Remote.Concurrency,
		Logger:      logs.New("remote"),
	})

	a.orch = gmsync.New(a.host, a.client, a.state, &gmsync.Config{
		Profile:        cfg.Profile,
		BasePath:       cfg.Remote.BasePath,
		ReplicaID:      replicaID,
		SuppressWindow: cfg.Sync.SuppressWindow,
		OnResult:       opts.onResult,
		Logger:         logs.New("sync"),
	})
	return a, nil
}

// openStore builds the object store selected by the remote backend.
func openStore(rc config.RemoteConfig) (remote.ObjectStore, error) {
	switch rc.Backend {
	case "github":
		return github.New(github.Config{
			BaseURL: rc.GitHub.BaseURL,
			Owner:   rc.GitHub.Owner,
			Repo:    rc.GitHub.Repo,
			Token:   rc.GitHub.Token,
			Timeout: rc.GitHub.Timeout,
		})

	case "git":
		g, err := gitcli.Open(rc.Git.Path)
		if err != nil {
			if !rc.Git.Init {
				return nil, err
			}
			if _, statErr := os.Stat(rc.Git.Path); statErr == nil || !errors.Is(statErr, os.ErrNotExist) {
				return nil, err
			}
			if g, err = gitcli.Init(rc.Git.Path); err != nil {
				return nil, err
			}
		}
		g.SetAuthor(rc.Git.AuthorName, rc.Git.AuthorEmail)
		return g, nil

	case "memory":
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown remote backend %q", rc.Backend)
	}
}

// Close releases everything that was opened.
func (a *app) Close() {
	if a.host != nil {
		_ = a.host.Close()
	}
	if a.state != nil {
		_ = a.state.Close()
	}
}
