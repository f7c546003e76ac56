package sync

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gitmarks/gitmarks/internal/bookmark"
	"github.com/gitmarks/gitmarks/internal/filemap"
	"github.com/gitmarks/gitmarks/internal/logging"
	"github.com/gitmarks/gitmarks/internal/serializer"
)

// applyFileMap writes the roles of files into the host, replacing the
// children of each role folder. Only roles listed in touched are rewritten;
// a nil touched rewrites every role present in files. Roles absent from
// files are left alone. It returns the number of nodes created.
func (o *Orchestrator) applyFileMap(ctx context.Context, files filemap.FileMap, touched map[bookmark.Role]bool) (int, error) {
	roles := serializer.FileMapToTree(files, o.cfg.BasePath)

	tree, err := o.host.ListTree(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list host tree: %w", err)
	}
	current := bookmark.RoleFolders(tree)

	o.suppress()
	defer o.suppress()

	created := 0
	for _, role := range bookmark.Roles {
		incoming, ok := roles[role]
		if !ok || (touched != nil && !touched[role]) {
			continue
		}

		target := current[role]
		if target == nil {
			o.logger.Printf("Host has no %s folder, creating it", role)
			target, err = o.host.CreateNode(ctx, tree.ID, bookmark.Spec{Title: role.String()})
			if err != nil {
				return created, fmt.Errorf("failed to create %s folder: %w", role, err)
			}
		}

		for _, child := range target.Children {
			if err := o.host.RemoveSubtree(ctx, child.ID); err != nil {
				return created, fmt.Errorf("failed to clear %s: %w", role, err)
			}
		}

		n, err := o.createChildren(ctx, target.ID, incoming.Children)
		created += n
		if err != nil {
			return created, fmt.Errorf("failed to write %s: %w", role, err)
		}
	}
	return created, nil
}

func (o *Orchestrator) createChildren(ctx context.Context, parentID string, nodes []*bookmark.Node) (int, error) {
	created := 0
	for _, n := range nodes {
		if n.IsBookmark() && n.URL == "" {
			// An empty URL would turn into a folder on the host.
			logging.Warnf(o.logger, "Skipping bookmark %q without URL", n.Title)
			continue
		}
		node, err := o.host.CreateNode(ctx, parentID, bookmark.Spec{Title: n.Title, URL: n.URL})
		if err != nil {
			return created, err
		}
		created++
		if n.IsFolder() {
			sub, err := o.createChildren(ctx, node.ID, n.Children)
			created += sub
			if err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// touchedRoles returns the roles whose directories contain any of paths.
func (o *Orchestrator) touchedRoles(paths []string) map[bookmark.Role]bool {
	out := make(map[bookmark.Role]bool)
	for _, p := range paths {
		for _, role := range bookmark.Roles {
			dir := path.Join(o.cfg.BasePath, role.String()) + "/"
			if strings.HasPrefix(p, dir) {
				out[role] = true
			}
		}
	}
	return out
}

// isEmptyTree reports whether the role folders hold no nodes at all.
func isEmptyTree(roles map[bookmark.Role]*bookmark.Node) bool {
	for _, folder := range roles {
		if bm, folders := bookmark.Count(folder); bm+folders > 0 {
			return false
		}
	}
	return true
}
