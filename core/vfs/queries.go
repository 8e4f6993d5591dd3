package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codewandler/vfs-es/core/ds"
	"github.com/codewandler/vfs-es/core/sf"
)

const (
	DefaultTreeDepth = 10
	MaxTreeDepth     = 64
)

// FolderTree is a folder with its sub folders. Trees returned by Queries may
// be shared between callers and must not be modified.
type FolderTree struct {
	Folder   FileView      `json:"folder"`
	Children []*FolderTree `json:"children,omitempty"`
}

// Walk visits every node of the tree breadth first.
func (t *FolderTree) Walk(fn func(depth int, n *FolderTree)) {
	type item struct {
		n     *FolderTree
		depth int
	}
	queue := []item{{t, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		fn(it.depth, it.n)
		for _, c := range it.n.Children {
			queue = append(queue, item{c, it.depth + 1})
		}
	}
}

type QueriesOpts struct {
	Log    *slog.Logger
	Groups GroupResolver
	// DefaultDepth is used when FolderTree is asked for depth <= 0.
	DefaultDepth int
	// MaxDepth caps every FolderTree request.
	MaxDepth int
}

type Queries struct {
	log          *slog.Logger
	rm           ReadModel
	groups       GroupResolver
	trees        sf.Group[*FolderTree]
	defaultDepth int
	maxDepth     int
}

func NewQueries(rm ReadModel, opts QueriesOpts) *Queries {
	q := &Queries{
		log:          opts.Log,
		rm:           rm,
		groups:       opts.Groups,
		defaultDepth: opts.DefaultDepth,
		maxDepth:     opts.MaxDepth,
	}
	if q.log == nil {
		q.log = slog.Default()
	}
	q.log = q.log.With(slog.String("component", "vfs.queries"))
	if q.groups == nil {
		q.groups = NoGroups
	}
	if q.maxDepth <= 0 {
		q.maxDepth = MaxTreeDepth
	}
	if q.defaultDepth <= 0 {
		q.defaultDepth = DefaultTreeDepth
	}
	q.defaultDepth = min(q.defaultDepth, q.maxDepth)
	return q
}

// GetFile returns a live file or folder.
func (q *Queries) GetFile(ctx context.Context, id string) (FileView, error) {
	v, err := q.rm.View(ctx, id)
	if err != nil {
		return FileView{}, err
	}
	if v.IsDeleted() {
		return FileView{}, fmt.Errorf("%w: %s is deleted", ErrNotFound, id)
	}
	return v, nil
}

func (q *Queries) folder(ctx context.Context, id string) (FileView, error) {
	v, err := q.GetFile(ctx, id)
	if err != nil {
		return FileView{}, err
	}
	if !v.IsFolder() {
		return FileView{}, fmt.Errorf("%w: %s is not a folder", ErrNotFound, id)
	}
	return v, nil
}

// ListChildren lists the live items below parentID, "" being the root.
func (q *Queries) ListChildren(ctx context.Context, parentID string, page Page) ([]FileView, error) {
	if parentID != "" {
		if _, err := q.folder(ctx, parentID); err != nil {
			return nil, err
		}
	}
	return q.rm.Children(ctx, parentID, page.Normalize())
}

func (q *Queries) Search(ctx context.Context, query string, page Page) ([]FileView, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrValidation)
	}
	return q.rm.Search(ctx, query, page.Normalize())
}

// CheckPermission reports whether userID may exercise p on the item.
func (q *Queries) CheckPermission(ctx context.Context, id, userID string, p Permission) (bool, error) {
	v, err := q.rm.View(ctx, id)
	if err != nil {
		return false, err
	}
	return checkPermission(ctx, q.rm, q.groups, v, userID, p)
}

func checkPermission(ctx context.Context, rm ReadModel, groups GroupResolver, v FileView, userID string, p Permission) (bool, error) {
	if userID == v.OwnerID {
		return true, nil
	}
	acl, err := rm.ACL(ctx, v.ID)
	if err != nil {
		return false, err
	}
	memberOf, err := groups.GroupsOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("resolve groups of %s: %w", userID, err)
	}
	return Allowed(v.OwnerID, acl, userID, ds.NewSet(memberOf...), p), nil
}

func (q *Queries) treeDepth(depth int) int {
	if depth <= 0 {
		return q.defaultDepth
	}
	return min(depth, q.maxDepth)
}

// FolderTree returns the live folders below folderID down to maxDepth levels.
// maxDepth <= 0 selects the default depth. Concurrent identical requests
// share one traversal.
func (q *Queries) FolderTree(ctx context.Context, folderID string, maxDepth int) (*FolderTree, error) {
	depth := q.treeDepth(maxDepth)
	tree, shared, err := q.trees.Do(ctx, fmt.Sprintf("%s/%d", folderID, depth), func(ctx context.Context) (*FolderTree, error) {
		return q.buildTree(ctx, folderID, depth)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		q.log.Debug("shared folder tree", slog.String("folder_id", folderID), slog.Int("depth", depth))
	}
	return tree, nil
}

func (q *Queries) buildTree(ctx context.Context, folderID string, depth int) (*FolderTree, error) {
	root, err := q.folder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	type item struct {
		n     *FolderTree
		depth int
	}
	var (
		tree    = &FolderTree{Folder: root}
		visited = ds.NewSet(root.ID)
		queue   = []item{{tree, 0}}
	)
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.depth >= depth {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		children, err := q.rm.ChildFolders(ctx, it.n.Folder.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if !visited.Add(c.ID) {
				q.log.Warn("folder cycle", slog.String("folder_id", c.ID), slog.String("parent_id", it.n.Folder.ID))
				continue
			}
			child := &FolderTree{Folder: c}
			it.n.Children = append(it.n.Children, child)
			queue = append(queue, item{child, it.depth + 1})
		}
	}
	return tree, nil
}
