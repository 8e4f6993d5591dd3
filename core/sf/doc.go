// Package sf is a typed wrapper around golang.org/x/sync/singleflight.
//
// The query service uses it so that identical tree requests arriving at the
// same time share one traversal of the read model:
//
//	var trees sf.Group[*FolderTree]
//	tree, shared, err := trees.Do(ctx, key, func(ctx context.Context) (*FolderTree, error) {
//	    return build(ctx, folderID, depth)
//	})
package sf
