package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/codewandler/vfs-es/core/app"
	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

type cmdFunc[C any] func(ctx context.Context, cmd C) (es.Aggregate, error)

func bind[C any, T es.Aggregate](fn func(*vfs.Commands) func(context.Context, C) (T, error)) func(*vfs.Commands) cmdFunc[C] {
	return func(cmds *vfs.Commands) cmdFunc[C] {
		return func(ctx context.Context, c C) (es.Aggregate, error) {
			return fn(cmds)(ctx, c)
		}
	}
}

// nodeOps maps the generic subcommands onto the file or folder commands.
type nodeOps struct {
	kind    string
	move    func(*vfs.Commands) cmdFunc[vfs.MoveCmd]
	rename  func(*vfs.Commands) cmdFunc[vfs.RenameCmd]
	delete  func(*vfs.Commands) cmdFunc[vfs.DeleteCmd]
	restore func(*vfs.Commands) cmdFunc[vfs.RestoreCmd]
	chmod   func(*vfs.Commands) cmdFunc[vfs.SetPermissionsCmd]
}

var fileOps = nodeOps{
	kind:    string(vfs.ItemFile),
	move:    bind(func(c *vfs.Commands) func(context.Context, vfs.MoveCmd) (*vfs.File, error) { return c.MoveFile }),
	rename:  bind(func(c *vfs.Commands) func(context.Context, vfs.RenameCmd) (*vfs.File, error) { return c.RenameFile }),
	delete:  bind(func(c *vfs.Commands) func(context.Context, vfs.DeleteCmd) (*vfs.File, error) { return c.DeleteFile }),
	restore: bind(func(c *vfs.Commands) func(context.Context, vfs.RestoreCmd) (*vfs.File, error) { return c.RestoreFile }),
	chmod:   bind(func(c *vfs.Commands) func(context.Context, vfs.SetPermissionsCmd) (*vfs.File, error) { return c.SetFilePermissions }),
}

var folderOps = nodeOps{
	kind:    string(vfs.ItemFolder),
	move:    bind(func(c *vfs.Commands) func(context.Context, vfs.MoveCmd) (*vfs.Folder, error) { return c.MoveFolder }),
	rename:  bind(func(c *vfs.Commands) func(context.Context, vfs.RenameCmd) (*vfs.Folder, error) { return c.RenameFolder }),
	delete:  bind(func(c *vfs.Commands) func(context.Context, vfs.DeleteCmd) (*vfs.Folder, error) { return c.DeleteFolder }),
	restore: bind(func(c *vfs.Commands) func(context.Context, vfs.RestoreCmd) (*vfs.Folder, error) { return c.RestoreFolder }),
	chmod:   bind(func(c *vfs.Commands) func(context.Context, vfs.SetPermissionsCmd) (*vfs.Folder, error) { return c.SetFolderPermissions }),
}

func (c *cli) nodeCmd(ops nodeOps) *cobra.Command {
	root := &cobra.Command{
		Use:   ops.kind,
		Short: "Manage " + ops.kind + "s",
	}
	root.AddCommand(
		c.createCmd(ops.kind),
		&cobra.Command{
			Use:   "mv ID NEW_PARENT_ID",
			Short: "Move a " + ops.kind + " (use \"\" for the root)",
			Args:  cobra.ExactArgs(2),
			RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
				agg, err := ops.move(a.Commands())(cmd.Context(), vfs.MoveCmd{ID: args[0], NewParentID: args[1], ActorID: c.actor})
				if err != nil {
					return err
				}
				return c.printChanged("moved", agg)
			}),
		},
		&cobra.Command{
			Use:   "rename ID NEW_NAME",
			Short: "Rename a " + ops.kind,
			Args:  cobra.ExactArgs(2),
			RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
				agg, err := ops.rename(a.Commands())(cmd.Context(), vfs.RenameCmd{ID: args[0], NewName: args[1], ActorID: c.actor})
				if err != nil {
					return err
				}
				return c.printChanged("renamed", agg)
			}),
		},
		&cobra.Command{
			Use:   "rm ID",
			Short: "Soft delete a " + ops.kind,
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
				agg, err := ops.delete(a.Commands())(cmd.Context(), vfs.DeleteCmd{ID: args[0], ActorID: c.actor})
				if err != nil {
					return err
				}
				return c.printChanged("deleted", agg)
			}),
		},
		&cobra.Command{
			Use:   "restore ID",
			Short: "Restore a deleted " + ops.kind,
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
				agg, err := ops.restore(a.Commands())(cmd.Context(), vfs.RestoreCmd{ID: args[0], ActorID: c.actor})
				if err != nil {
					return err
				}
				return c.printChanged("restored", agg)
			}),
		},
		&cobra.Command{
			Use:     "chmod ID SUBJECT=PERM[,PERM]...",
			Short:   "Replace the access list of a " + ops.kind,
			Example: "  vfsctl " + ops.kind + " chmod 3f1c... user:alice=admin group:eng=read,write everyone=read",
			Args:    cobra.MinimumNArgs(2),
			RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
				acl := make(vfs.ACL, 0, len(args)-1)
				for _, s := range args[1:] {
					ace, err := vfs.ParseACE(s)
					if err != nil {
						return err
					}
					acl = append(acl, ace)
				}
				agg, err := ops.chmod(a.Commands())(cmd.Context(), vfs.SetPermissionsCmd{ID: args[0], ACL: acl, ActorID: c.actor})
				if err != nil {
					return err
				}
				return c.printChanged("permissions changed", agg)
			}),
		},
	)
	return root
}

func (c *cli) createCmd(kind string) *cobra.Command {
	var (
		parentID string
		size     int64
		mimeType string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			var (
				agg es.Aggregate
				err error
			)
			if kind == string(vfs.ItemFolder) {
				agg, err = a.Commands().CreateFolder(cmd.Context(), vfs.CreateFolderCmd{
					Name: args[0], ParentID: parentID, OwnerID: c.actor,
				})
			} else {
				agg, err = a.Commands().CreateFile(cmd.Context(), vfs.CreateFileCmd{
					Name: args[0], ParentID: parentID, Size: size, MimeType: mimeType, OwnerID: c.actor,
				})
			}
			if err != nil {
				return err
			}
			return c.printChanged("created", agg)
		}),
	}
	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "parent folder id (root when empty)")
	if kind == string(vfs.ItemFile) {
		cmd.Flags().Int64Var(&size, "size", 0, "size in bytes")
		cmd.Flags().StringVar(&mimeType, "mime", "application/octet-stream", "mime type")
	}
	return cmd
}
