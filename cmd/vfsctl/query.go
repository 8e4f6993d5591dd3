package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/vfs-es/core/app"
	"github.com/codewandler/vfs-es/core/vfs"
)

func (c *cli) printViews(views []vfs.FileView) error {
	if c.json {
		if views == nil {
			views = []vfs.FileView{}
		}
		return c.printJSON(views)
	}
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSIZE\tOWNER\tUPDATED\tPATH")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			v.ID, v.ItemType, v.Size, v.OwnerID, v.UpdatedAt.Format(time.RFC3339), v.Path)
	}
	return w.Flush()
}

func pageFlags(cmd *cobra.Command, page *vfs.Page) {
	cmd.Flags().IntVar(&page.Limit, "limit", vfs.DefaultPageSize, "page size")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "items to skip")
}

func (c *cli) lsCmd() *cobra.Command {
	var page vfs.Page
	cmd := &cobra.Command{
		Use:   "ls [FOLDER_ID]",
		Short: "List the children of a folder, the root by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			var parentID string
			if len(args) == 1 {
				parentID = args[0]
			}
			views, err := a.Queries().ListChildren(cmd.Context(), parentID, page)
			if err != nil {
				return err
			}
			return c.printViews(views)
		}),
	}
	pageFlags(cmd, &page)
	return cmd
}

func (c *cli) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat ID",
		Short: "Show a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			v, err := a.Queries().GetFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.json {
				return c.printJSON(v)
			}
			acl, err := a.ReadModel().ACL(cmd.Context(), v.ID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "id:\t%s\n", v.ID)
			fmt.Fprintf(w, "type:\t%s\n", v.ItemType)
			fmt.Fprintf(w, "path:\t%s\n", v.Path)
			fmt.Fprintf(w, "owner:\t%s\n", v.OwnerID)
			if !v.IsFolder() {
				fmt.Fprintf(w, "size:\t%d\n", v.Size)
				fmt.Fprintf(w, "mime:\t%s\n", v.MimeType)
			}
			fmt.Fprintf(w, "created:\t%s by %s\n", v.CreatedAt.Format(time.RFC3339), v.CreatedBy)
			fmt.Fprintf(w, "updated:\t%s\n", v.UpdatedAt.Format(time.RFC3339))
			for _, ace := range acl {
				perms := make([]string, 0, ace.Permissions.Len())
				for _, p := range ace.Permissions.Values() {
					perms = append(perms, string(p))
				}
				fmt.Fprintf(w, "acl:\t%s=%s\n", ace.Subject, strings.Join(perms, ","))
			}
			return w.Flush()
		}),
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var page vfs.Page
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find items whose name contains QUERY, ignoring case",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			views, err := a.Queries().Search(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			return c.printViews(views)
		}),
	}
	pageFlags(cmd, &page)
	return cmd
}

func (c *cli) treeCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree FOLDER_ID",
		Short: "Print the folders below a folder",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			tree, err := a.Queries().FolderTree(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			if c.json {
				return c.printJSON(tree)
			}
			c.printTree(tree, 0)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "levels to descend (0 uses the configured default)")
	return cmd
}

func (c *cli) printTree(t *vfs.FolderTree, indent int) {
	fmt.Fprintf(c.stdout, "%s%s/  %s\n", strings.Repeat("  ", indent), t.Folder.Name, t.Folder.ID)
	for _, child := range t.Children {
		c.printTree(child, indent+1)
	}
}

func (c *cli) checkCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "check ID PERMISSION",
		Short: "Report whether a user holds a permission on an item",
		Args:  cobra.ExactArgs(2),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			perm, err := vfs.ParsePermission(args[1])
			if err != nil {
				return err
			}
			if user == "" {
				user = c.actor
			}
			ok, err := a.Queries().CheckPermission(cmd.Context(), args[0], user, perm)
			if err != nil {
				return err
			}
			if c.json {
				return c.printJSON(map[string]any{"id": args[0], "user": user, "permission": perm, "allowed": ok})
			}
			verdict := "denied"
			if ok {
				verdict = "allowed"
			}
			_, err = fmt.Fprintf(c.stdout, "%s %s on %s: %s\n", user, perm, args[0], verdict)
			return err
		}),
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user to check (defaults to --as)")
	return cmd
}
