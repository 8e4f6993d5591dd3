// Package vfs is the event-sourced file system domain: File and Folder
// aggregates with their events, access control lists, the read-model port
// and the command and query services built on top of core/es.
//
// Commands check placement and permissions against the read model and
// write through the repositories:
//
//	cmds, _ := vfs.NewCommands(vfs.CommandsOpts{Files: files, Folders: folders, ReadModel: rm, Syncer: env})
//	docs, _ := cmds.CreateFolder(ctx, vfs.CreateFolderCmd{Name: "docs", OwnerID: "alice"})
//	_, err := cmds.CreateFile(ctx, vfs.CreateFileCmd{Name: "a.txt", ParentID: docs.GetID(), OwnerID: "alice"})
//
// Queries answer from the read model only. FolderTree walks folders
// iteratively up to a bounded depth.
package vfs
