// Package app wires the file system service from a config.Config.
//
// [New] opens the database, picks the snapshot store and event bus, starts
// the event sourcing [es.Env] and exposes the vfs command and query services:
//
//	a, err := app.New(ctx, app.Options{Config: cfg, Log: log, Projector: true})
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	f, err := a.Commands().CreateFolder(ctx, vfs.CreateFolderCmd{Name: "docs", OwnerID: "alice"})
//
// With Projector set the file view projection runs inside the process and
// every command waits for the read model to catch up. Without it another
// process (vfsctl serve) is expected to keep the read model current.
//
// Close releases everything in the reverse order it was acquired.
package app
