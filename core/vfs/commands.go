package vfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codewandler/vfs-es/core/es"
)

type CreateFileCmd struct {
	Name     string
	ParentID string
	Size     int64
	MimeType string
	OwnerID  string
}

type CreateFolderCmd struct {
	Name     string
	ParentID string
	OwnerID  string
}

type MoveCmd struct {
	ID          string
	NewParentID string
	ActorID     string
}

type RenameCmd struct {
	ID      string
	NewName string
	ActorID string
}

type DeleteCmd struct {
	ID      string
	ActorID string
}

type RestoreCmd struct {
	ID      string
	ActorID string
}

type SetPermissionsCmd struct {
	ID      string
	ACL     ACL
	ActorID string
}

// Syncer brings the read model up to date with the event store.
type Syncer interface {
	Sync(ctx context.Context) error
}

type CommandsOpts struct {
	Log       *slog.Logger
	Files     *es.TypedRepository[*File]
	Folders   *es.TypedRepository[*Folder]
	ReadModel ReadModel
	Groups    GroupResolver
	// Syncer, when set, runs before a command reads the read model and after
	// it saved.
	Syncer Syncer
	NewID  func() string
}

// Commands validates and executes commands against files and folders.
// Placement and permission checks read the read model; state changes go
// through the repositories.
type Commands struct {
	log     *slog.Logger
	files   *es.TypedRepository[*File]
	folders *es.TypedRepository[*Folder]
	rm      ReadModel
	groups  GroupResolver
	syncer  Syncer
	newID   func() string
}

func NewCommands(opts CommandsOpts) (*Commands, error) {
	if opts.Files == nil || opts.Folders == nil {
		return nil, errors.New("vfs: file and folder repositories are required")
	}
	if opts.ReadModel == nil {
		return nil, errors.New("vfs: read model is required")
	}
	c := &Commands{
		log:     opts.Log,
		files:   opts.Files,
		folders: opts.Folders,
		rm:      opts.ReadModel,
		groups:  opts.Groups,
		syncer:  opts.Syncer,
		newID:   opts.NewID,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With(slog.String("component", "vfs.commands"))
	if c.groups == nil {
		c.groups = NoGroups
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c, nil
}

func (c *Commands) sync(ctx context.Context) error {
	if c.syncer == nil {
		return nil
	}
	if err := c.syncer.Sync(ctx); err != nil {
		return fmt.Errorf("sync read model: %w", err)
	}
	return nil
}

// synced is called after a successful save. The write already happened, so
// a sync failure is only logged.
func (c *Commands) synced(ctx context.Context) {
	if err := c.sync(ctx); err != nil {
		c.log.Warn("read model lags behind", slog.Any("error", err))
	}
}

func metadata(actorID string) es.SaveOption {
	return es.WithMetadata(es.Metadata{ActorID: actorID, CorrelationID: uuid.NewString()})
}

func notFound(err error) error {
	if errors.Is(err, es.ErrAggregateNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// item returns the view of id, which must be of type t.
func (c *Commands) item(ctx context.Context, id string, t ItemType) (FileView, error) {
	v, err := c.rm.View(ctx, id)
	if err != nil {
		return FileView{}, err
	}
	if v.ItemType != t {
		return FileView{}, fmt.Errorf("%w: %s is not a %s", ErrNotFound, id, t)
	}
	return v, nil
}

func (c *Commands) authorize(ctx context.Context, v FileView, userID string, p Permission) error {
	ok, err := checkPermission(ctx, c.rm, c.groups, v, userID, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s %s", ErrPermissionDenied, userID, p, v.Path)
	}
	return nil
}

// parentFolder returns the live folder parentID, or the zero view for the
// root. actorID needs write access to it.
func (c *Commands) parentFolder(ctx context.Context, parentID, actorID string) (FileView, error) {
	if parentID == "" {
		return FileView{}, nil
	}
	v, err := c.item(ctx, parentID, ItemFolder)
	if err != nil {
		return FileView{}, fmt.Errorf("parent: %w", err)
	}
	if v.IsDeleted() {
		return FileView{}, fmt.Errorf("%w: parent %s is deleted", ErrNotFound, parentID)
	}
	if err := c.authorize(ctx, v, actorID, PermWrite); err != nil {
		return FileView{}, err
	}
	return v, nil
}

func (c *Commands) ensureUnique(ctx context.Context, parentID, name, excludeID string) error {
	exists, err := c.rm.NameExists(ctx, parentID, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q in %q", ErrAlreadyExists, name, parentID)
	}
	return nil
}

// ensureNotBelow fails when target is folderID or lies below it.
func (c *Commands) ensureNotBelow(ctx context.Context, target, folderID string) error {
	seen := map[string]bool{}
	for id := target; id != "" && !seen[id]; {
		if id == folderID {
			return fmt.Errorf("%w: cannot move folder %s below itself", ErrValidation, folderID)
		}
		seen[id] = true
		v, err := c.rm.View(ctx, id)
		if err != nil {
			return err
		}
		id = v.ParentID
	}
	return nil
}

func (c *Commands) CreateFile(ctx context.Context, cmd CreateFileCmd) (*File, error) {
	if err := validName(cmd.Name).Check(); err != nil {
		return nil, err
	}
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	parent, err := c.parentFolder(ctx, cmd.ParentID, cmd.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := c.ensureUnique(ctx, cmd.ParentID, cmd.Name, ""); err != nil {
		return nil, err
	}

	path := JoinPath(parent.Path, cmd.Name)
	f, err := c.files.Create(ctx, c.newID(), func(f *File) error {
		return f.Create(cmd.Name, path, cmd.ParentID, cmd.Size, cmd.MimeType, cmd.OwnerID)
	}, metadata(cmd.OwnerID))
	if err != nil {
		return nil, err
	}
	c.log.Info("file created", slog.String("id", f.GetID()), slog.String("path", path))
	c.synced(ctx)
	return f, nil
}

func (c *Commands) CreateFolder(ctx context.Context, cmd CreateFolderCmd) (*Folder, error) {
	if err := validName(cmd.Name).Check(); err != nil {
		return nil, err
	}
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	parent, err := c.parentFolder(ctx, cmd.ParentID, cmd.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := c.ensureUnique(ctx, cmd.ParentID, cmd.Name, ""); err != nil {
		return nil, err
	}

	path := JoinPath(parent.Path, cmd.Name)
	f, err := c.folders.Create(ctx, c.newID(), func(f *Folder) error {
		return f.Create(cmd.Name, path, cmd.ParentID, cmd.OwnerID)
	}, metadata(cmd.OwnerID))
	if err != nil {
		return nil, err
	}
	c.log.Info("folder created", slog.String("id", f.GetID()), slog.String("path", path))
	c.synced(ctx)
	return f, nil
}

// relocation checks a move of v below newParentID and returns the new path.
func (c *Commands) relocation(ctx context.Context, v FileView, newParentID, actorID string) (string, error) {
	if err := c.authorize(ctx, v, actorID, PermWrite); err != nil {
		return "", err
	}
	parent, err := c.parentFolder(ctx, newParentID, actorID)
	if err != nil {
		return "", err
	}
	if err := c.ensureUnique(ctx, newParentID, v.Name, v.ID); err != nil {
		return "", err
	}
	return JoinPath(parent.Path, v.Name), nil
}

// renaming checks a rename of v and returns the new path.
func (c *Commands) renaming(ctx context.Context, v FileView, newName, actorID string) (string, error) {
	if err := validName(newName).Check(); err != nil {
		return "", err
	}
	if err := c.authorize(ctx, v, actorID, PermWrite); err != nil {
		return "", err
	}
	if err := c.ensureUnique(ctx, v.ParentID, newName, v.ID); err != nil {
		return "", err
	}
	parentPath := ""
	if v.ParentID != "" {
		parent, err := c.rm.View(ctx, v.ParentID)
		if err != nil {
			return "", fmt.Errorf("parent: %w", err)
		}
		parentPath = parent.Path
	}
	return JoinPath(parentPath, newName), nil
}

func (c *Commands) MoveFile(ctx context.Context, cmd MoveCmd) (*File, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFile)
	if err != nil {
		return nil, err
	}
	path, err := c.relocation(ctx, v, cmd.NewParentID, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	f, err := c.files.Update(ctx, cmd.ID, func(f *File) error {
		return f.Move(cmd.NewParentID, path, cmd.ActorID)
	}, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

// MoveFolder moves a folder. Paths of items below it are left as they are.
func (c *Commands) MoveFolder(ctx context.Context, cmd MoveCmd) (*Folder, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFolder)
	if err != nil {
		return nil, err
	}
	if err := c.ensureNotBelow(ctx, cmd.NewParentID, cmd.ID); err != nil {
		return nil, err
	}
	path, err := c.relocation(ctx, v, cmd.NewParentID, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	f, err := c.folders.Update(ctx, cmd.ID, func(f *Folder) error {
		return f.Move(cmd.NewParentID, path, cmd.ActorID)
	}, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

func (c *Commands) RenameFile(ctx context.Context, cmd RenameCmd) (*File, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFile)
	if err != nil {
		return nil, err
	}
	path, err := c.renaming(ctx, v, cmd.NewName, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	f, err := c.files.Update(ctx, cmd.ID, func(f *File) error {
		return f.Rename(cmd.NewName, path, cmd.ActorID)
	}, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

func (c *Commands) RenameFolder(ctx context.Context, cmd RenameCmd) (*Folder, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFolder)
	if err != nil {
		return nil, err
	}
	path, err := c.renaming(ctx, v, cmd.NewName, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	f, err := c.folders.Update(ctx, cmd.ID, func(f *Folder) error {
		return f.Rename(cmd.NewName, path, cmd.ActorID)
	}, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

func (c *Commands) DeleteFile(ctx context.Context, cmd DeleteCmd) (*File, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFile)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, v, cmd.ActorID, PermDelete); err != nil {
		return nil, err
	}
	f, err := c.files.Update(ctx, cmd.ID, func(f *File) error { return f.Delete(cmd.ActorID) }, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

// DeleteFolder soft deletes a folder. Items below it stay as they are but
// are no longer reachable through the tree.
func (c *Commands) DeleteFolder(ctx context.Context, cmd DeleteCmd) (*Folder, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFolder)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, v, cmd.ActorID, PermDelete); err != nil {
		return nil, err
	}
	f, err := c.folders.Update(ctx, cmd.ID, func(f *Folder) error { return f.Delete(cmd.ActorID) }, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

// restoring checks that v can come back under its old name.
func (c *Commands) restoring(ctx context.Context, v FileView, actorID string) error {
	if err := actor(actorID, "actor is set").Check(); err != nil {
		return err
	}
	if err := c.authorize(ctx, v, actorID, PermDelete); err != nil {
		return err
	}
	return c.ensureUnique(ctx, v.ParentID, v.Name, v.ID)
}

func (c *Commands) RestoreFile(ctx context.Context, cmd RestoreCmd) (*File, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFile)
	if err != nil {
		return nil, err
	}
	if err := c.restoring(ctx, v, cmd.ActorID); err != nil {
		return nil, err
	}
	f, err := c.files.Update(ctx, cmd.ID, func(f *File) error { return f.Restore(cmd.ActorID) }, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

func (c *Commands) RestoreFolder(ctx context.Context, cmd RestoreCmd) (*Folder, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFolder)
	if err != nil {
		return nil, err
	}
	if err := c.restoring(ctx, v, cmd.ActorID); err != nil {
		return nil, err
	}
	f, err := c.folders.Update(ctx, cmd.ID, func(f *Folder) error { return f.Restore(cmd.ActorID) }, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

func (c *Commands) SetFilePermissions(ctx context.Context, cmd SetPermissionsCmd) (*File, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFile)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, v, cmd.ActorID, PermShare); err != nil {
		return nil, err
	}
	f, err := c.files.Update(ctx, cmd.ID, func(f *File) error {
		return f.ChangePermissions(cmd.ACL, cmd.ActorID)
	}, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}

func (c *Commands) SetFolderPermissions(ctx context.Context, cmd SetPermissionsCmd) (*Folder, error) {
	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	v, err := c.item(ctx, cmd.ID, ItemFolder)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, v, cmd.ActorID, PermShare); err != nil {
		return nil, err
	}
	f, err := c.folders.Update(ctx, cmd.ID, func(f *Folder) error {
		return f.ChangePermissions(cmd.ACL, cmd.ActorID)
	}, metadata(cmd.ActorID))
	if err != nil {
		return nil, notFound(err)
	}
	c.synced(ctx)
	return f, nil
}
