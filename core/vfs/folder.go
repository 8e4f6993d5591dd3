package vfs

import (
	"fmt"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/assert"
)

const FolderAggType = "folder"

type Folder struct {
	node
}

func NewFolder(id string) *Folder {
	f := &Folder{}
	f.SetID(id)
	return f
}

func (f *Folder) GetAggType() string       { return FolderAggType }
func (f *Folder) Register(r es.Registrar) { es.RegisterEvents(r, folderEvents...) }

func (f *Folder) Create(name, path, parentID, ownerID string) error {
	return f.Checked(assert.All(
		f.notCreated(),
		validName(name),
		assert.Because(ErrValidation, assert.NotEmpty(path, "path is set")),
		assert.Because(ErrValidation, assert.True(parentID != f.GetID(), "folder is not its own parent")),
		actor(ownerID, "owner is set"),
	), func() error {
		return es.RaiseAndApply(f, &FolderCreated{
			FolderID:   f.GetID(),
			Name:       name,
			Path:       path,
			ParentID:   parentID,
			OwnerID:    ownerID,
			OccurredAt: now(),
		})
	})
}

func (f *Folder) Move(newParentID, newPath, actorID string) error {
	return f.Checked(assert.All(
		f.active(),
		assert.Because(ErrValidation, assert.NotEmpty(newPath, "path is set")),
		assert.Because(ErrValidation, assert.True(newParentID != f.GetID(), "folder is not its own parent")),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FolderMoved{
			FolderID:    f.GetID(),
			OldParentID: f.ParentID,
			NewParentID: newParentID,
			OldPath:     f.Path,
			NewPath:     newPath,
			MovedBy:     actorID,
			OccurredAt:  now(),
		})
	})
}

func (f *Folder) Rename(newName, newPath, actorID string) error {
	return f.Checked(assert.All(
		f.active(),
		validName(newName),
		assert.Because(ErrValidation, assert.NotEmpty(newPath, "path is set")),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FolderRenamed{
			FolderID:   f.GetID(),
			OldName:    f.Name,
			NewName:    newName,
			NewPath:    newPath,
			RenamedBy:  actorID,
			OccurredAt: now(),
		})
	})
}

func (f *Folder) Delete(actorID string) error {
	return f.Checked(assert.All(
		f.active(),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FolderDeleted{FolderID: f.GetID(), DeletedBy: actorID, OccurredAt: now()})
	})
}

func (f *Folder) Restore(actorID string) error {
	return f.Checked(assert.All(
		assert.Because(ErrNotFound, assert.True(f.Exists(), "exists")),
		assert.Because(ErrValidation, assert.True(f.IsDeleted(), "is deleted")),
	), func() error {
		return es.RaiseAndApply(f, &FolderRestored{
			FolderID:   f.GetID(),
			RestoredBy: f.restoreActor(actorID),
			OccurredAt: now(),
		})
	})
}

func (f *Folder) ChangePermissions(acl ACL, actorID string) error {
	if err := acl.Validate(); err != nil {
		return err
	}
	return f.Checked(assert.All(
		f.active(),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FolderPermissionsChanged{
			FolderID:   f.GetID(),
			ACL:        acl,
			ChangedBy:  actorID,
			OccurredAt: now(),
		})
	})
}

func (f *Folder) Apply(event any) error {
	switch e := event.(type) {
	case *FolderCreated:
		f.applyCreated(e.Name, e.Path, e.ParentID, e.OwnerID, e.OccurredAt)
	case *FolderMoved:
		f.applyMoved(e.NewParentID, e.NewPath, e.MovedBy, e.OccurredAt)
	case *FolderRenamed:
		f.applyRenamed(e.NewName, e.NewPath, e.RenamedBy, e.OccurredAt)
	case *FolderDeleted:
		f.applyDeleted(e.DeletedBy, e.OccurredAt)
	case *FolderRestored:
		f.applyRestored(e.RestoredBy, e.OccurredAt)
	case *FolderPermissionsChanged:
		f.applyPermissions(e.ACL, e.ChangedBy, e.OccurredAt)
	default:
		return fmt.Errorf("%w: %T on folder", es.ErrUnknownEventType, event)
	}
	return nil
}

// RebuildFolder folds events into a fresh folder. It reports false when
// events is empty.
func RebuildFolder(events ...Event) (*Folder, bool, error) {
	if len(events) == 0 {
		return nil, false, nil
	}
	created, ok := events[0].(*FolderCreated)
	if !ok {
		return nil, false, fmt.Errorf("%w: folder history starts with %s", es.ErrCorruptEvent, events[0].EventType())
	}
	f := NewFolder(created.FolderID)
	if err := es.Fold(f, toAny(events)...); err != nil {
		return nil, false, err
	}
	return f, true, nil
}

var _ es.Aggregate = (*Folder)(nil)
