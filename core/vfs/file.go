package vfs

import (
	"fmt"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/assert"
)

const FileAggType = "file"

// File is an event-sourced file. Its content lives elsewhere; the aggregate
// tracks name, location, size, type, access and lifecycle.
type File struct {
	node
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

func NewFile(id string) *File {
	f := &File{}
	f.SetID(id)
	return f
}

func (f *File) GetAggType() string       { return FileAggType }
func (f *File) Register(r es.Registrar) { es.RegisterEvents(r, fileEvents...) }

func (f *File) Create(name, path, parentID string, size int64, mimeType, ownerID string) error {
	return f.Checked(assert.All(
		f.notCreated(),
		validName(name),
		assert.Because(ErrValidation, assert.NotEmpty(path, "path is set")),
		assert.Because(ErrValidation, assert.True(size >= 0, "size is not negative")),
		actor(ownerID, "owner is set"),
	), func() error {
		return es.RaiseAndApply(f, &FileCreated{
			FileID:     f.GetID(),
			Name:       name,
			Path:       path,
			ParentID:   parentID,
			Size:       size,
			MimeType:   mimeType,
			OwnerID:    ownerID,
			OccurredAt: now(),
		})
	})
}

func (f *File) Move(newParentID, newPath, actorID string) error {
	return f.Checked(assert.All(
		f.active(),
		assert.Because(ErrValidation, assert.NotEmpty(newPath, "path is set")),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FileMoved{
			FileID:      f.GetID(),
			OldParentID: f.ParentID,
			NewParentID: newParentID,
			OldPath:     f.Path,
			NewPath:     newPath,
			MovedBy:     actorID,
			OccurredAt:  now(),
		})
	})
}

func (f *File) Rename(newName, newPath, actorID string) error {
	return f.Checked(assert.All(
		f.active(),
		validName(newName),
		assert.Because(ErrValidation, assert.NotEmpty(newPath, "path is set")),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FileRenamed{
			FileID:     f.GetID(),
			OldName:    f.Name,
			NewName:    newName,
			NewPath:    newPath,
			RenamedBy:  actorID,
			OccurredAt: now(),
		})
	})
}

func (f *File) Delete(actorID string) error {
	return f.Checked(assert.All(
		f.active(),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FileDeleted{FileID: f.GetID(), DeletedBy: actorID, OccurredAt: now()})
	})
}

// Restore brings back a deleted file. An empty actorID restores on behalf of
// the last updater, or the owner.
func (f *File) Restore(actorID string) error {
	return f.Checked(assert.All(
		assert.Because(ErrNotFound, assert.True(f.Exists(), "exists")),
		assert.Because(ErrValidation, assert.True(f.IsDeleted(), "is deleted")),
	), func() error {
		return es.RaiseAndApply(f, &FileRestored{
			FileID:     f.GetID(),
			RestoredBy: f.restoreActor(actorID),
			OccurredAt: now(),
		})
	})
}

func (f *File) ChangePermissions(acl ACL, actorID string) error {
	if err := acl.Validate(); err != nil {
		return err
	}
	return f.Checked(assert.All(
		f.active(),
		actor(actorID, "actor is set"),
	), func() error {
		return es.RaiseAndApply(f, &FilePermissionsChanged{
			FileID:     f.GetID(),
			ACL:        acl,
			ChangedBy:  actorID,
			OccurredAt: now(),
		})
	})
}

func (f *File) Apply(event any) error {
	switch e := event.(type) {
	case *FileCreated:
		f.applyCreated(e.Name, e.Path, e.ParentID, e.OwnerID, e.OccurredAt)
		f.Size = e.Size
		f.MimeType = e.MimeType
	case *FileMoved:
		f.applyMoved(e.NewParentID, e.NewPath, e.MovedBy, e.OccurredAt)
	case *FileRenamed:
		f.applyRenamed(e.NewName, e.NewPath, e.RenamedBy, e.OccurredAt)
	case *FileDeleted:
		f.applyDeleted(e.DeletedBy, e.OccurredAt)
	case *FileRestored:
		f.applyRestored(e.RestoredBy, e.OccurredAt)
	case *FilePermissionsChanged:
		f.applyPermissions(e.ACL, e.ChangedBy, e.OccurredAt)
	default:
		return fmt.Errorf("%w: %T on file", es.ErrUnknownEventType, event)
	}
	return nil
}

// RebuildFile folds events into a fresh file. It reports false when events is
// empty.
func RebuildFile(events ...Event) (*File, bool, error) {
	if len(events) == 0 {
		return nil, false, nil
	}
	created, ok := events[0].(*FileCreated)
	if !ok {
		return nil, false, fmt.Errorf("%w: file history starts with %s", es.ErrCorruptEvent, events[0].EventType())
	}
	f := NewFile(created.FileID)
	if err := es.Fold(f, toAny(events)...); err != nil {
		return nil, false, err
	}
	return f, true, nil
}

func toAny(events []Event) []any {
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out
}

var _ es.Aggregate = (*File)(nil)
