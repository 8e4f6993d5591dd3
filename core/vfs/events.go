package vfs

import (
	"time"

	"github.com/codewandler/vfs-es/core/es"
)

// Event is implemented by every file and folder event. The set is closed.
type Event interface {
	EventType() string
	OccurredAtTime() time.Time
	isEvent()
}

// === File events ===

type FileCreated struct {
	FileID     string    `json:"file_id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ParentID   string    `json:"parent_id,omitempty"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	OwnerID    string    `json:"owner_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FileMoved struct {
	FileID      string    `json:"file_id"`
	OldParentID string    `json:"old_parent_id,omitempty"`
	NewParentID string    `json:"new_parent_id,omitempty"`
	OldPath     string    `json:"old_path"`
	NewPath     string    `json:"new_path"`
	MovedBy     string    `json:"moved_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type FileRenamed struct {
	FileID     string    `json:"file_id"`
	OldName    string    `json:"old_name"`
	NewName    string    `json:"new_name"`
	NewPath    string    `json:"new_path"`
	RenamedBy  string    `json:"renamed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FileDeleted struct {
	FileID     string    `json:"file_id"`
	DeletedBy  string    `json:"deleted_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FileRestored struct {
	FileID     string    `json:"file_id"`
	RestoredBy string    `json:"restored_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FilePermissionsChanged struct {
	FileID     string    `json:"file_id"`
	ACL        ACL       `json:"acl"`
	ChangedBy  string    `json:"changed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

// === Folder events ===

type FolderCreated struct {
	FolderID   string    `json:"folder_id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ParentID   string    `json:"parent_id,omitempty"`
	OwnerID    string    `json:"owner_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FolderMoved struct {
	FolderID    string    `json:"folder_id"`
	OldParentID string    `json:"old_parent_id,omitempty"`
	NewParentID string    `json:"new_parent_id,omitempty"`
	OldPath     string    `json:"old_path"`
	NewPath     string    `json:"new_path"`
	MovedBy     string    `json:"moved_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type FolderRenamed struct {
	FolderID   string    `json:"folder_id"`
	OldName    string    `json:"old_name"`
	NewName    string    `json:"new_name"`
	NewPath    string    `json:"new_path"`
	RenamedBy  string    `json:"renamed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FolderDeleted struct {
	FolderID   string    `json:"folder_id"`
	DeletedBy  string    `json:"deleted_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FolderRestored struct {
	FolderID   string    `json:"folder_id"`
	RestoredBy string    `json:"restored_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FolderPermissionsChanged struct {
	FolderID   string    `json:"folder_id"`
	ACL        ACL       `json:"acl"`
	ChangedBy  string    `json:"changed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (*FileCreated) EventType() string              { return "file_created" }
func (*FileMoved) EventType() string                { return "file_moved" }
func (*FileRenamed) EventType() string              { return "file_renamed" }
func (*FileDeleted) EventType() string              { return "file_deleted" }
func (*FileRestored) EventType() string             { return "file_restored" }
func (*FilePermissionsChanged) EventType() string   { return "file_permissions_changed" }
func (*FolderCreated) EventType() string            { return "folder_created" }
func (*FolderMoved) EventType() string              { return "folder_moved" }
func (*FolderRenamed) EventType() string            { return "folder_renamed" }
func (*FolderDeleted) EventType() string            { return "folder_deleted" }
func (*FolderRestored) EventType() string           { return "folder_restored" }
func (*FolderPermissionsChanged) EventType() string { return "folder_permissions_changed" }

func (e *FileCreated) OccurredAtTime() time.Time              { return e.OccurredAt }
func (e *FileMoved) OccurredAtTime() time.Time                { return e.OccurredAt }
func (e *FileRenamed) OccurredAtTime() time.Time              { return e.OccurredAt }
func (e *FileDeleted) OccurredAtTime() time.Time              { return e.OccurredAt }
func (e *FileRestored) OccurredAtTime() time.Time             { return e.OccurredAt }
func (e *FilePermissionsChanged) OccurredAtTime() time.Time   { return e.OccurredAt }
func (e *FolderCreated) OccurredAtTime() time.Time            { return e.OccurredAt }
func (e *FolderMoved) OccurredAtTime() time.Time              { return e.OccurredAt }
func (e *FolderRenamed) OccurredAtTime() time.Time            { return e.OccurredAt }
func (e *FolderDeleted) OccurredAtTime() time.Time            { return e.OccurredAt }
func (e *FolderRestored) OccurredAtTime() time.Time           { return e.OccurredAt }
func (e *FolderPermissionsChanged) OccurredAtTime() time.Time { return e.OccurredAt }

func (*FileCreated) isEvent()              {}
func (*FileMoved) isEvent()                {}
func (*FileRenamed) isEvent()              {}
func (*FileDeleted) isEvent()              {}
func (*FileRestored) isEvent()             {}
func (*FilePermissionsChanged) isEvent()   {}
func (*FolderCreated) isEvent()            {}
func (*FolderMoved) isEvent()              {}
func (*FolderRenamed) isEvent()            {}
func (*FolderDeleted) isEvent()            {}
func (*FolderRestored) isEvent()           {}
func (*FolderPermissionsChanged) isEvent() {}

func (e *FileCreated) Validate() error   { return validName(e.Name).Check() }
func (e *FolderCreated) Validate() error { return validName(e.Name).Check() }
func (e *FileRenamed) Validate() error   { return validName(e.NewName).Check() }
func (e *FolderRenamed) Validate() error { return validName(e.NewName).Check() }

var fileEvents = []func() any{
	es.Event[FileCreated](),
	es.Event[FileMoved](),
	es.Event[FileRenamed](),
	es.Event[FileDeleted](),
	es.Event[FileRestored](),
	es.Event[FilePermissionsChanged](),
}

var folderEvents = []func() any{
	es.Event[FolderCreated](),
	es.Event[FolderMoved](),
	es.Event[FolderRenamed](),
	es.Event[FolderDeleted](),
	es.Event[FolderRestored](),
	es.Event[FolderPermissionsChanged](),
}

// RegisterEvents registers every file and folder event with r.
func RegisterEvents(r es.Registrar) {
	es.RegisterEvents(r, fileEvents...)
	es.RegisterEvents(r, folderEvents...)
}
