package vfs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codewandler/vfs-es/core/es"
)

type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// FileView is the denormalized read-model row for a file or folder.
type FileView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	ParentID  string     `json:"parent_id,omitempty"`
	Size      int64      `json:"size"`
	MimeType  string     `json:"mime_type,omitempty"`
	OwnerID   string     `json:"owner_id"`
	ItemType  ItemType   `json:"item_type"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

func (v FileView) IsDeleted() bool { return v.DeletedAt != nil }
func (v FileView) IsFolder() bool  { return v.ItemType == ItemFolder }

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default size and clamps the limit.
func (p Page) Normalize() Page {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageSize
	case p.Limit > MaxPageSize:
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ReadModel is the query side of files and folders. Lookups of a missing id
// fail with ErrNotFound. Listings leave out deleted items.
type ReadModel interface {
	// View returns the item with the given id, deleted or not.
	View(ctx context.Context, id string) (FileView, error)
	// Children lists the items directly below parentID, "" being the root,
	// folders first and then by name.
	Children(ctx context.Context, parentID string, page Page) ([]FileView, error)
	// ChildFolders lists every folder directly below parentID by name.
	ChildFolders(ctx context.Context, parentID string) ([]FileView, error)
	// Search matches query as a substring of name or path.
	Search(ctx context.Context, query string, page Page) ([]FileView, error)
	// NameExists reports whether a live sibling other than excludeID is called name.
	NameExists(ctx context.Context, parentID, name, excludeID string) (bool, error)
	// ACL returns the access entries of an item.
	ACL(ctx context.Context, id string) (ACL, error)
}

type ViewChangeKind int

const (
	ViewCreated ViewChangeKind = iota + 1
	ViewMoved
	ViewRenamed
	ViewDeleted
	ViewRestored
	ViewPermissionsChanged
)

// ViewChange is the read-model effect of one event. Only the fields the kind
// touches are set; View.ID and At always are.
type ViewChange struct {
	Kind ViewChangeKind
	View FileView
	ACL  ACL
	At   time.Time
}

// ViewChangeOf maps an event to its read-model effect.
func ViewChangeOf(event any) (ViewChange, error) {
	switch e := event.(type) {
	case *FileCreated:
		return created(FileView{
			ID: e.FileID, Name: e.Name, Path: e.Path, ParentID: e.ParentID,
			Size: e.Size, MimeType: e.MimeType, OwnerID: e.OwnerID, ItemType: ItemFile,
		}, e.OccurredAt), nil
	case *FolderCreated:
		return created(FileView{
			ID: e.FolderID, Name: e.Name, Path: e.Path, ParentID: e.ParentID,
			OwnerID: e.OwnerID, ItemType: ItemFolder,
		}, e.OccurredAt), nil
	case *FileMoved:
		return ViewChange{Kind: ViewMoved, View: FileView{ID: e.FileID, ParentID: e.NewParentID, Path: e.NewPath}, At: e.OccurredAt}, nil
	case *FolderMoved:
		return ViewChange{Kind: ViewMoved, View: FileView{ID: e.FolderID, ParentID: e.NewParentID, Path: e.NewPath}, At: e.OccurredAt}, nil
	case *FileRenamed:
		return ViewChange{Kind: ViewRenamed, View: FileView{ID: e.FileID, Name: e.NewName, Path: e.NewPath}, At: e.OccurredAt}, nil
	case *FolderRenamed:
		return ViewChange{Kind: ViewRenamed, View: FileView{ID: e.FolderID, Name: e.NewName, Path: e.NewPath}, At: e.OccurredAt}, nil
	case *FileDeleted:
		return ViewChange{Kind: ViewDeleted, View: FileView{ID: e.FileID, DeletedBy: e.DeletedBy}, At: e.OccurredAt}, nil
	case *FolderDeleted:
		return ViewChange{Kind: ViewDeleted, View: FileView{ID: e.FolderID, DeletedBy: e.DeletedBy}, At: e.OccurredAt}, nil
	case *FileRestored:
		return ViewChange{Kind: ViewRestored, View: FileView{ID: e.FileID}, At: e.OccurredAt}, nil
	case *FolderRestored:
		return ViewChange{Kind: ViewRestored, View: FileView{ID: e.FolderID}, At: e.OccurredAt}, nil
	case *FilePermissionsChanged:
		return ViewChange{Kind: ViewPermissionsChanged, View: FileView{ID: e.FileID}, ACL: e.ACL, At: e.OccurredAt}, nil
	case *FolderPermissionsChanged:
		return ViewChange{Kind: ViewPermissionsChanged, View: FileView{ID: e.FolderID}, ACL: e.ACL, At: e.OccurredAt}, nil
	default:
		return ViewChange{}, fmt.Errorf("%w: %T", es.ErrUnknownEventType, event)
	}
}

func created(v FileView, at time.Time) ViewChange {
	v.CreatedAt = at
	v.CreatedBy = v.OwnerID
	v.UpdatedAt = at
	return ViewChange{Kind: ViewCreated, View: v, ACL: DefaultACL(v.OwnerID), At: at}
}

// JoinPath builds the path of name below parentPath; "" is the root.
func JoinPath(parentPath, name string) string {
	switch {
	case parentPath == "":
		return "/" + name
	case strings.HasSuffix(parentPath, "/"):
		return parentPath + name
	default:
		return parentPath + "/" + name
	}
}
