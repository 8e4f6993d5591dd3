package vfs

import (
	"time"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/es/assert"
)

const maxNameLen = 255

var now = func() time.Time { return time.Now().UTC() }

func validName(name string) assert.Cond {
	return assert.Because(ErrValidation, assert.All(
		assert.NotEmpty(name, "name is not empty"),
		assert.MaxLen(name, maxNameLen, "name is at most 255 characters"),
	))
}

// node is the state files and folders share. All fields change only in the
// apply helpers below, and only from event data.
type node struct {
	es.BaseAggregate

	Name     string `json:"name"`
	Path     string `json:"path"`
	ParentID string `json:"parent_id,omitempty"`
	OwnerID  string `json:"owner_id"`
	ACL      ACL    `json:"acl"`

	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy string     `json:"updated_by"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

func (n *node) Exists() bool    { return n.GetVersion() > 0 }
func (n *node) IsDeleted() bool { return n.DeletedAt != nil }

func (n *node) notCreated() assert.Cond {
	return assert.Because(ErrValidation, assert.False(n.Exists(), "does not exist yet"))
}

func (n *node) active() assert.Cond {
	return assert.All(
		assert.Because(ErrNotFound, assert.True(n.Exists(), "exists")),
		assert.Because(ErrValidation, assert.False(n.IsDeleted(), "is not deleted")),
	)
}

func actor(id, name string) assert.Cond {
	return assert.Because(ErrValidation, assert.NotEmpty(id, name))
}

// restoreActor falls back to the last updater, then the owner.
func (n *node) restoreActor(actorID string) string {
	switch {
	case actorID != "":
		return actorID
	case n.UpdatedBy != "":
		return n.UpdatedBy
	default:
		return n.OwnerID
	}
}

func (n *node) touch(by string, at time.Time) {
	n.UpdatedBy = by
	n.UpdatedAt = at
}

func (n *node) applyCreated(name, path, parentID, ownerID string, at time.Time) {
	n.Name = name
	n.Path = path
	n.ParentID = parentID
	n.OwnerID = ownerID
	n.ACL = DefaultACL(ownerID)
	n.CreatedAt = at
	n.CreatedBy = ownerID
	n.touch(ownerID, at)
}

func (n *node) applyMoved(parentID, path, by string, at time.Time) {
	n.ParentID = parentID
	n.Path = path
	n.touch(by, at)
}

func (n *node) applyRenamed(name, path, by string, at time.Time) {
	n.Name = name
	n.Path = path
	n.touch(by, at)
}

// applyDeleted leaves UpdatedBy alone so a later restore can fall back to it.
func (n *node) applyDeleted(by string, at time.Time) {
	n.DeletedAt = &at
	n.DeletedBy = by
	n.UpdatedAt = at
}

func (n *node) applyRestored(by string, at time.Time) {
	n.DeletedAt = nil
	n.DeletedBy = ""
	n.touch(by, at)
}

func (n *node) applyPermissions(acl ACL, by string, at time.Time) {
	n.ACL = acl
	n.touch(by, at)
}
