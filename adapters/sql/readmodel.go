package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/codewandler/vfs-es/core/ds"
	"github.com/codewandler/vfs-es/core/vfs"
)

type viewRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Path      string         `db:"path"`
	ParentID  sql.NullString `db:"parent_id"`
	Size      int64          `db:"size"`
	MimeType  string         `db:"mime_type"`
	OwnerID   string         `db:"owner_id"`
	ItemType  string         `db:"item_type"`
	CreatedAt string         `db:"created_at"`
	CreatedBy string         `db:"created_by"`
	UpdatedAt string         `db:"updated_at"`
	DeletedAt sql.NullString `db:"deleted_at"`
	DeletedBy sql.NullString `db:"deleted_by"`
}

func (r viewRow) view() (vfs.FileView, error) {
	v := vfs.FileView{
		ID:        r.ID,
		Name:      r.Name,
		Path:      r.Path,
		ParentID:  r.ParentID.String,
		Size:      r.Size,
		MimeType:  r.MimeType,
		OwnerID:   r.OwnerID,
		ItemType:  vfs.ItemType(r.ItemType),
		CreatedBy: r.CreatedBy,
		DeletedBy: r.DeletedBy.String,
	}
	var err error
	if v.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return v, err
	}
	if v.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return v, err
	}
	if r.DeletedAt.Valid {
		at, err := parseTime(r.DeletedAt.String)
		if err != nil {
			return v, err
		}
		v.DeletedAt = &at
	}
	return v, nil
}

func nullable(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

const selectViews = `SELECT id, name, path, parent_id, size, mime_type, owner_id, item_type,
	created_at, created_by, updated_at, deleted_at, deleted_by FROM file_views`

// ReadModel answers vfs queries from file_views and file_permissions.
type ReadModel struct {
	db *DB
}

func NewReadModel(db *DB) *ReadModel { return &ReadModel{db: db} }

func (m *ReadModel) views(ctx context.Context, q string, args ...any) ([]vfs.FileView, error) {
	ctx, cancel := m.db.withTimeout(ctx)
	defer cancel()

	var rows []viewRow
	if err := m.db.SelectContext(ctx, &rows, m.db.Rebind(q), args...); err != nil {
		return nil, storageErr("query file views", err)
	}
	out := make([]vfs.FileView, 0, len(rows))
	for _, r := range rows {
		v, err := r.view()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parentClause matches children of parentID; "" selects the root.
func parentClause(parentID string) (string, []any) {
	if parentID == "" {
		return "parent_id IS NULL", nil
	}
	return "parent_id = ?", []any{parentID}
}

func (m *ReadModel) View(ctx context.Context, id string) (vfs.FileView, error) {
	views, err := m.views(ctx, selectViews+` WHERE id = ?`, id)
	if err != nil {
		return vfs.FileView{}, err
	}
	if len(views) == 0 {
		return vfs.FileView{}, fmt.Errorf("%w: %s", vfs.ErrNotFound, id)
	}
	return views[0], nil
}

func (m *ReadModel) Children(ctx context.Context, parentID string, page vfs.Page) ([]vfs.FileView, error) {
	page = page.Normalize()
	clause, args := parentClause(parentID)
	return m.views(ctx,
		selectViews+` WHERE `+clause+` AND deleted_at IS NULL ORDER BY item_type DESC, name ASC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...,
	)
}

func (m *ReadModel) ChildFolders(ctx context.Context, parentID string) ([]vfs.FileView, error) {
	clause, args := parentClause(parentID)
	return m.views(ctx,
		selectViews+` WHERE `+clause+` AND item_type = 'folder' AND deleted_at IS NULL ORDER BY name ASC`,
		args...,
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (m *ReadModel) Search(ctx context.Context, query string, page vfs.Page) ([]vfs.FileView, error) {
	page = page.Normalize()
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	return m.views(ctx,
		selectViews+` WHERE deleted_at IS NULL
			AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(path) LIKE ? ESCAPE '\')
			ORDER BY name ASC LIMIT ? OFFSET ?`,
		pattern, pattern, page.Limit, page.Offset,
	)
}

func (m *ReadModel) NameExists(ctx context.Context, parentID, name, excludeID string) (bool, error) {
	ctx, cancel := m.db.withTimeout(ctx)
	defer cancel()

	clause, args := parentClause(parentID)
	var n int
	q := m.db.Rebind(`SELECT COUNT(*) FROM file_views WHERE ` + clause + ` AND name = ? AND id <> ? AND deleted_at IS NULL`)
	if err := m.db.GetContext(ctx, &n, q, append(args, name, excludeID)...); err != nil {
		return false, storageErr("check name", err)
	}
	return n > 0, nil
}

type permissionRow struct {
	SubjectType string `db:"subject_type"`
	SubjectID   string `db:"subject_id"`
	Permission  string `db:"permission"`
	Inherited   bool   `db:"inherited"`
}

func (m *ReadModel) ACL(ctx context.Context, id string) (vfs.ACL, error) {
	if _, err := m.View(ctx, id); err != nil {
		return nil, err
	}
	ctx, cancel := m.db.withTimeout(ctx)
	defer cancel()
	return loadACL(ctx, m.db, id)
}

func loadACL(ctx context.Context, q sqlx.ExtContext, id string) (vfs.ACL, error) {
	var rows []permissionRow
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(`SELECT subject_type, subject_id, permission, inherited
		FROM file_permissions WHERE file_id = ? ORDER BY subject_type, subject_id, inherited, permission`), id)
	if err != nil {
		return nil, storageErr("load permissions", err)
	}

	var acl vfs.ACL
	for _, r := range rows {
		sub := vfs.Subject{Type: vfs.SubjectType(r.SubjectType), ID: r.SubjectID}
		if n := len(acl); n > 0 && acl[n-1].Subject == sub && acl[n-1].Inherited == r.Inherited {
			acl[n-1].Permissions.Add(vfs.Permission(r.Permission))
			continue
		}
		acl = append(acl, vfs.ACE{
			Subject:     sub,
			Permissions: ds.NewSet(vfs.Permission(r.Permission)),
			Inherited:   r.Inherited,
		})
	}
	return acl, nil
}

var _ vfs.ReadModel = (*ReadModel)(nil)
