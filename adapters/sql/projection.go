package sql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/codewandler/vfs-es/core/es"
	"github.com/codewandler/vfs-es/core/vfs"
)

const DefaultProjectionName = "file_views"

// FileViewProjection maintains file_views and file_permissions. Each event
// is written together with the checkpoint in one transaction.
type FileViewProjection struct {
	name string
	db   *DB
	log  *slog.Logger
}

func NewFileViewProjection(db *DB, name string) *FileViewProjection {
	if name == "" {
		name = DefaultProjectionName
	}
	return &FileViewProjection{
		name: name,
		db:   db,
		log:  db.log.With(slog.String("projection", name)),
	}
}

func (p *FileViewProjection) Name() string { return p.name }

func (p *FileViewProjection) Handle(ctx context.Context, env es.Envelope, event any) error {
	ch, err := vfs.ViewChangeOf(event)
	if err != nil {
		return err
	}

	ctx, cancel := p.db.withTimeout(ctx)
	defer cancel()

	return p.db.inTx(ctx, func(tx *sqlx.Tx) error {
		pos, err := getPosition(ctx, tx, p.name)
		if err != nil {
			return err
		}
		if env.Seq <= pos {
			p.log.Debug("skip", slog.Uint64("seq", env.Seq), slog.Uint64("position", pos))
			return nil
		}
		if err := applyViewChange(ctx, tx, ch); err != nil {
			return fmt.Errorf("%s seq=%d: %w", env.Type, env.Seq, err)
		}
		return setPosition(ctx, tx, p.name, env.Seq)
	})
}

func applyViewChange(ctx context.Context, tx *sqlx.Tx, ch vfs.ViewChange) error {
	v := ch.View
	at := formatTime(ch.At)

	var (
		q    string
		args []any
	)
	switch ch.Kind {
	case vfs.ViewCreated:
		res, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO file_views
			(id, name, path, parent_id, size, mime_type, owner_id, item_type, created_at, created_by, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
			v.ID, v.Name, v.Path, nullable(v.ParentID), v.Size, v.MimeType, v.OwnerID, string(v.ItemType),
			formatTime(v.CreatedAt), v.CreatedBy, formatTime(v.UpdatedAt),
		)
		if err != nil {
			return storageErr("insert file view", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return writeACL(ctx, tx, v.ID, ch.ACL)
	case vfs.ViewMoved:
		q, args = `UPDATE file_views SET parent_id = ?, path = ?, updated_at = ? WHERE id = ?`,
			[]any{nullable(v.ParentID), v.Path, at, v.ID}
	case vfs.ViewRenamed:
		q, args = `UPDATE file_views SET name = ?, path = ?, updated_at = ? WHERE id = ?`,
			[]any{v.Name, v.Path, at, v.ID}
	case vfs.ViewDeleted:
		q, args = `UPDATE file_views SET deleted_at = ?, deleted_by = ?, updated_at = ? WHERE id = ?`,
			[]any{at, v.DeletedBy, at, v.ID}
	case vfs.ViewRestored:
		q, args = `UPDATE file_views SET deleted_at = NULL, deleted_by = NULL, updated_at = ? WHERE id = ?`,
			[]any{at, v.ID}
	case vfs.ViewPermissionsChanged:
		q, args = `UPDATE file_views SET updated_at = ? WHERE id = ?`, []any{at, v.ID}
	default:
		return fmt.Errorf("%w: view change %d", es.ErrUnknownEventType, ch.Kind)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if err != nil {
		return storageErr("update file view", err)
	}
	if ch.Kind == vfs.ViewPermissionsChanged {
		if n, _ := res.RowsAffected(); n > 0 {
			return writeACL(ctx, tx, v.ID, ch.ACL)
		}
	}
	return nil
}

// writeACL replaces the permission rows of id.
func writeACL(ctx context.Context, tx *sqlx.Tx, id string, acl vfs.ACL) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM file_permissions WHERE file_id = ?`), id); err != nil {
		return storageErr("clear permissions", err)
	}
	insert := tx.Rebind(`INSERT INTO file_permissions (file_id, subject_type, subject_id, permission, inherited)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`)
	for _, ace := range acl {
		for _, perm := range ace.Permissions.Values() {
			_, err := tx.ExecContext(ctx, insert, id, string(ace.Subject.Type), ace.Subject.ID, string(perm), ace.Inherited)
			if err != nil {
				return storageErr("insert permission", err)
			}
		}
	}
	return nil
}

func (p *FileViewProjection) Position(ctx context.Context) (uint64, error) {
	ctx, cancel := p.db.withTimeout(ctx)
	defer cancel()
	return getPosition(ctx, p.db, p.name)
}

func (p *FileViewProjection) UpdatePosition(ctx context.Context, pos uint64) error {
	ctx, cancel := p.db.withTimeout(ctx)
	defer cancel()
	return setPosition(ctx, p.db, p.name, pos)
}

// Reset empties the read model and its checkpoint.
func (p *FileViewProjection) Reset(ctx context.Context) error {
	ctx, cancel := p.db.withTimeout(ctx)
	defer cancel()

	return p.db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{`DELETE FROM file_permissions`, `DELETE FROM file_views`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return storageErr("reset read model", err)
			}
		}
		p.log.Info("read model reset")
		return setPosition(ctx, tx, p.name, 0)
	})
}

var _ es.Projection = (*FileViewProjection)(nil)
