package vfs

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/codewandler/vfs-es/core/es"
)

// MemReadModel keeps file views in maps. It is both a ReadModel and the
// state of an es.InMemoryProjection.
type MemReadModel struct {
	mu    sync.RWMutex
	views map[string]FileView
	acls  map[string]ACL
}

func NewMemReadModel() *MemReadModel {
	return &MemReadModel{views: map[string]FileView{}, acls: map[string]ACL{}}
}

// NewMemProjection wraps rm into a projection named name.
func NewMemProjection(name string, rm *MemReadModel, cp es.CpStore) (*es.InMemoryProjection[*MemReadModel], error) {
	return es.NewInMemoryProjection(es.InMemoryProjectionOpts{Name: name, CpStore: cp}, rm)
}

func (m *MemReadModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = map[string]FileView{}
	m.acls = map[string]ACL{}
}

func (m *MemReadModel) Apply(_ context.Context, _ es.Envelope, event any) error {
	ch, err := ViewChangeOf(event)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ch.Kind == ViewCreated {
		if _, ok := m.views[ch.View.ID]; !ok {
			m.views[ch.View.ID] = ch.View
			m.acls[ch.View.ID] = ch.ACL
		}
		return nil
	}

	v, ok := m.views[ch.View.ID]
	if !ok {
		return nil
	}
	switch ch.Kind {
	case ViewMoved:
		v.ParentID = ch.View.ParentID
		v.Path = ch.View.Path
	case ViewRenamed:
		v.Name = ch.View.Name
		v.Path = ch.View.Path
	case ViewDeleted:
		at := ch.At
		v.DeletedAt = &at
		v.DeletedBy = ch.View.DeletedBy
	case ViewRestored:
		v.DeletedAt = nil
		v.DeletedBy = ""
	case ViewPermissionsChanged:
		m.acls[v.ID] = ch.ACL
	default:
		return fmt.Errorf("%w: view change %d", es.ErrUnknownEventType, ch.Kind)
	}
	v.UpdatedAt = ch.At
	m.views[v.ID] = v
	return nil
}

func (m *MemReadModel) View(_ context.Context, id string) (FileView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[id]
	if !ok {
		return FileView{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

func (m *MemReadModel) filter(keep func(FileView) bool) []FileView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FileView
	for _, v := range m.views {
		if !v.IsDeleted() && keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func paginate(views []FileView, page Page) []FileView {
	page = page.Normalize()
	if page.Offset >= len(views) {
		return []FileView{}
	}
	return views[page.Offset:min(len(views), page.Offset+page.Limit)]
}

func byName(a, b FileView) int { return cmp.Compare(a.Name, b.Name) }

func (m *MemReadModel) Children(_ context.Context, parentID string, page Page) ([]FileView, error) {
	out := m.filter(func(v FileView) bool { return v.ParentID == parentID })
	slices.SortFunc(out, func(a, b FileView) int {
		// folders before files
		return cmp.Or(-cmp.Compare(a.ItemType, b.ItemType), byName(a, b))
	})
	return paginate(out, page), nil
}

func (m *MemReadModel) ChildFolders(_ context.Context, parentID string) ([]FileView, error) {
	out := m.filter(func(v FileView) bool { return v.IsFolder() && v.ParentID == parentID })
	slices.SortFunc(out, byName)
	return out, nil
}

func (m *MemReadModel) Search(_ context.Context, query string, page Page) ([]FileView, error) {
	q := strings.ToLower(query)
	out := m.filter(func(v FileView) bool {
		return strings.Contains(strings.ToLower(v.Name), q) || strings.Contains(strings.ToLower(v.Path), q)
	})
	slices.SortFunc(out, byName)
	return paginate(out, page), nil
}

func (m *MemReadModel) NameExists(_ context.Context, parentID, name, excludeID string) (bool, error) {
	found := m.filter(func(v FileView) bool {
		return v.ParentID == parentID && v.Name == name && v.ID != excludeID
	})
	return len(found) > 0, nil
}

func (m *MemReadModel) ACL(_ context.Context, id string) (ACL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.views[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.acls[id], nil
}

var (
	_ ReadModel                  = (*MemReadModel)(nil)
	_ es.InMemoryProjectionState = (*MemReadModel)(nil)
)
