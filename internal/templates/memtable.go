package templates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tinytelemetry/canopy/internal/model"
)

// MemoryTable is an in-process TemplateTable used by tests and ephemeral
// runs. Records are cloned on the way in and out.
type MemoryTable struct {
	mu     sync.RWMutex
	rows   map[int64]model.Template
	nextID int64
}

// NewMemoryTable returns an empty table whose first id is 1.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{rows: make(map[int64]model.Template)}
}

func (m *MemoryTable) Add(_ context.Context, t model.Template) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t = t.Clone()
	t.ID = m.nextID
	m.rows[t.ID] = t
	return t.ID, nil
}

func (m *MemoryTable) Get(_ context.Context, id int64) (model.Template, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.rows[id]
	if !ok {
		return model.Template{}, false, nil
	}
	return t.Clone(), true, nil
}

func (m *MemoryTable) Update(_ context.Context, t model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; !ok {
		return fmt.Errorf("template %d: %w", t.ID, model.ErrNotFound)
	}
	m.rows[t.ID] = t.Clone()
	return nil
}

func (m *MemoryTable) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *MemoryTable) Query(_ context.Context, q model.TemplateQuery) ([]model.Template, error) {
	m.mu.RLock()
	out := make([]model.Template, 0, len(m.rows))
	for _, t := range m.rows {
		if q.Name != "" && t.Name != q.Name {
			continue
		}
		if q.Active != nil && t.IsActive != *q.Active {
			continue
		}
		if !q.UpdatedAfter.IsZero() && !t.UpdatedAt.After(q.UpdatedAfter) {
			continue
		}
		if !q.CreatedAfter.IsZero() && !t.CreatedAt.After(q.CreatedAfter) {
			continue
		}
		out = append(out, t.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		c := compareBy(q.OrderBy, out[i], out[j])
		if c == 0 {
			c = compareInt(out[i].ID, out[j].ID)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len returns the number of stored templates.
func (m *MemoryTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func compareBy(order model.TemplateOrder, a, b model.Template) int {
	switch order {
	case model.OrderByName:
		return strings.Compare(a.Name, b.Name)
	case model.OrderByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case model.OrderByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return compareInt(a.ID, b.ID)
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
