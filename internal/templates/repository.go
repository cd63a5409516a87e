// Package templates implements the dashboard template repository on top of a
// pluggable five-operation persistence table.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/canopy/internal/model"
	"go.uber.org/zap"
)

// copySuffix is appended to a duplicated template's name when no explicit
// name is given.
const copySuffix = " - copy"

// Patch holds the fields an update may change. Nil fields are left as-is;
// Config replaces the whole configuration when set.
type Patch struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Preview     *string               `json:"preview,omitempty"`
	IsActive    *bool                 `json:"isActive,omitempty"`
	Config      *model.TemplateConfig `json:"config,omitempty"`
}

// StatusFilter restricts Search to active or inactive templates.
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusActive   StatusFilter = "active"
	StatusInactive StatusFilter = "inactive"
)

// Filter narrows Search results.
type Filter struct {
	Text   string       // case-insensitive substring of name or description
	Status StatusFilter // empty means all
}

// Repository is the template CRUD service used by the dashboard, the API and
// the CLI.
type Repository struct {
	table  model.TemplateTable
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRepository wraps table.
func NewRepository(table model.TemplateTable, opts ...Option) *Repository {
	r := &Repository{table: table, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("templates")
	return r
}

// timestamp returns the current time in the precision every backend can
// round-trip.
func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// List returns all templates, most recently updated first.
func (r *Repository) List(ctx context.Context) ([]model.Template, error) {
	out, err := r.table.Query(ctx, model.TemplateQuery{OrderBy: model.OrderByUpdatedAt, Desc: true})
	if err != nil {
		return nil, persistErr("list templates", err)
	}
	return out, nil
}

// Search returns List filtered by text and active status.
func (r *Repository) Search(ctx context.Context, f Filter) ([]model.Template, error) {
	q := model.TemplateQuery{OrderBy: model.OrderByUpdatedAt, Desc: true}
	switch f.Status {
	case StatusActive:
		active := true
		q.Active = &active
	case StatusInactive:
		active := false
		q.Active = &active
	case StatusAll, "":
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", model.ErrInvalid, f.Status)
	}

	rows, err := r.table.Query(ctx, q)
	if err != nil {
		return nil, persistErr("search templates", err)
	}

	text := strings.ToLower(strings.TrimSpace(f.Text))
	if text == "" {
		return rows, nil
	}
	out := rows[:0]
	for _, t := range rows {
		if strings.Contains(strings.ToLower(t.Name), text) || strings.Contains(strings.ToLower(t.Description), text) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Get returns one template.
func (r *Repository) Get(ctx context.Context, id int64) (model.Template, error) {
	t, ok, err := r.table.Get(ctx, id)
	if err != nil {
		return model.Template{}, persistErr("get template", err)
	}
	if !ok {
		return model.Template{}, fmt.Errorf("template %d: %w", id, model.ErrNotFound)
	}
	return t, nil
}

// FindByName returns the most recently updated template named name.
func (r *Repository) FindByName(ctx context.Context, name string) (model.Template, error) {
	rows, err := r.table.Query(ctx, model.TemplateQuery{
		Name:    name,
		OrderBy: model.OrderByUpdatedAt,
		Desc:    true,
		Limit:   1,
	})
	if err != nil {
		return model.Template{}, persistErr("find template", err)
	}
	if len(rows) == 0 {
		return model.Template{}, fmt.Errorf("template %q: %w", name, model.ErrNotFound)
	}
	return rows[0], nil
}

// Create validates t, stamps createdAt and updatedAt and stores it. The id is
// assigned by the table; any id on t is ignored.
func (r *Repository) Create(ctx context.Context, t model.Template) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	now := r.timestamp()
	t.ID = 0
	t.CreatedAt = now
	t.UpdatedAt = now

	id, err := r.table.Add(ctx, t)
	if err != nil {
		return 0, persistErr("create template", err)
	}
	r.logger.Info("template created", zap.Int64("id", id), zap.String("name", t.Name))
	return id, nil
}

// Update merges p into the stored template and bumps updatedAt.
func (r *Repository) Update(ctx context.Context, id int64, p Patch) (model.Template, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return model.Template{}, err
	}

	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Preview != nil {
		t.Preview = *p.Preview
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	if p.Config != nil {
		t.Config = *p.Config
	}
	if err := t.Validate(); err != nil {
		return model.Template{}, err
	}
	t.UpdatedAt = r.timestamp()

	if err := r.table.Update(ctx, t); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Template{}, err
		}
		return model.Template{}, persistErr("update template", err)
	}
	return t, nil
}

// Remove deletes a template. Removing an absent id is a no-op.
func (r *Repository) Remove(ctx context.Context, id int64) error {
	if err := r.table.Delete(ctx, id); err != nil {
		return persistErr("delete template", err)
	}
	r.logger.Info("template removed", zap.Int64("id", id))
	return nil
}

// Duplicate copies the source template's configuration into a new inactive
// template. An empty newName yields "<original> - copy".
func (r *Repository) Duplicate(ctx context.Context, id int64, newName string) (int64, error) {
	src, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	dup := src.Clone()
	dup.ID = 0
	dup.Name = newName
	if strings.TrimSpace(newName) == "" {
		dup.Name = src.Name + copySuffix
	}
	dup.IsActive = false
	now := r.timestamp()
	dup.CreatedAt = now
	dup.UpdatedAt = now

	newID, err := r.table.Add(ctx, dup)
	if err != nil {
		return 0, persistErr("duplicate template", err)
	}
	r.logger.Info("template duplicated", zap.Int64("source", id), zap.Int64("id", newID))
	return newID, nil
}

// ToggleActive flips isActive. An absent id is a no-op.
func (r *Repository) ToggleActive(ctx context.Context, id int64) error {
	t, ok, err := r.table.Get(ctx, id)
	if err != nil {
		return persistErr("get template", err)
	}
	if !ok {
		return nil
	}
	t.IsActive = !t.IsActive
	t.UpdatedAt = r.timestamp()
	if err := r.table.Update(ctx, t); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return persistErr("toggle template", err)
	}
	return nil
}

// Count returns the number of stored templates.
func (r *Repository) Count(ctx context.Context) (int, error) {
	rows, err := r.table.Query(ctx, model.TemplateQuery{})
	if err != nil {
		return 0, persistErr("count templates", err)
	}
	return len(rows), nil
}

// BootstrapDefaults inserts the built-in templates when the table is empty
// and returns how many were inserted.
func (r *Repository) BootstrapDefaults(ctx context.Context) (int, error) {
	existing, err := r.table.Query(ctx, model.TemplateQuery{Limit: 1})
	if err != nil {
		return 0, persistErr("count templates", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	inserted := 0
	for _, t := range Builtins() {
		now := r.timestamp()
		t.CreatedAt = now
		t.UpdatedAt = now
		if _, err := r.table.Add(ctx, t); err != nil {
			return inserted, persistErr("bootstrap template", err)
		}
		inserted++
	}
	r.logger.Info("bootstrapped default templates", zap.Int("count", inserted))
	return inserted, nil
}

func persistErr(op string, err error) error {
	if errors.Is(err, model.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrPersistence, op, err)
}
