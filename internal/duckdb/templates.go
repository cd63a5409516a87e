package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/canopy/internal/model"
)

const templateColumns = "id, name, description, preview, is_active, created_at, updated_at, config"

var orderColumns = map[model.TemplateOrder]string{
	model.OrderByID:        "id",
	model.OrderByName:      "name",
	model.OrderByCreatedAt: "created_at",
	model.OrderByUpdatedAt: "updated_at",
}

// Add inserts t and returns the id drawn from templates_id_seq.
func (s *Store) Add(ctx context.Context, t model.Template) (int64, error) {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return 0, fmt.Errorf("encode config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO templates (name, description, preview, is_active, created_at, updated_at, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		t.Name, t.Description, t.Preview, t.IsActive, t.CreatedAt.UTC(), t.UpdatedAt.UTC(), string(cfg),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert template: %w", err)
	}
	return id, nil
}

// Get loads one template.
func (s *Store) Get(ctx context.Context, id int64) (model.Template, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, false, nil
	}
	if err != nil {
		return model.Template{}, false, err
	}
	return t, true, nil
}

// Update overwrites every mutable column of t.ID.
func (s *Store) Update(ctx context.Context, t model.Template) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, description = ?, preview = ?, is_active = ?, updated_at = ?, config = ?
		WHERE id = ?`,
		t.Name, t.Description, t.Preview, t.IsActive, t.UpdatedAt.UTC(), string(cfg), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update template %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template %d: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("template %d: %w", t.ID, model.ErrNotFound)
	}
	return nil
}

// Delete removes id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete template %d: %w", id, err)
	}
	return nil
}

// Query filters and orders templates. Ties on the sort column are broken by
// id in the same direction.
func (s *Store) Query(ctx context.Context, q model.TemplateQuery) ([]model.Template, error) {
	var conditions []string
	var args []any

	if q.Name != "" {
		conditions = append(conditions, "name = ?")
		args = append(args, q.Name)
	}
	if q.Active != nil {
		conditions = append(conditions, "is_active = ?")
		args = append(args, *q.Active)
	}
	if !q.UpdatedAfter.IsZero() {
		conditions = append(conditions, "updated_at > ?")
		args = append(args, q.UpdatedAfter.UTC())
	}
	if !q.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at > ?")
		args = append(args, q.CreatedAfter.UTC())
	}

	var b strings.Builder
	b.WriteString("SELECT " + templateColumns + " FROM templates")
	if len(conditions) > 0 {
		b.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}

	col, ok := orderColumns[q.OrderBy]
	if !ok {
		col = "id"
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s", col, dir)
	if col != "id" {
		fmt.Fprintf(&b, ", id %s", dir)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (model.Template, error) {
	var (
		t       model.Template
		cfg     string
		created time.Time
		updated time.Time
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Preview, &t.IsActive, &created, &updated, &cfg); err != nil {
		return model.Template{}, err
	}
	t.CreatedAt = created.UTC()
	t.UpdatedAt = updated.UTC()
	if err := json.Unmarshal([]byte(cfg), &t.Config); err != nil {
		return model.Template{}, fmt.Errorf("decode config of template %d: %w", t.ID, err)
	}
	return t, nil
}
