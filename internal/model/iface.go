package model

import (
	"context"
	"time"
)

// TemplateOrder selects the column a template query is sorted by.
type TemplateOrder string

const (
	OrderByID        TemplateOrder = "id"
	OrderByName      TemplateOrder = "name"
	OrderByCreatedAt TemplateOrder = "createdAt"
	OrderByUpdatedAt TemplateOrder = "updatedAt"
)

// TemplateQuery filters and orders a template table scan. Zero values match
// everything and order by id ascending.
type TemplateQuery struct {
	Name         string // exact match when non-empty
	Active       *bool
	UpdatedAfter time.Time
	CreatedAfter time.Time
	OrderBy      TemplateOrder
	Desc         bool
	Limit        int // 0 = no limit
}

// TemplateTable is the five-operation persistence contract behind the
// template repository. Implementations assign ids from a monotonic sequence
// and never reuse them.
type TemplateTable interface {
	Add(ctx context.Context, t Template) (int64, error)
	Get(ctx context.Context, id int64) (Template, bool, error)
	// Update replaces the stored record with t. It returns ErrNotFound when
	// t.ID is absent.
	Update(ctx context.Context, t Template) error
	// Delete removes the record; deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error
	Query(ctx context.Context, q TemplateQuery) ([]Template, error)
}

// KVStore is a durable string key/value store used for small settings such as
// the visibility map.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
}
