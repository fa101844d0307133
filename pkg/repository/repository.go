package repository

import (
	"context"
	"datamapper/pkg/domain"
)

// Repository maps typed values onto one table of a persister.
type Repository[T any] struct {
	persister domain.Persister
	schema    *Schema[T]
}

// New binds schema to p. The table's metadata must be registered with p
// before the first call.
func New[T any](p domain.Persister, schema *Schema[T]) *Repository[T] {
	return &Repository[T]{persister: p, schema: schema}
}

// Insert stores items as one batch and returns the first stored value with
// its assigned id.
func (r *Repository[T]) Insert(ctx context.Context, items ...*T) (*T, error) {
	entities := make([]domain.Entity, len(items))
	for i, item := range items {
		entities[i] = r.schema.ToEntity(item)
	}
	stored, err := r.persister.Insert(ctx, r.schema.table, entities...)
	if err != nil {
		return nil, err
	}
	return r.schema.FromEntity(stored)
}

// Update replaces the stored value with the same id, inserting it if absent.
func (r *Repository[T]) Update(ctx context.Context, item *T) (*T, error) {
	stored, err := r.persister.Update(ctx, r.schema.table, r.schema.ToEntity(item))
	if err != nil {
		return nil, err
	}
	return r.schema.FromEntity(stored)
}

func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, bool, error) {
	e, ok, err := r.persister.FindByID(ctx, r.schema.table, id)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := r.schema.FromEntity(e)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Repository[T]) FindAll(ctx context.Context) ([]*T, error) {
	entities, err := r.persister.FindAll(ctx, r.schema.table)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(entities))
	for _, e := range entities {
		v, err := r.schema.FromEntity(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository[T]) DeleteByID(ctx context.Context, id any) error {
	return r.persister.DeleteByID(ctx, r.schema.table, id)
}

func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return r.persister.Count(ctx, r.schema.table)
}
