package sqlstore

import (
	"context"
	"datamapper/internal/relation"
	"datamapper/pkg/domain"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// txSource serves the populator from the transaction of the calling
// operation so populated graphs reflect uncommitted writes.
type txSource struct {
	store *Store
	tx    *sqlx.Tx
}

func (t txSource) Referencing(ctx context.Context, ref relation.Reference) ([]domain.Entity, error) {
	child, err := t.store.lookupSchema(ref.Table)
	if err != nil {
		return nil, err
	}
	owner, err := t.store.lookupSchema(ref.OwnerTable)
	if err != nil {
		return nil, err
	}
	refColumn, ok := child.columnFor(ref.Property)
	if !ok {
		return nil, fmt.Errorf("%w: %s declares no field %s", domain.ErrResolution, ref.Table, ref.Property)
	}
	ownerColumn, ok := owner.columnFor(ref.JoinProperty)
	if !ok {
		return nil, fmt.Errorf("%w: %s declares no field %s", domain.ErrResolution, ref.OwnerTable, ref.JoinProperty)
	}
	text, err := t.store.referencingText(child, owner, refColumn.name, ownerColumn.name)
	if err != nil {
		return nil, err
	}
	arg, err := encodeValue(ref.OwnerID)
	if err != nil {
		return nil, err
	}
	return t.store.queryEntities(ctx, t.tx, child, text, arg)
}

func (t txSource) Lookup(ctx context.Context, table string, id any) (domain.Entity, bool, error) {
	sc, err := t.store.lookupSchema(table)
	if err != nil {
		return nil, false, err
	}
	f, err := t.store.idFilter(sc, id)
	if err != nil {
		return nil, false, err
	}
	rows, err := t.store.selectRows(ctx, t.tx, sc, f)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}
