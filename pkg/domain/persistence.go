package domain

import "context"

// Persister is the storage contract shared by every backend. Tables are
// addressed by the TableName of metadata registered through
// SetupEntityMetadata. Entities passed in are cloned before use and every
// entity returned is an independent copy with its relations populated.
type Persister interface {
	SetupEntityMetadata(metadata EntityMetadata) error

	// Insert stores entities, assigning ids where missing. The batch is
	// rejected as a whole on a duplicate id. It returns the first stored entity.
	Insert(ctx context.Context, table string, entities ...Entity) (Entity, error)
	// Update replaces the entity with the same id or inserts it when unknown.
	Update(ctx context.Context, table string, entity Entity) (Entity, error)

	FindByID(ctx context.Context, table string, id any) (Entity, bool, error)
	FindByProperty(ctx context.Context, table, property string, value any) (Entity, bool, error)
	FindAllByID(ctx context.Context, table string, ids ...any) ([]Entity, error)
	FindAllByProperty(ctx context.Context, table, property string, value any) ([]Entity, error)
	FindAll(ctx context.Context, table string) ([]Entity, error)

	DeleteByID(ctx context.Context, table string, id any) error
	DeleteAllByID(ctx context.Context, table string, ids ...any) error
	DeleteAllByProperty(ctx context.Context, table, property string, value any) error
	DeleteAll(ctx context.Context, table string) error

	Count(ctx context.Context, table string) (int, error)
	CountByProperty(ctx context.Context, table, property string, value any) (int, error)
	ExistsByProperty(ctx context.Context, table, property string, value any) (bool, error)

	// Destroy releases the backend. The persister is unusable afterwards.
	Destroy(ctx context.Context) error
}
