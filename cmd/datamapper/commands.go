package main

import (
	"context"
	"datamapper/internal/archive"
	"datamapper/internal/core"
	"datamapper/internal/infra/persistence/memory"
	"datamapper/internal/query"
	"datamapper/pkg/domain"
	"datamapper/pkg/metadata"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
)

type migrator interface {
	Migrate(ctx context.Context) (int, error)
}

func (env *environment) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

func (env *environment) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// manager indexes the declared metadata without opening a backend.
func (env *environment) manager() (*metadata.Manager, error) {
	m := metadata.NewManager()
	if err := env.registry.SetupPersister(registrarFunc(m.Setup)); err != nil {
		return nil, err
	}
	return m, nil
}

type registrarFunc func(domain.EntityMetadata) error

func (f registrarFunc) SetupEntityMetadata(md domain.EntityMetadata) error { return f(md) }

// open selects the configured persister and registers every declaration.
// The returned release function destroys the persister and logs the
// operation totals at debug level.
func (env *environment) open(ctx context.Context) (domain.Persister, func(), error) {
	reg := prometheus.NewRegistry()
	p, err := core.OpenPersister(ctx, core.WithLogger(env.logger), core.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("open persister: %w", err)
	}
	release := func() {
		if err := p.Destroy(ctx); err != nil {
			env.logger.Warn("release persister", "error", err)
		}
		env.logOperations(ctx, reg)
	}
	if err := env.registry.SetupPersister(p); err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

// logOperations reports the persister call counters gathered from reg.
func (env *environment) logOperations(ctx context.Context, reg prometheus.Gatherer) {
	if !env.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	families, err := reg.Gather()
	if err != nil {
		env.logger.Warn("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		if mf.GetName() != "datamapper_persister_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			attrs := []any{"count", m.GetCounter().GetValue()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			env.logger.Debug("persister operations", attrs...)
		}
	}
}

// backend strips instrumentation so optional capabilities stay visible.
func backend(p domain.Persister) domain.Persister {
	if u, ok := p.(interface{ Unwrap() domain.Persister }); ok {
		return u.Unwrap()
	}
	return p
}

func runTables(_ context.Context, env *environment, args []string) error {
	if err := env.parse(env.flags("tables"), args); err != nil {
		return err
	}
	m, err := env.manager()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TABLE\tID\tFIELDS\tRELATIONS")
	for _, md := range m.All() {
		fields := make([]string, 0, len(md.Fields))
		for _, f := range md.Fields {
			if f.Property == f.Column {
				fields = append(fields, f.Property)
				continue
			}
			fields = append(fields, f.Property+"("+f.Column+")")
		}
		var relations []string
		for _, rel := range md.OneToMany {
			relations = append(relations, fmt.Sprintf("%s=>%s.%s", rel.Property, rel.MappedTable, rel.MappedBy))
		}
		for _, rel := range md.ManyToOne {
			relations = append(relations, fmt.Sprintf("%s->%s", rel.Property, rel.MappedTable))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", md.TableName, md.IDProperty, strings.Join(fields, ","), strings.Join(relations, ","))
	}
	return tw.Flush()
}

func runMigrate(ctx context.Context, env *environment, args []string) error {
	if err := env.parse(env.flags("migrate"), args); err != nil {
		return err
	}
	p, release, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	m, ok := backend(p).(migrator)
	if !ok {
		env.logger.Info("backend keeps no schema", "driver", os.Getenv("DATAMAPPER_PERSISTER_DRIVER"))
		_, err := fmt.Fprintln(env.stdout, "applied 0 migrations")
		return err
	}
	n, err := m.Migrate(ctx)
	if err != nil {
		return err
	}
	env.logger.Debug("migrations applied", "count", n)
	_, err = fmt.Fprintf(env.stdout, "applied %d migrations\n", n)
	return err
}

func runSelect(ctx context.Context, env *environment, args []string) error {
	fs := env.flags("select")
	table := fs.String("table", "", "table to read")
	where := fs.String("where", "", "property=value filter; value is parsed as JSON when possible")
	showSQL := fs.Bool("sql", false, "print the SQL statement instead of reading rows")
	if err := env.parse(fs, args); err != nil {
		return err
	}
	if *table == "" {
		_, _ = fmt.Fprintln(env.stderr, "select: -table is required")
		return errUsage
	}
	property, value, filtered, err := parseFilter(*where)
	if err != nil {
		return err
	}
	if *showSQL {
		m, err := env.manager()
		if err != nil {
			return err
		}
		text, values, err := selectStatement(m, os.Getenv("DATAMAPPER_TABLE_PREFIX"), *table, property, value, filtered)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(env.stdout, text)
		if len(values) > 0 {
			return json.NewEncoder(env.stdout).Encode(values)
		}
		return nil
	}
	p, release, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	var rows []domain.Entity
	if filtered {
		rows, err = p.FindAllByProperty(ctx, *table, property, value)
	} else {
		rows, err = p.FindAll(ctx, *table)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(env.stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	env.logger.Debug("rows selected", "table", *table, "count", len(rows))
	return nil
}

func parseFilter(expr string) (property string, value any, ok bool, err error) {
	if expr == "" {
		return "", nil, false, nil
	}
	property, raw, found := strings.Cut(expr, "=")
	if !found || property == "" {
		return "", nil, false, fmt.Errorf("%w: filter %q is not property=value", domain.ErrMalformedInput, expr)
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	return property, value, true, nil
}

// selectStatement renders the statement a SQL backend runs for the filter.
// Reference properties are stored in a column named after the property.
func selectStatement(m *metadata.Manager, prefix, table, property string, value any, filtered bool) (string, []any, error) {
	md, err := m.ByTable(table)
	if err != nil {
		return "", nil, err
	}
	b := query.New(prefix)
	b.SetFromTable(table)
	b.IncludeAllColumnsFromTable(table)
	if filtered {
		field, ok := md.FieldByProperty(property)
		if !ok {
			return "", nil, fmt.Errorf("%w: table %s declares no property %s", domain.ErrMalformedInput, table, property)
		}
		column := field.Column
		refs, err := metadata.ReferenceFields(m, table)
		if err != nil {
			return "", nil, err
		}
		for _, ref := range refs {
			if ref.Field.Property == property {
				column = property
			}
		}
		cond := query.Where(b.TableName(table), column)
		if value == nil {
			cond = cond.IsNull()
		} else {
			cond = cond.Eq(value)
		}
		b.SetWhereFromQueryBuilder(cond)
	}
	return b.Build()
}

func runExport(ctx context.Context, env *environment, args []string) error {
	fs := env.flags("export")
	key := fs.String("key", "", "archive key of the snapshot")
	replace := fs.Bool("replace", false, "overwrite an existing snapshot")
	if err := env.parse(fs, args); err != nil {
		return err
	}
	if *key == "" {
		_, _ = fmt.Fprintln(env.stderr, "export: -key is required")
		return errUsage
	}
	m, err := env.manager()
	if err != nil {
		return err
	}
	p, release, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	snapshot := memory.Snapshot{Tables: make(map[string][]memory.Item)}
	rows := 0
	for _, md := range m.All() {
		refs, err := metadata.ReferenceFields(m, md.TableName)
		if err != nil {
			return err
		}
		stored, err := p.FindAll(ctx, md.TableName)
		if err != nil {
			return fmt.Errorf("read %s: %w", md.TableName, err)
		}
		items := make([]memory.Item, 0, len(stored))
		for _, row := range stored {
			id, _ := md.ID(row)
			items = append(items, memory.Item{ID: id, Value: flatten(md, refs, row)})
		}
		if len(items) > 0 {
			snapshot.Tables[md.TableName] = items
			rows += len(items)
		}
	}
	staging := memory.NewStore(memory.Options{})
	if err := staging.ImportState(snapshot); err != nil {
		return err
	}
	store, err := archive.Open(ctx)
	if err != nil {
		return err
	}
	obj, err := archive.SaveSnapshot(ctx, store, *key, staging, archive.SaveOptions{Replace: *replace})
	if err != nil {
		return err
	}
	env.logger.Info("snapshot saved", "key", obj.Key, "driver", store.Driver(), "bytes", obj.Size)
	_, err = fmt.Fprintf(env.stdout, "exported %d rows from %d tables to %s\n", rows, len(snapshot.Tables), *key)
	return err
}

// flatten strips populated relations back to their stored form: one-to-many
// collections are dropped and referenced entities shrink to their join key.
func flatten(md domain.EntityMetadata, refs []metadata.ReferenceField, e domain.Entity) domain.Entity {
	out := e.Clone()
	for _, rel := range md.OneToMany {
		delete(out, rel.Property)
	}
	for _, ref := range refs {
		related, ok := domain.AsEntity(out[ref.Field.Property])
		if !ok {
			continue
		}
		key, _ := related.Get(ref.JoinProperty)
		out[ref.Field.Property] = domain.Entity{ref.JoinProperty: key}
	}
	return out
}

func runImport(ctx context.Context, env *environment, args []string) error {
	fs := env.flags("import")
	key := fs.String("key", "", "archive key of the snapshot")
	if err := env.parse(fs, args); err != nil {
		return err
	}
	if *key == "" {
		_, _ = fmt.Fprintln(env.stderr, "import: -key is required")
		return errUsage
	}
	store, err := archive.Open(ctx)
	if err != nil {
		return err
	}
	staging := memory.NewStore(memory.Options{})
	if err := archive.LoadSnapshot(ctx, store, *key, staging); err != nil {
		if archive.IsNotFound(err) {
			return fmt.Errorf("no snapshot %s in %s archive: %w", *key, store.Driver(), err)
		}
		return err
	}
	snapshot := staging.ExportState()
	m, err := env.manager()
	if err != nil {
		return err
	}
	p, release, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	order, err := insertOrder(m, snapshot)
	if err != nil {
		return err
	}
	total := 0
	for _, table := range order {
		items := snapshot.Tables[table]
		entities := make([]domain.Entity, len(items))
		for i, item := range items {
			entities[i] = item.Value
		}
		if _, err := p.Insert(ctx, table, entities...); err != nil {
			return fmt.Errorf("import %s: %w", table, err)
		}
		env.logger.Debug("table imported", "table", table, "rows", len(items))
		total += len(items)
	}
	_, err = fmt.Fprintf(env.stdout, "imported %d rows into %d tables\n", total, len(order))
	return err
}

// insertOrder sorts the snapshot tables so referenced tables are inserted
// before the tables pointing at them. Reference cycles keep lexical order.
func insertOrder(m *metadata.Manager, snapshot memory.Snapshot) ([]string, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var order []string
	var visit func(table string) error
	visit = func(table string) error {
		if state[table] != 0 {
			return nil
		}
		state[table] = visiting
		refs, err := metadata.ReferenceFields(m, table)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ref.Target == table {
				continue
			}
			if err := visit(ref.Target); err != nil {
				return err
			}
		}
		state[table] = done
		if len(snapshot.Tables[table]) > 0 {
			order = append(order, table)
		}
		return nil
	}
	for _, table := range m.Tables() {
		if err := visit(table); err != nil {
			return nil, err
		}
	}
	for table := range snapshot.Tables {
		if state[table] == 0 {
			return nil, fmt.Errorf("snapshot table %s: %w", table, domain.ErrMetadataNotFound)
		}
	}
	return order, nil
}
