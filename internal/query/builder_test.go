package query

import (
	"datamapper/pkg/domain"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCompleteFromTableRequiresTable(t *testing.T) {
	b := New("app_")
	if _, err := b.CompleteFromTable(); !errors.Is(err, domain.ErrUninitialized) {
		t.Fatalf("expected uninitialized error, got %v", err)
	}
	b.SetFromTable("parents")
	got, err := b.CompleteFromTable()
	if err != nil {
		t.Fatalf("complete from table: %v", err)
	}
	if got != `"app_parents"` {
		t.Fatalf("unexpected from table %s", got)
	}
}

func TestBuildFullStatementKeepsValueOrder(t *testing.T) {
	b := New("")
	b.SetFromTable("parents")
	b.IncludeAllColumnsFromTable("parents")

	sub := New("")
	sub.SetFromTable("children")
	if err := sub.IncludeFormulaByString("COUNT(*)", "n"); err != nil {
		t.Fatalf("formula: %v", err)
	}
	sub.SetWhereFromQueryBuilder(Where("children", "age").Gt(10).And(Where("children", "kind").Eq("x")))
	if err := b.IncludeColumnFromQueryBuilder(sub, "child_count"); err != nil {
		t.Fatalf("include sub-select: %v", err)
	}

	b.LeftJoinTableWhere("owners", "id", "parents", "owner", Where("owners", "active").Eq(true))
	b.SetWhereFromQueryBuilder(Where("parents", "id").In("p1", "p2"))

	sql, values, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := `SELECT "parents".*, (SELECT COUNT(*) AS "n" FROM "children" WHERE ("children"."age" > ? AND "children"."kind" = ?)) AS "child_count"` +
		` FROM "parents" LEFT JOIN "owners" ON "parents"."owner" = "owners"."id" AND ("owners"."active" = ?)` +
		` WHERE "parents"."id" IN (?, ?)`
	if sql != want {
		t.Fatalf("unexpected sql:\nwant %s\ngot  %s", want, sql)
	}
	wantValues := []any{10, "x", true, "p1", "p2"}
	if !reflect.DeepEqual(values, wantValues) {
		t.Fatalf("unexpected values %v, want %v", values, wantValues)
	}
	if strings.Count(sql, "?") != len(values) {
		t.Fatalf("placeholder count %d does not match %d values", strings.Count(sql, "?"), len(values))
	}
}

func TestBuildTwoFieldsOneJoinOnePredicate(t *testing.T) {
	b := New("")
	b.SetFromTable("parents")
	b.IncludeAllColumnsFromTable("parents")

	sub := New("")
	sub.SetFromTable("children")
	sub.SetWhereFromQueryBuilder(Where("children", "parent").Eq("p1"))
	if err := b.IncludeColumnFromQueryBuilder(sub, "first_child"); err != nil {
		t.Fatalf("include: %v", err)
	}
	b.LeftJoinTable("owners", "id", "parents", "owner")
	where := Where("parents", "name").Eq("n").Or(Where("parents", "name").IsNull())
	b.SetWhereFromQueryBuilder(where)

	sql, values, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wantLen := len(sub.QueryValueFactories()) + 0 + len(where.QueryValueFactories())
	if len(values) != wantLen || len(b.QueryValueFactories()) != wantLen {
		t.Fatalf("expected %d values, got %d", wantLen, len(values))
	}
	if values[0] != "p1" || values[1] != "n" {
		t.Fatalf("expected field values before predicate values, got %v", values)
	}
	outer := sql[:strings.Index(sql, "(SELECT")] + sql[strings.Index(sql, `AS "first_child"`):]
	for _, kw := range []string{"SELECT", " FROM ", "LEFT JOIN", " WHERE "} {
		if strings.Count(outer, kw) != 1 {
			t.Fatalf("expected exactly one %q in %s", kw, outer)
		}
	}
	if !(strings.Index(outer, "SELECT") < strings.Index(outer, " FROM ") &&
		strings.Index(outer, " FROM ") < strings.Index(outer, "LEFT JOIN") &&
		strings.Index(outer, "LEFT JOIN") < strings.Index(outer, " WHERE ")) {
		t.Fatalf("clauses out of order: %s", outer)
	}
}

func TestIncludeColumnFromEmptyBuilderFails(t *testing.T) {
	b := New("")
	b.SetFromTable("parents")
	if err := b.IncludeColumnFromQueryBuilder(New(""), "x"); !errors.Is(err, domain.ErrEmptySubquery) {
		t.Fatalf("expected empty sub-select error, got %v", err)
	}
	if len(b.QueryValueFactories()) != 0 || len(b.fields) != 0 {
		t.Fatalf("failed include must not add fields or values")
	}

	broken := New("")
	broken.SetWhereFromQueryBuilder(Where("t", "c").Eq(1))
	if err := b.IncludeColumnFromQueryBuilder(broken, "x"); !errors.Is(err, domain.ErrComposition) {
		t.Fatalf("expected composition error for unrenderable sub-select, got %v", err)
	}
	if len(b.QueryValueFactories()) != 0 {
		t.Fatalf("failed include must not add values")
	}
	if err := b.IncludeColumnFromQueryBuilder(nil, "x"); !errors.Is(err, domain.ErrEmptySubquery) {
		t.Fatalf("expected empty sub-select error for nil builder, got %v", err)
	}
	sub := New("")
	sub.SetFromTable("children")
	if err := b.IncludeColumnFromQueryBuilder(sub, ""); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected alias error, got %v", err)
	}
}

func TestIncludeFormulaValidation(t *testing.T) {
	b := New("")
	if err := b.IncludeFormulaByString("", "a"); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected error for empty formula")
	}
	if err := b.IncludeFormulaByString("COUNT(*)", ""); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected error for empty alias")
	}
}

func TestGroupByAndPrefix(t *testing.T) {
	b := New("test_")
	b.SetGroupByColumn("kind")
	if _, _, err := b.Build(); !errors.Is(err, domain.ErrUninitialized) {
		t.Fatalf("expected group-by without table to fail, got %v", err)
	}
	b.SetFromTable("children")
	if err := b.IncludeFormulaByString("COUNT(*)", "total"); err != nil {
		t.Fatalf("formula: %v", err)
	}
	b.LeftJoinTable("parents", "id", "children", "parent")
	sql, values, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := `SELECT COUNT(*) AS "total" FROM "test_children" LEFT JOIN "test_parents" ON "test_children"."parent" = "test_parents"."id" GROUP BY "test_children"."kind"`
	if sql != want {
		t.Fatalf("unexpected sql:\nwant %s\ngot  %s", want, sql)
	}
	if len(values) != 0 {
		t.Fatalf("expected no values, got %v", values)
	}
	if _, err := New("").GroupByColumn(); !errors.Is(err, domain.ErrUninitialized) {
		t.Fatalf("expected unset group-by error")
	}
}

func TestBuildDefaultsAndEmpty(t *testing.T) {
	sql, values, err := New("").Build()
	if err != nil || sql != "" || len(values) != 0 {
		t.Fatalf("expected empty statement, got %q %v %v", sql, values, err)
	}
	b := New("")
	b.SetFromTable("parents")
	sql, _, err = b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sql != `SELECT * FROM "parents"` {
		t.Fatalf("unexpected default select %s", sql)
	}
}

func TestValueFactoriesEvaluateAtBuild(t *testing.T) {
	current := "before"
	b := New("")
	b.SetFromTable("parents")
	b.SetWhereFromQueryBuilder(Where("parents", "id").EqFactory(func() any { return current }))
	factories := b.QueryValueFactories()
	current = "after"
	if got := factories[0](); got != "after" {
		t.Fatalf("expected deferred evaluation, got %v", got)
	}
	_, values, err := b.Build()
	if err != nil || values[0] != "after" {
		t.Fatalf("expected build-time value, got %v %v", values, err)
	}
}

func TestQuoting(t *testing.T) {
	if got := QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Fatalf("unexpected quoting %s", got)
	}
	if got := QuoteColumn("order", "select"); got != `"order"."select"` {
		t.Fatalf("unexpected column quoting %s", got)
	}
}
