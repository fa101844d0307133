package query

import (
	"reflect"
	"testing"
)

func TestConditionRendering(t *testing.T) {
	cases := []struct {
		name   string
		cond   *Condition
		sql    string
		values []any
	}{
		{"eq", Where("t", "a").Eq(1), `"t"."a" = ?`, []any{1}},
		{"neq", Where("t", "a").Neq(1), `"t"."a" <> ?`, []any{1}},
		{"gte lte", Where("t", "a").Gte(1).And(Where("t", "a").Lte(5)), `("t"."a" >= ? AND "t"."a" <= ?)`, []any{1, 5}},
		{"lt", Where("t", "a").Lt(2), `"t"."a" < ?`, []any{2}},
		{"unqualified", Where("", "a").IsNull(), `"a" IS NULL`, []any{}},
		{"in empty", Where("t", "a").In(), `1 = 0`, []any{}},
		{"not or", Where("t", "a").Eq("x").Or(Where("t", "b").Eq("y")).Not(), `NOT (("t"."a" = ? OR "t"."b" = ?))`, []any{"x", "y"}},
		{"unset", Where("t", "a"), ``, []any{}},
	}
	for _, tc := range cases {
		if got := tc.cond.BuildQueryString(); got != tc.sql {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.sql)
		}
		if got := tc.cond.BuildQueryValues(); !reflect.DeepEqual(got, tc.values) {
			t.Fatalf("%s: got values %v want %v", tc.name, got, tc.values)
		}
	}
}

func TestNilConditionIsEmpty(t *testing.T) {
	var c *Condition
	if c.BuildQueryString() != "" || len(c.QueryValueFactories()) != 0 {
		t.Fatalf("expected nil condition to render nothing")
	}
}

func TestOperatorsLeaveReceiverUntouched(t *testing.T) {
	rank := Where("t", "rank")
	eq := rank.Eq(1)
	gt := rank.Gt(5)
	in := rank.In(2, 3)
	null := rank.IsNull()
	byFactory := rank.EqFactory(func() any { return 9 })
	cases := []struct {
		cond   *Condition
		sql    string
		values []any
	}{
		{eq, `"t"."rank" = ?`, []any{1}},
		{gt, `"t"."rank" > ?`, []any{5}},
		{in, `"t"."rank" IN (?, ?)`, []any{2, 3}},
		{null, `"t"."rank" IS NULL`, []any{}},
		{byFactory, `"t"."rank" = ?`, []any{9}},
		{rank, ``, []any{}},
		{eq.Or(gt), `("t"."rank" = ? OR "t"."rank" > ?)`, []any{1, 5}},
	}
	for i, tc := range cases {
		if got := tc.cond.BuildQueryString(); got != tc.sql {
			t.Fatalf("case %d: got %q want %q", i, got, tc.sql)
		}
		if got := tc.cond.BuildQueryValues(); !reflect.DeepEqual(got, tc.values) {
			t.Fatalf("case %d: got values %v want %v", i, got, tc.values)
		}
	}
}
