package core

import (
	"context"
	"datamapper/internal/infra/persistence/memory"
	"datamapper/pkg/domain"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentedPersisterCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	p, err := NewInstrumentedPersister(memory.NewStore(memory.Options{}), reg)
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	md := domain.EntityMetadata{TableName: "notes", IDProperty: "id"}
	md.AddField("id", "id")
	if err := p.SetupEntityMetadata(md); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := p.Insert(ctx, "notes", domain.Entity{"id": "a"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := p.Insert(ctx, "notes", domain.Entity{"id": "a"}); err == nil {
		t.Fatalf("expected duplicate failure")
	}
	if _, _, err := p.FindByID(ctx, "notes", "a"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := testutil.ToFloat64(p.calls.WithLabelValues("insert", resultOK)); got != 1 {
		t.Fatalf("expected 1 successful insert, got %v", got)
	}
	if got := testutil.ToFloat64(p.calls.WithLabelValues("insert", resultError)); got != 1 {
		t.Fatalf("expected 1 failed insert, got %v", got)
	}
	if got := testutil.CollectAndCount(p.durations); got != 3 {
		t.Fatalf("expected histograms for setup, insert and find, got %d", got)
	}
	if p.Unwrap() == nil {
		t.Fatalf("expected wrapped persister")
	}
}

func TestInstrumentedPersisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewInstrumentedPersister(memory.NewStore(memory.Options{}), reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewInstrumentedPersister(memory.NewStore(memory.Options{}), reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.calls != second.calls {
		t.Fatalf("expected shared counter vector")
	}
	if _, err := NewInstrumentedPersister(memory.NewStore(memory.Options{}), nil); err != nil {
		t.Fatalf("nil registerer: %v", err)
	}
}
