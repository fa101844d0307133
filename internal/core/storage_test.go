package core

import (
	"context"
	"datamapper/internal/infra/persistence/memory"
	"datamapper/internal/infra/persistence/sqlstore"
	"datamapper/pkg/domain"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOpenPersisterDefaultsToMemory(t *testing.T) {
	t.Setenv("DATAMAPPER_PERSISTER_DRIVER", "")
	t.Setenv("DATAMAPPER_ID_MODE", "number")
	p, err := OpenPersister(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := p.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", p)
	}
}

func TestOpenPersisterSQLite(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATAMAPPER_PERSISTER_DRIVER", "sqlite")
	t.Setenv("DATAMAPPER_SQLITE_PATH", filepath.Join(t.TempDir(), "dm.db"))
	t.Setenv("DATAMAPPER_TABLE_PREFIX", "t_")
	p, err := OpenPersister(ctx)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = p.Destroy(ctx) }()
	if _, ok := p.(*sqlstore.Store); !ok {
		t.Fatalf("expected sql store, got %T", p)
	}
}

func TestOpenPersisterErrors(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATAMAPPER_PERSISTER_DRIVER", "cassandra")
	if _, err := OpenPersister(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	t.Setenv("DATAMAPPER_PERSISTER_DRIVER", "postgres")
	t.Setenv("DATAMAPPER_POSTGRES_DSN", "")
	if _, err := OpenPersister(ctx); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
	t.Setenv("DATAMAPPER_PERSISTER_DRIVER", "memory")
	t.Setenv("DATAMAPPER_ID_MODE", "roman")
	if _, err := OpenPersister(ctx); !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("expected bad id mode error, got %v", err)
	}
}

func TestOpenPersisterWithRegisterer(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATAMAPPER_PERSISTER_DRIVER", "memory")
	t.Setenv("DATAMAPPER_ID_MODE", "")
	reg := prometheus.NewRegistry()
	p, err := OpenPersister(ctx, WithRegisterer(reg))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ip, ok := p.(*InstrumentedPersister)
	if !ok {
		t.Fatalf("expected instrumented persister, got %T", p)
	}
	if _, ok := ip.Unwrap().(*memory.Store); !ok {
		t.Fatalf("expected memory store underneath, got %T", ip.Unwrap())
	}
	if n, err := p.Count(ctx, "missing"); err != nil || n != 0 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if err := p.Destroy(ctx); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := p.Count(ctx, "missing"); !errors.Is(err, domain.ErrDestroyed) {
		t.Fatalf("expected destroyed error, got %v", err)
	}
	if got := testutil.ToFloat64(ip.calls.WithLabelValues("count", resultOK)); got != 1 {
		t.Fatalf("count successes = %v", got)
	}
	if got := testutil.ToFloat64(ip.calls.WithLabelValues("count", resultError)); got != 1 {
		t.Fatalf("count errors = %v", got)
	}
	if got := testutil.ToFloat64(ip.calls.WithLabelValues("destroy", resultOK)); got != 1 {
		t.Fatalf("destroy calls = %v", got)
	}
	if n := testutil.CollectAndCount(reg, "datamapper_persister_operations_total"); n != 3 {
		t.Fatalf("registered series = %d", n)
	}
}
