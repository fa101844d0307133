package archive

import (
	"bytes"
	"context"
	"datamapper/internal/infra/persistence/memory"
	"datamapper/pkg/domain"
	"errors"
	"testing"
)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore(memory.Options{})
	md := domain.EntityMetadata{TableName: "notes", IDProperty: "id"}
	md.AddField("id", "id")
	md.AddField("body", "body")
	if err := s.SetupEntityMetadata(md); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := s.Insert(context.Background(), "notes", domain.Entity{"id": "a", "body": "x"}, domain.Entity{"id": "b", "body": "y"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return s
}

func TestSnapshotRoundTripAcrossBackends(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	backends := map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewMockS3ForTests(),
	}
	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := seededStore(t)
			obj, err := SaveSnapshot(ctx, store, "snapshots/one.json", src, SaveOptions{})
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if obj.Size == 0 {
				t.Fatalf("expected non-empty snapshot object")
			}
			if _, err := SaveSnapshot(ctx, store, "snapshots/one.json", src, SaveOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected create-only save, got %v", err)
			}
			if _, err := SaveSnapshot(ctx, store, "snapshots/one.json", src, SaveOptions{Replace: true}); err != nil {
				t.Fatalf("replace: %v", err)
			}
			dst := memory.NewStore(memory.Options{})
			md := domain.EntityMetadata{TableName: "notes", IDProperty: "id"}
			md.AddField("id", "id")
			md.AddField("body", "body")
			if err := dst.SetupEntityMetadata(md); err != nil {
				t.Fatalf("setup dst: %v", err)
			}
			if err := LoadSnapshot(ctx, store, "snapshots/one.json", dst); err != nil {
				t.Fatalf("load: %v", err)
			}
			got, ok, err := dst.FindByID(ctx, "notes", "b")
			if err != nil || !ok || got["body"] != "y" {
				t.Fatalf("expected restored row, got %v %v %v", got, ok, err)
			}
			list, err := ListSnapshots(ctx, store, "snapshots/")
			if err != nil || len(list) != 1 {
				t.Fatalf("list: %+v %v", list, err)
			}
			if err := LoadSnapshot(ctx, store, "snapshots/missing.json", dst); !IsNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestLoadSnapshotRejectsUnknownFormat(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if _, err := store.Put(ctx, "bad.json", bytes.NewReader([]byte(`{"format":"other","state":{}}`)), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := LoadSnapshot(ctx, store, "bad.json", memory.NewStore(memory.Options{})); err == nil {
		t.Fatalf("expected format mismatch")
	}
}

func TestOpenFromEnv(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATAMAPPER_ARCHIVE_DRIVER", "memory")
	s, err := Open(ctx)
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v %v", s, err)
	}
	t.Setenv("DATAMAPPER_ARCHIVE_DRIVER", "")
	t.Setenv("DATAMAPPER_ARCHIVE_FS_ROOT", t.TempDir())
	s, err = Open(ctx)
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("default driver: %v %v", s, err)
	}
	t.Setenv("DATAMAPPER_ARCHIVE_DRIVER", "tape")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
