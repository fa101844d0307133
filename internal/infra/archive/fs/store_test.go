package fs

import (
	"bytes"
	"context"
	"datamapper/internal/archive/object"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "snapshots/one.json", bytes.NewReader([]byte("hello")), object.PutOptions{ContentType: "application/json", Metadata: map[string]string{"tables": "2"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/one.json" || info.Size != 5 || info.Checksum == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "snapshots/one.json", bytes.NewReader([]byte("x")), object.PutOptions{}); !errors.Is(err, object.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	got, rc, err := store.Get(ctx, "snapshots/one.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "hello" || got.Checksum != info.Checksum || got.Metadata["tables"] != "2" {
		t.Fatalf("unexpected get artifacts %+v %q", got, b)
	}
	if _, err := store.Put(ctx, "other.json", bytes.NewReader(nil), object.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "snapshots/")
	if err != nil || len(list) != 1 || list[0].Key != "snapshots/one.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key != "other.json" {
		t.Fatalf("expected sorted keys, got %+v", all)
	}
	ok, err := store.Delete(ctx, "snapshots/one.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "snapshots/one.json"); ok {
		t.Fatalf("expected missing key on second delete")
	}
	if _, _, err := store.Get(ctx, "snapshots/one.json"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSanitizeKeyErrors(t *testing.T) {
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestListCorruptSidecar(t *testing.T) {
	store := newTempStore(t)
	if err := os.WriteFile(filepath.Join(store.root, "bad.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected corrupt sidecar to fail listing")
	}
}
