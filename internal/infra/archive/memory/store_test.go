package memory

import (
	"bytes"
	"context"
	"datamapper/internal/archive/object"
	"errors"
	"io"
	"testing"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != object.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	meta := map[string]string{"k": "v"}
	info, err := s.Put(ctx, "snap/a.json", bytes.NewReader([]byte("{}")), object.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["k"] = "changed"
	if info.Size != 2 || info.Checksum == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "snap/a.json", bytes.NewReader(nil), object.PutOptions{}); !errors.Is(err, object.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	got, rc, err := s.Get(ctx, "snap/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "{}" || got.Metadata["k"] != "v" {
		t.Fatalf("unexpected object %+v %q", got, b)
	}
	if _, err := s.Put(ctx, "other/b.json", bytes.NewReader(nil), object.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, _ := s.List(ctx, "snap/")
	if len(list) != 1 || list[0].Key != "snap/a.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "snap/a.json"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := s.Delete(ctx, "snap/a.json"); ok {
		t.Fatalf("expected second delete to report missing key")
	}
	if _, _, err := s.Get(ctx, "snap/a.json"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), object.PutOptions{}); err == nil {
		t.Fatalf("expected empty key rejection")
	}
}
