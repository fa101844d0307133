package archive

import (
	"bytes"
	"context"
	"datamapper/internal/infra/persistence/memory"
	"datamapper/pkg/domain"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// SnapshotFormat tags the envelope written by SaveSnapshot.
const SnapshotFormat = "datamapper.snapshot/v1"

const contentType = "application/json"

// StateExporter is satisfied by *memory.Store.
type StateExporter interface {
	ExportState() memory.Snapshot
}

// StateImporter is satisfied by *memory.Store.
type StateImporter interface {
	ImportState(memory.Snapshot) error
}

type envelope struct {
	Format string          `json:"format"`
	State  memory.Snapshot `json:"state"`
}

// SaveOptions tunes SaveSnapshot.
type SaveOptions struct {
	// Replace deletes an existing object at the key first.
	Replace bool
}

// SaveSnapshot writes the exported state of src under key.
func SaveSnapshot(ctx context.Context, store Store, key string, src StateExporter, opts SaveOptions) (Object, error) {
	state := src.ExportState()
	payload, err := json.Marshal(envelope{Format: SnapshotFormat, State: state})
	if err != nil {
		return Object{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if opts.Replace {
		if _, err := store.Delete(ctx, key); err != nil {
			return Object{}, fmt.Errorf("replace snapshot %s: %w", key, err)
		}
	}
	rows := 0
	for _, items := range state.Tables {
		rows += len(items)
	}
	obj, err := store.Put(ctx, key, bytes.NewReader(payload), PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"format": SnapshotFormat,
			"tables": strconv.Itoa(len(state.Tables)),
			"rows":   strconv.Itoa(rows),
		},
	})
	if err != nil {
		return Object{}, fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return obj, nil
}

// LoadSnapshot reads the snapshot under key and imports it into dst,
// replacing its contents.
func LoadSnapshot(ctx context.Context, store Store, key string, dst StateImporter) error {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var env envelope
	dec := json.NewDecoder(rc)
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	for _, items := range env.State.Tables {
		for i := range items {
			items[i].ID = domain.ExactNumbers(items[i].ID)
			items[i].Value = domain.ExactNumbers(items[i].Value).(domain.Entity)
		}
	}
	if env.Format != SnapshotFormat {
		return fmt.Errorf("snapshot %s has format %q, want %q", key, env.Format, SnapshotFormat)
	}
	if err := dst.ImportState(env.State); err != nil {
		return fmt.Errorf("import snapshot %s: %w", key, err)
	}
	return nil
}

// ListSnapshots returns the snapshots stored under prefix.
func ListSnapshots(ctx context.Context, store Store, prefix string) ([]Object, error) {
	objs, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return objs, nil
}

// IsNotFound reports whether err means the snapshot key is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
