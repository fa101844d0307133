// Package memory implements an in-memory archive store for tests.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"datamapper/internal/archive/object"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	info object.Object
	data []byte
}

// Store implements object.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
}

// New returns an empty in-memory archive store.
func New() *Store { return &Store{objs: make(map[string]entry)} }

// Driver returns the archive driver identifier.
func (s *Store) Driver() object.Driver { return object.DriverMemory }

// Put stores a new object; errors if key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts object.PutOptions) (object.Object, error) {
	if strings.TrimSpace(key) == "" {
		return object.Object{}, fmt.Errorf("empty key")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return object.Object{}, fmt.Errorf("%w: %s", object.ErrExists, key)
	}
	sum := sha256.Sum256(b)
	info := object.Object{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		Checksum:     hex.EncodeToString(sum[:]),
		Metadata:     object.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objs[key] = entry{info: info, data: b}
	return info, nil
}

// Get returns object metadata and a reader over a private copy of its content.
func (s *Store) Get(_ context.Context, key string) (object.Object, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return object.Object{}, nil, fmt.Errorf("%w: %s", object.ErrNotFound, key)
	}
	info := obj.info
	info.Metadata = object.CloneMetadata(info.Metadata)
	return info, io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Delete removes the object returning true if it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

// List returns all objects matching prefix.
func (s *Store) List(_ context.Context, prefix string) ([]object.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]object.Object, 0, len(s.objs))
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			info := v.info
			info.Metadata = object.CloneMetadata(info.Metadata)
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
