// Package archive stores and restores snapshots of the in-memory persister.
// Callers depend on the Store interface; concrete backends live under
// internal/infra/archive and are reached only through this package.
package archive

import (
	"context"
	"datamapper/internal/archive/object"
	archivefs "datamapper/internal/infra/archive/fs"
	archivememory "datamapper/internal/infra/archive/memory"
	archives3 "datamapper/internal/infra/archive/s3"
	"fmt"
	"os"
)

type (
	// Store is the object store snapshots are written to.
	Store = object.Store
	// Object describes one stored snapshot.
	Object = object.Object
	// Driver identifies a backend.
	Driver = object.Driver
	// PutOptions specifies optional parameters for Put.
	PutOptions = object.PutOptions
	// S3Config configures the S3 backend.
	S3Config = archives3.Config
)

const (
	DriverFilesystem = object.DriverFilesystem
	DriverS3         = object.DriverS3
	DriverMemory     = object.DriverMemory
)

var (
	ErrExists   = object.ErrExists
	ErrNotFound = object.ErrNotFound
)

// Open selects a Store implementation using environment variables.
//
//	DATAMAPPER_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	DATAMAPPER_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./archive)
//	(S3 specific variables documented in internal/infra/archive/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("DATAMAPPER_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("DATAMAPPER_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return archives3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return archivefs.New(root)
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return archivememory.New() }

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return archives3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return archives3.NewMockForTests() }
