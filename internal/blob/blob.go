// Package blob is the stable import surface for artifact storage: it
// re-exports the core contract and selects a backend from the environment.
package blob

import (
	"context"
	"fmt"
	"os"

	"caseboard/internal/blob/core"
	fsstore "caseboard/internal/infra/blob/fs"
	memorystore "caseboard/internal/infra/blob/memory"
	s3store "caseboard/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// PutOptions configures an artifact write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored artifact metadata.
	Info = core.Info
	// Store is the backend contract.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem backend.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible backend.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test backend.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation a backend does not provide.
var ErrUnsupported = core.ErrUnsupported

// NewMemory returns an in-memory artifact store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem artifact store rooted at path.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// OpenDriver constructs the artifact store for an explicit driver choice.
// S3 settings always come from the environment (see the s3 backend).
func OpenDriver(ctx context.Context, driver Driver, fsRoot string) (Store, error) {
	switch driver {
	case DriverFilesystem, "":
		return NewFilesystem(fsRoot)
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// Open selects an artifact store from environment variables:
//
//	CASEBOARD_BLOB_DRIVER: fs|s3|memory (default fs)
//	CASEBOARD_BLOB_FS_ROOT: directory root when driver=fs (default ./exportdata)
func Open(ctx context.Context) (Store, error) {
	return OpenDriver(ctx, Driver(os.Getenv("CASEBOARD_BLOB_DRIVER")), os.Getenv("CASEBOARD_BLOB_FS_ROOT"))
}
