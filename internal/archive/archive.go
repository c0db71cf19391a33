// Package archive selects and wraps the snapshot sink used to export meta
// collections for backup and audit. Implementations live under
// internal/infra/archive; only this package may import them.
package archive

import (
	"context"
	"fmt"
	"os"

	"metastore/internal/archive/core"
	fsarchive "metastore/internal/infra/archive/fs"
	memarchive "metastore/internal/infra/archive/memory"
	s3archive "metastore/internal/infra/archive/s3"
)

// Aliases re-export the sink contract so callers depend on this package
// only.
type (
	Driver     = core.Driver
	ObjectInfo = core.ObjectInfo
	Sink       = core.Sink
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound aliases the sink-level not-found sentinel.
var ErrNotFound = core.ErrNotFound

// Open selects a Sink implementation using environment variables.
//
//	METASTORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	METASTORE_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./metaarchive)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Sink, error) {
	driver := os.Getenv("METASTORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fsarchive.New(os.Getenv("METASTORE_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return s3archive.OpenFromEnv(ctx)
	case DriverMemory:
		return memarchive.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
