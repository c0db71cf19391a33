// Package core holds the archive sink contract shared by the facade and
// the infra-backed implementations, keeping the dependency edges acyclic.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver names a sink implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ErrNotFound indicates no object exists under the requested key.
var ErrNotFound = errors.New("archive: object not found")

// ObjectInfo describes a stored snapshot object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Sink stores opaque snapshot documents by key. Put overwrites: re-exports
// of the same owner replace the prior object.
type Sink interface {
	Driver() Driver
	Put(ctx context.Context, key string, data []byte) (ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
