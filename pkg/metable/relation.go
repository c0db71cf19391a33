// Package metable attaches a typed key/value meta collection to an owning
// record and translates meta-based filters and orderings into scopes a
// persistence backend can execute. The backing store is consumed through
// the Relation and Scoper contracts; implementations live under
// internal/infra/persistence.
package metable

import (
	"context"

	"metastore/pkg/meta"
)

// Relation is the minimal persistence surface the mixin depends on. Every
// mutation is synchronous; durability and row-level locking belong to the
// implementation.
type Relation interface {
	Load(ctx context.Context, owner meta.OwnerRef) ([]*meta.Meta, error)
	Create(ctx context.Context, rec *meta.Meta) error
	Save(ctx context.Context, rec *meta.Meta) error
	Delete(ctx context.Context, rec *meta.Meta) error
	DeleteAll(ctx context.Context, owner meta.OwnerRef) error
	InsertMany(ctx context.Context, recs []*meta.Meta) error
}

// Replacer is an optional Relation upgrade: backends that can replace an
// owner's collection atomically implement it, and SyncMeta prefers it over
// the bare delete-then-insert sequence.
type Replacer interface {
	ReplaceAll(ctx context.Context, owner meta.OwnerRef, recs []*meta.Meta) error
}

// Scoper executes query scopes against a backend and returns the matching
// owner ids in scope order.
type Scoper interface {
	SelectOwnerIDs(ctx context.Context, q *Query) ([]string, error)
}
