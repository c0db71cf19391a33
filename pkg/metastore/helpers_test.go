package metastore

import (
	"context"

	"metastore/pkg/meta"
)

type stubEntity struct {
	kind string
	id   string
}

func (e stubEntity) EntityKind() string { return e.kind }

func (e stubEntity) EntityID() string { return e.id }

type stubResolver struct {
	entities map[string]meta.Entity
}

func (r stubResolver) ResolveEntity(_ context.Context, kind, id string) (meta.Entity, bool, error) {
	ent, ok := r.entities[kind+":"+id]
	return ent, ok, nil
}
