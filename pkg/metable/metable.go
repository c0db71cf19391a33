package metable

import (
	"context"
	"fmt"
	"sort"

	"metastore/pkg/meta"
)

// MetaFactory constructs the concrete record persisted for an owner/key
// pair. Injected so callers can substitute their own record type without a
// process-global override.
type MetaFactory func(owner meta.OwnerRef, key string) *meta.Meta

// Option configures a Metable at attachment time.
type Option func(*Metable)

// WithMetaFactory overrides the record constructor used by SetMeta and
// SyncMeta.
func WithMetaFactory(f MetaFactory) Option {
	return func(m *Metable) {
		if f != nil {
			m.factory = f
		}
	}
}

// Metable binds an owner to its meta collection. The collection is loaded
// lazily on first access and every mutator keeps it coherent in the same
// call, so no reload is ever required after a write. A Metable is owned by
// a single goroutine; concurrent mutation needs external synchronization.
type Metable struct {
	owner    meta.OwnerRef
	relation Relation
	registry *meta.Registry
	factory  MetaFactory
	records  map[string]*meta.Meta
	loaded   bool
}

// Attach binds the owner to a relation and registry.
func Attach(owner meta.OwnerRef, rel Relation, reg *meta.Registry, opts ...Option) *Metable {
	m := &Metable{
		owner:    owner,
		relation: rel,
		registry: reg,
		factory:  meta.New,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Owner returns the bound owner reference.
func (m *Metable) Owner() meta.OwnerRef {
	return m.owner
}

func (m *Metable) load(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	recs, err := m.relation.Load(ctx, m.owner)
	if err != nil {
		return fmt.Errorf("load meta for %s:%s: %w", m.owner.Kind, m.owner.ID, err)
	}
	m.records = make(map[string]*meta.Meta, len(recs))
	for _, rec := range recs {
		m.records[meta.NormalizeKey(rec.Key)] = rec
	}
	m.loaded = true
	return nil
}

// SetMeta writes a value under the key, updating the existing record in
// place when one exists and creating it otherwise. The cached collection is
// updated in the same call.
func (m *Metable) SetMeta(ctx context.Context, key string, value any) error {
	if err := m.load(ctx); err != nil {
		return err
	}
	key = meta.NormalizeKey(key)
	if rec, ok := m.records[key]; ok {
		prevType, prevValue := rec.Type, rec.Value
		if err := rec.SetValue(m.registry, value); err != nil {
			return err
		}
		if err := m.relation.Save(ctx, rec); err != nil {
			rec.Type, rec.Value = prevType, prevValue
			return fmt.Errorf("save meta %q: %w", key, err)
		}
		return nil
	}
	rec := m.factory(m.owner, key)
	if err := rec.SetValue(m.registry, value); err != nil {
		return err
	}
	if err := m.relation.Create(ctx, rec); err != nil {
		return fmt.Errorf("create meta %q: %w", key, err)
	}
	m.records[key] = rec
	return nil
}

// GetMeta returns the decoded value under the key, or the supplied default
// when the key is absent. Missing keys never error.
func (m *Metable) GetMeta(ctx context.Context, key string, def any) (any, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	rec, ok := m.records[meta.NormalizeKey(key)]
	if !ok {
		return def, nil
	}
	return rec.DecodedValue(ctx, m.registry)
}

// HasMeta reports whether the key is present.
func (m *Metable) HasMeta(ctx context.Context, key string) (bool, error) {
	if err := m.load(ctx); err != nil {
		return false, err
	}
	_, ok := m.records[meta.NormalizeKey(key)]
	return ok, nil
}

// RemoveMeta deletes the record under the key and evicts it from the cache.
// Removing an absent key is a silent no-op.
func (m *Metable) RemoveMeta(ctx context.Context, key string) error {
	if err := m.load(ctx); err != nil {
		return err
	}
	key = meta.NormalizeKey(key)
	rec, ok := m.records[key]
	if !ok {
		return nil
	}
	if err := m.relation.Delete(ctx, rec); err != nil {
		return fmt.Errorf("delete meta %q: %w", key, err)
	}
	delete(m.records, key)
	return nil
}

// SyncMeta replaces the entire collection with the supplied mapping. This
// is a destructive full replace, not a merge: keys absent from the mapping
// are deleted. Backends implementing Replacer apply the swap atomically.
func (m *Metable) SyncMeta(ctx context.Context, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	recs := make([]*meta.Meta, 0, len(keys))
	next := make(map[string]*meta.Meta, len(keys))
	for _, key := range keys {
		rec := m.factory(m.owner, key)
		if err := rec.SetValue(m.registry, values[key]); err != nil {
			return fmt.Errorf("sync meta %q: %w", key, err)
		}
		recs = append(recs, rec)
		next[rec.Key] = rec
	}

	if rep, ok := m.relation.(Replacer); ok {
		if err := rep.ReplaceAll(ctx, m.owner, recs); err != nil {
			return fmt.Errorf("replace meta for %s:%s: %w", m.owner.Kind, m.owner.ID, err)
		}
	} else {
		if err := m.relation.DeleteAll(ctx, m.owner); err != nil {
			return fmt.Errorf("clear meta for %s:%s: %w", m.owner.Kind, m.owner.ID, err)
		}
		if len(recs) > 0 {
			if err := m.relation.InsertMany(ctx, recs); err != nil {
				return fmt.Errorf("insert meta for %s:%s: %w", m.owner.Kind, m.owner.ID, err)
			}
		}
	}
	m.records = next
	m.loaded = true
	return nil
}

// MetaRecord exposes the raw record under the key for direct manipulation.
func (m *Metable) MetaRecord(ctx context.Context, key string) (*meta.Meta, bool, error) {
	if err := m.load(ctx); err != nil {
		return nil, false, err
	}
	rec, ok := m.records[meta.NormalizeKey(key)]
	return rec, ok, nil
}

// Keys lists the present keys in sorted order.
func (m *Metable) Keys(ctx context.Context) ([]string, error) {
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.records))
	for key := range m.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
