// Package memory provides an in-process meta relation and scope executor.
// It is the default driver and the reference semantics for the SQL
// backends: scope evaluation mirrors what the compiled SQL does, with the
// one documented difference that the owner universe is limited to owners
// currently holding at least one meta entry.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"metastore/pkg/meta"
	"metastore/pkg/metable"
)

// Compile-time contract assertions.
var (
	_ metable.Relation = (*Store)(nil)
	_ metable.Replacer = (*Store)(nil)
	_ metable.Scoper   = (*Store)(nil)
)

// Store keeps meta records in nested maps guarded by a single RWMutex.
// Records are cloned on the way in and out so callers never share state
// with the store.
type Store struct {
	mu    sync.RWMutex
	state map[meta.OwnerRef]map[string]*meta.Meta
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: make(map[meta.OwnerRef]map[string]*meta.Meta)}
}

func cloneRecord(rec *meta.Meta) *meta.Meta {
	cp := *rec
	return &cp
}

// Load returns the owner's records sorted by key.
func (s *Store) Load(_ context.Context, owner meta.OwnerRef) ([]*meta.Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey := s.state[owner]
	recs := make([]*meta.Meta, 0, len(byKey))
	for _, rec := range byKey {
		recs = append(recs, cloneRecord(rec))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

// Create inserts a new record, failing on a key collision the way a SQL
// primary key would.
func (s *Store) Create(_ context.Context, rec *meta.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.state[rec.Owner]
	if byKey == nil {
		byKey = make(map[string]*meta.Meta)
		s.state[rec.Owner] = byKey
	}
	if _, exists := byKey[rec.Key]; exists {
		return fmt.Errorf("meta %q already exists for %s:%s", rec.Key, rec.Owner.Kind, rec.Owner.ID)
	}
	byKey[rec.Key] = cloneRecord(rec)
	return nil
}

// Save upserts the record.
func (s *Store) Save(_ context.Context, rec *meta.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.state[rec.Owner]
	if byKey == nil {
		byKey = make(map[string]*meta.Meta)
		s.state[rec.Owner] = byKey
	}
	byKey[rec.Key] = cloneRecord(rec)
	return nil
}

// Delete removes the record; deleting an absent record is a no-op.
func (s *Store) Delete(_ context.Context, rec *meta.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.state[rec.Owner]
	if byKey == nil {
		return nil
	}
	delete(byKey, rec.Key)
	if len(byKey) == 0 {
		delete(s.state, rec.Owner)
	}
	return nil
}

// DeleteAll removes every record for the owner.
func (s *Store) DeleteAll(_ context.Context, owner meta.OwnerRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, owner)
	return nil
}

// InsertMany bulk-inserts records, failing on any key collision.
func (s *Store) InsertMany(_ context.Context, recs []*meta.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		byKey := s.state[rec.Owner]
		if byKey == nil {
			byKey = make(map[string]*meta.Meta)
			s.state[rec.Owner] = byKey
		}
		if _, exists := byKey[rec.Key]; exists {
			return fmt.Errorf("meta %q already exists for %s:%s", rec.Key, rec.Owner.Kind, rec.Owner.ID)
		}
		byKey[rec.Key] = cloneRecord(rec)
	}
	return nil
}

// ReplaceAll swaps the owner's collection under one lock acquisition, so
// readers never observe the empty intermediate state.
func (s *Store) ReplaceAll(_ context.Context, owner meta.OwnerRef, recs []*meta.Meta) error {
	next := make(map[string]*meta.Meta, len(recs))
	for _, rec := range recs {
		if rec.Owner != owner {
			return fmt.Errorf("meta %q belongs to %s:%s, not %s:%s", rec.Key, rec.Owner.Kind, rec.Owner.ID, owner.Kind, owner.ID)
		}
		next[rec.Key] = cloneRecord(rec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(next) == 0 {
		delete(s.state, owner)
		return nil
	}
	s.state[owner] = next
	return nil
}

type ownerRow struct {
	id    string
	metas map[string]*meta.Meta
}

// SelectOwnerIDs evaluates the query scopes over the owners of the query's
// kind. The base order is owner id ascending; order scopes are applied on
// top with a stable sort, owners lacking an ordered key sorting first
// ascending and last descending.
func (s *Store) SelectOwnerIDs(_ context.Context, q *metable.Query) ([]string, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows := make([]ownerRow, 0)
	for owner, byKey := range s.state {
		if owner.Kind != q.OwnerKind() {
			continue
		}
		metas := make(map[string]*meta.Meta, len(byKey))
		for key, rec := range byKey {
			metas[key] = cloneRecord(rec)
		}
		rows = append(rows, ownerRow{id: owner.ID, metas: metas})
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	var orders []metable.OrderScope
	for _, scope := range q.Scopes() {
		switch sc := scope.(type) {
		case metable.HasMetaScope:
			rows = filterRows(rows, func(r ownerRow) bool { return hasAnyKey(r, sc.Keys) })
		case metable.HasAllKeysScope:
			rows = filterRows(rows, func(r ownerRow) bool { return countKeys(r, sc.Keys) == len(sc.Keys) })
		case metable.CompareScope:
			rows = filterRows(rows, func(r ownerRow) bool { return compareMatches(r, sc) })
		case metable.InScope:
			rows = filterRows(rows, func(r ownerRow) bool { return inMatches(r, sc) })
		case metable.OrderScope:
			orders = append(orders, sc)
		default:
			return nil, fmt.Errorf("unsupported scope %T", scope)
		}
	}

	if len(orders) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, sc := range orders {
				if c := orderCompare(rows[i], rows[j], sc); c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.id)
	}
	return ids, nil
}

func filterRows(rows []ownerRow, keep func(ownerRow) bool) []ownerRow {
	out := rows[:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func hasAnyKey(r ownerRow, keys []string) bool {
	for _, key := range keys {
		if _, ok := r.metas[key]; ok {
			return true
		}
	}
	return false
}

func countKeys(r ownerRow, keys []string) int {
	n := 0
	for _, key := range keys {
		if _, ok := r.metas[key]; ok {
			n++
		}
	}
	return n
}

func compareMatches(r ownerRow, sc metable.CompareScope) bool {
	rec, ok := r.metas[sc.Key]
	if !ok {
		return false
	}
	if sc.Numeric {
		stored, err := strconv.ParseFloat(rec.Value, 64)
		if err != nil {
			// An unparseable payload never satisfies a numeric comparison.
			return false
		}
		switch {
		case stored < sc.NumericValue:
			return opMatches(sc.Operator, -1)
		case stored > sc.NumericValue:
			return opMatches(sc.Operator, 1)
		default:
			return opMatches(sc.Operator, 0)
		}
	}
	return opMatches(sc.Operator, strings.Compare(rec.Value, sc.Value))
}

func opMatches(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>", "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func inMatches(r ownerRow, sc metable.InScope) bool {
	rec, ok := r.metas[sc.Key]
	if !ok {
		return false
	}
	for _, v := range sc.Values {
		if rec.Value == v {
			return true
		}
	}
	return false
}

// orderCompare returns a three-way ordering of two rows under one order
// scope, already adjusted for direction.
func orderCompare(a, b ownerRow, sc metable.OrderScope) int {
	av, aok := orderValue(a, sc)
	bv, bok := orderValue(b, sc)
	c := 0
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		c = -1
	case !bok:
		c = 1
	case sc.Numeric:
		af, bf := av.(float64), bv.(float64)
		if af < bf {
			c = -1
		} else if af > bf {
			c = 1
		}
	default:
		c = strings.Compare(av.(string), bv.(string))
	}
	if sc.Direction == "desc" {
		c = -c
	}
	return c
}

func orderValue(r ownerRow, sc metable.OrderScope) (any, bool) {
	rec, ok := r.metas[sc.Key]
	if !ok {
		return nil, false
	}
	if sc.Numeric {
		f, err := strconv.ParseFloat(rec.Value, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	return rec.Value, true
}
