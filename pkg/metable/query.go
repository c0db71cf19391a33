package metable

import (
	"fmt"
	"strings"

	"metastore/pkg/meta"
)

// Comparison operators accepted by the value scopes. The operator ends up
// interpolated into SQL by the backends, so anything outside this set is
// downgraded to equality rather than passed through.
var allowedOperators = map[string]struct{}{
	"=": {}, "<>": {}, "!=": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
}

// NormalizeOperator validates a comparison operator, downgrading anything
// unrecognized (or empty) to "=".
func NormalizeOperator(op string) string {
	op = strings.TrimSpace(op)
	if _, ok := allowedOperators[op]; ok {
		return op
	}
	return "="
}

// NormalizeDirection maps any spelling of ascending/descending onto exactly
// "asc" or "desc"; unrecognized input becomes "asc". Both order scopes share
// this rule.
func NormalizeDirection(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "desc") {
		return "desc"
	}
	return "asc"
}

// Scope is one restriction or ordering applied to an owner query. The set
// is closed: backends dispatch over the concrete types below.
type Scope interface {
	isScope()
}

// HasMetaScope keeps owners holding at least one of the keys.
type HasMetaScope struct {
	Keys []string
}

// HasAllKeysScope keeps owners holding every one of the keys, expressed as
// a distinct-key count comparison.
type HasAllKeysScope struct {
	Keys []string
}

// CompareScope compares the stored serialized string under Key against
// Value. With Numeric set, backends cast the stored string to a float and
// compare against NumericValue instead; without it, ordering operators use
// lexicographic string order.
type CompareScope struct {
	Key          string
	Operator     string
	Value        string
	Numeric      bool
	NumericValue float64
}

// InScope keeps owners whose serialized value under Key is among Values.
type InScope struct {
	Key    string
	Values []string
}

// OrderScope orders owners by the value stored under Key via a left join,
// optionally through a numeric cast. Owners lacking the key sort as absent
// (first ascending, last descending).
type OrderScope struct {
	Key       string
	Direction string
	Numeric   bool
}

func (HasMetaScope) isScope()    {}
func (HasAllKeysScope) isScope() {}
func (CompareScope) isScope()    {}
func (InScope) isScope()         {}
func (OrderScope) isScope()      {}

// Query collects scopes against the owners of one kind. SQL backends need
// the owner table bound via ForTable; the memory backend ignores it.
// Construction errors (unserializable comparison values) surface through
// Err and from scope execution.
type Query struct {
	ownerKind     string
	ownerTable    string
	ownerIDColumn string
	selectCols    []string
	registry      *meta.Registry
	scopes        []Scope
	err           error
}

// NewQuery starts an empty query over owners of the given kind.
func NewQuery(ownerKind string, reg *meta.Registry) *Query {
	return &Query{ownerKind: ownerKind, registry: reg, ownerIDColumn: "id"}
}

// ForTable binds the owner table and its id column for SQL execution.
func (q *Query) ForTable(table, idColumn string) *Query {
	q.ownerTable = table
	if idColumn != "" {
		q.ownerIDColumn = idColumn
	}
	return q
}

// Select overrides the compiled select list. Without it, backends select
// only the owner table's columns so joined meta columns cannot collide.
func (q *Query) Select(cols ...string) *Query {
	q.selectCols = cols
	return q
}

// WhereHasMeta keeps owners having at least one meta entry among the keys.
func (q *Query) WhereHasMeta(keys ...string) *Query {
	q.scopes = append(q.scopes, HasMetaScope{Keys: normalizeKeys(keys)})
	return q
}

// WhereHasMetaKeys keeps owners having a meta entry for every key.
func (q *Query) WhereHasMetaKeys(keys ...string) *Query {
	q.scopes = append(q.scopes, HasAllKeysScope{Keys: normalizeKeys(keys)})
	return q
}

// WhereMeta compares the raw serialized string under key against the
// serialized form of value. Ordering operators compare in lexicographic
// string order, not numeric order; use WhereMetaNumeric for the latter.
func (q *Query) WhereMeta(key, operator string, value any) *Query {
	raw, err := q.serialize(value)
	if err != nil {
		q.fail(err)
		return q
	}
	q.scopes = append(q.scopes, CompareScope{
		Key:      meta.NormalizeKey(key),
		Operator: NormalizeOperator(operator),
		Value:    raw,
	})
	return q
}

// WhereMetaNumeric casts the stored string to a float before comparing.
func (q *Query) WhereMetaNumeric(key, operator string, value float64) *Query {
	q.scopes = append(q.scopes, CompareScope{
		Key:          meta.NormalizeKey(key),
		Operator:     NormalizeOperator(operator),
		Numeric:      true,
		NumericValue: value,
	})
	return q
}

// WhereMetaIn keeps owners whose serialized value under key matches any of
// the serialized forms of values.
func (q *Query) WhereMetaIn(key string, values ...any) *Query {
	raws := make([]string, 0, len(values))
	for _, value := range values {
		raw, err := q.serialize(value)
		if err != nil {
			q.fail(err)
			return q
		}
		raws = append(raws, raw)
	}
	q.scopes = append(q.scopes, InScope{Key: meta.NormalizeKey(key), Values: raws})
	return q
}

// OrderByMeta orders owners by the stored string under key.
func (q *Query) OrderByMeta(key, direction string) *Query {
	q.scopes = append(q.scopes, OrderScope{
		Key:       meta.NormalizeKey(key),
		Direction: NormalizeDirection(direction),
	})
	return q
}

// OrderByMetaNumeric orders owners by the stored value cast to a float.
func (q *Query) OrderByMetaNumeric(key, direction string) *Query {
	q.scopes = append(q.scopes, OrderScope{
		Key:       meta.NormalizeKey(key),
		Direction: NormalizeDirection(direction),
		Numeric:   true,
	})
	return q
}

// OwnerKind returns the owner kind the query targets.
func (q *Query) OwnerKind() string { return q.ownerKind }

// OwnerTable returns the bound owner table, empty when unbound.
func (q *Query) OwnerTable() string { return q.ownerTable }

// OwnerIDColumn returns the owner table's id column.
func (q *Query) OwnerIDColumn() string { return q.ownerIDColumn }

// SelectColumns returns the explicit select list, nil when defaulted.
func (q *Query) SelectColumns() []string { return q.selectCols }

// Scopes returns the collected scopes in application order.
func (q *Query) Scopes() []Scope { return q.scopes }

// Err reports the first construction failure, if any.
func (q *Query) Err() error { return q.err }

func (q *Query) serialize(value any) (string, error) {
	h, err := q.registry.ResolveFor(value)
	if err != nil {
		return "", err
	}
	raw, err := h.Serialize(value)
	if err != nil {
		return "", fmt.Errorf("serialize scope value: %w", err)
	}
	return raw, nil
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, meta.NormalizeKey(key))
	}
	return out
}
