package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"metastore/pkg/metable"
)

// builder accumulates bind arguments and renders dialect placeholders in
// the order the final SQL text consumes them.
type builder struct {
	dialect Dialect
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) bindAll(vals []string) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, b.bind(v))
	}
	return strings.Join(parts, ", ")
}

// Compile renders the query as a SELECT over the bound owner table. The
// select list defaults to only the owner table's columns so joined meta
// columns cannot collide with owner columns.
func (s *Store) Compile(q *metable.Query) (string, []any, error) {
	cols := q.SelectColumns()
	if len(cols) == 0 {
		cols = []string{"o.*"}
	}
	return s.compile(q, strings.Join(cols, ", "))
}

// SelectOwnerIDs compiles the query down to the owner id column and
// executes it.
func (s *Store) SelectOwnerIDs(ctx context.Context, q *metable.Query) ([]string, error) {
	text, args, err := s.compile(q, "o."+q.OwnerIDColumn())
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("select owners: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return ids, nil
}

func (s *Store) compile(q *metable.Query, selectList string) (string, []any, error) {
	if err := q.Err(); err != nil {
		return "", nil, err
	}
	if q.OwnerTable() == "" {
		return "", nil, fmt.Errorf("owner table not bound; call Query.ForTable")
	}
	if !validIdent(q.OwnerTable()) || !validIdent(q.OwnerIDColumn()) {
		return "", nil, fmt.Errorf("invalid owner table %q or id column %q", q.OwnerTable(), q.OwnerIDColumn())
	}

	b := &builder{dialect: s.dialect}
	idCol := "o." + q.OwnerIDColumn()

	// Join fragments bind before where fragments, matching their position
	// in the final text; order scopes therefore compile first.
	var joins, orderings []string
	for _, scope := range q.Scopes() {
		sc, ok := scope.(metable.OrderScope)
		if !ok {
			continue
		}
		alias := fmt.Sprintf("mo%d", len(joins))
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.owner_kind = %s AND %s.owner_id = %s AND %s.key = %s",
			s.table, alias, alias, b.bind(q.OwnerKind()), alias, idCol, alias, b.bind(sc.Key)))
		expr := alias + ".value"
		if sc.Numeric {
			expr = s.dialect.NumericCast(expr)
		}
		// The LEFT JOIN leaves NULL for owners lacking the key; engines
		// disagree on default NULL placement (postgres puts NULLs last on
		// ASC), so pin it: missing keys sort first ascending, last
		// descending.
		dir := strings.ToUpper(sc.Direction)
		nulls := "NULLS FIRST"
		if dir == "DESC" {
			nulls = "NULLS LAST"
		}
		orderings = append(orderings, expr+" "+dir+" "+nulls)
	}

	var wheres []string
	for _, scope := range q.Scopes() {
		switch sc := scope.(type) {
		case metable.HasMetaScope:
			if len(sc.Keys) == 0 {
				wheres = append(wheres, "1 = 0")
				continue
			}
			wheres = append(wheres, fmt.Sprintf("EXISTS (SELECT 1 FROM %s mh WHERE mh.owner_kind = %s AND mh.owner_id = %s AND mh.key IN (%s))",
				s.table, b.bind(q.OwnerKind()), idCol, b.bindAll(sc.Keys)))
		case metable.HasAllKeysScope:
			if len(sc.Keys) == 0 {
				continue
			}
			wheres = append(wheres, fmt.Sprintf("(SELECT COUNT(DISTINCT mk.key) FROM %s mk WHERE mk.owner_kind = %s AND mk.owner_id = %s AND mk.key IN (%s)) = %s",
				s.table, b.bind(q.OwnerKind()), idCol, b.bindAll(sc.Keys), b.bind(len(sc.Keys))))
		case metable.CompareScope:
			valueExpr := "mc.value"
			var bound string
			if sc.Numeric {
				valueExpr = s.dialect.NumericCast(valueExpr)
				bound = b.bind(sc.NumericValue)
			} else {
				bound = b.bind(sc.Value)
			}
			wheres = append(wheres, fmt.Sprintf("EXISTS (SELECT 1 FROM %s mc WHERE mc.owner_kind = %s AND mc.owner_id = %s AND mc.key = %s AND %s %s %s)",
				s.table, b.bind(q.OwnerKind()), idCol, b.bind(sc.Key), valueExpr, sc.Operator, bound))
		case metable.InScope:
			if len(sc.Values) == 0 {
				wheres = append(wheres, "1 = 0")
				continue
			}
			wheres = append(wheres, fmt.Sprintf("EXISTS (SELECT 1 FROM %s mi WHERE mi.owner_kind = %s AND mi.owner_id = %s AND mi.key = %s AND mi.value IN (%s))",
				s.table, b.bind(q.OwnerKind()), idCol, b.bind(sc.Key), b.bindAll(sc.Values)))
		case metable.OrderScope:
			// handled in the join pass
		default:
			return "", nil, fmt.Errorf("unsupported scope %T", scope)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s o", selectList, q.OwnerTable())
	for _, join := range joins {
		sb.WriteString(" ")
		sb.WriteString(join)
	}
	if len(wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(wheres, " AND "))
	}
	if len(orderings) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderings, ", "))
	}
	// Deterministic tie-break keeps result order stable across engines.
	if len(orderings) > 0 {
		sb.WriteString(", " + idCol + " ASC")
	}
	return sb.String(), b.args, nil
}
