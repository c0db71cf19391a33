// Package sqlstore implements the meta relation and scope execution over
// database/sql. It is dialect-parameterized; the sqlite and postgres
// packages wrap it with a concrete driver and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"metastore/pkg/meta"
	"metastore/pkg/metable"
)

// Compile-time contract assertions.
var (
	_ metable.Relation = (*Store)(nil)
	_ metable.Replacer = (*Store)(nil)
	_ metable.Scoper   = (*Store)(nil)
)

// Dialect captures the few points where sqlite and postgres SQL diverge.
type Dialect interface {
	Name() string
	// Placeholder renders the n-th (1-based) bind marker.
	Placeholder(n int) string
	// NumericCast wraps a column expression in the dialect's float cast.
	NumericCast(expr string) string
}

const defaultTable = "meta"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdent guards the identifiers interpolated into compiled SQL (table
// and column names arrive from callers, not from storage).
func validIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Store persists meta records in a single table keyed by
// (owner_kind, owner_id, key).
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	log     zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the meta table name.
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New wraps an open database handle. Call EnsureSchema before first use.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, table: defaultTable, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema creates the meta table when absent. The DDL is common to
// both supported dialects.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !validIdent(s.table) {
		return fmt.Errorf("invalid meta table name %q", s.table)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		owner_kind TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		key TEXT NOT NULL,
		type TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (owner_kind, owner_id, key)
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s table: %w", s.table, err)
	}
	s.log.Debug().Str("table", s.table).Str("dialect", s.dialect.Name()).Msg("meta schema ensured")
	return nil
}

func (s *Store) ph(n int) string { return s.dialect.Placeholder(n) }

// Load returns the owner's records sorted by key.
func (s *Store) Load(ctx context.Context, owner meta.OwnerRef) ([]*meta.Meta, error) {
	q := fmt.Sprintf(`SELECT key, type, value FROM %s WHERE owner_kind = %s AND owner_id = %s ORDER BY key`,
		s.table, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, q, owner.Kind, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("select meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*meta.Meta
	for rows.Next() {
		rec := &meta.Meta{Owner: owner}
		if err := rows.Scan(&rec.Key, &rec.Type, &rec.Value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	return recs, nil
}

// Create inserts a new record; a key collision surfaces as a constraint
// violation from the driver.
func (s *Store) Create(ctx context.Context, rec *meta.Meta) error {
	q := fmt.Sprintf(`INSERT INTO %s (owner_kind, owner_id, key, type, value) VALUES (%s, %s, %s, %s, %s)`,
		s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	if _, err := s.db.ExecContext(ctx, q, rec.Owner.Kind, rec.Owner.ID, rec.Key, string(rec.Type), rec.Value); err != nil {
		return fmt.Errorf("insert meta %q: %w", rec.Key, err)
	}
	return nil
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, rec *meta.Meta) error {
	q := fmt.Sprintf(`INSERT INTO %s (owner_kind, owner_id, key, type, value) VALUES (%s, %s, %s, %s, %s)
		ON CONFLICT (owner_kind, owner_id, key) DO UPDATE SET type = excluded.type, value = excluded.value`,
		s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	if _, err := s.db.ExecContext(ctx, q, rec.Owner.Kind, rec.Owner.ID, rec.Key, string(rec.Type), rec.Value); err != nil {
		return fmt.Errorf("upsert meta %q: %w", rec.Key, err)
	}
	return nil
}

// Delete removes the record; absent rows delete to a no-op.
func (s *Store) Delete(ctx context.Context, rec *meta.Meta) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE owner_kind = %s AND owner_id = %s AND key = %s`,
		s.table, s.ph(1), s.ph(2), s.ph(3))
	if _, err := s.db.ExecContext(ctx, q, rec.Owner.Kind, rec.Owner.ID, rec.Key); err != nil {
		return fmt.Errorf("delete meta %q: %w", rec.Key, err)
	}
	return nil
}

// DeleteAll removes every record for the owner.
func (s *Store) DeleteAll(ctx context.Context, owner meta.OwnerRef) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE owner_kind = %s AND owner_id = %s`, s.table, s.ph(1), s.ph(2))
	if _, err := s.db.ExecContext(ctx, q, owner.Kind, owner.ID); err != nil {
		return fmt.Errorf("delete meta for %s:%s: %w", owner.Kind, owner.ID, err)
	}
	return nil
}

// InsertMany bulk-inserts records inside one transaction.
func (s *Store) InsertMany(ctx context.Context, recs []*meta.Meta) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := insertAll(ctx, tx, s, recs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// ReplaceAll swaps the owner's collection inside one transaction, closing
// the empty-state window a bare delete-then-insert would expose.
func (s *Store) ReplaceAll(ctx context.Context, owner meta.OwnerRef, recs []*meta.Meta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	del := fmt.Sprintf(`DELETE FROM %s WHERE owner_kind = %s AND owner_id = %s`, s.table, s.ph(1), s.ph(2))
	if _, err := tx.ExecContext(ctx, del, owner.Kind, owner.ID); err != nil {
		return fmt.Errorf("clear meta for %s:%s: %w", owner.Kind, owner.ID, err)
	}
	if err := insertAll(ctx, tx, s, recs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func insertAll(ctx context.Context, tx *sql.Tx, s *Store, recs []*meta.Meta) error {
	ins := fmt.Sprintf(`INSERT INTO %s (owner_kind, owner_id, key, type, value) VALUES (%s, %s, %s, %s, %s)`,
		s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, ins, rec.Owner.Kind, rec.Owner.ID, rec.Key, string(rec.Type), rec.Value); err != nil {
			return fmt.Errorf("insert meta %q: %w", rec.Key, err)
		}
	}
	return nil
}
