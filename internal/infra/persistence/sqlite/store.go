// Package sqlite provides the sqlite-backed meta store using the pure Go
// driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"metastore/internal/infra/persistence/sqlstore"
)

// Dialect is the sqlite flavor of the shared SQL store: positional `?`
// markers and REAL casts.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) NumericCast(expr string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", expr)
}

// Store is the sqlite-backed meta relation.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating when necessary) the database at path and
// ensures the meta schema. Parent directories are created on demand.
func NewStore(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if path == "" {
		path = "metastore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{
		Store: sqlstore.New(db, Dialect{}, sqlstore.WithLogger(log)),
		path:  path,
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.DB().Close() }
