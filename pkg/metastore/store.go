// Package metastore is the public entry point: it selects a persistence
// backend, wires the handler registry, metrics and logging, and hands out
// Metable bindings and owner queries. Only this package (and the archive
// facade) imports the infra-backed implementations; everything else
// depends on the pkg/metable contracts.
package metastore

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"metastore/internal/infra/persistence/memory"
	"metastore/internal/infra/persistence/postgres"
	"metastore/internal/infra/persistence/sqlite"
	"metastore/internal/logger"
	"metastore/internal/metrics"
	"metastore/pkg/meta"
	"metastore/pkg/metable"
)

// Driver names a persistence backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config holds explicit construction parameters. OpenFromEnv builds one
// from process environment.
type Config struct {
	Driver      Driver
	SQLitePath  string // driver=sqlite; default metastore.db
	PostgresDSN string // driver=postgres; default localhost

	// Resolver backs the model and collection handlers; may be nil when
	// entity-typed values are not stored.
	Resolver meta.EntityResolver

	// Logger defaults to a disabled logger when left zero-valued.
	Logger zerolog.Logger

	// Metrics enables Prometheus instrumentation of the relation when a
	// registerer is supplied.
	Metrics prometheus.Registerer
}

// Store bundles a relation, scope executor and handler registry for one
// backend.
type Store struct {
	driver   Driver
	relation metable.Relation
	scoper   metable.Scoper
	registry *meta.Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger
	closer   func() error
}

// Open constructs a Store from explicit configuration.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}
	s := &Store{driver: driver, log: cfg.Logger}

	switch driver {
	case DriverMemory:
		ms := memory.NewStore()
		s.relation, s.scoper = ms, ms
	case DriverSQLite:
		st, err := sqlite.NewStore(ctx, cfg.SQLitePath, cfg.Logger)
		if err != nil {
			return nil, err
		}
		s.relation, s.scoper, s.closer = st, st, st.Close
	case DriverPostgres:
		st, err := postgres.NewStore(ctx, cfg.PostgresDSN, cfg.Logger)
		if err != nil {
			return nil, err
		}
		s.relation, s.scoper, s.closer = st, st, st.Close
	default:
		return nil, fmt.Errorf("unknown metastore driver %s", driver)
	}

	s.registry = meta.NewRegistry(cfg.Resolver)
	if cfg.Metrics != nil {
		s.metrics = metrics.New(cfg.Metrics)
		s.relation = newInstrumentedRelation(s.relation, s.metrics, cfg.Logger)
	}
	return s, nil
}

// OpenFromEnv selects a backend from environment variables:
//
//	METASTORE_DRIVER: memory|sqlite|postgres (default memory)
//	METASTORE_SQLITE_PATH: database path when driver=sqlite
//	METASTORE_POSTGRES_DSN: connection string when driver=postgres
//	METASTORE_LOG_LEVEL: debug|info|warn|error (default info)
func OpenFromEnv(ctx context.Context, resolver meta.EntityResolver) (*Store, error) {
	cfg := Config{
		Driver:      Driver(os.Getenv("METASTORE_DRIVER")),
		SQLitePath:  os.Getenv("METASTORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("METASTORE_POSTGRES_DSN"),
		Resolver:    resolver,
		Logger:      logger.New(logger.Config{Level: os.Getenv("METASTORE_LOG_LEVEL")}),
	}
	return Open(ctx, cfg)
}

// Driver reports the active backend.
func (s *Store) Driver() Driver { return s.driver }

// Registry exposes the handler registry shared by all attachments.
func (s *Store) Registry() *meta.Registry { return s.registry }

// Relation exposes the (possibly instrumented) relation.
func (s *Store) Relation() metable.Relation { return s.relation }

// Attach binds an owner to its meta collection.
func (s *Store) Attach(owner meta.OwnerRef, opts ...metable.Option) *metable.Metable {
	return metable.Attach(owner, s.relation, s.registry, opts...)
}

// NewQuery starts a scope query over owners of the given kind.
func (s *Store) NewQuery(ownerKind string) *metable.Query {
	return metable.NewQuery(ownerKind, s.registry)
}

// SelectOwnerIDs executes a scope query against the backend.
func (s *Store) SelectOwnerIDs(ctx context.Context, q *metable.Query) ([]string, error) {
	if s.metrics != nil {
		s.metrics.ScopeQueriesTotal.Inc()
	}
	return s.scoper.SelectOwnerIDs(ctx, q)
}

// Close releases backend resources; the memory driver is a no-op.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
