package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// Supported database/sql driver names.
const (
	DriverSQLite3  = "sqlite3" // mattn/go-sqlite3 (cgo)
	DriverSQLite   = "sqlite"  // modernc.org/sqlite (pure Go)
	DriverPostgres = "pgx"     // jackc/pgx stdlib
)

// MaxPageSize bounds id lists and page limits. It stays below SQLite's
// historical limit of 999 bound parameters per statement.
const MaxPageSize = 900

const (
	publicationsTable  = "publications"
	subscriptionsTable = "subscriptions"
)

// ErrSchemaMismatch is returned by Open when a required table or column is missing.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Config selects the database to open.
type Config struct {
	// Driver is one of DriverSQLite3, DriverSQLite or DriverPostgres.
	// Empty means DriverSQLite3.
	Driver string

	// DSN is a file path for the SQLite drivers and a connection URL for pgx.
	DSN string
}

// Store provides read-only access to publications and subscriptions.
// A Store is owned by one pipeline run; it is not a process-wide singleton.
type Store struct {
	db      *sql.DB
	driver  string
	dialect goqu.DialectWrapper
}

// Open connects to the database described by cfg and validates its schema.
//
// Postgres sessions run with default_transaction_read_only=on.
//
// SQLite databases are configured with:
//   - mode=ro (the file must already exist)
//   - query_only=ON
//   - 5-second busy timeout for lock contention
//   - a single connection, so one run owns one cursor at a time
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite3
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: empty database DSN", model.ErrInvalidArgument)
	}

	var db *sql.DB
	var dialect string
	switch driver {
	case DriverSQLite3, DriverSQLite:
		var err error
		db, err = sql.Open(driver, sqliteReadOnlyDSN(cfg.DSN))
		if err != nil {
			return nil, unavailable("open database", err)
		}
		dialect = "sqlite3"
	case DriverPostgres:
		connCfg, err := postgresReadOnlyConfig(cfg.DSN)
		if err != nil {
			return nil, err
		}
		db = stdlib.OpenDB(*connCfg)
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", model.ErrInvalidArgument, driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("connect to database", err)
	}

	s := &Store{db: db, driver: driver, dialect: goqu.Dialect(dialect)}

	if s.isSQLite() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, unavailable("apply pragmas", err)
		}
	}

	if err := s.validateSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// OpenPath opens a SQLite database file with the default driver.
func OpenPath(path string) (*Store, error) {
	return Open(Config{DSN: path})
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) isSQLite() bool {
	return s.driver == DriverSQLite3 || s.driver == DriverSQLite
}

func sqliteReadOnlyDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "mode=") {
			return path
		}
		if strings.Contains(path, "?") {
			return path + "&mode=ro"
		}
		return path + "?mode=ro"
	}
	return "file:" + path + "?mode=ro"
}

// postgresReadOnlyConfig parses dsn and forces read-only transactions for
// every session opened from it.
func postgresReadOnlyConfig(dsn string) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres DSN: %w", model.ErrInvalidArgument, err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	connCfg.RuntimeParams["default_transaction_read_only"] = "on"
	return connCfg, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA query_only = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// requiredColumns lists the columns each table must carry.
var requiredColumns = map[string][]string{
	publicationsTable:  slices.Concat(publicationColumnNames, payloadColumnNames),
	subscriptionsTable: subscriptionColumnNames,
}

// validateSchema checks column presence once, at the store boundary.
func (s *Store) validateSchema(ctx context.Context) error {
	for _, table := range []string{publicationsTable, subscriptionsTable} {
		cols, err := s.tableColumns(ctx, table)
		if err != nil {
			return err
		}

		var missing []string
		for _, want := range requiredColumns[table] {
			if !slices.Contains(cols, want) {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: table %s is missing columns %v", ErrSchemaMismatch, table, missing)
		}
	}
	return nil
}

// tableColumns returns the lower-cased column names of table.
func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	query, args, err := s.dialect.From(table).Where(goqu.L("1 = 0")).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build column probe: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %v", ErrSchemaMismatch, table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, unavailable("read columns of "+table, err)
	}
	for i, c := range cols {
		cols[i] = strings.ToLower(c)
	}
	return cols, nil
}

// unavailable wraps a driver error as model.ErrStoreUnavailable.
// The original error stays in the chain so context.Canceled remains matchable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
