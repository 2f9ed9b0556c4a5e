// Package store provides read-only access to the SmartCampus evaluation
// database: the publications table (sensor events with their precomputed
// match bitmask) and the subscriptions table (standing queries).
//
// # Read-only contract
//
// Nothing in this package writes. SQLite databases are opened with
// mode=ro and PRAGMA query_only; Postgres sessions only ever issue SELECTs.
// Every read is idempotent, so a failed request can be retried whole.
//
// # Drivers
//
//   - sqlite3: github.com/mattn/go-sqlite3 (default)
//   - sqlite:  modernc.org/sqlite (pure Go, no cgo)
//   - pgx:     github.com/jackc/pgx/v5/stdlib
//
// Queries are built with goqu so the same code path serves both dialects.
//
// # Bounded reads
//
// No method returns an unbounded result set. Publications and subscriptions
// are read either by explicit id lists or by keyset pages
// (WHERE id > ? ORDER BY id LIMIT ?), so callers control peak memory.
//
// # Column validation
//
// Open checks once that both tables expose every column the record types
// need. Row scanners then use fixed column positions.
package store
