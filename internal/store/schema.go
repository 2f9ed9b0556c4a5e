package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

var (
	quotedIdentifier = regexp.MustCompile(`"([^"]+)"`)
	plainIdentifier  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// TableSchema is one CREATE TABLE statement from the database catalog.
type TableSchema struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// Schema returns the CREATE TABLE statements of a SQLite database, ordered by
// table name, with quotes removed from identifiers that do not need them.
func (s *Store) Schema(ctx context.Context) ([]TableSchema, error) {
	if !s.isSQLite() {
		return nil, fmt.Errorf("%w: schema dump requires a SQLite database, have %s", model.ErrInvalidArgument, s.driver)
	}

	query, args, err := s.dialect.From("sqlite_master").
		Select(goqu.C("name"), goqu.C("sql")).
		Where(goqu.C("type").Eq("table"), goqu.C("sql").IsNotNull()).
		Order(goqu.C("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build schema query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query schema", err)
	}
	defer rows.Close()

	tables := []TableSchema{}
	for rows.Next() {
		var t TableSchema
		if err := rows.Scan(&t.Name, &t.SQL); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		t.SQL = CleanIdentifierQuotes(t.SQL)
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate schema", err)
	}

	return tables, nil
}

// CleanIdentifierQuotes strips double quotes around plain identifiers.
// Quoted names that contain spaces or symbols keep their quotes.
func CleanIdentifierQuotes(stmt string) string {
	cleaned := quotedIdentifier.ReplaceAllStringFunc(stmt, func(m string) string {
		ident := m[1 : len(m)-1]
		if plainIdentifier.MatchString(ident) {
			return ident
		}
		return m
	})
	return strings.TrimSpace(cleaned)
}

// IntegrityCheck runs PRAGMA integrity_check on a SQLite database.
// The returned slice is ["ok"] for a healthy database and lists problems otherwise.
func (s *Store) IntegrityCheck(ctx context.Context) ([]string, error) {
	if !s.isSQLite() {
		return nil, fmt.Errorf("%w: integrity check requires a SQLite database, have %s", model.ErrInvalidArgument, s.driver)
	}

	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, unavailable("integrity check", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan integrity result: %w", err)
		}
		results = append(results, line)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate integrity results", err)
	}

	return results, nil
}
