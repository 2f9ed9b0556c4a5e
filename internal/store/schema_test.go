package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/testutil"
)

func TestCleanIdentifierQuotes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`CREATE TABLE "subscriptions" ("id" INTEGER)`, `CREATE TABLE subscriptions (id INTEGER)`},
		{`CREATE TABLE "odd name" ("x-y" TEXT, "ok" REAL)`, `CREATE TABLE "odd name" ("x-y" TEXT, ok REAL)`},
		{"  CREATE TABLE t (a)\n", "CREATE TABLE t (a)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanIdentifierQuotes(tt.in))
	}
}

func TestSchema(t *testing.T) {
	s := openFixture(t, testutil.NewFixture(t))

	tables, err := s.Schema(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "publications", tables[0].Name)
	assert.Equal(t, "subscriptions", tables[1].Name)
	assert.Contains(t, tables[0].SQL, "subscription_matches BLOB")
}

func TestIntegrityCheck(t *testing.T) {
	s := openFixture(t, testutil.NewFixture(t))

	res, err := s.IntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res)
}
