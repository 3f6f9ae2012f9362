package migration

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for i, e := range entries {
		b, err := fs.ReadFile(embeddedMigrations, "migrations/"+e.Name())
		require.NoError(t, err)
		content := string(b)
		assert.True(t, strings.HasPrefix(e.Name(), "0000"), e.Name())
		assert.Contains(t, content, "-- +goose Up", e.Name())
		assert.Contains(t, content, "-- +goose Down", e.Name())
		assert.Contains(t, content, Schema+".", e.Name())
		if i > 0 {
			assert.Less(t, entries[i-1].Name(), e.Name())
		}
	}
}

func TestPolicyNameUniqueOnlyAmongLivePolicies(t *testing.T) {
	b, err := fs.ReadFile(embeddedMigrations, "migrations/00002_create_policies.sql")
	require.NoError(t, err)
	content := string(b)

	assert.NotContains(t, content, "name              TEXT NOT NULL UNIQUE")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_live_name ON replication.policies (name)\n    WHERE status <> 'DELETED';")
}

func TestGooseAdapterLogs(t *testing.T) {
	var buf bytes.Buffer
	a := NewGooseAdapter(zerolog.New(&buf))
	a.Printf("OK   %s", "00001_create_clusters.sql")
	assert.Contains(t, buf.String(), "00001_create_clusters.sql")
	assert.Contains(t, buf.String(), `"component":"migration"`)
}
