package sqlitemigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestUpSection(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id TEXT);\n", UpSection(content))
	assert.Equal(t, "CREATE TABLE b (id TEXT);", UpSection("CREATE TABLE b (id TEXT);"))
}

func TestApplyRunsEachFileOnce(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := fstest.MapFS{
		"001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE items (id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;\n")},
		"002_seed.sql": {Data: []byte("-- +migrate Up\nINSERT INTO items (id) VALUES ('a');\n")},
		"README.md":    {Data: []byte("ignored")},
	}

	ctx := context.Background()
	require.NoError(t, Apply(ctx, db, migrations, "."))
	require.NoError(t, Apply(ctx, db, migrations, "."))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}
