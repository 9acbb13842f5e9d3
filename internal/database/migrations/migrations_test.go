package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	for _, dir := range []string{"postgres", "mysql"} {
		entries, err := fs.ReadDir(files, dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		names := map[string]bool{}
		for _, e := range entries {
			names[e.Name()] = true
		}
		for name := range names {
			if strings.HasSuffix(name, ".up.sql") {
				down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
				assert.True(t, names[down], "%s/%s has no down migration", dir, name)
			}
		}
	}
}

func TestDialectsShareVersions(t *testing.T) {
	pg, err := fs.ReadDir(files, "postgres")
	require.NoError(t, err)
	my, err := fs.ReadDir(files, "mysql")
	require.NoError(t, err)

	require.Len(t, my, len(pg))
	for i := range pg {
		assert.Equal(t, pg[i].Name(), my[i].Name())
	}
}

func TestSourceDir(t *testing.T) {
	dir, err := sourceDir("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", dir)

	_, err = sourceDir("sqlite3")
	assert.Error(t, err)
}
