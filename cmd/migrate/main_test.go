package main

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubMigrators(t *testing.T, up, down func(*sql.DB, string) error) {
	t.Helper()
	origUp, origDown := migrateUp, migrateDown
	t.Cleanup(func() { migrateUp, migrateDown = origUp, origDown })
	migrateUp, migrateDown = up, down
}

func TestRun(t *testing.T) {
	var calls []string
	record := func(name string, err error) func(*sql.DB, string) error {
		return func(_ *sql.DB, dir string) error {
			calls = append(calls, name+":"+dir)
			return err
		}
	}

	t.Run("up", func(t *testing.T) {
		calls = nil
		stubMigrators(t, record("up", nil), record("down", nil))

		require.NoError(t, run(nil, "up", "./migrations"))
		assert.Equal(t, []string{"up:./migrations"}, calls)
	})

	t.Run("down", func(t *testing.T) {
		calls = nil
		stubMigrators(t, record("up", nil), record("down", nil))

		require.NoError(t, run(nil, "down", "./migrations"))
		assert.Equal(t, []string{"down:./migrations"}, calls)
	})

	t.Run("propagates migrator errors", func(t *testing.T) {
		stubMigrators(t, record("up", errors.New("dirty database")), record("down", nil))

		err := run(nil, "up", "./migrations")
		assert.EqualError(t, err, "dirty database")
	})

	t.Run("unknown mode", func(t *testing.T) {
		calls = nil
		stubMigrators(t, record("up", nil), record("down", nil))

		err := run(nil, "sideways", "./migrations")
		assert.ErrorContains(t, err, "unknown mode")
		assert.Empty(t, calls)
	})
}

// Every up migration needs a matching down so -mode down can always step back.
func TestMigrationFilesArePaired(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		base := filepath.Base(f)
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			ups[strings.TrimSuffix(base, ".up.sql")] = true
		case strings.HasSuffix(base, ".down.sql"):
			downs[strings.TrimSuffix(base, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file name %s", base)
		}

		content, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(content)), base)
	}

	names := make([]string, 0, len(ups))
	for n := range ups {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		assert.True(t, downs[n], "missing down migration for %s", n)
	}
	assert.Len(t, downs, len(ups))
}

// Order refs repeat for sessions sharing a prefix; only the session id is unique.
func TestOrdersSchemaKeysOnSession(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_init.up.sql"))
	require.NoError(t, err)

	cols := map[string]string{}
	inOrders := false
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CREATE TABLE IF NOT EXISTS orders "):
			inOrders = true
		case inOrders && strings.HasPrefix(line, ");"):
			inOrders = false
		case inOrders:
			if fields := strings.Fields(line); len(fields) > 1 {
				cols[fields[0]] = line
			}
		}
	}

	require.Contains(t, cols, "ref")
	assert.NotContains(t, cols["ref"], "UNIQUE")
	assert.Contains(t, cols["checkout_session_id"], "UNIQUE")
}
