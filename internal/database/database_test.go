package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	sqlite := &DB{driver: DriverSQLite}
	pg := &DB{driver: DriverPostgres}

	q := "SELECT 1 WHERE a = $1 AND b = $2 OR c = $1"
	assert.Equal(t, "SELECT 1 WHERE a = ?1 AND b = ?2 OR c = ?1", sqlite.Rebind(q))
	assert.Equal(t, q, pg.Rebind(q))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_done\\x`, EscapeLike(`100% _done\x`))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestMigrateSQLiteIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	for _, table := range []string{"metadata", "user_files"} {
		var name string
		err := db.QueryRowContext(ctx, db.Rebind("SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1"), table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestSQLiteLowerFoldsUnicode(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var got string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT lower('ÜBERSICHT Ärger ÉTÉ')").Scan(&got))
	assert.Equal(t, "übersicht ärger été", got)

	var null sql.NullString
	require.NoError(t, db.QueryRowContext(ctx, "SELECT lower(NULL)").Scan(&null))
	assert.False(t, null.Valid)
}
