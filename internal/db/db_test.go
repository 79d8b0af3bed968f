package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase("mysql", "whatever")
	assert.ErrorContains(t, err, "unsupported")
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	database, err := NewDatabase(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.AutoMigrate())
	require.NoError(t, database.AutoMigrate())

	_, err = database.Conn.Exec(`INSERT INTO actor_storage (ns, item_key, item_value) VALUES ('n', 'k', '1')`)
	require.NoError(t, err)
	_, err = database.Conn.Exec(`INSERT INTO actor_storage (ns, item_key, item_value) VALUES ('n', 'k', '2')`)
	assert.Error(t, err, "(ns, item_key) is the primary key")
}
