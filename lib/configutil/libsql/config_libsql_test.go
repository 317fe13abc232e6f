package configlibsql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDBFile(t *testing.T) {
	config := Struct{File: filepath.Join(t.TempDir(), "history.db")}
	require.True(t, config.Enabled())

	db, err := config.OpenDB()
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("create table t (v integer)")
	require.NoError(t, err)
}

func TestOpenDBUnset(t *testing.T) {
	config := Struct{}
	require.False(t, config.Enabled())

	_, err := config.OpenDB()
	require.Error(t, err)
}
