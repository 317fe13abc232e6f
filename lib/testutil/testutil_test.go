package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupService(t *testing.T) {
	res := SetupService(t, ServiceParams{
		Name:     "testutil",
		DbSchema: "create table if not exists entry(id integer primary key, name text not null);",
	})
	_, err := res.DB.Exec("insert into entry(name) values ('관리비')")
	require.NoError(t, err)

	var name string
	require.NoError(t, res.DB.QueryRow("select name from entry").Scan(&name))
	require.Equal(t, "관리비", name)
}

func TestSetupServiceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.db")
	res := SetupService(t, ServiceParams{Name: "testutil", DbPath: path})
	require.NoError(t, res.DB.Ping())
	require.FileExists(t, path)
}
