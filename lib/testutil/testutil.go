package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	configlibsql "apti-backend/lib/configutil/libsql"
	"apti-backend/lib/telemetry"
)

type ServiceParams struct {
	Name string
	// if unspecified, the database is left empty
	DbSchema string
	// if unspecified, it will use `:memory:`
	DbPath string
}

type ServiceResult struct {
	DB *sql.DB
}

// SetupService sets up test telemetry and a fresh sqlite database, both are
// torn down when the test ends.
func SetupService(t testing.TB, params ServiceParams) ServiceResult {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))
	t.Cleanup(cleanup)

	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	database, err := configlibsql.Struct{File: dbpath}.OpenDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	if params.DbSchema != "" {
		_, err = database.Exec(params.DbSchema)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			t.Fatal(err)
		}
	}

	return ServiceResult{DB: database}
}
