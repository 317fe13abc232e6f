package db

import (
	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// BillingTuples is the json encoding of the billing column of energy_type,
// every tuple is a [label, value] pair.
type BillingTuples [][2]string
