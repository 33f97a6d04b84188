package store

import (
	"database/sql"

	duckdbDriver "github.com/marcboeker/go-duckdb"
)

// openDB opens a DuckDB database at path, or an in-memory database when
// path is "" or ":memory:".
func openDB(path string) (*sql.DB, error) {
	dsn := path
	connector, err := duckdbDriver.NewConnector(dsn, nil)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}
