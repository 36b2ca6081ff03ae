package repository

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteDriverName is the database/sql driver used for SQLite stores. Every
// connection it opens has a casefold() SQL function, since SQLite's own
// LOWER only folds ASCII.
const SQLiteDriverName = "sqlite3_casefold"

var registerSQLite sync.Once

// SQLiteDialector opens dsn through SQLiteDriverName.
func SQLiteDialector(dsn string) gorm.Dialector {
	registerSQLite.Do(func() {
		sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("casefold", casefold, true)
			},
		})
	})

	return sqlite.New(sqlite.Config{
		DriverName: SQLiteDriverName,
		DSN:        dsn,
	})
}

// casefold builds a Caser per call; a Caser is not safe for concurrent use.
func casefold(s string) string {
	return cases.Fold().String(s)
}
