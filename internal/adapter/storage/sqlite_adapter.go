package storage

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name: "sqlite",
	// SQLite has no row locks; a single connection serialises transactions.
	lockClause: "",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS items (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			price      TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id    INTEGER NOT NULL REFERENCES items (id),
			qty        INTEGER NOT NULL,
			type       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_item ON inventory (item_id)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			order_no   TEXT NOT NULL UNIQUE,
			item_id    INTEGER NOT NULL REFERENCES items (id),
			qty        INTEGER NOT NULL,
			price      TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_item ON orders (item_id)`,
	},
	isUniqueViolation: func(err error) bool {
		var liteErr *sqlite.Error
		if !errors.As(err, &liteErr) {
			return false
		}
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	},
	// Prices are stored as decimal text.
	sortColumn: func(col string) string {
		if strings.HasSuffix(col, "price") {
			return "CAST(" + col + " AS REAL)"
		}
		return col
	},
}

// NewSQLiteAdapter limits db to one connection, which is what makes the
// read-check-write of a guarded mutation atomic on SQLite.
func NewSQLiteAdapter(db *sql.DB) *SQLAdapter {
	db.SetMaxOpenConns(1)
	return &SQLAdapter{db: db, dialect: sqliteDialect}
}
