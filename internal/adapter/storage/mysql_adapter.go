package storage

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var mysqlDialect = dialect{
	name: "mysql",
	// Guarded mutations lock the item row, so every writer for an item queues
	// behind the current one.
	lockClause: " FOR UPDATE",
	txOptions:  &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS items (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			name       VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
			price      DECIMAL(12, 2) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			UNIQUE KEY uk_items_name (name)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			item_id    BIGINT NOT NULL,
			qty        INT NOT NULL,
			type       CHAR(1) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			KEY idx_inventory_item (item_id),
			CONSTRAINT fk_inventory_item FOREIGN KEY (item_id) REFERENCES items (id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_no   VARCHAR(32) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
			item_id    BIGINT NOT NULL,
			qty        INT NOT NULL,
			price      DECIMAL(12, 2) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			UNIQUE KEY uk_orders_order_no (order_no),
			KEY idx_orders_item (item_id),
			CONSTRAINT fk_orders_item FOREIGN KEY (item_id) REFERENCES items (id)
		)`,
	},
	isUniqueViolation: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
	},
}

// NewMySQLAdapter expects a DSN opened with parseTime=true.
func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: mysqlDialect}
}
