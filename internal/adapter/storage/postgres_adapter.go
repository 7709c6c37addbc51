package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL UNIQUE,
		price      NUMERIC(12, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id         BIGSERIAL PRIMARY KEY,
		item_id    BIGINT NOT NULL REFERENCES items (id),
		qty        INTEGER NOT NULL,
		type       CHAR(1) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_item ON inventory (item_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         BIGSERIAL PRIMARY KEY,
		order_no   VARCHAR(32) NOT NULL UNIQUE,
		item_id    BIGINT NOT NULL REFERENCES items (id),
		qty        INTEGER NOT NULL,
		price      NUMERIC(12, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_item ON orders (item_id)`,
}

const (
	pgItemColumns     = `id, name, price::text, created_at, updated_at`
	pgMovementColumns = `m.id, m.item_id, COALESCE(i.name, ''), m.qty, m.type, m.created_at, m.updated_at`
	pgOrderColumns    = `o.id, o.order_no, o.item_id, COALESCE(i.name, ''), o.qty, o.price::text, o.created_at, o.updated_at`

	pgRemainingStockQuery = `
		SELECT
			COALESCE((SELECT SUM(CASE WHEN type = 'T' THEN qty ELSE -qty END) FROM inventory WHERE item_id = $1), 0)
			- COALESCE((SELECT SUM(qty) FROM orders WHERE item_id = $1), 0)`
)

type pgQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAdapter implements port.DatabaseRepository on a pgx pool.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (a *PostgresAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

func (a *PostgresAdapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *PostgresAdapter) Close() error {
	a.pool.Close()
	return nil
}

func (a *PostgresAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(context.Background())

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (a *PostgresAdapter) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return pgGetItem(ctx, a.pool, `SELECT `+pgItemColumns+` FROM items WHERE id = $1`, id)
}

func (a *PostgresAdapter) ListItems(ctx context.Context, page domain.Page) (domain.PageResult[domain.Item], error) {
	res := domain.PageResult[domain.Item]{Page: page.Number, Size: page.Size}
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&res.TotalElements); err != nil {
		return res, fmt.Errorf("count items: %w", err)
	}

	rows, err := a.pool.Query(ctx, `SELECT `+pgItemColumns+` FROM items`+
		orderBy(domain.ItemSort, page.Sort, itemOrderColumns, "id", nil)+` LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return res, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	res.Content = []domain.Item{}
	for rows.Next() {
		item, err := pgScanItem(rows)
		if err != nil {
			return res, err
		}
		res.Content = append(res.Content, *item)
	}
	return res, rows.Err()
}

func (a *PostgresAdapter) GetMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT `+pgMovementColumns+`
		FROM inventory m LEFT JOIN items i ON i.id = m.item_id
		WHERE m.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query movement: %w", err)
	}
	movements, err := pgScanMovements(rows)
	if err != nil || len(movements) == 0 {
		return nil, err
	}
	return &movements[0], nil
}

func (a *PostgresAdapter) ListMovements(ctx context.Context, page domain.Page) (domain.PageResult[domain.Movement], error) {
	res := domain.PageResult[domain.Movement]{Page: page.Number, Size: page.Size}
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory`).Scan(&res.TotalElements); err != nil {
		return res, fmt.Errorf("count movements: %w", err)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT `+pgMovementColumns+`
		FROM inventory m LEFT JOIN items i ON i.id = m.item_id`+
		orderBy(domain.MovementSort, page.Sort, movementOrderColumns, "m.id", nil)+` LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return res, fmt.Errorf("query movements: %w", err)
	}
	res.Content, err = pgScanMovements(rows)
	return res, err
}

func (a *PostgresAdapter) GetOrder(ctx context.Context, orderNo string) (*domain.Order, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT `+pgOrderColumns+`
		FROM orders o LEFT JOIN items i ON i.id = o.item_id
		WHERE o.order_no = $1`, orderNo)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	orders, err := pgScanOrders(rows)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

func (a *PostgresAdapter) ListOrders(ctx context.Context, page domain.Page) (domain.PageResult[domain.Order], error) {
	res := domain.PageResult[domain.Order]{Page: page.Number, Size: page.Size}
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&res.TotalElements); err != nil {
		return res, fmt.Errorf("count orders: %w", err)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT `+pgOrderColumns+`
		FROM orders o LEFT JOIN items i ON i.id = o.item_id`+
		orderBy(domain.OrderSort, page.Sort, orderOrderColumns, "o.id", nil)+` LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return res, fmt.Errorf("query orders: %w", err)
	}
	res.Content, err = pgScanOrders(rows)
	return res, err
}

func (a *PostgresAdapter) RemainingStock(ctx context.Context, itemID int64) (int, error) {
	return pgRemainingStock(ctx, a.pool, itemID)
}

type pgTx struct {
	q pgQueryer
}

func (t *pgTx) LockItem(ctx context.Context, id int64) (*domain.Item, error) {
	return pgGetItem(ctx, t.q, `SELECT `+pgItemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) FindItemByName(ctx context.Context, name string) (*domain.Item, error) {
	return pgGetItem(ctx, t.q, `SELECT `+pgItemColumns+` FROM items WHERE name = $1`, name)
}

func (t *pgTx) InsertItem(ctx context.Context, item *domain.Item) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO items (name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		item.Name, item.Price.String(), item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	if isPgUniqueViolation(err) {
		return &domain.DuplicateError{Resource: "item", Field: "name", Value: item.Name}
	}
	return err
}

func (t *pgTx) UpdateItem(ctx context.Context, item *domain.Item) error {
	_, err := t.q.Exec(ctx, `
		UPDATE items SET name = $1, price = $2, updated_at = $3
		WHERE id = $4`,
		item.Name, item.Price.String(), item.UpdatedAt, item.ID,
	)
	if isPgUniqueViolation(err) {
		return &domain.DuplicateError{Resource: "item", Field: "name", Value: item.Name}
	}
	return err
}

func (t *pgTx) DeleteItem(ctx context.Context, id int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	return err
}

func (t *pgTx) CountItemReferences(ctx context.Context, itemID int64) (int, error) {
	var refs int
	err := t.q.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM inventory WHERE item_id = $1)
			+ (SELECT COUNT(*) FROM orders WHERE item_id = $1)`,
		itemID,
	).Scan(&refs)
	return refs, err
}

func (t *pgTx) RemainingStock(ctx context.Context, itemID int64) (int, error) {
	return pgRemainingStock(ctx, t.q, itemID)
}

func (t *pgTx) LockMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	var (
		m    domain.Movement
		kind string
	)
	err := t.q.QueryRow(ctx, `
		SELECT id, item_id, qty, type, created_at, updated_at
		FROM inventory WHERE id = $1 FOR UPDATE`, id,
	).Scan(&m.ID, &m.ItemID, &m.Quantity, &kind, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Kind = domain.MovementKind(kind)
	return &m, nil
}

func (t *pgTx) InsertMovement(ctx context.Context, m *domain.Movement) error {
	return t.q.QueryRow(ctx, `
		INSERT INTO inventory (item_id, qty, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.ItemID, m.Quantity, string(m.Kind), m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
}

func (t *pgTx) UpdateMovement(ctx context.Context, m *domain.Movement) error {
	_, err := t.q.Exec(ctx, `
		UPDATE inventory SET item_id = $1, qty = $2, type = $3, updated_at = $4
		WHERE id = $5`,
		m.ItemID, m.Quantity, string(m.Kind), m.UpdatedAt, m.ID,
	)
	return err
}

func (t *pgTx) DeleteMovement(ctx context.Context, id int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM inventory WHERE id = $1`, id)
	return err
}

func (t *pgTx) LockOrder(ctx context.Context, orderNo string) (*domain.Order, error) {
	var (
		o     domain.Order
		price string
	)
	err := t.q.QueryRow(ctx, `
		SELECT id, order_no, item_id, qty, price::text, created_at, updated_at
		FROM orders WHERE order_no = $1 FOR UPDATE`, orderNo,
	).Scan(&o.ID, &o.OrderNo, &o.ItemID, &o.Quantity, &price, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse order price: %w", err)
	}
	return &o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO orders (order_no, item_id, qty, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		o.OrderNo, o.ItemID, o.Quantity, o.Price.String(), o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if isPgUniqueViolation(err) {
		return &domain.DuplicateError{Resource: "order", Field: "order no", Value: o.OrderNo}
	}
	return err
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.q.Exec(ctx, `
		UPDATE orders SET item_id = $1, qty = $2, price = $3, updated_at = $4
		WHERE order_no = $5`,
		o.ItemID, o.Quantity, o.Price.String(), o.UpdatedAt, o.OrderNo,
	)
	return err
}

func (t *pgTx) DeleteOrder(ctx context.Context, orderNo string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM orders WHERE order_no = $1`, orderNo)
	return err
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func pgGetItem(ctx context.Context, q pgQueryer, query string, arg any) (*domain.Item, error) {
	item, err := pgScanItem(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func pgScanItem(row pgx.Row) (*domain.Item, error) {
	var (
		item  domain.Item
		price string
	)
	if err := row.Scan(&item.ID, &item.Name, &price, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if item.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse item price: %w", err)
	}
	return &item, nil
}

func pgRemainingStock(ctx context.Context, q pgQueryer, itemID int64) (int, error) {
	var stock int
	if err := q.QueryRow(ctx, pgRemainingStockQuery, itemID).Scan(&stock); err != nil {
		return 0, fmt.Errorf("query remaining stock: %w", err)
	}
	return stock, nil
}

func pgScanMovements(rows pgx.Rows) ([]domain.Movement, error) {
	defer rows.Close()

	movements := []domain.Movement{}
	for rows.Next() {
		var (
			m    domain.Movement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.ItemID, &m.ItemName, &m.Quantity, &kind, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Kind = domain.MovementKind(kind)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func pgScanOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var (
			o     domain.Order
			price string
		)
		if err := rows.Scan(&o.ID, &o.OrderNo, &o.ItemID, &o.ItemName, &o.Quantity, &price, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		var err error
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse order price: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
