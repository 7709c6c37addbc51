package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// dialect carries what differs between the database/sql backends.
type dialect struct {
	name              string
	lockClause        string
	txOptions         *sql.TxOptions
	schema            []string
	isUniqueViolation func(error) bool
	// sortColumn rewrites an ORDER BY column, if set.
	sortColumn func(col string) string
}

// SQLAdapter implements port.DatabaseRepository on database/sql.
type SQLAdapter struct {
	db      *sql.DB
	dialect dialect
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	itemColumns     = `id, name, price, created_at, updated_at`
	movementColumns = `m.id, m.item_id, COALESCE(i.name, ''), m.qty, m.type, m.created_at, m.updated_at`
	orderColumns    = `o.id, o.order_no, o.item_id, COALESCE(i.name, ''), o.qty, o.price, o.created_at, o.updated_at`

	remainingStockQuery = `
		SELECT
			COALESCE((SELECT SUM(CASE WHEN type = 'T' THEN qty ELSE -qty END) FROM inventory WHERE item_id = ?), 0)
			- COALESCE((SELECT SUM(qty) FROM orders WHERE item_id = ?), 0)`
)

// Sortable fields map to fixed column names; request input never reaches SQL.
var (
	itemOrderColumns = map[string]string{
		"id": "id", "name": "name", "price": "price", "createdAt": "created_at", "updatedAt": "updated_at",
	}
	movementOrderColumns = map[string]string{
		"id": "m.id", "itemId": "m.item_id", "qty": "m.qty", "type": "m.type",
		"createdAt": "m.created_at", "updatedAt": "m.updated_at",
	}
	orderOrderColumns = map[string]string{
		"orderNo": "o.order_no", "id": "o.id", "itemId": "o.item_id", "qty": "o.qty", "price": "o.price",
		"createdAt": "o.created_at", "updatedAt": "o.updated_at",
	}
)

// orderBy renders an ORDER BY clause with idColumn as tiebreaker so paging is
// stable when the sort column has duplicates.
func orderBy(spec domain.SortSpec, sort domain.Sort, columns map[string]string, idColumn string, rewrite func(string) string) string {
	sort = spec.Resolve(sort)
	col, ok := columns[sort.Field]
	if !ok {
		sort = spec.Default
		col = columns[sort.Field]
	}
	if rewrite != nil {
		col = rewrite(col)
	}
	dir := "ASC"
	if sort.Direction == domain.SortDesc {
		dir = "DESC"
	}
	clause := " ORDER BY " + col + " " + dir
	if sort.Field != "id" {
		clause += ", " + idColumn + " " + dir
	}
	return clause
}

func (a *SQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range a.dialect.schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", a.dialect.name, err)
		}
	}
	return nil
}

func (a *SQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

func (a *SQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, a.dialect.txOptions)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{q: tx, dialect: a.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return getItem(ctx, a.db, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
}

func (a *SQLAdapter) ListItems(ctx context.Context, page domain.Page) (domain.PageResult[domain.Item], error) {
	res := domain.PageResult[domain.Item]{Page: page.Number, Size: page.Size}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&res.TotalElements); err != nil {
		return res, fmt.Errorf("count items: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items`+
		orderBy(domain.ItemSort, page.Sort, itemOrderColumns, "id", a.dialect.sortColumn)+` LIMIT ? OFFSET ?`, page.Size, page.Offset())
	if err != nil {
		return res, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	res.Content = []domain.Item{}
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return res, fmt.Errorf("scan item: %w", err)
		}
		res.Content = append(res.Content, item)
	}
	return res, rows.Err()
}

func (a *SQLAdapter) GetMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM inventory m LEFT JOIN items i ON i.id = m.item_id
		WHERE m.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query movement: %w", err)
	}
	movements, err := scanMovements(rows)
	if err != nil || len(movements) == 0 {
		return nil, err
	}
	return &movements[0], nil
}

func (a *SQLAdapter) ListMovements(ctx context.Context, page domain.Page) (domain.PageResult[domain.Movement], error) {
	res := domain.PageResult[domain.Movement]{Page: page.Number, Size: page.Size}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory`).Scan(&res.TotalElements); err != nil {
		return res, fmt.Errorf("count movements: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM inventory m LEFT JOIN items i ON i.id = m.item_id`+
		orderBy(domain.MovementSort, page.Sort, movementOrderColumns, "m.id", a.dialect.sortColumn)+` LIMIT ? OFFSET ?`, page.Size, page.Offset())
	if err != nil {
		return res, fmt.Errorf("query movements: %w", err)
	}
	res.Content, err = scanMovements(rows)
	return res, err
}

func (a *SQLAdapter) GetOrder(ctx context.Context, orderNo string) (*domain.Order, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o LEFT JOIN items i ON i.id = o.item_id
		WHERE o.order_no = ?`, orderNo)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

func (a *SQLAdapter) ListOrders(ctx context.Context, page domain.Page) (domain.PageResult[domain.Order], error) {
	res := domain.PageResult[domain.Order]{Page: page.Number, Size: page.Size}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&res.TotalElements); err != nil {
		return res, fmt.Errorf("count orders: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o LEFT JOIN items i ON i.id = o.item_id`+
		orderBy(domain.OrderSort, page.Sort, orderOrderColumns, "o.id", a.dialect.sortColumn)+` LIMIT ? OFFSET ?`, page.Size, page.Offset())
	if err != nil {
		return res, fmt.Errorf("query orders: %w", err)
	}
	res.Content, err = scanOrders(rows)
	return res, err
}

func (a *SQLAdapter) RemainingStock(ctx context.Context, itemID int64) (int, error) {
	return remainingStock(ctx, a.db, itemID)
}

// sqlTx implements port.Tx on a *sql.Tx.
type sqlTx struct {
	q       queryer
	dialect dialect
}

func (t *sqlTx) LockItem(ctx context.Context, id int64) (*domain.Item, error) {
	return getItem(ctx, t.q, `SELECT `+itemColumns+` FROM items WHERE id = ?`+t.dialect.lockClause, id)
}

func (t *sqlTx) FindItemByName(ctx context.Context, name string) (*domain.Item, error) {
	return getItem(ctx, t.q, `SELECT `+itemColumns+` FROM items WHERE name = ?`, name)
}

func (t *sqlTx) InsertItem(ctx context.Context, item *domain.Item) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO items (name, price, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		item.Name, item.Price, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return t.itemErr(err, item.Name)
	}
	item.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) UpdateItem(ctx context.Context, item *domain.Item) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE items SET name = ?, price = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, item.Price, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return t.itemErr(err, item.Name)
	}
	return nil
}

func (t *sqlTx) itemErr(err error, name string) error {
	if t.dialect.isUniqueViolation(err) {
		return &domain.DuplicateError{Resource: "item", Field: "name", Value: name}
	}
	return err
}

func (t *sqlTx) DeleteItem(ctx context.Context, id int64) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

func (t *sqlTx) CountItemReferences(ctx context.Context, itemID int64) (int, error) {
	var refs int
	err := t.q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM inventory WHERE item_id = ?)
			+ (SELECT COUNT(*) FROM orders WHERE item_id = ?)`,
		itemID, itemID,
	).Scan(&refs)
	return refs, err
}

func (t *sqlTx) RemainingStock(ctx context.Context, itemID int64) (int, error) {
	return remainingStock(ctx, t.q, itemID)
}

func (t *sqlTx) LockMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	var (
		m    domain.Movement
		kind string
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, item_id, qty, type, created_at, updated_at
		FROM inventory WHERE id = ?`+t.dialect.lockClause, id,
	).Scan(&m.ID, &m.ItemID, &m.Quantity, &kind, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Kind = domain.MovementKind(kind)
	return &m, nil
}

func (t *sqlTx) InsertMovement(ctx context.Context, m *domain.Movement) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO inventory (item_id, qty, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ItemID, m.Quantity, string(m.Kind), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) UpdateMovement(ctx context.Context, m *domain.Movement) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE inventory SET item_id = ?, qty = ?, type = ?, updated_at = ?
		WHERE id = ?`,
		m.ItemID, m.Quantity, string(m.Kind), m.UpdatedAt, m.ID,
	)
	return err
}

func (t *sqlTx) DeleteMovement(ctx context.Context, id int64) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM inventory WHERE id = ?`, id)
	return err
}

func (t *sqlTx) LockOrder(ctx context.Context, orderNo string) (*domain.Order, error) {
	var o domain.Order
	err := t.q.QueryRowContext(ctx, `
		SELECT id, order_no, item_id, qty, price, created_at, updated_at
		FROM orders WHERE order_no = ?`+t.dialect.lockClause, orderNo,
	).Scan(&o.ID, &o.OrderNo, &o.ItemID, &o.Quantity, &o.Price, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (order_no, item_id, qty, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.OrderNo, o.ItemID, o.Quantity, o.Price, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return &domain.DuplicateError{Resource: "order", Field: "order no", Value: o.OrderNo}
		}
		return err
	}
	o.ID, err = res.LastInsertId()
	return err
}

func (t *sqlTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE orders SET item_id = ?, qty = ?, price = ?, updated_at = ?
		WHERE order_no = ?`,
		o.ItemID, o.Quantity, o.Price, o.UpdatedAt, o.OrderNo,
	)
	return err
}

func (t *sqlTx) DeleteOrder(ctx context.Context, orderNo string) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM orders WHERE order_no = ?`, orderNo)
	return err
}

func getItem(ctx context.Context, q queryer, query string, arg any) (*domain.Item, error) {
	var item domain.Item
	err := q.QueryRowContext(ctx, query, arg).
		Scan(&item.ID, &item.Name, &item.Price, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func remainingStock(ctx context.Context, q queryer, itemID int64) (int, error) {
	var stock int
	if err := q.QueryRowContext(ctx, remainingStockQuery, itemID, itemID).Scan(&stock); err != nil {
		return 0, fmt.Errorf("query remaining stock: %w", err)
	}
	return stock, nil
}

func scanMovements(rows *sql.Rows) ([]domain.Movement, error) {
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

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.OrderNo, &o.ItemID, &o.ItemName, &o.Quantity, &o.Price, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
