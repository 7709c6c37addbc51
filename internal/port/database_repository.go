package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Lookup methods return (nil, nil) when the row does not exist.
type Reader interface {
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	ListItems(ctx context.Context, page domain.Page) (domain.PageResult[domain.Item], error)
	GetMovement(ctx context.Context, id int64) (*domain.Movement, error)
	ListMovements(ctx context.Context, page domain.Page) (domain.PageResult[domain.Movement], error)
	GetOrder(ctx context.Context, orderNo string) (*domain.Order, error)
	ListOrders(ctx context.Context, page domain.Page) (domain.PageResult[domain.Order], error)

	// RemainingStock sums TopUps minus Withdrawals minus ordered quantities.
	// An item without rows yields 0.
	RemainingStock(ctx context.Context, itemID int64) (int, error)
}

// Tx is a single read-check-write unit of work. Locking reads hold their row
// locks until the transaction ends.
type Tx interface {
	// LockItem reads the item row with an exclusive lock.
	LockItem(ctx context.Context, id int64) (*domain.Item, error)
	FindItemByName(ctx context.Context, name string) (*domain.Item, error)
	InsertItem(ctx context.Context, item *domain.Item) error
	UpdateItem(ctx context.Context, item *domain.Item) error
	DeleteItem(ctx context.Context, id int64) error
	CountItemReferences(ctx context.Context, itemID int64) (int, error)

	RemainingStock(ctx context.Context, itemID int64) (int, error)

	LockMovement(ctx context.Context, id int64) (*domain.Movement, error)
	InsertMovement(ctx context.Context, m *domain.Movement) error
	UpdateMovement(ctx context.Context, m *domain.Movement) error
	DeleteMovement(ctx context.Context, id int64) error

	LockOrder(ctx context.Context, orderNo string) (*domain.Order, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	UpdateOrder(ctx context.Context, o *domain.Order) error
	DeleteOrder(ctx context.Context, orderNo string) error
}

type DatabaseRepository interface {
	Reader

	// WithinTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}
