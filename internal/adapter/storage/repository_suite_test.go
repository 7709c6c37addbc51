package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRollback = errors.New("rollback")

// runRepositorySuite exercises a port.DatabaseRepository against a freshly
// migrated, empty schema.
func runRepositorySuite(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()

	insertItem := func(t *testing.T, name string) *domain.Item {
		t.Helper()
		now := time.Now().UTC().Truncate(time.Millisecond)
		item := &domain.Item{Name: name, Price: decimal.RequireFromString("12.50"), CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.InsertItem(ctx, item)
		}))
		require.NotZero(t, item.ID)
		return item
	}

	insertMovement := func(t *testing.T, itemID int64, qty int, kind domain.MovementKind) *domain.Movement {
		t.Helper()
		now := time.Now().UTC()
		m := &domain.Movement{ItemID: itemID, Quantity: qty, Kind: kind, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.InsertMovement(ctx, m)
		}))
		return m
	}

	insertOrder := func(t *testing.T, orderNo string, itemID int64, qty int) *domain.Order {
		t.Helper()
		now := time.Now().UTC()
		o := &domain.Order{OrderNo: orderNo, ItemID: itemID, Quantity: qty, Price: decimal.RequireFromString("3.25"), CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.InsertOrder(ctx, o)
		}))
		return o
	}

	t.Run("items", func(t *testing.T) {
		item := insertItem(t, "Pen")

		got, err := repo.GetItem(ctx, item.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Pen", got.Name)
		assert.True(t, item.Price.Equal(got.Price), "price %s", got.Price)

		missing, err := repo.GetItem(ctx, item.ID+1000)
		require.NoError(t, err)
		assert.Nil(t, missing)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.InsertItem(ctx, &domain.Item{Name: "Pen", Price: decimal.NewFromInt(1), CreatedAt: time.Now(), UpdatedAt: time.Now()})
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateResource)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			locked, err := tx.LockItem(ctx, item.ID)
			if err != nil {
				return err
			}
			locked.Name = "Fountain Pen"
			locked.Price = decimal.RequireFromString("20")
			locked.UpdatedAt = time.Now().UTC()
			return tx.UpdateItem(ctx, locked)
		})
		require.NoError(t, err)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			found, err := tx.FindItemByName(ctx, "Fountain Pen")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, item.ID, found.ID)
			assert.True(t, decimal.NewFromInt(20).Equal(found.Price))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("remaining stock", func(t *testing.T) {
		item := insertItem(t, "Book")

		stock, err := repo.RemainingStock(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stock)

		insertMovement(t, item.ID, 10, domain.MovementTopUp)
		insertMovement(t, item.ID, 3, domain.MovementWithdrawal)
		insertOrder(t, "ORD-BOOK0001", item.ID, 2)

		stock, err = repo.RemainingStock(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, stock)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			stock, err := tx.RemainingStock(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, 5, stock)
			return nil
		})
		require.NoError(t, err)

		stock, err = repo.RemainingStock(ctx, 987654)
		require.NoError(t, err)
		assert.Equal(t, 0, stock)
	})

	t.Run("movements", func(t *testing.T) {
		item := insertItem(t, "Ruler")
		m := insertMovement(t, item.ID, 7, domain.MovementTopUp)

		got, err := repo.GetMovement(ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Ruler", got.ItemName)
		assert.Equal(t, domain.MovementTopUp, got.Kind)
		assert.Equal(t, 7, got.Quantity)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			locked, err := tx.LockMovement(ctx, m.ID)
			if err != nil {
				return err
			}
			locked.Quantity = 4
			locked.Kind = domain.MovementWithdrawal
			locked.UpdatedAt = time.Now().UTC()
			return tx.UpdateMovement(ctx, locked)
		})
		require.NoError(t, err)

		stock, err := repo.RemainingStock(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, -4, stock)

		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.DeleteMovement(ctx, m.ID)
		}))
		got, err = repo.GetMovement(ctx, m.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			locked, err := tx.LockMovement(ctx, m.ID)
			assert.Nil(t, locked)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("orders", func(t *testing.T) {
		item := insertItem(t, "Bag")
		o := insertOrder(t, "ORD-BAG00001", item.ID, 2)

		got, err := repo.GetOrder(ctx, o.OrderNo)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Bag", got.ItemName)
		assert.True(t, decimal.RequireFromString("3.25").Equal(got.Price))

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.InsertOrder(ctx, &domain.Order{OrderNo: o.OrderNo, ItemID: item.ID, Quantity: 1, Price: decimal.NewFromInt(1), CreatedAt: time.Now(), UpdatedAt: time.Now()})
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateResource)

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			locked, err := tx.LockOrder(ctx, o.OrderNo)
			if err != nil {
				return err
			}
			locked.Quantity = 5
			locked.Price = decimal.RequireFromString("9.99")
			locked.UpdatedAt = time.Now().UTC()
			return tx.UpdateOrder(ctx, locked)
		})
		require.NoError(t, err)

		got, err = repo.GetOrder(ctx, o.OrderNo)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Quantity)
		assert.True(t, decimal.RequireFromString("9.99").Equal(got.Price))

		err = repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			refs, err := tx.CountItemReferences(ctx, item.ID)
			assert.Equal(t, 1, refs)
			return err
		})
		require.NoError(t, err)

		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.DeleteOrder(ctx, o.OrderNo)
		}))
		got, err = repo.GetOrder(ctx, o.OrderNo)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		item := insertItem(t, "Glue")

		err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			now := time.Now().UTC()
			if err := tx.InsertMovement(ctx, &domain.Movement{ItemID: item.ID, Quantity: 50, Kind: domain.MovementTopUp, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
			return errRollback
		})
		assert.ErrorIs(t, err, errRollback)

		stock, err := repo.RemainingStock(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stock)
	})

	t.Run("delete item", func(t *testing.T) {
		item := insertItem(t, "Tape")
		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			refs, err := tx.CountItemReferences(ctx, item.ID)
			require.NoError(t, err)
			assert.Zero(t, refs)
			return tx.DeleteItem(ctx, item.ID)
		}))

		got, err := repo.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("pagination", func(t *testing.T) {
		items, err := repo.ListItems(ctx, domain.NewPage(0, 2))
		require.NoError(t, err)
		require.Len(t, items.Content, 2)
		assert.GreaterOrEqual(t, items.TotalElements, int64(5))
		assert.Less(t, items.Content[0].ID, items.Content[1].ID)

		beyond, err := repo.ListItems(ctx, domain.NewPage(50, 10))
		require.NoError(t, err)
		assert.Empty(t, beyond.Content)
		assert.Equal(t, items.TotalElements, beyond.TotalElements)

		movements, err := repo.ListMovements(ctx, domain.NewPage(0, 10))
		require.NoError(t, err)
		assert.Equal(t, int64(len(movements.Content)), movements.TotalElements)
		for i, m := range movements.Content {
			assert.NotEmpty(t, m.ItemName)
			if i > 0 {
				assert.Greater(t, movements.Content[i-1].ID, m.ID, "movements default to newest first")
			}
		}

		orders, err := repo.ListOrders(ctx, domain.NewPage(0, 10))
		require.NoError(t, err)
		require.Len(t, orders.Content, 1)
		assert.Equal(t, "ORD-BOOK0001", orders.Content[0].OrderNo)
	})

	t.Run("sorting", func(t *testing.T) {
		now := time.Now().UTC()
		for _, item := range []*domain.Item{
			{Name: "Cheap", Price: decimal.RequireFromString("0.99"), CreatedAt: now, UpdatedAt: now},
			{Name: "Pricey", Price: decimal.RequireFromString("100.00"), CreatedAt: now, UpdatedAt: now},
		} {
			require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				return tx.InsertItem(ctx, item)
			}))
		}

		page := domain.NewPage(0, domain.MaxPageSize)
		byPrice, err := repo.ListItems(ctx, page.WithSort(domain.Sort{Field: "price", Direction: domain.SortDesc}))
		require.NoError(t, err)
		require.NotEmpty(t, byPrice.Content)
		assert.Equal(t, "Pricey", byPrice.Content[0].Name)

		byPrice, err = repo.ListItems(ctx, page.WithSort(domain.Sort{Field: "price", Direction: domain.SortAsc}))
		require.NoError(t, err)
		assert.Equal(t, "Cheap", byPrice.Content[0].Name)

		byID, err := repo.ListItems(ctx, page.WithSort(domain.Sort{Field: "id", Direction: domain.SortDesc}))
		require.NoError(t, err)
		assert.Equal(t, "Pricey", byID.Content[0].Name)

		oldest := byID.Content[len(byID.Content)-1].ID
		insertOrder(t, "ORD-AAAA0001", oldest, 1)

		orders, err := repo.ListOrders(ctx, page)
		require.NoError(t, err)
		require.Len(t, orders.Content, 2)
		assert.Equal(t, "ORD-BOOK0001", orders.Content[0].OrderNo)

		orders, err = repo.ListOrders(ctx, page.WithSort(domain.Sort{Field: "orderNo", Direction: domain.SortAsc}))
		require.NoError(t, err)
		assert.Equal(t, "ORD-AAAA0001", orders.Content[0].OrderNo)

		orders, err = repo.ListOrders(ctx, page.WithSort(domain.Sort{Field: "qty", Direction: domain.SortDesc}))
		require.NoError(t, err)
		assert.Equal(t, 2, orders.Content[0].Quantity)

		movements, err := repo.ListMovements(ctx, page.WithSort(domain.Sort{Field: "qty", Direction: domain.SortAsc}))
		require.NoError(t, err)
		for i := 1; i < len(movements.Content); i++ {
			assert.LessOrEqual(t, movements.Content[i-1].Quantity, movements.Content[i].Quantity)
		}
	})

	t.Run("names are case sensitive", func(t *testing.T) {
		lower := insertItem(t, "eraser")
		upper := insertItem(t, "Eraser")
		assert.NotEqual(t, lower.ID, upper.ID)

		err := repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			found, err := tx.FindItemByName(ctx, "Eraser")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, upper.ID, found.ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("concurrent guarded mutations", func(t *testing.T) {
		stock := service.NewStockService(repo)
		movements := service.NewMovementService(repo)
		orders := service.NewOrderService(repo)

		item := insertItem(t, "Flash Sale")
		insertMovement(t, item.ID, 20, domain.MovementTopUp)

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			rejected  atomic.Int32
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(withdrawal bool) {
				defer wg.Done()
				var err error
				if withdrawal {
					_, err = movements.Create(ctx, service.MovementInput{ItemID: item.ID, Quantity: 1, Kind: domain.MovementWithdrawal})
				} else {
					_, err = orders.Create(ctx, service.OrderInput{ItemID: item.ID, Quantity: 1, Price: decimal.NewFromInt(1)})
				}
				switch {
				case err == nil:
					succeeded.Add(1)
				case domain.KindOf(err) == domain.KindInsufficientStock:
					rejected.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i%5 == 0)
		}
		wg.Wait()

		assert.Equal(t, int32(20), succeeded.Load())
		assert.Equal(t, int32(30), rejected.Load())

		remaining, err := stock.RemainingStock(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})
}
