package service

import (
	"context"
	"testing"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	repo      *mockRepo
	stock     *StockService
	items     *ItemService
	movements *MovementService
	orders    *OrderService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	repo := newMockRepo()
	stock := NewStockService(repo, opts...)
	return &testEnv{
		repo:      repo,
		stock:     stock,
		items:     NewItemService(repo, stock, opts...),
		movements: NewMovementService(repo, opts...),
		orders:    NewOrderService(repo, opts...),
	}
}

func (e *testEnv) createItem(t *testing.T, name string) int64 {
	t.Helper()
	item, err := e.items.Create(context.Background(), ItemInput{Name: name, Price: decimal.NewFromInt(5)})
	require.NoError(t, err)
	return item.ID
}

func (e *testEnv) topUp(t *testing.T, itemID int64, qty int) *domain.Movement {
	t.Helper()
	m, err := e.movements.Create(context.Background(), MovementInput{ItemID: itemID, Quantity: qty, Kind: domain.MovementTopUp})
	require.NoError(t, err)
	return m
}

func (e *testEnv) order(t *testing.T, itemID int64, qty int) *domain.Order {
	t.Helper()
	o, err := e.orders.Create(context.Background(), OrderInput{ItemID: itemID, Quantity: qty, Price: decimal.NewFromInt(100)})
	require.NoError(t, err)
	return o
}

func (e *testEnv) remaining(t *testing.T, itemID int64) int {
	t.Helper()
	stock, err := e.stock.RemainingStock(context.Background(), itemID)
	require.NoError(t, err)
	return stock
}
