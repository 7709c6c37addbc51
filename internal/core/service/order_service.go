package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "order:create:"
	maxOrderNoAttempts   = 3
)

type OrderInput struct {
	ItemID   int64
	Quantity int
	Price    decimal.Decimal
}

func (in OrderInput) order() domain.Order {
	return domain.Order{ItemID: in.ItemID, Quantity: in.Quantity, Price: in.Price}
}

// OrderService creates, changes and removes orders. Orders always consume
// stock, so only creates and quantity increases are checked.
type OrderService struct {
	guard
	idempotency port.IdempotencyRepository
	newOrderNo  func() string
}

func NewOrderService(db port.DatabaseRepository, opts ...Option) *OrderService {
	o := newOptions(opts)
	if o.newOrderNo == nil {
		o.newOrderNo = domain.NewOrderNo
	}
	return &OrderService{
		guard:       newGuard(db, o),
		idempotency: o.idempotency,
		newOrderNo:  o.newOrderNo,
	}
}

func (s *OrderService) Get(ctx context.Context, orderNo string) (*domain.Order, error) {
	o, err := s.db.GetOrder(ctx, orderNo)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, orderNotFound(orderNo)
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context, page domain.Page) (domain.PageResult[domain.Order], error) {
	res, err := s.db.ListOrders(ctx, page)
	if err != nil {
		return res, fmt.Errorf("list orders: %w", err)
	}
	return res, nil
}

// Create places an order when the item has at least the requested quantity
// in stock. Stock may reach exactly zero.
func (s *OrderService) Create(ctx context.Context, in OrderInput) (*domain.Order, error) {
	o := in.order()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < maxOrderNoAttempts; attempt++ {
		o.OrderNo = s.newOrderNo()
		err = s.run(ctx, "order.create", func(ctx context.Context, tx port.Tx) error {
			return s.create(ctx, tx, &o)
		})
		if !errors.Is(err, domain.ErrDuplicateResource) {
			break
		}
		s.logger.Warn("order number collision", zap.String("order_no", o.OrderNo), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderService) create(ctx context.Context, tx port.Tx, o *domain.Order) error {
	items, err := lockItems(ctx, tx, o.ItemID)
	if err != nil {
		return err
	}
	item, ok := items[o.ItemID]
	if !ok {
		return itemNotFound(o.ItemID)
	}

	available, err := remainingStock(ctx, tx, o.ItemID)
	if err != nil {
		return err
	}
	if err := requireStock(o.ItemID, available, -o.Quantity); err != nil {
		return err
	}

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if err := tx.InsertOrder(ctx, o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ItemName = item.Name
	return nil
}

// CreateWithKey is Create guarded by a client-supplied idempotency key. A key
// that already produced an order returns that order; a key whose first
// request is still running fails with ErrDuplicateRequest.
func (s *OrderService) CreateWithKey(ctx context.Context, key string, in OrderInput) (*domain.Order, error) {
	if key == "" || s.idempotency == nil {
		return s.Create(ctx, in)
	}
	cacheKey := idempotencyKeyPrefix + key

	existing, claimed, err := s.idempotency.Claim(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !claimed {
		if existing == port.PendingValue {
			return nil, fmt.Errorf("key %s: %w", key, domain.ErrDuplicateRequest)
		}
		o, err := s.db.GetOrder(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if o == nil {
			return nil, fmt.Errorf("key %s already used by removed order %s: %w", key, existing, domain.ErrDuplicateRequest)
		}
		return o, nil
	}

	o, err := s.Create(ctx, in)
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, cacheKey); releaseErr != nil {
			s.logger.Error("release idempotency key", zap.String("key", key), zap.Error(releaseErr))
		}
		return nil, err
	}
	if err := s.idempotency.Complete(ctx, cacheKey, o.OrderNo); err != nil {
		s.logger.Error("complete idempotency key", zap.String("key", key), zap.Error(err))
	}
	return o, nil
}

// Update changes item, quantity and price of an order. Only the extra
// quantity is checked against stock; the price is a captured value and is
// replaced unconditionally. Moving an order to another item checks the full
// quantity against the new item.
func (s *OrderService) Update(ctx context.Context, orderNo string, in OrderInput) (*domain.Order, error) {
	next := in.order()
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var updated domain.Order
	err := s.run(ctx, "order.update", func(ctx context.Context, tx port.Tx) error {
		prev, err := tx.LockOrder(ctx, orderNo)
		if err != nil {
			return fmt.Errorf("lock order %s: %w", orderNo, err)
		}
		if prev == nil {
			return orderNotFound(orderNo)
		}

		items, err := lockItems(ctx, tx, prev.ItemID, next.ItemID)
		if err != nil {
			return err
		}
		item, ok := items[next.ItemID]
		if !ok {
			return itemNotFound(next.ItemID)
		}

		additional := next.Quantity
		if prev.ItemID == next.ItemID {
			additional = next.Quantity - prev.Quantity
		}
		if additional > 0 {
			available, err := remainingStock(ctx, tx, next.ItemID)
			if err != nil {
				return err
			}
			if err := requireStock(next.ItemID, available, -additional); err != nil {
				return err
			}
		}

		updated = *prev
		updated.ItemID = next.ItemID
		updated.Quantity = next.Quantity
		updated.Price = next.Price
		updated.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, &updated); err != nil {
			return fmt.Errorf("update order %s: %w", orderNo, err)
		}
		updated.ItemName = item.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an order. Releasing ordered quantity only raises stock, so
// there is no stock check.
func (s *OrderService) Delete(ctx context.Context, orderNo string) error {
	return s.run(ctx, "order.delete", func(ctx context.Context, tx port.Tx) error {
		o, err := tx.LockOrder(ctx, orderNo)
		if err != nil {
			return fmt.Errorf("lock order %s: %w", orderNo, err)
		}
		if o == nil {
			return orderNotFound(orderNo)
		}
		if err := tx.DeleteOrder(ctx, orderNo); err != nil {
			return fmt.Errorf("delete order %s: %w", orderNo, err)
		}
		return nil
	})
}

func orderNotFound(orderNo string) error {
	return domain.NewNotFoundError("order", "order no", orderNo)
}
