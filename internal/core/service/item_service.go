package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/shopspring/decimal"
)

type ItemInput struct {
	Name  string
	Price decimal.Decimal
}

type ItemService struct {
	guard
	stock *StockService
}

func NewItemService(db port.DatabaseRepository, stock *StockService, opts ...Option) *ItemService {
	return &ItemService{guard: newGuard(db, newOptions(opts)), stock: stock}
}

// Get returns the item with its remaining stock.
func (s *ItemService) Get(ctx context.Context, id int64) (*domain.ItemStock, error) {
	item, err := s.db.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, itemNotFound(id)
	}
	stock, err := s.stock.RemainingStock(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ItemStock{Item: *item, RemainingStock: stock}, nil
}

func (s *ItemService) List(ctx context.Context, page domain.Page, includeStock bool) (domain.PageResult[domain.ItemStock], error) {
	items, err := s.db.ListItems(ctx, page)
	if err != nil {
		return domain.PageResult[domain.ItemStock]{}, fmt.Errorf("list items: %w", err)
	}

	res := domain.PageResult[domain.ItemStock]{
		Content:       make([]domain.ItemStock, 0, len(items.Content)),
		Page:          items.Page,
		Size:          items.Size,
		TotalElements: items.TotalElements,
	}
	for _, item := range items.Content {
		entry := domain.ItemStock{Item: item}
		if includeStock {
			if entry.RemainingStock, err = s.stock.RemainingStock(ctx, item.ID); err != nil {
				return domain.PageResult[domain.ItemStock]{}, err
			}
		}
		res.Content = append(res.Content, entry)
	}
	return res, nil
}

func (s *ItemService) Create(ctx context.Context, in ItemInput) (*domain.Item, error) {
	item := domain.Item{Name: strings.TrimSpace(in.Name), Price: in.Price}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	err := s.run(ctx, "item.create", func(ctx context.Context, tx port.Tx) error {
		existing, err := tx.FindItemByName(ctx, item.Name)
		if err != nil {
			return fmt.Errorf("find item by name: %w", err)
		}
		if existing != nil {
			return duplicateName(item.Name)
		}

		now := time.Now().UTC()
		item.CreatedAt, item.UpdatedAt = now, now
		if err := tx.InsertItem(ctx, &item); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Update renames and reprices an item. Name uniqueness is only checked when
// the name actually changes.
func (s *ItemService) Update(ctx context.Context, id int64, in ItemInput) (*domain.Item, error) {
	next := domain.Item{ID: id, Name: strings.TrimSpace(in.Name), Price: in.Price}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var updated domain.Item
	err := s.run(ctx, "item.update", func(ctx context.Context, tx port.Tx) error {
		item, err := tx.LockItem(ctx, id)
		if err != nil {
			return fmt.Errorf("lock item %d: %w", id, err)
		}
		if item == nil {
			return itemNotFound(id)
		}

		if item.Name != next.Name {
			existing, err := tx.FindItemByName(ctx, next.Name)
			if err != nil {
				return fmt.Errorf("find item by name: %w", err)
			}
			if existing != nil && existing.ID != id {
				return duplicateName(next.Name)
			}
		}

		updated = *item
		updated.Name = next.Name
		updated.Price = next.Price
		updated.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateItem(ctx, &updated); err != nil {
			return fmt.Errorf("update item %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an item that no movement or order refers to.
func (s *ItemService) Delete(ctx context.Context, id int64) error {
	return s.run(ctx, "item.delete", func(ctx context.Context, tx port.Tx) error {
		item, err := tx.LockItem(ctx, id)
		if err != nil {
			return fmt.Errorf("lock item %d: %w", id, err)
		}
		if item == nil {
			return itemNotFound(id)
		}

		refs, err := tx.CountItemReferences(ctx, id)
		if err != nil {
			return fmt.Errorf("count item references: %w", err)
		}
		if refs > 0 {
			return &domain.ItemInUseError{ItemID: id, References: refs}
		}

		if err := tx.DeleteItem(ctx, id); err != nil {
			return fmt.Errorf("delete item %d: %w", id, err)
		}
		return nil
	})
}

func duplicateName(name string) error {
	return &domain.DuplicateError{Resource: "item", Field: "name", Value: name}
}
