package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type MovementInput struct {
	ItemID   int64
	Quantity int
	Kind     domain.MovementKind
}

func (in MovementInput) movement() domain.Movement {
	return domain.Movement{ItemID: in.ItemID, Quantity: in.Quantity, Kind: in.Kind}
}

// MovementService applies top-ups and withdrawals without letting any item's
// remaining stock drop below zero.
type MovementService struct {
	guard
}

func NewMovementService(db port.DatabaseRepository, opts ...Option) *MovementService {
	return &MovementService{guard: newGuard(db, newOptions(opts))}
}

func (s *MovementService) Get(ctx context.Context, id int64) (*domain.Movement, error) {
	m, err := s.db.GetMovement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get movement: %w", err)
	}
	if m == nil {
		return nil, movementNotFound(id)
	}
	return m, nil
}

func (s *MovementService) List(ctx context.Context, page domain.Page) (domain.PageResult[domain.Movement], error) {
	res, err := s.db.ListMovements(ctx, page)
	if err != nil {
		return res, fmt.Errorf("list movements: %w", err)
	}
	return res, nil
}

// Create records a movement. Top-ups are never stock-checked; a withdrawal
// needs at least its quantity in stock.
func (s *MovementService) Create(ctx context.Context, in MovementInput) (*domain.Movement, error) {
	m := in.movement()
	if err := m.Validate(); err != nil {
		return nil, err
	}

	err := s.run(ctx, "movement.create", func(ctx context.Context, tx port.Tx) error {
		items, err := lockItems(ctx, tx, m.ItemID)
		if err != nil {
			return err
		}
		item, ok := items[m.ItemID]
		if !ok {
			return itemNotFound(m.ItemID)
		}

		if m.Kind == domain.MovementWithdrawal {
			current, err := remainingStock(ctx, tx, m.ItemID)
			if err != nil {
				return err
			}
			if err := requireStock(m.ItemID, current, m.Impact()); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		m.CreatedAt, m.UpdatedAt = now, now
		if err := tx.InsertMovement(ctx, &m); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
		m.ItemName = item.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Update replaces item, quantity and kind of a movement. When the item stays
// the same the stock must absorb newImpact-oldImpact. When the movement moves
// to another item, the new item must absorb the new impact and the old item
// must survive losing the old one.
func (s *MovementService) Update(ctx context.Context, id int64, in MovementInput) (*domain.Movement, error) {
	next := in.movement()
	if err := next.Validate(); err != nil {
		return nil, err
	}

	var updated domain.Movement
	err := s.run(ctx, "movement.update", func(ctx context.Context, tx port.Tx) error {
		prev, err := tx.LockMovement(ctx, id)
		if err != nil {
			return fmt.Errorf("lock movement %d: %w", id, err)
		}
		if prev == nil {
			return movementNotFound(id)
		}

		items, err := lockItems(ctx, tx, prev.ItemID, next.ItemID)
		if err != nil {
			return err
		}
		item, ok := items[next.ItemID]
		if !ok {
			return itemNotFound(next.ItemID)
		}

		if prev.ItemID == next.ItemID {
			current, err := remainingStock(ctx, tx, next.ItemID)
			if err != nil {
				return err
			}
			if err := requireStock(next.ItemID, current, next.Impact()-prev.Impact()); err != nil {
				return err
			}
		} else {
			current, err := remainingStock(ctx, tx, next.ItemID)
			if err != nil {
				return err
			}
			if err := requireStock(next.ItemID, current, next.Impact()); err != nil {
				return err
			}
			if prev.Impact() > 0 {
				current, err := remainingStock(ctx, tx, prev.ItemID)
				if err != nil {
					return err
				}
				if err := requireStock(prev.ItemID, current, -prev.Impact()); err != nil {
					return err
				}
			}
		}

		updated = *prev
		updated.ItemID = next.ItemID
		updated.Quantity = next.Quantity
		updated.Kind = next.Kind
		updated.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateMovement(ctx, &updated); err != nil {
			return fmt.Errorf("update movement %d: %w", id, err)
		}
		updated.ItemName = item.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a movement unless its removal would leave the item below
// zero, e.g. a top-up whose quantity has already been ordered.
func (s *MovementService) Delete(ctx context.Context, id int64) error {
	return s.run(ctx, "movement.delete", func(ctx context.Context, tx port.Tx) error {
		m, err := tx.LockMovement(ctx, id)
		if err != nil {
			return fmt.Errorf("lock movement %d: %w", id, err)
		}
		if m == nil {
			return movementNotFound(id)
		}

		if _, err := lockItems(ctx, tx, m.ItemID); err != nil {
			return err
		}
		current, err := remainingStock(ctx, tx, m.ItemID)
		if err != nil {
			return err
		}
		if err := requireStock(m.ItemID, current, -m.Impact()); err != nil {
			return err
		}

		if err := tx.DeleteMovement(ctx, id); err != nil {
			return fmt.Errorf("delete movement %d: %w", id, err)
		}
		return nil
	})
}

func movementNotFound(id int64) error {
	return domain.NewNotFoundError("movement", "id", id)
}
