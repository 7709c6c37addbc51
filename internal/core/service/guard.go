package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// guard runs every catalog and stock mutation as a single transaction.
type guard struct {
	db         port.DatabaseRepository
	logger     *zap.Logger
	tracer     trace.Tracer
	rejections metric.Int64Counter
}

func newGuard(db port.DatabaseRepository, o options) guard {
	rejections, err := o.meter.Int64Counter("inventory.guard.rejections",
		metric.WithDescription("Mutations rejected because stock would go negative"),
	)
	if err != nil {
		o.logger.Warn("create rejection counter", zap.Error(err))
		rejections, _ = metricnoop.Meter{}.Int64Counter("inventory.guard.rejections")
	}
	return guard{
		db:         db,
		logger:     o.logger,
		tracer:     o.tracer,
		rejections: rejections,
	}
}

func (g *guard) run(ctx context.Context, op string, fn func(ctx context.Context, tx port.Tx) error) error {
	ctx, span := g.tracer.Start(ctx, op)
	defer span.End()

	err := g.db.WithinTx(ctx, fn)
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		g.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
		g.logger.Info("stock check rejected",
			zap.String("operation", op),
			zap.Int64("item_id", stockErr.ItemID),
			zap.Int("requested", stockErr.Requested),
			zap.Int("available", stockErr.Available),
		)
	case domain.KindOf(err) == domain.KindInternal:
		g.logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// lockItems locks each distinct item in ascending id order. Missing items are
// absent from the result.
func lockItems(ctx context.Context, tx port.Tx, ids ...int64) (map[int64]*domain.Item, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	items := make(map[int64]*domain.Item, len(sorted))
	for _, id := range sorted {
		item, err := tx.LockItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock item %d: %w", id, err)
		}
		if item != nil {
			items[id] = item
		}
	}
	return items, nil
}

func itemNotFound(id int64) error {
	return domain.NewNotFoundError("item", "id", id)
}

// remainingStock reads the item's stock through tx.
func remainingStock(ctx context.Context, tx port.Tx, itemID int64) (int, error) {
	stock, err := tx.RemainingStock(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("remaining stock for item %d: %w", itemID, err)
	}
	return stock, nil
}

// requireStock fails when applying delta to current would leave the item
// below zero.
func requireStock(itemID int64, current, delta int) error {
	if current+delta < 0 {
		return &domain.InsufficientStockError{
			ItemID:    itemID,
			Requested: -delta,
			Available: current,
		}
	}
	return nil
}
