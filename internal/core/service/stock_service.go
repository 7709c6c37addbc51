package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stock-ledger/internal/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StockService reports derived stock levels. It never rejects; a negative
// value means rows were written around the guard.
type StockService struct {
	db     port.Reader
	tracer trace.Tracer
}

func NewStockService(db port.Reader, opts ...Option) *StockService {
	o := newOptions(opts)
	return &StockService{db: db, tracer: o.tracer}
}

func (s *StockService) RemainingStock(ctx context.Context, itemID int64) (int, error) {
	ctx, span := s.tracer.Start(ctx, "stock.remaining",
		trace.WithAttributes(attribute.Int64("item.id", itemID)))
	defer span.End()

	stock, err := s.db.RemainingStock(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("remaining stock for item %d: %w", itemID, err)
	}
	span.SetAttributes(attribute.Int("stock.remaining", stock))
	return stock, nil
}
