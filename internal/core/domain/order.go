package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const orderNoPrefix = "ORD-"

type Order struct {
	ID        int64
	OrderNo   string
	ItemID    int64
	ItemName  string
	Quantity  int
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrderNo allocates a human-readable order number such as ORD-1A2B3C4D.
func NewOrderNo() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return orderNoPrefix + strings.ToUpper(id[:8])
}

func (o Order) Validate() error {
	if o.ItemID <= 0 {
		return NewValidationError("itemId", "item id is required")
	}
	if o.Quantity <= 0 {
		return NewValidationError("qty", "quantity must be positive")
	}
	if !o.Price.IsPositive() {
		return NewValidationError("price", "price must be positive")
	}
	return nil
}
