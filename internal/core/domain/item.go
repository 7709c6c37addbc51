package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemStock is an item together with its derived remaining stock.
type ItemStock struct {
	Item
	RemainingStock int
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if i.Price.IsNegative() {
		return NewValidationError("price", "price must not be negative")
	}
	return nil
}
