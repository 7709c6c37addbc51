package domain

import "time"

type MovementKind string

const (
	MovementTopUp      MovementKind = "T"
	MovementWithdrawal MovementKind = "W"
)

func (k MovementKind) Valid() bool {
	return k == MovementTopUp || k == MovementWithdrawal
}

type Movement struct {
	ID        int64
	ItemID    int64
	ItemName  string
	Quantity  int
	Kind      MovementKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Impact is the signed contribution of the movement to its item's stock.
func (m Movement) Impact() int {
	return SignedQuantity(m.Kind, m.Quantity)
}

func SignedQuantity(kind MovementKind, quantity int) int {
	if kind == MovementTopUp {
		return quantity
	}
	return -quantity
}

func (m Movement) Validate() error {
	if m.ItemID <= 0 {
		return NewValidationError("itemId", "item id is required")
	}
	if m.Quantity <= 0 {
		return NewValidationError("qty", "quantity must be positive")
	}
	if !m.Kind.Valid() {
		return NewValidationError("type", "type must be T or W")
	}
	return nil
}
