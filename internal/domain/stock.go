package domain

import "time"

// StockLevel tracks the on-hand quantity for a single product.
type StockLevel struct {
	ProductID string
	OnHand    int64
	UpdatedAt time.Time
}
