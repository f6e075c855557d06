package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. It owns the inventory record for its ID.
type Product struct {
	ID        int64
	Name      string
	Category  string
	Price     decimal.Decimal
	Stock     int
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Product) Inventory() Inventory {
	return Inventory{
		ProductID: p.ID,
		Stock:     p.Stock,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
	}
}
