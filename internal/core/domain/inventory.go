package domain

import "time"

// Inventory is the stock counter of a single product. Version is the
// optimistic concurrency fence: the store increments it on every write and
// rejects writes carrying a different expected version.
type Inventory struct {
	ProductID int64
	Stock     int
	Version   int64
	UpdatedAt time.Time
}

// CanDecrement reports whether quantity units can be taken from this record.
func (i Inventory) CanDecrement(quantity int) bool {
	return quantity >= 1 && i.Stock >= quantity
}
