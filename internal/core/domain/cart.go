package domain

import "sort"

type CartLine struct {
	ProductID int64
	Quantity  int
}

// Cart is the set of lines collected under one session. It holds at most one
// line per product.
type Cart struct {
	SessionKey string
	Lines      []CartLine
}

func NewCart(sessionKey string) *Cart {
	return &Cart{SessionKey: sessionKey}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Line(productID int64) (CartLine, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// Add merges quantity into the existing line for productID or appends a new one.
func (c *Cart) Add(productID int64, quantity int) {
	if i := c.index(productID); i >= 0 {
		c.Lines[i].Quantity += quantity
		return
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Quantity: quantity})
}

// Update replaces the quantity of an existing line, removing it when quantity
// is zero or negative. It returns false when the cart has no such line.
func (c *Cart) Update(productID int64, quantity int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return true
	}
	c.Lines[i].Quantity = quantity
	return true
}

func (c *Cart) Clear() {
	c.Lines = nil
}

// SortedLines returns a copy of the lines ordered by ascending product ID.
func (c *Cart) SortedLines() []CartLine {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID < lines[j].ProductID
	})
	return lines
}

func (c *Cart) Clone() *Cart {
	clone := &Cart{SessionKey: c.SessionKey}
	if len(c.Lines) > 0 {
		clone.Lines = make([]CartLine, len(c.Lines))
		copy(clone.Lines, c.Lines)
	}
	return clone
}

func (c *Cart) index(productID int64) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}
