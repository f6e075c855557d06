package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return status, nil
	}
	return "", ErrInvalidStatus
}

type CustomerInfo struct {
	Name    string
	Email   string
	Address string
}

// OrderLine keeps the unit price captured when the order was placed. Later
// catalog price changes never touch it.
type OrderLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID          int64
	Customer    CustomerInfo
	Lines       []OrderLine
	TotalAmount decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
}

// NewOrder assembles a pending order from its lines. An order always has at
// least one line.
func NewOrder(customer CustomerInfo, lines []OrderLine, createdAt time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}

	return &Order{
		Customer:    customer,
		Lines:       lines,
		TotalAmount: total,
		Status:      OrderStatusPending,
		CreatedAt:   createdAt,
	}, nil
}

func (o *Order) Clone() *Order {
	clone := *o
	clone.Lines = make([]OrderLine, len(o.Lines))
	copy(clone.Lines, o.Lines)
	return &clone
}

// Quantity returns the number of units the order holds for productID.
func (o *Order) Quantity(productID int64) int {
	n := 0
	for _, line := range o.Lines {
		if line.ProductID == productID {
			n += line.Quantity
		}
	}
	return n
}
