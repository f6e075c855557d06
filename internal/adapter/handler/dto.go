package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
)

type AddToCartRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type OrderRequest struct {
	CustomerName    string `json:"customer_name" validate:"required,max=255"`
	CustomerEmail   string `json:"customer_email" validate:"required,email,max=255"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
}

func (r OrderRequest) customer() domain.CustomerInfo {
	return domain.CustomerInfo{
		Name:    r.CustomerName,
		Email:   r.CustomerEmail,
		Address: r.ShippingAddress,
	}
}

type CartItemResponse struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	SessionID   string             `json:"session_id"`
	Items       []CartItemResponse `json:"items"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
}

func newCartResponse(sessionID string, lines []service.PricedLine, total decimal.Decimal) CartResponse {
	items := make([]CartItemResponse, 0, len(lines))
	for _, line := range lines {
		items = append(items, CartItemResponse{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Category:    line.Category,
			Price:       line.Price,
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal,
		})
	}

	return CartResponse{
		SessionID:   sessionID,
		Items:       items,
		TotalAmount: total,
	}
}

type OrderItemResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID              int64               `json:"id"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	ShippingAddress string              `json:"shipping_address"`
	Items           []OrderItemResponse `json:"items"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Status          string              `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newOrderResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, OrderItemResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		})
	}

	return OrderResponse{
		ID:              order.ID,
		CustomerName:    order.Customer.Name,
		CustomerEmail:   order.Customer.Email,
		ShippingAddress: order.Customer.Address,
		Items:           items,
		TotalAmount:     order.TotalAmount,
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
