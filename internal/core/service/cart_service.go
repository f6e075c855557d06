package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/mylogger"
	"github.com/rl1809/order-fulfillment/internal/port"
)

type CartService struct {
	carts   port.CartRepository
	catalog port.CatalogRepository
	logger  *zap.Logger
}

func NewCartService(carts port.CartRepository, catalog port.CatalogRepository, logger *zap.Logger) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		logger:  logger,
	}
}

func (s *CartService) GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	return s.carts.GetCart(ctx, sessionKey)
}

// AddToCart merges quantity units of a catalog product into the cart.
func (s *CartService) AddToCart(ctx context.Context, sessionKey string, productID int64, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	if err := s.carts.AddLine(ctx, sessionKey, productID, quantity); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to add cart line",
			zap.String("session_key", sessionKey),
			zap.Int64("product_id", productID),
			zap.Error(err),
		)
		return nil, err
	}

	return s.carts.GetCart(ctx, sessionKey)
}

// UpdateCartLine replaces the quantity of an existing line. Zero or less
// removes the line, and a product not in the cart is left alone.
func (s *CartService) UpdateCartLine(ctx context.Context, sessionKey string, productID int64, quantity int) (*domain.Cart, error) {
	found, err := s.carts.UpdateLine(ctx, sessionKey, productID, quantity)
	if err != nil {
		return nil, err
	}
	if !found {
		mylogger.Debug(ctx, s.logger, "Cart line not found, nothing updated",
			zap.String("session_key", sessionKey),
			zap.Int64("product_id", productID),
		)
	}

	return s.carts.GetCart(ctx, sessionKey)
}

func (s *CartService) ClearCart(ctx context.Context, sessionKey string) error {
	return s.carts.ClearCart(ctx, sessionKey)
}

// PricedLine is a cart line joined with its current catalog entry.
type PricedLine struct {
	ProductID int64
	Name      string
	Category  string
	Price     decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
}

// PriceCart prices every line of cart at the current catalog price. Lines are
// returned in ascending product order along with their total.
func (s *CartService) PriceCart(ctx context.Context, cart *domain.Cart) ([]PricedLine, decimal.Decimal, error) {
	lines := cart.SortedLines()
	priced := make([]PricedLine, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		priced = append(priced, PricedLine{
			ProductID: product.ID,
			Name:      product.Name,
			Category:  product.Category,
			Price:     product.Price,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}

	return priced, total, nil
}
