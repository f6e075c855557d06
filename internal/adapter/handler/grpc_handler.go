package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
	"github.com/rl1809/order-fulfillment/internal/mylogger"
)

type GRPCHandler struct {
	orderService *service.OrderService
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		orderService: orderService,
		validate:     validator.New(),
		logger:       logger,
	}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	customer := domain.CustomerInfo{
		Name:    req.CustomerName,
		Email:   req.CustomerEmail,
		Address: req.ShippingAddress,
	}

	order, err := h.orderService.PlaceOrder(ctx, req.IdempotencyKey, req.SessionID, customer)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}

	resp := newOrderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := h.orderService.GetOrder(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}

	resp := newOrderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrConcurrencyExhausted), errors.Is(err, domain.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		mylogger.Error(ctx, h.logger, "gRPC request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
