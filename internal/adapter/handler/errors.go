package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
)

// retryAfterSeconds is sent with 503 responses for exhausted or unavailable
// order submissions.
const retryAfterSeconds = "1"

func errorResponse(err error) (int, ErrorResponse) {
	var stockErr *domain.InsufficientStockError

	switch {
	case errors.As(err, &stockErr):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "insufficient_stock",
			Message: stockErr.Error(),
			Details: map[string]any{
				"product_id": stockErr.ProductID,
				"requested":  stockErr.Requested,
				"available":  stockErr.Available,
			},
		}
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, ErrorResponse{Error: "empty_cart", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()}
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()}
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, ErrorResponse{Error: "duplicate_request", Message: err.Error()}
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "concurrency_exhausted",
			Message: "too many concurrent orders for the same products, try again",
		}
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "service temporarily unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "timeout"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "an unexpected error occurred"}
	}
}
