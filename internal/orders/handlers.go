package orders

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the order endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the HTTP handlers for order endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// CreateOrderHandler handles POST requests to place a new order.
// Request body carries the order request fields.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.PlaceOrder(req, "")
		if err != nil {
			var placement *venue.PlacementError
			switch {
			case errors.As(err, &placement):
				response.BadRequest(c, placement.Error())
			case errors.Is(err, venue.ErrDuplicateOrderID):
				response.Conflict(c, err.Error())
			case errors.Is(err, venue.ErrNotConnected), errors.Is(err, venue.ErrNoOrderID):
				response.ServiceUnavailable(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, order)
	}
}

// GetOrderHandler handles GET requests for a single order.
// URL parameter: order_id (the venue order id). Query parameter
// refresh=true re-syncs the record from the venue's last-known state
// before responding.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		venueOrderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid order ID")
			return
		}
		refresh := c.Query("refresh") == "true"

		order, err := h.service.GetOrder(venueOrderID, refresh)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		response.Success(c, order)
	}
}

// GetOrderByLocalIDHandler handles GET requests looking an order up by
// its local record id rather than the venue order id.
func (h *GinHandlers) GetOrderByLocalIDHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrderByLocalID(c.Param("local_id"))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		response.Success(c, order)
	}
}

// CancelOrderHandler handles POST requests to cancel a working order.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		venueOrderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid order ID")
			return
		}

		if err := h.service.CancelOrder(venueOrderID); err != nil {
			if errors.Is(err, venue.ErrNotConnected) {
				response.ServiceUnavailable(c, err.Error())
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"order_id": venueOrderID, "cancel_requested": true})
	}
}

// ListOrdersHandler handles GET requests for the paginated order list.
// Query parameters: page (default 1), limit (default 10).
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit < 1 {
			limit = 10
		}

		list, total, err := h.service.ListOrders(page, limit)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		pages := (total + int64(limit) - 1) / int64(limit)
		response.Success(c, types.OrderListResponse{
			Orders: list,
			Pagination: types.Pagination{
				Page:  page,
				Limit: limit,
				Total: total,
				Pages: pages,
			},
		})
	}
}
