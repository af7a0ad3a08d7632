package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/services"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader lets a client retry order creation safely
const IdempotencyKeyHeader = "Idempotency-Key"

// UpdateOrderStatusRequest is the body of PATCH /orders/:id/status
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// OrderController serves the order workflow
type OrderController struct {
	orders *services.OrderService
	logger *zap.Logger
}

// NewOrderController creates the order handlers
func NewOrderController(orders *services.OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, logger: logger}
}

// Create handles POST /api/v1/orders (customers only)
func (oc *OrderController) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input services.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondValidation(c, err)
		return
	}
	input.IdempotencyKey = c.GetHeader(IdempotencyKeyHeader)

	order, err := oc.orders.Create(c.Request.Context(), caller, input)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, order)
}

// ListMine handles GET /api/v1/orders/mine
func (oc *OrderController) ListMine(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	orders, err := oc.orders.ListForCustomer(c.Request.Context(), caller)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, orders)
}

// List handles GET /api/v1/orders (staff), filtered by ?status= and ?customer_id=
func (oc *OrderController) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	customerID, ok := queryUint(c, "customer_id")
	if !ok {
		return
	}

	orders, err := oc.orders.List(c.Request.Context(), caller, services.OrderFilter{
		CustomerID: customerID,
		Status:     c.Query("status"),
	})
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, orders)
}

// Get handles GET /api/v1/orders/:id
func (oc *OrderController) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := oc.orders.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, order)
}

// History handles GET /api/v1/orders/:id/history
func (oc *OrderController) History(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	history, err := oc.orders.History(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, history)
}

// UpdateStatus handles PATCH /api/v1/orders/:id/status (staff)
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := oc.orders.Transition(c.Request.Context(), caller, id, req.Status)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, order)
}

// Cancel handles PATCH /api/v1/orders/:id/cancel
func (oc *OrderController) Cancel(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := oc.orders.Cancel(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, order)
}

// Delete handles DELETE /api/v1/orders/:id (staff, cancelled orders only)
func (oc *OrderController) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := oc.orders.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order deleted",
	})
}
