package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNotesLength = 500

// CodeOrderConflict is returned when an order changed under a transition
const CodeOrderConflict = "ORDER_CONFLICT"

// CreateOrderInput is a customer's order request
type CreateOrderInput struct {
	Lines          []StockLine `json:"lines" binding:"required"`
	Notes          *string     `json:"notes"`
	IdempotencyKey string      `json:"-"`
}

// OrderFilter narrows List
type OrderFilter struct {
	CustomerID uint
	Status     string
}

// OrderService owns the order lifecycle. Creation reserves stock line by
// line and compensates on failure; cancellation flips the status and
// releases stock in one transaction.
type OrderService struct {
	db          *gorm.DB
	inventory   *InventoryService
	idempotency IdempotencyStore
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewOrderService creates the workflow engine. idempotency may be nil.
func NewOrderService(db *gorm.DB, inventory *InventoryService, idempotency IdempotencyStore, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:          db,
		inventory:   inventory,
		idempotency: idempotency,
		logger:      logger,
		tracer:      observability.Tracer(),
	}
}

// Create places an order for caller. Every line is reserved in request
// order; if one fails, the ones already reserved are released and the
// original failure is returned. Nothing is persisted until every line holds
// its stock.
func (s *OrderService) Create(ctx context.Context, caller Caller, input CreateOrderInput) (order *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()
	span.SetAttributes(attribute.Int("order.lines", len(input.Lines)), attribute.Int("customer.id", int(caller.UserID)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if caller.Role != models.RoleCustomer {
		return nil, newError(ErrForbidden, CodeForbidden, "only customers can create orders")
	}
	if err := validateOrderInput(input); err != nil {
		return nil, err
	}

	// set once the order has committed
	var created *models.Order

	if input.IdempotencyKey != "" && s.idempotency != nil {
		key := fmt.Sprintf("%d:%s", caller.UserID, input.IdempotencyKey)
		var existingID uint
		var claimed bool
		existingID, claimed, err = s.idempotency.Claim(ctx, key)
		if err != nil {
			return nil, err
		}
		if !claimed {
			if existingID == 0 {
				return nil, newError(ErrIdempotencyConflict, CodeIdempotencyConflict, "a request with this idempotency key is still in progress")
			}
			s.logger.Info("returning order for repeated idempotency key", zap.Uint("order_id", existingID))
			return s.load(s.db.WithContext(ctx), existingID)
		}
		defer func() {
			// the outcome is stored even if the client went away
			// a committed order keeps its key even if reloading it failed
			bg := context.WithoutCancel(ctx)
			if created == nil {
				if abandonErr := s.idempotency.Abandon(bg, key); abandonErr != nil {
					s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(abandonErr))
				}
				return
			}
			if completeErr := s.idempotency.Complete(bg, key, created.ID); completeErr != nil {
				s.logger.Warn("failed to store idempotency key", zap.String("key", key), zap.Error(completeErr))
			}
		}()
	}

	preflight, err := s.inventory.VerifyBatch(ctx, input.Lines)
	if err != nil {
		return nil, err
	}
	if !preflight.OK {
		return nil, newError(ErrInsufficientStock, CodeInsufficientStock,
			"products not available in the requested quantity: %s", joinIDs(preflight.Unavailable))
	}

	reserved := make([]StockLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		if err := s.inventory.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			s.compensate(ctx, reserved, err)
			return nil, err
		}
		reserved = append(reserved, line)
	}

	created, err = s.persist(ctx, caller, input)
	if err != nil {
		s.compensate(ctx, reserved, err)
		return nil, err
	}

	s.logger.Info("order created",
		zap.Uint("order_id", created.ID),
		zap.Uint("customer_id", caller.UserID),
		zap.String("total", created.Total.StringFixed(2)),
	)
	return s.load(s.db.WithContext(ctx), created.ID)
}

// persist snapshots every product and writes the order, its lines and the
// creation audit entry in one transaction.
func (s *OrderService) persist(ctx context.Context, caller Caller, input CreateOrderInput) (*models.Order, error) {
	order := &models.Order{
		CustomerID: caller.UserID,
		Status:     models.OrderStatusPending,
		Notes:      input.Notes,
		Lines:      make([]models.OrderLine, 0, len(input.Lines)),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, line := range input.Lines {
			var product models.Product
			if err := tx.Unscoped().First(&product, line.ProductID).Error; err != nil {
				return fmt.Errorf("failed to snapshot product %d: %w", line.ProductID, err)
			}
			order.Lines = append(order.Lines, models.NewOrderLine(i+1, product, line.Quantity))
		}
		order.RecomputeTotal()

		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderStatusChange{
			OrderID:   order.ID,
			ToStatus:  models.OrderStatusPending,
			ChangedBy: caller.UserID,
			ChangedAt: time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// compensate releases reservations in reverse order. A release that fails
// leaves stock short; it is logged for reconciliation and the caller still
// gets the original error.
func (s *OrderService) compensate(ctx context.Context, reserved []StockLine, cause error) {
	ctx = context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := s.inventory.Release(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("compensating release failed",
				zap.Bool("inventory_inconsistent", true),
				zap.Uint("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
		}
	}
}

// Transition moves an order to status. Staff only. Cancelling goes through
// Cancel so the stock comes back.
func (s *OrderService) Transition(ctx context.Context, caller Caller, id uint, status string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.transition")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", int(id)), attribute.String("order.status", status))

	if !caller.IsStaff() {
		return nil, newError(ErrForbidden, CodeForbidden, "only staff can change order status")
	}
	if !models.IsValidOrderStatus(status) {
		return nil, newError(ErrInvalidInput, CodeValidation, "status must be one of %s", strings.Join(models.OrderStatuses, ", "))
	}
	if status == models.OrderStatusCancelled {
		return s.Cancel(ctx, caller, id)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, id).Error; err != nil {
			return orderLookupError(err, id)
		}
		if models.IsTerminalOrderStatus(order.Status) {
			return newError(ErrOrderTerminal, CodeOrderTerminal, "order %d is %s and cannot change status", id, order.Status)
		}
		if order.Status == status {
			return nil
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, order.Status).
			UpdateColumns(map[string]interface{}{"status": status, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current models.Order
			if err := tx.First(&current, id).Error; err != nil {
				return orderLookupError(err, id)
			}
			if models.IsTerminalOrderStatus(current.Status) {
				return newError(ErrOrderTerminal, CodeOrderTerminal, "order %d is %s and cannot change status", id, current.Status)
			}
			return newError(ErrConflict, CodeOrderConflict, "order %d changed while updating, retry", id)
		}

		return tx.Create(&models.OrderStatusChange{
			OrderID:    id,
			FromStatus: order.Status,
			ToStatus:   status,
			ChangedBy:  caller.UserID,
			ChangedAt:  time.Now(),
		}).Error
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Info("order status changed", zap.Uint("order_id", id), zap.String("status", status), zap.Uint("changed_by", caller.UserID))
	return s.load(s.db.WithContext(ctx), id)
}

// Cancel cancels a pending or preparing order and releases its stock. The
// owning customer or staff may cancel. Status flip, releases and the audit
// entry commit together or not at all.
func (s *OrderService) Cancel(ctx context.Context, caller Caller, id uint) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", int(id)))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("Lines").First(&order, id).Error; err != nil {
			return orderLookupError(err, id)
		}
		if !caller.IsStaff() && order.CustomerID != caller.UserID {
			return newError(ErrForbidden, CodeForbidden, "you can only cancel your own orders")
		}
		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusPreparing {
			return newError(ErrInvalidCancellation, CodeInvalidCancellation,
				"order %d is %s; only pending or preparing orders can be cancelled", id, order.Status)
		}

		// the status guard makes this the only release for the order
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, order.Status).
			UpdateColumns(map[string]interface{}{"status": models.OrderStatusCancelled, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrInvalidCancellation, CodeInvalidCancellation, "order %d changed while cancelling", id)
		}

		// fixed lock order across concurrent cancels
		lines := slices.Clone(order.Lines)
		slices.SortStableFunc(lines, func(a, b models.OrderLine) int {
			return cmp.Compare(a.ProductID, b.ProductID)
		})
		for _, line := range lines {
			if err := s.inventory.releaseWith(tx, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("failed to release product %d: %w", line.ProductID, err)
			}
		}

		return tx.Create(&models.OrderStatusChange{
			OrderID:    id,
			FromStatus: order.Status,
			ToStatus:   models.OrderStatusCancelled,
			ChangedBy:  caller.UserID,
			ChangedAt:  time.Now(),
		}).Error
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Info("order cancelled", zap.Uint("order_id", id), zap.Uint("cancelled_by", caller.UserID))
	return s.load(s.db.WithContext(ctx), id)
}

// Delete hard-deletes a cancelled order with its lines and history. Staff only.
func (s *OrderService) Delete(ctx context.Context, caller Caller, id uint) error {
	if !caller.IsStaff() {
		return newError(ErrForbidden, CodeForbidden, "only staff can delete orders")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, id).Error; err != nil {
			return orderLookupError(err, id)
		}
		if order.Status != models.OrderStatusCancelled {
			return newError(ErrDeleteNotAllowed, CodeDeleteNotAllowed, "only cancelled orders can be deleted")
		}

		if err := tx.Where("order_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderStatusChange{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Order{}, id).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("order deleted", zap.Uint("order_id", id), zap.Uint("deleted_by", caller.UserID))
	return nil
}

// Get returns an order to its owner or to staff
func (s *OrderService) Get(ctx context.Context, caller Caller, id uint) (*models.Order, error) {
	order, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && order.CustomerID != caller.UserID {
		return nil, newError(ErrForbidden, CodeForbidden, "you can only view your own orders")
	}
	return order, nil
}

// List returns orders matching filter, newest first. Staff only.
func (s *OrderService) List(ctx context.Context, caller Caller, filter OrderFilter) ([]models.Order, error) {
	if !caller.IsStaff() {
		return nil, newError(ErrForbidden, CodeForbidden, "only staff can list all orders")
	}
	if filter.Status != "" && !models.IsValidOrderStatus(filter.Status) {
		return nil, newError(ErrInvalidInput, CodeValidation, "unknown status %q", filter.Status)
	}

	query := s.withDetails(s.db.WithContext(ctx))
	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var orders []models.Order
	err := query.Order("created_at DESC").Order("id DESC").Find(&orders).Error
	return orders, err
}

// ListForCustomer returns the caller's own orders, newest first
func (s *OrderService) ListForCustomer(ctx context.Context, caller Caller) ([]models.Order, error) {
	var orders []models.Order
	err := s.withDetails(s.db.WithContext(ctx)).
		Where("customer_id = ?", caller.UserID).
		Order("created_at DESC").Order("id DESC").
		Find(&orders).Error
	return orders, err
}

// History returns the audit trail of an order, oldest first
func (s *OrderService) History(ctx context.Context, caller Caller, id uint) ([]models.OrderStatusChange, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}

	var changes []models.OrderStatusChange
	err := s.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("changed_at ASC").Order("id ASC").
		Find(&changes).Error
	return changes, err
}

func (s *OrderService) withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Customer").Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (s *OrderService) load(db *gorm.DB, id uint) (*models.Order, error) {
	var order models.Order
	if err := s.withDetails(db).First(&order, id).Error; err != nil {
		return nil, orderLookupError(err, id)
	}
	return &order, nil
}

func orderLookupError(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrNotFound, CodeOrderNotFound, "order %d not found", id)
	}
	return err
}

func validateOrderInput(input CreateOrderInput) error {
	if len(input.Lines) == 0 {
		return newError(ErrInvalidInput, CodeValidation, "an order needs at least one line")
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 {
			return newError(ErrInvalidInput, CodeValidation, "every line needs a product_id")
		}
		if line.Quantity <= 0 {
			return newError(ErrInvalidInput, CodeInvalidQuantity, "quantity must be greater than zero")
		}
	}
	if input.Notes != nil && len(*input.Notes) > maxNotesLength {
		return newError(ErrInvalidInput, CodeValidation, "notes must be at most %d characters", maxNotesLength)
	}
	return nil
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
