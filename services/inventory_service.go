package services

import (
	"context"
	"errors"
	"time"

	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StockLine is a product and the quantity asked of it
type StockLine struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// BatchResult is the outcome of VerifyBatch
type BatchResult struct {
	OK          bool   `json:"ok"`
	Unavailable []uint `json:"unavailable"`
}

// InventoryService is the stock ledger. Reserve and Release are single
// conditional UPDATE statements; stock is never read, compared in Go and
// written back.
type InventoryService struct {
	db           *gorm.DB
	logger       *zap.Logger
	tracer       trace.Tracer
	reservations metric.Int64Counter
}

// NewInventoryService creates the ledger over db
func NewInventoryService(db *gorm.DB, logger *zap.Logger) *InventoryService {
	reservations, err := observability.Meter().Int64Counter("inventory.reservations",
		metric.WithDescription("Stock reservation attempts by result"))
	if err != nil {
		logger.Warn("failed to create reservations counter", zap.Error(err))
	}
	return &InventoryService{
		db:           db,
		logger:       logger,
		tracer:       observability.Tracer(),
		reservations: reservations,
	}
}

// Verify reports whether productID exists, is available and has at least
// quantity in stock. It never mutates anything.
func (s *InventoryService) Verify(ctx context.Context, productID uint, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, newError(ErrInvalidInput, CodeInvalidQuantity, "quantity must be greater than zero")
	}

	var product models.Product
	err := s.db.WithContext(ctx).Select("id", "stock", "stock_minimum", "available").First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return product.Available && product.Stock >= quantity, nil
}

// VerifyBatch runs Verify for every line and lists the products that would
// fail. It is a pre-flight check only; Reserve is authoritative.
func (s *InventoryService) VerifyBatch(ctx context.Context, lines []StockLine) (BatchResult, error) {
	result := BatchResult{OK: true, Unavailable: []uint{}}
	for _, line := range lines {
		ok, err := s.Verify(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return BatchResult{}, err
		}
		if !ok {
			result.OK = false
			result.Unavailable = append(result.Unavailable, line.ProductID)
		}
	}
	return result, nil
}

// Reserve takes quantity out of stock if, and only if, enough is left.
// A reservation that empties the product marks it unavailable in the same
// statement.
func (s *InventoryService) Reserve(ctx context.Context, productID uint, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "inventory.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("product.id", int(productID)),
		attribute.Int("inventory.quantity", quantity),
	)

	err := s.reserveWith(s.db.WithContext(ctx), productID, quantity)
	s.recordReservation(ctx, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Release puts quantity back into stock and makes the product available
func (s *InventoryService) Release(ctx context.Context, productID uint, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "inventory.release")
	defer span.End()
	span.SetAttributes(
		attribute.Int("product.id", int(productID)),
		attribute.Int("inventory.quantity", quantity),
	)

	err := s.releaseWith(s.db.WithContext(ctx), productID, quantity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// IsLowStock reports whether the product's stock is at or below its minimum
func (s *InventoryService) IsLowStock(ctx context.Context, productID uint) (bool, error) {
	var product models.Product
	err := s.db.WithContext(ctx).First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, newError(ErrNotFound, CodeProductNotFound, "product %d not found", productID)
	}
	if err != nil {
		return false, err
	}
	return product.IsLowStock(), nil
}

// ListLowStock returns every product with stock <= stock_minimum, emptiest first
func (s *InventoryService) ListLowStock(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("stock <= stock_minimum").
		Order("stock ASC").Order("id ASC").
		Find(&products).Error
	return products, err
}

// reserveWith runs the conditional decrement on tx, which may be the root
// handle or an open transaction.
func (s *InventoryService) reserveWith(tx *gorm.DB, productID uint, quantity int) error {
	if quantity <= 0 {
		return newError(ErrInvalidInput, CodeInvalidQuantity, "quantity must be greater than zero")
	}

	// the guard and the write are one statement; the SET expressions see
	// the pre-update row
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ? AND available = ?", productID, quantity, true).
		UpdateColumns(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", quantity),
			"available":  gorm.Expr("stock - ? > 0", quantity),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return newError(ErrNotFound, CodeProductNotFound, "product %d not found", productID)
	}
	return newError(ErrInsufficientStock, CodeInsufficientStock, "insufficient stock for product %d", productID)
}

// releaseWith runs the increment on tx. Soft-deleted products still get
// their stock back.
func (s *InventoryService) releaseWith(tx *gorm.DB, productID uint, quantity int) error {
	if quantity <= 0 {
		return newError(ErrInvalidInput, CodeInvalidQuantity, "quantity must be greater than zero")
	}

	res := tx.Unscoped().Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", quantity),
			"available":  true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(ErrNotFound, CodeProductNotFound, "product %d not found", productID)
	}
	return nil
}

func (s *InventoryService) recordReservation(ctx context.Context, err error) {
	if s.reservations == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrInsufficientStock):
		result = "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	s.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
