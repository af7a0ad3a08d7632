package services

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/kendall-kelly/snackline-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductFilter narrows List
type ProductFilter struct {
	Category  string
	Available *bool
	Search    string
}

// ProductInput is the body of a new product
type ProductInput struct {
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category" binding:"required"`
	Stock        int             `json:"stock"`
	StockMinimum int             `json:"stock_minimum"`
	Available    *bool           `json:"available"`
}

// ProductPatch carries the fields an operator edit touches; nil fields are left alone
type ProductPatch struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Price        *decimal.Decimal `json:"price"`
	Category     *string          `json:"category"`
	Stock        *int             `json:"stock"`
	StockMinimum *int             `json:"stock_minimum"`
	Available    *bool            `json:"available"`
}

// CatalogService manages products. Stock changes made here are column-scoped
// so they never overwrite a reservation that lands between read and write.
type CatalogService struct {
	db     *gorm.DB
	images ImageService
	logger *zap.Logger
}

// NewCatalogService creates a catalog over db. images may be nil when S3 is
// not configured; image operations then fail and reads carry no image URL.
func NewCatalogService(db *gorm.DB, images ImageService, logger *zap.Logger) *CatalogService {
	return &CatalogService{db: db, images: images, logger: logger}
}

// List returns products matching filter, newest first
func (s *CatalogService) List(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := s.db.WithContext(ctx).Model(&models.Product{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Available != nil {
		query = query.Where("available = ?", *filter.Available)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var products []models.Product
	if err := query.Order("created_at DESC").Order("id DESC").Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		s.withImageURL(ctx, &products[i])
	}
	return products, nil
}

// Get returns one product
func (s *CatalogService) Get(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	s.withImageURL(ctx, product)
	return product, nil
}

// Create validates input and stores a new product. A product without
// stock is always stored unavailable.
func (s *CatalogService) Create(ctx context.Context, input ProductInput) (*models.Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateProduct(input.Name, input.Description, input.Price, input.Category, input.Stock, input.StockMinimum); err != nil {
		return nil, err
	}

	available := true
	if input.Available != nil {
		available = *input.Available
	}
	product := models.Product{
		Name:         input.Name,
		Description:  input.Description,
		Price:        input.Price,
		Category:     input.Category,
		Stock:        input.Stock,
		StockMinimum: input.StockMinimum,
		Available:    available && input.Stock > 0,
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.Uint("product_id", product.ID), zap.String("name", product.Name))
	product.LowStock = product.IsLowStock()
	return &product, nil
}

// Update applies an operator edit. Only the columns present in patch are
// written. An edit that leaves stock at zero leaves the product unavailable;
// restocking an empty product makes it available again unless the edit
// says otherwise.
func (s *CatalogService) Update(ctx context.Context, id uint, patch ProductPatch) (*models.Product, error) {
	db := s.db.WithContext(ctx)
	current, err := s.find(db, id)
	if err != nil {
		return nil, err
	}

	merged := ProductInput{
		Name:         current.Name,
		Description:  current.Description,
		Price:        current.Price,
		Category:     current.Category,
		Stock:        current.Stock,
		StockMinimum: current.StockMinimum,
	}
	updates := map[string]interface{}{}
	if patch.Name != nil {
		merged.Name = strings.TrimSpace(*patch.Name)
		updates["name"] = merged.Name
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
		updates["description"] = merged.Description
	}
	if patch.Price != nil {
		merged.Price = *patch.Price
		updates["price"] = merged.Price
	}
	if patch.Category != nil {
		merged.Category = *patch.Category
		updates["category"] = merged.Category
	}
	if patch.Stock != nil {
		merged.Stock = *patch.Stock
		updates["stock"] = merged.Stock
	}
	if patch.StockMinimum != nil {
		merged.StockMinimum = *patch.StockMinimum
		updates["stock_minimum"] = merged.StockMinimum
	}
	if err := validateProduct(merged.Name, merged.Description, merged.Price, merged.Category, merged.Stock, merged.StockMinimum); err != nil {
		return nil, err
	}

	// SET expressions see the row as it was before this statement
	switch {
	case patch.Stock != nil && patch.Available != nil:
		updates["available"] = *patch.Available && *patch.Stock > 0
	case patch.Stock != nil && *patch.Stock == 0:
		updates["available"] = false
	case patch.Stock != nil:
		updates["available"] = gorm.Expr("CASE WHEN stock = 0 THEN ? ELSE available END", true)
	case patch.Available != nil && *patch.Available:
		updates["available"] = gorm.Expr("stock > 0")
	case patch.Available != nil:
		updates["available"] = false
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		if err := db.Model(&models.Product{}).Where("id = ?", id).UpdateColumns(updates).Error; err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, id)
}

// Delete soft-deletes a product. Orders keep their snapshots.
func (s *CatalogService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(ErrNotFound, CodeProductNotFound, "product %d not found", id)
	}
	s.logger.Info("product deleted", zap.Uint("product_id", id))
	return nil
}

// AttachImage uploads fileHeader as the product image and removes the
// previous one.
func (s *CatalogService) AttachImage(ctx context.Context, id uint, fileHeader *multipart.FileHeader) (*models.Product, error) {
	if s.images == nil {
		return nil, errors.New("image storage is not configured")
	}

	db := s.db.WithContext(ctx)
	product, err := s.find(db, id)
	if err != nil {
		return nil, err
	}

	key, err := s.images.UploadImage(ctx, fileHeader)
	if err != nil {
		return nil, err
	}

	if err := db.Model(&models.Product{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"image_s3_key": key,
		"updated_at":   time.Now(),
	}).Error; err != nil {
		if delErr := s.images.DeleteImage(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned image", zap.String("image_key", key), zap.Error(delErr))
		}
		return nil, err
	}

	if product.ImageS3Key != nil && *product.ImageS3Key != key {
		if err := s.images.DeleteImage(ctx, *product.ImageS3Key); err != nil {
			s.logger.Warn("failed to delete previous product image",
				zap.Uint("product_id", id), zap.String("image_key", *product.ImageS3Key), zap.Error(err))
		}
	}

	return s.Get(ctx, id)
}

func (s *CatalogService) find(db *gorm.DB, id uint) (*models.Product, error) {
	var product models.Product
	err := db.First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, CodeProductNotFound, "product %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *CatalogService) withImageURL(ctx context.Context, product *models.Product) {
	if s.images == nil || product.ImageS3Key == nil || *product.ImageS3Key == "" {
		return
	}
	url, err := s.images.GetImageURL(ctx, *product.ImageS3Key)
	if err != nil {
		s.logger.Warn("failed to generate product image URL", zap.Uint("product_id", product.ID), zap.Error(err))
		return
	}
	product.ImageURL = &url
}

func validateProduct(name, description string, price decimal.Decimal, category string, stock, stockMinimum int) error {
	switch {
	case len(name) < 3 || len(name) > 100:
		return newError(ErrInvalidInput, CodeValidation, "name must be between 3 and 100 characters")
	case len(description) > 500:
		return newError(ErrInvalidInput, CodeValidation, "description must be at most 500 characters")
	case price.IsNegative():
		return newError(ErrInvalidInput, CodeValidation, "price must not be negative")
	case !models.IsValidCategory(category):
		return newError(ErrInvalidInput, CodeValidation, "category must be one of %s", strings.Join(models.Categories, ", "))
	case stock < 0:
		return newError(ErrInvalidInput, CodeValidation, "stock must not be negative")
	case stockMinimum < 0:
		return newError(ErrInvalidInput, CodeValidation, "stock_minimum must not be negative")
	}
	return nil
}
