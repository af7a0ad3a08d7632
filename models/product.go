package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product categories (closed set)
const (
	CategoryDrink   = "drink"
	CategoryFood    = "food"
	CategorySnack   = "snack"
	CategoryDessert = "dessert"
	CategoryOther   = "other"
)

// Categories lists every accepted product category
var Categories = []string{CategoryDrink, CategoryFood, CategorySnack, CategoryDessert, CategoryOther}

// IsValidCategory reports whether c is one of Categories
func IsValidCategory(c string) bool {
	for _, category := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Product is a catalog entry whose stock is managed by the inventory ledger
type Product struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	Description  string          `gorm:"size:500" json:"description"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Category     string          `gorm:"size:20;not null;index:idx_products_category_available,priority:1" json:"category"`
	Stock        int             `gorm:"not null;check:stock >= 0;index" json:"stock"`
	StockMinimum int             `gorm:"not null;check:stock_minimum >= 0" json:"stock_minimum"`
	Available    bool            `gorm:"not null;index:idx_products_category_available,priority:2" json:"available"`
	ImageS3Key   *string         `json:"image_s3_key,omitempty"`       // nullable, S3 key of the product image
	ImageURL     *string         `gorm:"-" json:"image_url,omitempty"` // computed field, presigned URL for image
	LowStock     bool            `gorm:"-" json:"low_stock"`           // computed field, stock <= stock_minimum
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// AfterFind fills the computed low-stock flag
func (p *Product) AfterFind(tx *gorm.DB) error {
	p.LowStock = p.IsLowStock()
	return nil
}

// IsLowStock reports whether stock has dropped to the reorder threshold
func (p *Product) IsLowStock() bool {
	return p.Stock <= p.StockMinimum
}
