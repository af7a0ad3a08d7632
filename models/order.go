package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// OrderStatuses lists every order status in pipeline order
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// TerminalOrderStatuses accept no further transition
var TerminalOrderStatuses = []string{OrderStatusCompleted, OrderStatusCancelled}

// CancellableOrderStatuses are the statuses an order may be cancelled from
var CancellableOrderStatuses = []string{OrderStatusPending, OrderStatusPreparing}

// IsValidOrderStatus reports whether s is a known order status
func IsValidOrderStatus(s string) bool {
	for _, status := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus reports whether s is completed or cancelled
func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Order is a customer order. Line names and prices are snapshots taken at
// creation; later catalog edits never change them.
type Order struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	CustomerID uint            `gorm:"not null;index:idx_orders_customer_created,priority:1" json:"customer_id"` // foreign key to users table
	Customer   User            `gorm:"foreignKey:CustomerID" json:"customer"`
	Lines      []OrderLine     `gorm:"foreignKey:OrderID" json:"lines"`
	Total      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Status     string          `gorm:"size:20;not null;index" json:"status"` // pending, preparing, ready, completed, cancelled
	Notes      *string         `gorm:"size:500" json:"notes"`                // nullable
	CreatedAt  time.Time       `gorm:"index:idx_orders_customer_created,priority:2" json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// OrderLine is one product of an order with its creation-time snapshot
type OrderLine struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	OrderID     uint            `gorm:"not null;index" json:"-"`
	Position    int             `gorm:"not null" json:"position"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	ProductName string          `gorm:"size:100;not null" json:"product_name"`
	Quantity    int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
}

// TableName specifies the table name for the OrderLine model
func (OrderLine) TableName() string {
	return "order_lines"
}

// NewOrderLine builds a line from a product snapshot
func NewOrderLine(position int, product Product, quantity int) OrderLine {
	return OrderLine{
		Position:    position,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		Subtotal:    product.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// RecomputeTotal sets Total to the sum of the line subtotals
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal)
	}
	o.Total = total
}

// OrderStatusChange is one entry of an order's audit trail
type OrderStatusChange struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	FromStatus string    `gorm:"size:20" json:"from_status"` // empty for the creation entry
	ToStatus   string    `gorm:"size:20;not null" json:"to_status"`
	ChangedBy  uint      `gorm:"not null" json:"changed_by"` // user who made the change
	ChangedAt  time.Time `gorm:"not null" json:"changed_at"`
}

// TableName specifies the table name for the OrderStatusChange model
func (OrderStatusChange) TableName() string {
	return "order_status_changes"
}
