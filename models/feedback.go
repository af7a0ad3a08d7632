package models

import "time"

// Risk levels assigned to feedback
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Feedback is the single review a customer leaves on a completed order.
// RiskLevel is set once at creation and never recomputed.
type Feedback struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	OrderID         uint               `gorm:"not null;uniqueIndex" json:"order_id"` // at most one feedback per order
	CustomerID      uint               `gorm:"not null;index" json:"customer_id"`
	Customer        User               `gorm:"foreignKey:CustomerID" json:"customer"`
	Rating          int                `gorm:"not null;index;check:rating BETWEEN 1 AND 5" json:"rating"`
	Comment         *string            `gorm:"size:1000" json:"comment"`
	FoodQuality     int                `gorm:"not null" json:"food_quality"`
	WaitTime        int                `gorm:"not null" json:"wait_time"`
	Attention       int                `gorm:"not null" json:"attention"`
	AspectsAverage  float64            `gorm:"not null" json:"aspects_average"`
	RiskLevel       string             `gorm:"size:10;not null;index" json:"risk_level"`
	AlertDispatched bool               `gorm:"not null" json:"alert_dispatched"`
	Analysis        []FeedbackAnalysis `gorm:"foreignKey:FeedbackID" json:"analysis"`
	CreatedAt       time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// TableName specifies the table name for the Feedback model
func (Feedback) TableName() string {
	return "feedback"
}

// FeedbackAnalysis records what one risk strategy concluded
type FeedbackAnalysis struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	FeedbackID uint    `gorm:"not null;index" json:"-"`
	Strategy   string  `gorm:"size:30;not null" json:"strategy"`
	Score      float64 `gorm:"not null" json:"score"`
	Level      string  `gorm:"size:10;not null" json:"level"`
}

// TableName specifies the table name for the FeedbackAnalysis model
func (FeedbackAnalysis) TableName() string {
	return "feedback_analyses"
}
