package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/observability"
	"github.com/kendall-kelly/snackline-api/risk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCommentLength = 1000

// CreateFeedbackInput is a customer's review of a completed order
type CreateFeedbackInput struct {
	OrderID     uint    `json:"order_id" binding:"required"`
	Rating      int     `json:"rating" binding:"required"`
	Comment     *string `json:"comment"`
	FoodQuality int     `json:"food_quality" binding:"required"`
	WaitTime    int     `json:"wait_time" binding:"required"`
	Attention   int     `json:"attention" binding:"required"`
}

// FeedbackFilter narrows List. Zero values are ignored.
type FeedbackFilter struct {
	CustomerID uint
	RiskLevel  string
	RatingMin  int
	RatingMax  int
}

// FeedbackStatistics summarizes every stored feedback
type FeedbackStatistics struct {
	Total            int64            `json:"total"`
	AverageRating    float64          `json:"average_rating"`
	RiskDistribution map[string]int64 `json:"risk_distribution"`
	AlertsDispatched int64            `json:"alerts_dispatched"`
}

// AlertOptions configures where high-risk alerts go
type AlertOptions struct {
	Recipient string
	Timeout   time.Duration
}

// FeedbackService stores feedback, classifies its risk and alerts on high risk
type FeedbackService struct {
	db         *gorm.DB
	dispatcher AlertDispatcher
	opts       AlertOptions
	logger     *zap.Logger
	tracer     trace.Tracer
	alerts     metric.Int64Counter
}

// NewFeedbackService creates the feedback service
func NewFeedbackService(db *gorm.DB, dispatcher AlertDispatcher, opts AlertOptions, logger *zap.Logger) *FeedbackService {
	alerts, err := observability.Meter().Int64Counter("feedback.alerts",
		metric.WithDescription("High-risk feedback alert dispatches by result"))
	if err != nil {
		logger.Warn("failed to create alerts counter", zap.Error(err))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &FeedbackService{
		db:         db,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		tracer:     observability.Tracer(),
		alerts:     alerts,
	}
}

// Create stores the caller's feedback on one of their completed orders.
// The risk level is computed here, once. A high level triggers an alert;
// whether it went out is recorded, but a failed alert never fails Create.
func (s *FeedbackService) Create(ctx context.Context, caller Caller, input CreateFeedbackInput) (*models.Feedback, error) {
	ctx, span := s.tracer.Start(ctx, "feedback.create")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", int(input.OrderID)))

	if err := validateFeedbackInput(input); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var order models.Order
	if err := db.First(&order, input.OrderID).Error; err != nil {
		return nil, orderLookupError(err, input.OrderID)
	}
	if order.CustomerID != caller.UserID {
		return nil, newError(ErrForbidden, CodeForbidden, "you can only leave feedback on your own orders")
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, newError(ErrOrderNotEligible, CodeOrderNotEligible, "feedback is only accepted for completed orders (order %d is %s)", order.ID, order.Status)
	}

	var existing int64
	if err := db.Model(&models.Feedback{}).Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, duplicateFeedbackError(order.ID)
	}

	comment := ""
	if input.Comment != nil {
		comment = *input.Comment
	}
	assessment := risk.Classify(risk.Input{
		Rating:      input.Rating,
		Comment:     comment,
		FoodQuality: input.FoodQuality,
		WaitTime:    input.WaitTime,
		Attention:   input.Attention,
	})

	feedback := models.Feedback{
		OrderID:        order.ID,
		CustomerID:     caller.UserID,
		Rating:         input.Rating,
		Comment:        input.Comment,
		FoodQuality:    input.FoodQuality,
		WaitTime:       input.WaitTime,
		Attention:      input.Attention,
		AspectsAverage: aspectsAverage(input.FoodQuality, input.WaitTime, input.Attention),
		RiskLevel:      assessment.Level.String(),
		Analysis:       make([]models.FeedbackAnalysis, 0, len(assessment.Trace)),
	}
	for _, score := range assessment.Trace {
		feedback.Analysis = append(feedback.Analysis, models.FeedbackAnalysis{
			Strategy: score.Strategy,
			Score:    score.Value,
			Level:    score.Level.String(),
		})
	}

	// the unique index on order_id settles concurrent submissions
	if err := db.Create(&feedback).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, duplicateFeedbackError(order.ID)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("feedback.risk_level", feedback.RiskLevel))

	s.logger.Info("feedback created",
		zap.Uint("feedback_id", feedback.ID),
		zap.Uint("order_id", order.ID),
		zap.String("risk_level", feedback.RiskLevel),
	)

	if assessment.Level == risk.High {
		s.dispatchAlert(ctx, &feedback)
	}

	return s.load(db, feedback.ID)
}

// dispatchAlert sends the high-risk alert and records success on the row
func (s *FeedbackService) dispatchAlert(ctx context.Context, feedback *models.Feedback) {
	if s.dispatcher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	subject := fmt.Sprintf("High risk feedback on order #%d", feedback.OrderID)
	err := s.dispatcher.SendAlert(ctx, s.opts.Recipient, subject, alertBody(feedback))
	s.recordAlert(ctx, err)
	if err != nil {
		s.logger.Warn("feedback alert dispatch failed",
			zap.Uint("feedback_id", feedback.ID),
			zap.Uint("order_id", feedback.OrderID),
			zap.Error(err),
		)
		return
	}

	if err := s.db.WithContext(ctx).Model(&models.Feedback{}).
		Where("id = ?", feedback.ID).
		UpdateColumn("alert_dispatched", true).Error; err != nil {
		s.logger.Warn("failed to record alert dispatch", zap.Uint("feedback_id", feedback.ID), zap.Error(err))
		return
	}
	feedback.AlertDispatched = true
}

// List returns feedback matching filter, newest first. Staff only.
func (s *FeedbackService) List(ctx context.Context, caller Caller, filter FeedbackFilter) ([]models.Feedback, error) {
	if !caller.IsStaff() {
		return nil, newError(ErrForbidden, CodeForbidden, "only staff can list all feedback")
	}
	return s.list(ctx, filter)
}

// ListForCustomer returns the caller's own feedback, newest first
func (s *FeedbackService) ListForCustomer(ctx context.Context, caller Caller) ([]models.Feedback, error) {
	return s.list(ctx, FeedbackFilter{CustomerID: caller.UserID})
}

func (s *FeedbackService) list(ctx context.Context, filter FeedbackFilter) ([]models.Feedback, error) {
	if filter.RiskLevel != "" {
		if _, err := risk.ParseLevel(filter.RiskLevel); err != nil {
			return nil, newError(ErrInvalidInput, CodeValidation, "risk_level must be one of low, medium, high")
		}
	}

	query := s.withDetails(s.db.WithContext(ctx))
	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.RiskLevel != "" {
		query = query.Where("risk_level = ?", filter.RiskLevel)
	}
	if filter.RatingMin > 0 {
		query = query.Where("rating >= ?", filter.RatingMin)
	}
	if filter.RatingMax > 0 {
		query = query.Where("rating <= ?", filter.RatingMax)
	}

	var feedback []models.Feedback
	err := query.Order("created_at DESC").Order("id DESC").Find(&feedback).Error
	return feedback, err
}

// Get returns one feedback to its author or to staff
func (s *FeedbackService) Get(ctx context.Context, caller Caller, id uint) (*models.Feedback, error) {
	feedback, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && feedback.CustomerID != caller.UserID {
		return nil, newError(ErrForbidden, CodeForbidden, "you can only view your own feedback")
	}
	return feedback, nil
}

// GetByOrder returns the feedback left on an order
func (s *FeedbackService) GetByOrder(ctx context.Context, caller Caller, orderID uint) (*models.Feedback, error) {
	var feedback models.Feedback
	err := s.withDetails(s.db.WithContext(ctx)).Where("order_id = ?", orderID).First(&feedback).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, CodeFeedbackNotFound, "no feedback for order %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && feedback.CustomerID != caller.UserID {
		return nil, newError(ErrForbidden, CodeForbidden, "you can only view your own feedback")
	}
	return &feedback, nil
}

// Statistics aggregates all feedback. Staff only.
func (s *FeedbackService) Statistics(ctx context.Context, caller Caller) (*FeedbackStatistics, error) {
	if !caller.IsStaff() {
		return nil, newError(ErrForbidden, CodeForbidden, "only staff can view feedback statistics")
	}

	db := s.db.WithContext(ctx)
	stats := &FeedbackStatistics{
		RiskDistribution: map[string]int64{models.RiskLow: 0, models.RiskMedium: 0, models.RiskHigh: 0},
	}

	if err := db.Model(&models.Feedback{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	var average float64
	if err := db.Model(&models.Feedback{}).Select("COALESCE(AVG(rating), 0)").Scan(&average).Error; err != nil {
		return nil, err
	}
	stats.AverageRating = math.Round(average*100) / 100

	var buckets []struct {
		RiskLevel string
		Count     int64
	}
	if err := db.Model(&models.Feedback{}).Select("risk_level, COUNT(*) AS count").Group("risk_level").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		stats.RiskDistribution[b.RiskLevel] = b.Count
	}

	if err := db.Model(&models.Feedback{}).Where("alert_dispatched = ?", true).Count(&stats.AlertsDispatched).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// Delete removes a feedback and its analysis. Staff only.
func (s *FeedbackService) Delete(ctx context.Context, caller Caller, id uint) error {
	if !caller.IsStaff() {
		return newError(ErrForbidden, CodeForbidden, "only staff can delete feedback")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("feedback_id = ?", id).Delete(&models.FeedbackAnalysis{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Feedback{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrNotFound, CodeFeedbackNotFound, "feedback %d not found", id)
		}
		return nil
	})
}

func (s *FeedbackService) withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Customer").Preload("Analysis", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

func (s *FeedbackService) load(db *gorm.DB, id uint) (*models.Feedback, error) {
	var feedback models.Feedback
	err := s.withDetails(db).First(&feedback, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, CodeFeedbackNotFound, "feedback %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (s *FeedbackService) recordAlert(ctx context.Context, err error) {
	if s.alerts == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	s.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func duplicateFeedbackError(orderID uint) error {
	return newError(ErrDuplicateFeedback, CodeDuplicateFeedback, "feedback already submitted for order %d", orderID)
}

func validateFeedbackInput(input CreateFeedbackInput) error {
	ratings := []struct {
		name  string
		value int
	}{
		{"rating", input.Rating},
		{"food_quality", input.FoodQuality},
		{"wait_time", input.WaitTime},
		{"attention", input.Attention},
	}
	for _, r := range ratings {
		if r.value < 1 || r.value > 5 {
			return newError(ErrInvalidInput, CodeValidation, "%s must be between 1 and 5", r.name)
		}
	}
	if input.Comment != nil && len(*input.Comment) > maxCommentLength {
		return newError(ErrInvalidInput, CodeValidation, "comment must be at most %d characters", maxCommentLength)
	}
	return nil
}

func aspectsAverage(foodQuality, waitTime, attention int) float64 {
	avg := float64(foodQuality+waitTime+attention) / 3
	return math.Round(avg*100) / 100
}

func alertBody(f *models.Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback #%d on order #%d was classified as HIGH risk.\n", f.ID, f.OrderID)
	fmt.Fprintf(&b, "Customer: %d\n", f.CustomerID)
	fmt.Fprintf(&b, "Rating: %d/5\n", f.Rating)
	fmt.Fprintf(&b, "Food quality: %d, wait time: %d, attention: %d (average %.2f)\n",
		f.FoodQuality, f.WaitTime, f.Attention, f.AspectsAverage)
	if f.Comment != nil && *f.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", *f.Comment)
	}
	for _, a := range f.Analysis {
		fmt.Fprintf(&b, "- %s: %s (score %.0f)\n", a.Strategy, a.Level, a.Score)
	}
	return b.String()
}
