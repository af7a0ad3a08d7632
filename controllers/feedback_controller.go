package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/services"
	"go.uber.org/zap"
)

// FeedbackController serves customer feedback and its risk analysis
type FeedbackController struct {
	feedback *services.FeedbackService
	logger   *zap.Logger
}

// NewFeedbackController creates the feedback handlers
func NewFeedbackController(feedback *services.FeedbackService, logger *zap.Logger) *FeedbackController {
	return &FeedbackController{feedback: feedback, logger: logger}
}

// Create handles POST /api/v1/feedback
func (fc *FeedbackController) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var input services.CreateFeedbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondValidation(c, err)
		return
	}

	feedback, err := fc.feedback.Create(c.Request.Context(), caller, input)
	if err != nil {
		respondError(c, fc.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, feedback)
}

// List handles GET /api/v1/feedback (staff)
func (fc *FeedbackController) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	customerID, ok := queryUint(c, "customer_id")
	if !ok {
		return
	}
	filter := services.FeedbackFilter{
		CustomerID: customerID,
		RiskLevel:  c.Query("risk_level"),
	}
	for key, dst := range map[string]*int{"rating_min": &filter.RatingMin, "rating_max": &filter.RatingMax} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, services.CodeValidation, key+" must be an integer")
			return
		}
		*dst = v
	}

	feedback, err := fc.feedback.List(c.Request.Context(), caller, filter)
	if err != nil {
		respondError(c, fc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, feedback)
}

// ListMine handles GET /api/v1/feedback/mine
func (fc *FeedbackController) ListMine(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	feedback, err := fc.feedback.ListForCustomer(c.Request.Context(), caller)
	if err != nil {
		respondError(c, fc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, feedback)
}

// Get handles GET /api/v1/feedback/:id
func (fc *FeedbackController) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	feedback, err := fc.feedback.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, fc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, feedback)
}

// GetByOrder handles GET /api/v1/feedback/order/:orderId
func (fc *FeedbackController) GetByOrder(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}

	feedback, err := fc.feedback.GetByOrder(c.Request.Context(), caller, orderID)
	if err != nil {
		respondError(c, fc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, feedback)
}

// Statistics handles GET /api/v1/feedback/statistics (staff)
func (fc *FeedbackController) Statistics(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	stats, err := fc.feedback.Statistics(c.Request.Context(), caller)
	if err != nil {
		respondError(c, fc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, stats)
}

// Delete handles DELETE /api/v1/feedback/:id (staff)
func (fc *FeedbackController) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := fc.feedback.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, fc.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Feedback deleted",
	})
}
