package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/services"
	"go.uber.org/zap"
)

// AvailabilityRequest asks whether a basket can be served right now
type AvailabilityRequest struct {
	Lines []services.StockLine `json:"lines" binding:"required,min=1,dive"`
}

// ProductController serves the catalog
type ProductController struct {
	catalog   *services.CatalogService
	inventory *services.InventoryService
	logger    *zap.Logger
}

// NewProductController creates the catalog handlers
func NewProductController(catalog *services.CatalogService, inventory *services.InventoryService, logger *zap.Logger) *ProductController {
	return &ProductController{catalog: catalog, inventory: inventory, logger: logger}
}

// List handles GET /api/v1/products
func (pc *ProductController) List(c *gin.Context) {
	filter := services.ProductFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}
	if raw := c.Query("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, services.CodeValidation, "available must be true or false")
			return
		}
		filter.Available = &available
	}

	products, err := pc.catalog.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, products)
}

// Get handles GET /api/v1/products/:id
func (pc *ProductController) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	product, err := pc.catalog.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, product)
}

// Availability handles POST /api/v1/products/availability
func (pc *ProductController) Availability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := pc.inventory.VerifyBatch(c.Request.Context(), req.Lines)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, result)
}

// Create handles POST /api/v1/products (staff)
func (pc *ProductController) Create(c *gin.Context) {
	var input services.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondValidation(c, err)
		return
	}

	product, err := pc.catalog.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, product)
}

// Update handles PUT /api/v1/products/:id (staff)
func (pc *ProductController) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var patch services.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondValidation(c, err)
		return
	}

	product, err := pc.catalog.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, product)
}

// Delete handles DELETE /api/v1/products/:id (staff)
func (pc *ProductController) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := pc.catalog.Delete(c.Request.Context(), id); err != nil {
		respondError(c, pc.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Product deleted",
	})
}

// UploadImage handles POST /api/v1/products/:id/image (staff, multipart field "image")
func (pc *ProductController) UploadImage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "MISSING_FILE", "An image file is required in the 'image' field")
		return
	}

	product, err := pc.catalog.AttachImage(c.Request.Context(), id, fileHeader)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, product)
}

// LowStock handles GET /api/v1/products/low-stock (staff)
func (pc *ProductController) LowStock(c *gin.Context) {
	products, err := pc.inventory.ListLowStock(c.Request.Context())
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, products)
}
