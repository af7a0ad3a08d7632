package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/middleware"
	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/services"
	"go.uber.org/zap"
)

// Dependencies are the services behind the HTTP surface
type Dependencies struct {
	Catalog   *services.CatalogService
	Inventory *services.InventoryService
	Orders    *services.OrderService
	Feedback  *services.FeedbackService
	Users     *services.UserService
	Logger    *zap.Logger
}

// RegisterRoutes mounts the catalog, order, feedback and user routes on v1.
// auth validates the bearer token; every route but the public catalog reads
// requires it.
func RegisterRoutes(v1 *gin.RouterGroup, auth gin.HandlerFunc, deps Dependencies) {
	products := NewProductController(deps.Catalog, deps.Inventory, deps.Logger)
	orders := NewOrderController(deps.Orders, deps.Logger)
	feedback := NewFeedbackController(deps.Feedback, deps.Logger)
	users := NewUserController(deps.Users, deps.Logger)

	// Public menu
	v1.GET("/products", products.List)
	v1.GET("/products/:id", products.Get)
	v1.POST("/products/availability", products.Availability)

	// Profile creation runs before a local profile exists
	v1.POST("/users", auth, users.Create)

	authed := v1.Group("", auth, ResolveUser(deps.Users, deps.Logger))
	{
		authed.GET("/users/me", users.GetMe)
		authed.PUT("/users/me", users.UpdateMe)

		authed.POST("/orders", orders.Create)
		authed.GET("/orders/mine", orders.ListMine)
		authed.GET("/orders/:id", orders.Get)
		authed.GET("/orders/:id/history", orders.History)
		authed.PATCH("/orders/:id/cancel", orders.Cancel)

		authed.POST("/feedback", feedback.Create)
		authed.GET("/feedback/mine", feedback.ListMine)
		authed.GET("/feedback/order/:orderId", feedback.GetByOrder)
		authed.GET("/feedback/:id", feedback.Get)
	}

	staff := authed.Group("", middleware.RequireRole(models.RoleStaff))
	{
		staff.POST("/products", products.Create)
		staff.PUT("/products/:id", products.Update)
		staff.DELETE("/products/:id", products.Delete)
		staff.POST("/products/:id/image", products.UploadImage)
		staff.GET("/products/low-stock", products.LowStock)

		staff.GET("/orders", orders.List)
		staff.PATCH("/orders/:id/status", orders.UpdateStatus)
		staff.DELETE("/orders/:id", orders.Delete)

		staff.GET("/feedback", feedback.List)
		staff.GET("/feedback/statistics", feedback.Statistics)
		staff.DELETE("/feedback/:id", feedback.Delete)
	}
}
