package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/middleware"
	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/services"
	"go.uber.org/zap"
)

// UserFinder resolves the local profile of an Auth0 subject
type UserFinder interface {
	FindByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error)
}

// ResolveUser loads the caller's profile after token validation. Callers
// without a profile get USER_NOT_FOUND and must POST /users first.
func ResolveUser(users UserFinder, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID, err := middleware.GetUserID(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
			return
		}

		user, err := users.FindByAuth0ID(c.Request.Context(), auth0ID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		middleware.SetCurrentUser(c, user)
		c.Next()
	}
}

// callerFrom builds the service caller from the resolved profile
func callerFrom(c *gin.Context) (services.Caller, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not resolve the current user")
		return services.Caller{}, false
	}
	return services.Caller{UserID: user.ID, Role: user.Role}, true
}
