package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/middleware"
	"github.com/kendall-kelly/snackline-api/services"
	"go.uber.org/zap"
)

// UserController serves the caller's own profile
type UserController struct {
	users  *services.UserService
	logger *zap.Logger
}

// NewUserController creates the profile handlers
func NewUserController(users *services.UserService, logger *zap.Logger) *UserController {
	return &UserController{users: users, logger: logger}
}

// Create handles POST /api/v1/users - creates the profile from Auth0's /userinfo.
// It runs before a profile exists, so it reads the token directly.
func (uc *UserController) Create(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token")
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found")
		return
	}

	user, err := uc.users.CreateFromIdentity(c.Request.Context(), auth0ID, accessToken, middleware.TokenRole(c))
	if err != nil {
		respondError(c, uc.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, user)
}

// GetMe handles GET /api/v1/users/me
func (uc *UserController) GetMe(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not resolve the current user")
		return
	}

	respondOK(c, http.StatusOK, user)
}

// UpdateMe handles PUT /api/v1/users/me
func (uc *UserController) UpdateMe(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not resolve the current user")
		return
	}

	var input services.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondValidation(c, err)
		return
	}

	updated, err := uc.users.UpdateProfile(c.Request.Context(), user.Auth0ID, input)
	if err != nil {
		respondError(c, uc.logger, err)
		return
	}

	respondOK(c, http.StatusOK, updated)
}
