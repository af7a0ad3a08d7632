package services

import (
	"context"
	"errors"
	"strings"

	"github.com/kendall-kelly/snackline-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpdateUserInput is a profile edit; empty fields are left alone
type UpdateUserInput struct {
	Name  string `json:"name" binding:"omitempty,min=2,max=100"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty,max=30"`
}

// UserService manages local profiles of Auth0 identities
type UserService struct {
	db       *gorm.DB
	identity IdentityProvider
	logger   *zap.Logger
}

// NewUserService creates the user service
func NewUserService(db *gorm.DB, identity IdentityProvider, logger *zap.Logger) *UserService {
	return &UserService{db: db, identity: identity, logger: logger}
}

// CreateFromIdentity creates the local profile of auth0ID from Auth0's
// /userinfo. role comes from the token; anything but staff is a customer.
func (s *UserService) CreateFromIdentity(ctx context.Context, auth0ID, accessToken, role string) (*models.User, error) {
	userInfo, err := s.identity.GetUserInfo(ctx, accessToken)
	if err != nil {
		s.logger.Warn("auth0 userinfo lookup failed", zap.String("auth0_id", auth0ID), zap.Error(err))
		return nil, newError(ErrUpstream, CodeAuth0Error, "Failed to fetch user information from Auth0")
	}

	if userInfo.Email == "" {
		return nil, newError(ErrInvalidInput, "MISSING_EMAIL", "Email not provided by Auth0")
	}
	if userInfo.Name == "" {
		return nil, newError(ErrInvalidInput, "MISSING_NAME", "Name not provided by Auth0")
	}

	if role != models.RoleStaff {
		role = models.RoleCustomer
	}
	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Role:    role,
	}
	if userInfo.PhoneNumber != "" {
		user.Phone = &userInfo.PhoneNumber
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrConflict, CodeUserExists, "A user with this Auth0 ID or email already exists")
		}
		return nil, err
	}

	s.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	return &user, nil
}

// FindByAuth0ID returns the profile of an Auth0 subject
func (s *UserService) FindByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, CodeUserNotFound, "User profile not found. Please create a profile first.")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile edits the caller's own profile
func (s *UserService) UpdateProfile(ctx context.Context, auth0ID string, input UpdateUserInput) (*models.User, error) {
	user, err := s.FindByAuth0ID(ctx, auth0ID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name := strings.TrimSpace(input.Name); name != "" {
		updates["name"] = name
	}
	if input.Email != "" {
		updates["email"] = input.Email
	}
	if input.Phone != "" {
		updates["phone"] = input.Phone
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrConflict, CodeEmailExists, "A user with this email already exists")
		}
		return nil, err
	}

	return s.FindByAuth0ID(ctx, auth0ID)
}
