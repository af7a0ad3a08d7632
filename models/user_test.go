package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserTableName(t *testing.T) {
	user := User{}
	assert.Equal(t, "users", user.TableName(), "Table name should be 'users'")
}

func TestUserDefaultValues(t *testing.T) {
	user := User{
		Email: "new@example.com",
	}

	assert.Equal(t, "new@example.com", user.Email, "Email should be set")
	assert.Equal(t, "", user.Role, "Role should be empty string by default in Go struct")
	assert.False(t, user.IsStaff())
}

func TestUserRoleValues(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		wantStaff bool
	}{
		{"customer role", RoleCustomer, false},
		{"staff role", RoleStaff, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := User{
				Email: "test@example.com",
				Role:  tt.role,
			}
			assert.Equal(t, tt.wantStaff, user.IsStaff())
		})
	}
}

func TestAllModelsCoversEveryTable(t *testing.T) {
	assert.Len(t, AllModels(), 7)
}
