package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestServiceErrorUnwrapsToKind(t *testing.T) {
	err := newError(ErrInsufficientStock, CodeInsufficientStock, "product %d has only %d left", 7, 2)

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "product 7 has only 2 left", err.Error())

	wrapped := fmt.Errorf("create order: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.Equal(t, CodeInsufficientStock, ErrorCode(wrapped))
	assert.Equal(t, "", ErrorCode(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"translated", gorm.ErrDuplicatedKey, true},
		{"wrapped translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres message", errors.New("ERROR: duplicate key value violates unique constraint"), true},
		{"sqlite message", errors.New("UNIQUE constraint failed: feedback.order_id"), true},
		{"other", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestCallerIsStaff(t *testing.T) {
	assert.True(t, Caller{UserID: 1, Role: "staff"}.IsStaff())
	assert.False(t, Caller{UserID: 1, Role: "customer"}.IsStaff())
}
