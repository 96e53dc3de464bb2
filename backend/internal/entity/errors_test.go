package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCode(t *testing.T) {
	assert.Equal(t, Code(fmt.Errorf("version 7: %w", ErrNotFound)), "NOT_FOUND")
	assert.Equal(t, Code(fmt.Errorf("x: %w", ErrPermissionDenied)), "PERMISSION_DENIED")
	assert.Equal(t, Code(ErrStoreUnavailable), "STORE_UNAVAILABLE")
	assert.Equal(t, Code(errors.New("boom")), "INTERNAL")
}
