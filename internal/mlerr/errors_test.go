package mlerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorfWrapsKind(t *testing.T) {
	err := Errorf(ErrInvalidConfig, "max_depth must be >= 1, got %d", 0)

	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.False(t, errors.Is(err, ErrInsufficientData))
	assert.Equal(t, "invalid config: max_depth must be >= 1, got 0", err.Error())
}
