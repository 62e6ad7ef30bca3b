package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("insert: %w", Wrap(cause, CodeUnavailable, "store unavailable"))
		assert.True(t, HasCode(err, CodeUnavailable))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("finds inner code under an outer code", func(t *testing.T) {
		inner := Wrap(cause, CodeUnavailable, "store unavailable")
		outer := Wrap(inner, CodeInternal, "dispatch failed")
		assert.True(t, HasCode(outer, CodeUnavailable))
		assert.Equal(t, CodeInternal, CodeOf(outer))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(cause, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(cause))
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, ToHTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, ToHTTPStatus(CodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(Code("unknown")))
}
