package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeNotFound, "assessment not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		inner := New(CodeTimeout, "ledger submit timed out")
		err := fmt.Errorf("record assessment: %w", inner)
		assert.True(t, HasCode(err, CodeTimeout))
	})

	t.Run("matches outermost code when wrapped twice", func(t *testing.T) {
		inner := New(CodeUnavailable, "connection refused")
		outer := Wrap(inner, CodeInternal, "recording failed")
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("untyped error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, CodeUnavailable, "ledger unreachable")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger unreachable: dial tcp: connection refused", err.Error())
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeValidation, GetCode(New(CodeValidation, "bad amount")))
	assert.Equal(t, CodeInternal, GetCode(errors.New("untyped")))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInsufficientData, http.StatusUnprocessableEntity},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
		{CodeInvariantViolation, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.code))
		})
	}
}
