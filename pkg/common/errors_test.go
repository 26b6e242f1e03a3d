package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeParseError, http.StatusBadRequest},
		{CodeBadRequest, http.StatusBadRequest},
		{CodeMethodMismatch, http.StatusBadRequest},
		{CodeValidationError, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeCSRF, http.StatusForbidden},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{CodeDuplicateID, http.StatusInternalServerError},
		{CodeSubscriptionError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewError(tt.code, "boom")
			assert.Equal(t, tt.want, err.HTTPStatus())
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(CodeNotFound, "no procedure at %q", "a.b")
	assert.Equal(t, `NOT_FOUND: no procedure at "a.b"`, err.Error())
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := NewError(CodeBadRequest, "bad")
	detailed := base.WithDetails(map[string]string{"field": "name"})

	assert.Nil(t, base.Details)
	assert.NotNil(t, detailed.Details)
	assert.Equal(t, base.Code, detailed.Code)
}

func TestAsError(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		original := NewError(CodeForbidden, "nope")
		extracted, ok := AsError(original)
		require.True(t, ok)
		assert.Same(t, original, extracted)
	})

	t.Run("wrapped", func(t *testing.T) {
		original := NewError(CodeForbidden, "nope")
		wrapped := fmt.Errorf("handler: %w", original)
		extracted, ok := AsError(wrapped)
		require.True(t, ok)
		assert.Same(t, original, extracted)
	})

	t.Run("plain error", func(t *testing.T) {
		_, ok := AsError(errors.New("boom"))
		assert.False(t, ok)
	})
}

func TestSanitizeValidation(t *testing.T) {
	t.Run("issuer keeps path message code only", func(t *testing.T) {
		err := ValidationIssues(
			Issue{Path: []string{"user", "email"}, Message: "invalid email", Code: "format"},
			Issue{Message: "too short"},
		)
		sanitized := SanitizeValidation(err)

		assert.Equal(t, CodeValidationError, sanitized.Code)
		issues, ok := sanitized.Details.([]Issue)
		require.True(t, ok)
		require.Len(t, issues, 2)
		assert.Equal(t, []string{"user", "email"}, issues[0].Path)
		assert.Equal(t, "invalid email", issues[0].Message)
		assert.Equal(t, "format", issues[0].Code)
	})

	t.Run("plain error keeps message only", func(t *testing.T) {
		sanitized := SanitizeValidation(errors.New("schema exploded"))
		assert.Equal(t, CodeValidationError, sanitized.Code)
		assert.Equal(t, "schema exploded", sanitized.Message)
		assert.Nil(t, sanitized.Details)
	})
}
