package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorIsMatchesByCode(t *testing.T) {
	err := ErrNotFound.WithInternal(errors.New("no rows"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "Registration not found: no rows", err.Error())
}

func TestFromErrorKeepsAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Validation("name required"))
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Equal(t, "name required", appErr.Message)
}

func TestFromErrorDefaultsToUpstream(t *testing.T) {
	appErr := FromError(errors.New("connection refused"))
	assert.Equal(t, CodeUpstream, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.Nil(t, FromError(nil))
}

func TestUpstreamDeadlineIsUnavailable(t *testing.T) {
	appErr := Upstream(fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout")
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
	assert.True(t, errors.Is(appErr, context.DeadlineExceeded))
}
