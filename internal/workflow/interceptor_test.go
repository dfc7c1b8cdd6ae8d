package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/tenancy/internal/model"
)

func TestTypeActivityError_Transient(t *testing.T) {
	err := typeActivityError("HandleTenantCreated", errors.New("connection refused"))

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "HandleTenantCreated", appErr.Type())
	assert.False(t, appErr.NonRetryable())
}

func TestTypeActivityError_NotFoundIsPermanent(t *testing.T) {
	err := typeActivityError("HandleTenantCreated", fmt.Errorf("mark migration in progress: %w", model.ErrNotFound))

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTypeActivityError_ValidationIsPermanent(t *testing.T) {
	err := typeActivityError("HandleTenantCreated", model.NewValidationError("status", "is required"))

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestTypeActivityError_KeepsExistingType(t *testing.T) {
	orig := temporal.NewNonRetryableApplicationError("bad event", "InvalidEvent", nil)
	err := typeActivityError("HandleTenantCreated", orig)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "InvalidEvent", appErr.Type())
}
