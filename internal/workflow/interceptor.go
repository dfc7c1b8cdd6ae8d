package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/tenancy/internal/model"
)

// ErrorTypingInterceptor is a Temporal worker interceptor that names failed
// activity errors after the activity, so the Temporal UI shows
// "HandleTenantCreated" instead of a generic "ApplicationError". Errors that
// retrying cannot fix (unknown tenant, rejected input) are made
// non-retryable.
type ErrorTypingInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (e *ErrorTypingInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &errorTypingActivityInterceptor{next: next}
}

type errorTypingActivityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (e *errorTypingActivityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return e.next.Init(outbound)
}

func (e *errorTypingActivityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (any, error) {
	result, err := e.next.ExecuteActivity(ctx, in)
	if err != nil {
		return result, typeActivityError(activity.GetInfo(ctx).ActivityType.Name, err)
	}
	return result, nil
}

func typeActivityError(activityName string, err error) error {
	// Don't double-wrap errors that already have a type.
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}
	if permanent(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), activityName, err)
	}
	return temporal.NewApplicationError(err.Error(), activityName, err)
}

func permanent(err error) bool {
	return errors.Is(err, model.ErrNotFound) || model.IsValidation(err)
}
