package middleware

import (
	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/common"
)

// Auth creates a step that requires an authenticated caller. The injected
// getUser resolves the user from the call context; a nil user denies the
// call with UNAUTHORIZED, and a resolver error denies it with
// INTERNAL_ERROR after logging. On success the user rides on the context.
func Auth(getUser common.GetUserFunc, logger *zap.Logger) Step {
	if logger == nil {
		logger = zap.NewNop()
	}
	return StepFunc(func(ctx *common.Context, next Next) Result {
		user, err := getUser(ctx)
		if err != nil {
			logger.Error("auth resolver failed",
				zap.Error(err),
				zap.String("trace_id", ctx.TraceID()),
			)
			return Fail(common.NewError(common.CodeInternal, "internal server error"))
		}
		if user == nil {
			logger.Warn("unauthenticated call denied",
				zap.String("trace_id", ctx.TraceID()),
			)
			return Fail(common.NewError(common.CodeUnauthorized, "unauthorized"))
		}
		return next(ctx.WithUser(user))
	})
}

// AuthOptional creates a step that resolves the user when possible but
// lets unauthenticated calls proceed without one.
func AuthOptional(getUser common.GetUserFunc, logger *zap.Logger) Step {
	if logger == nil {
		logger = zap.NewNop()
	}
	return StepFunc(func(ctx *common.Context, next Next) Result {
		user, err := getUser(ctx)
		if err != nil {
			logger.Warn("auth resolver failed, proceeding unauthenticated",
				zap.Error(err),
				zap.String("trace_id", ctx.TraceID()),
			)
			return next(ctx)
		}
		if user == nil {
			return next(ctx)
		}
		return next(ctx.WithUser(user))
	})
}
