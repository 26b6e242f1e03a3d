package middleware

import (
	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/common"
)

// Logging creates a step that logs the start of each call at Debug level
// with its trace ID and client IP. Completion logging (status, duration)
// happens at the dispatch boundary, which is the only place that sees the
// call's outcome.
func Logging(logger *zap.Logger) Step {
	if logger == nil {
		logger = zap.NewNop()
	}
	return StepFunc(func(ctx *common.Context, next Next) Result {
		fields := make([]zap.Field, 0, 3)
		if ctx.Request != nil {
			fields = append(fields, zap.String("path", ctx.Request.URL.Path))
		}
		if ip, ok := ctx.ClientIP(); ok {
			fields = append(fields, zap.String("client_ip", ip))
		}
		if traceID := ctx.TraceID(); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		logger.Debug("call started", fields...)
		return next(ctx)
	})
}
