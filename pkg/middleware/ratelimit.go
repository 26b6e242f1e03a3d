package middleware

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/common"
)

// RateLimitStrategy selects how callers are identified for rate limiting.
type RateLimitStrategy int

const (
	// StrategyIP keys counters by client IP. Requires the ClientIP step
	// earlier in the chain; RemoteAddr is the fallback.
	StrategyIP RateLimitStrategy = iota
	// StrategyUser keys counters by authenticated user.
	StrategyUser
	// StrategyCustom keys counters with a caller-supplied extractor.
	StrategyCustom
)

// RateLimitConfig configures a rate limit step.
type RateLimitConfig struct {
	// BucketName namespaces the limit. Steps sharing a bucket name and
	// window share counters.
	BucketName string

	// Limit is the maximum number of calls allowed within Window.
	Limit int

	// Window is the reset period.
	Window time.Duration

	// Strategy determines how callers are identified.
	Strategy RateLimitStrategy

	// UserKey converts the authenticated user to a counter key. Required
	// for StrategyUser.
	UserKey func(user any) string

	// KeyExtractor supplies the counter key for StrategyCustom.
	KeyExtractor func(ctx *common.Context) (string, error)

	// Message overrides the RATE_LIMITED error message.
	Message string
}

// RateLimit creates a step that enforces the configured limit against
// the given limiter. X-RateLimit-* headers are written whether or not the
// call is allowed; denied calls additionally carry Retry-After.
func RateLimit(config RateLimitConfig, limiter common.RateLimiter, logger *zap.Logger) Step {
	if limiter == nil {
		panic("middleware: RateLimit requires a non-nil RateLimiter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return StepFunc(func(ctx *common.Context, next Next) Result {
		key, err := rateLimitKey(ctx, &config)
		if err != nil {
			logger.Error("rate limit key extraction failed",
				zap.Error(err),
				zap.String("bucket", config.BucketName),
			)
			return Fail(common.NewError(common.CodeInternal, "internal server error"))
		}

		bucketKey := config.BucketName + ":" + key
		allowed, remaining, reset := limiter.Allow(bucketKey, config.Limit, config.Window)

		h := ctx.ResponseHeaders
		h.Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if !allowed {
			retryAfter := int64(reset.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			logger.Warn("rate limit exceeded",
				zap.String("bucket", config.BucketName),
				zap.String("key", key),
				zap.Int("limit", config.Limit),
				zap.Duration("window", config.Window),
			)

			message := config.Message
			if message == "" {
				message = "rate limit exceeded"
			}
			return Fail(common.NewError(common.CodeRateLimited, message))
		}
		return next(ctx)
	})
}

// rateLimitKey resolves the counter key for a call according to the
// configured strategy. Unresolvable user keys fall back to the client IP
// rather than failing the call.
func rateLimitKey(ctx *common.Context, config *RateLimitConfig) (string, error) {
	switch config.Strategy {
	case StrategyUser:
		if user, ok := ctx.User(); ok && config.UserKey != nil {
			if key := config.UserKey(user); key != "" {
				return key, nil
			}
		}
		return ipKey(ctx), nil
	case StrategyCustom:
		if config.KeyExtractor == nil {
			return "", common.NewError(common.CodeInternal, "rate limit key extractor not configured")
		}
		return config.KeyExtractor(ctx)
	default:
		return ipKey(ctx), nil
	}
}

func ipKey(ctx *common.Context) string {
	if ip, ok := ctx.ClientIP(); ok && ip != "" {
		return ip
	}
	if ctx.Request != nil {
		return stripPort(ctx.Request.RemoteAddr)
	}
	return "unknown"
}
