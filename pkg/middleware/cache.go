package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/ereojs/ereo/pkg/common"
)

// CacheOptions configures the Cache-Control header written for a call.
type CacheOptions struct {
	// MaxAge is the freshness lifetime. Zero with NoStore false emits
	// "no-cache".
	MaxAge time.Duration

	// Public marks the response cacheable by shared caches; otherwise
	// "private" is emitted.
	Public bool

	// StaleWhileRevalidate adds the stale-while-revalidate directive.
	StaleWhileRevalidate time.Duration

	// NoStore disables caching entirely and overrides the other fields.
	NoStore bool
}

// directive renders the Cache-Control header value.
func (o *CacheOptions) directive() string {
	if o.NoStore {
		return "no-store"
	}
	if o.MaxAge <= 0 {
		return "no-cache"
	}
	parts := make([]string, 0, 3)
	if o.Public {
		parts = append(parts, "public")
	} else {
		parts = append(parts, "private")
	}
	parts = append(parts, fmt.Sprintf("max-age=%d", int(o.MaxAge.Seconds())))
	if o.StaleWhileRevalidate > 0 {
		parts = append(parts, fmt.Sprintf("stale-while-revalidate=%d", int(o.StaleWhileRevalidate.Seconds())))
	}
	return strings.Join(parts, ", ")
}

// CacheControl creates a step that sets the Cache-Control response
// header. In compiled chains it runs after auth and immediately before
// the handler, so denied or failed calls never advertise cacheability.
func CacheControl(options CacheOptions) Step {
	value := options.directive()
	return StepFunc(func(ctx *common.Context, next Next) Result {
		ctx.ResponseHeaders.Set("Cache-Control", value)
		return next(ctx)
	})
}
