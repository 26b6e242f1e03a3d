package middleware

import (
	"net/http"
	"strings"

	"github.com/ereojs/ereo/pkg/common"
)

// IPSourceType selects where the client IP is read from.
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the request's RemoteAddr field.
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the X-Forwarded-For header.
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header.
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses the header named in IPConfig.CustomHeader.
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// IPConfig configures client IP extraction.
type IPConfig struct {
	// Source specifies where to extract the client IP from.
	Source IPSourceType

	// CustomHeader names the header to use with IPSourceCustomHeader.
	CustomHeader string

	// TrustProxy controls whether proxy headers are honored. When false,
	// RemoteAddr is used regardless of Source.
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration: trust
// X-Forwarded-For, fall back to RemoteAddr.
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

// ExtractClientIP resolves the client IP for a request according to the
// configuration. The first entry of a multi-hop X-Forwarded-For chain
// wins; RemoteAddr is the fallback for every source.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	if config == nil {
		config = DefaultIPConfig()
	}
	if !config.TrustProxy {
		return stripPort(r.RemoteAddr)
	}

	switch config.Source {
	case IPSourceXForwardedFor:
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx >= 0 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
	case IPSourceXRealIP:
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return strings.TrimSpace(ip)
		}
	case IPSourceCustomHeader:
		if config.CustomHeader != "" {
			if ip := r.Header.Get(config.CustomHeader); ip != "" {
				return strings.TrimSpace(ip)
			}
		}
	}
	return stripPort(r.RemoteAddr)
}

// stripPort removes the :port suffix RemoteAddr carries.
func stripPort(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx >= 0 && !strings.Contains(addr[idx:], "]") {
		return addr[:idx]
	}
	return addr
}

// ClientIP creates a step that extracts the client IP from the call's
// request and stores it on the context. Rate limiting with StrategyIP
// depends on this step running first.
func ClientIP(config *IPConfig) Step {
	return StepFunc(func(ctx *common.Context, next Next) Result {
		if ctx.Request == nil {
			return next(ctx)
		}
		return next(ctx.WithClientIP(ExtractClientIP(ctx.Request, config)))
	})
}
