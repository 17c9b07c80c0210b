package middleware

import (
	"context"
	"strings"

	pkglog "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Auth returns a middleware that requires a Bearer API key on mutating
// (non-GET) requests when apiKey is configured. With an empty apiKey the
// middleware is a pass-through, which suits the default localhost-only
// deployment.
func Auth(apiKey string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if apiKey == "" {
				return handler(ctx, req)
			}

			var (
				method    string
				path      string
				presented string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path

					authHeader := httpReq.Header.Get("Authorization")
					if authHeader != "" {
						presented = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					}
					if presented == "" {
						presented = httpReq.Header.Get("X-API-Key")
					}
				}
			}

			// Read-only surfaces stay open for dashboard polling.
			if method == "" || method == "GET" {
				return handler(ctx, req)
			}

			if presented != apiKey {
				logger.Security("rejected unauthenticated request",
					"method", method,
					"path", path,
					"key", pkglog.SanitizeField("api_key", presented),
				)
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid or missing API key")
			}

			return handler(ctx, req)
		}
	}
}
