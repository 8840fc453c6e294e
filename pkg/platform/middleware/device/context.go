// Package device carries the client device label on the request context so
// handlers do not parse headers themselves.
package device

import (
	"context"
	"net/http"
)

type contextKeyLabel struct{}

// WithLabel stores the device label in the context.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, contextKeyLabel{}, label)
}

// GetLabel returns the device label, or "" when the middleware did not run.
func GetLabel(ctx context.Context) string {
	label, _ := ctx.Value(contextKeyLabel{}).(string)
	return label
}

// Middleware labels each request from its User-Agent header using parse.
func Middleware(parse func(userAgent string) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLabel(r.Context(), parse(r.UserAgent()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
