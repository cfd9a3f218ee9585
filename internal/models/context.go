package models

import "context"

type requestContextKey struct{}

// RequestContext carries caller details (client IP, user agent) from the HTTP
// boundary down to components that record them, without widening their signatures.
type RequestContext struct {
	ClientIP  string
	UserAgent string
	RequestId string
}

// WithRequestContext attaches request details to a context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// GetRequestContext retrieves request details from context, or nil if absent.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}
