// Package appcontext carries per-request identity through context values.
// Workspace ids are always threaded explicitly through call parameters; the
// context holds only caller identity and request metadata.
package appcontext

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	methodKey    contextKey = "method"
	routeKey     contextKey = "route"
	remoteIPKey  contextKey = "remote_ip"
)

func value(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// SetRequestID stores the request id for log correlation
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id, or "" outside a request
func GetRequestID(ctx context.Context) string {
	return value(ctx, requestIDKey)
}

// SetUserID stores the authenticated caller's id
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the caller's id, or "" for unauthenticated requests
func GetUserID(ctx context.Context) string {
	return value(ctx, userIDKey)
}

// SetMethod stores the HTTP method
func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey, method)
}

// GetMethod returns the HTTP method of the current request
func GetMethod(ctx context.Context) string {
	return value(ctx, methodKey)
}

// SetRoute stores the request path
func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

// GetRoute returns the request path
func GetRoute(ctx context.Context) string {
	return value(ctx, routeKey)
}

// SetRemoteIP stores the caller's network address
func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, remoteIPKey, remoteIP)
}

// GetRemoteIP returns the caller's network address
func GetRemoteIP(ctx context.Context) string {
	return value(ctx, remoteIPKey)
}
