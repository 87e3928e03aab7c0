// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; handlers and services read them without
// importing net/http.
//
//	caller := requestcontext.Caller(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithCaller(ctx, account)
package requestcontext

import (
	"context"
	"time"

	"remit/pkg/domain"
)

type (
	callerKey      struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyClient      = clientKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller returns the authenticated account, or the zero account when unset.
func Caller(ctx context.Context) domain.AccountID {
	if a, ok := ctx.Value(ContextKeyCaller).(domain.AccountID); ok {
		return a
	}
	return domain.ZeroAccount
}

// WithCaller injects the authenticated account.
func WithCaller(ctx context.Context, account domain.AccountID) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, account)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// Client retrieves the parsed client description ("Chrome 120 / macOS").
func Client(ctx context.Context) string {
	if c, ok := ctx.Value(ContextKeyClient).(string); ok {
		return c
	}
	return ""
}

// WithClientMetadata injects client IP, raw User-Agent and parsed client.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, client string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	ctx = context.WithValue(ctx, ContextKeyClient, client)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside HTTP (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
