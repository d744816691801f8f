// Package requestcontext carries request-scoped values (request id, request
// time, operator, caller device) from middleware to services without importing
// net/http.
//
// Services treat Now(ctx) as "the moment of the request": the service day of an
// order and the as-of date of an insurance check are both derived from it, so a
// request that crosses midnight still lands on one day.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	keyOperator key = iota
	keyDevice
	keyClientIP
	keyUserAgent
	keyRequestID
	keyRequestTime
)

func str(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// Operator is the subject of the bearer token, "" when unauthenticated.
func Operator(ctx context.Context) string { return str(ctx, keyOperator) }

func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, keyOperator, operator)
}

// Device labels the caller, e.g. "kiosk:lobby-2" or "Chrome/Windows".
func Device(ctx context.Context) string { return str(ctx, keyDevice) }

func ClientIP(ctx context.Context) string { return str(ctx, keyClientIP) }

func UserAgent(ctx context.Context) string { return str(ctx, keyUserAgent) }

// WithClientMetadata stores what the metadata middleware extracts from headers.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, clientIP)
	ctx = context.WithValue(ctx, keyUserAgent, userAgent)
	return context.WithValue(ctx, keyDevice, device)
}

func RequestID(ctx context.Context) string { return str(ctx, keyRequestID) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// Now returns the pinned request time, or time.Now() outside a request
// (relay worker, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(keyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Tests use it to fix "today".
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyRequestTime, t)
}
