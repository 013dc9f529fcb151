package authcore

import (
	"context"

	"github.com/flowforward/authcore/token"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type clientIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records
// it on refresh token records and in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is stored
// alongside the token family as device context.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithClientID attaches a caller-defined device or client identifier to
// ctx, stored as device context on the token family.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	clientID, _ := ctx.Value(clientIDContextKey{}).(string)
	return clientID
}

func deviceFromContext(ctx context.Context) token.DeviceContext {
	return token.DeviceContext{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		ClientID:  clientIDFromContext(ctx),
	}
}
