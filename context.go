package credgate

import "context"

// requestKey selects one piece of request metadata stored in a context.
type requestKey uint8

const (
	clientIPKey requestKey = iota + 1
	userAgentKey
)

// WithClientIP attaches the caller's IP address to ctx. The Engine copies it
// into audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithUserAgent attaches the caller's User-Agent to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIPFromContext returns the IP attached with WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string { return requestValue(ctx, clientIPKey) }

// UserAgentFromContext returns the User-Agent attached with WithUserAgent, or "".
func UserAgentFromContext(ctx context.Context) string { return requestValue(ctx, userAgentKey) }

func requestValue(ctx context.Context, key requestKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
