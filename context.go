package goGuard

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type securityContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Guard uses it when
// RequestContext.IP is empty.
//
//	Docs: docs/rate_limiting.md
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the User-Agent string to ctx. Guard uses it when
// RequestContext.UserAgent is empty.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithSecurityContext attaches an allowed operation's SecurityContext to
// ctx. Run does this before calling the business function.
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFrom returns the SecurityContext attached to ctx.
func SecurityContextFrom(ctx context.Context) (*SecurityContext, bool) {
	if ctx == nil {
		return nil, false
	}
	sc, ok := ctx.Value(securityContextKey{}).(*SecurityContext)
	return sc, ok && sc != nil
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
