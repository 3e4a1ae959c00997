package middleware

import (
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

const (
	// DefaultSessionCookie is the cookie read for the session id.
	DefaultSessionCookie = "goguard_session"
	// DefaultIntegrityHeader carries the integrity token of mutating requests.
	DefaultIntegrityHeader = "X-CSRF-Token"
	// IntegrityFormField is read when the header is absent.
	IntegrityFormField = "csrf_token"
)

// Option customizes a guard middleware.
type Option func(*options)

type options struct {
	sessionCookie   string
	integrityHeader string
	trustedHops     int
	fields          func(*http.Request) map[string]string
}

// WithSessionCookie overrides the session cookie name.
func WithSessionCookie(name string) Option {
	return func(o *options) { o.sessionCookie = name }
}

// WithIntegrityHeader overrides the integrity token header name.
func WithIntegrityHeader(name string) Option {
	return func(o *options) { o.integrityHeader = name }
}

// WithTrustProxy trusts a single proxy in front of the service. It is
// WithTrustedHops(1) when trust is true.
func WithTrustProxy(trust bool) Option {
	return func(o *options) {
		o.trustedHops = 0
		if trust {
			o.trustedHops = 1
		}
	}
}

// WithTrustedHops takes the client IP from X-Forwarded-For, as the entry
// appended by the outermost of hops trusted proxies, counting from the
// right. Entries further left are client-supplied and ignored. X-Real-IP
// is used when X-Forwarded-For is absent.
func WithTrustedHops(hops int) Option {
	return func(o *options) { o.trustedHops = max(hops, 0) }
}

// WithFields replaces the default field extractor, which reads query
// parameters and url-encoded form values.
func WithFields(fn func(*http.Request) map[string]string) Option {
	return func(o *options) { o.fields = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		sessionCookie:   DefaultSessionCookie,
		integrityHeader: DefaultIntegrityHeader,
		fields:          formFields,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SecurityContextFromContext returns the SecurityContext of the allowed
// request.
func SecurityContextFromContext(r *http.Request) (*goGuard.SecurityContext, bool) {
	return goGuard.SecurityContextFrom(r.Context())
}

// Guard runs op for every request. Allowed requests reach next with the
// SecurityContext attached to the request context; denied requests get a
// JSON error body.
//
//	Docs: docs/middleware.md
func Guard(engine *goGuard.Engine, op goGuard.Operation, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteDenial(w, &goGuard.Denial{Reason: goGuard.ReasonUnavailable, Message: "security unavailable"})
				return
			}

			res := engine.Guard(r.Context(), op, o.requestContext(r), o.actorContext(r))
			if !res.Allowed {
				WriteDenial(w, res.Denial())
				return
			}

			ctx := goGuard.WithSecurityContext(r.Context(), res.Context)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (o options) requestContext(r *http.Request) goGuard.RequestContext {
	return goGuard.RequestContext{
		IP:             clientIP(r, o.trustedHops),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Method:         r.Method,
		Endpoint:       r.URL.Path,
		Fields:         o.fields(r),
	}
}

func (o options) actorContext(r *http.Request) goGuard.ActorContext {
	actor := goGuard.ActorContext{
		IntegrityToken: r.Header.Get(o.integrityHeader),
	}
	if actor.IntegrityToken == "" && isForm(r) {
		actor.IntegrityToken = r.PostFormValue(IntegrityFormField)
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		actor.AccessToken = token
	}
	if c, err := r.Cookie(o.sessionCookie); err == nil {
		actor.SessionID = c.Value
	}
	return actor
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		if ip := forwardedFor(r.Header.Values("X-Forwarded-For"), trustedHops); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedFor returns the hops-th entry from the right. A shorter chain
// was written entirely by trusted proxies, so its first entry is the client.
func forwardedFor(values []string, hops int) string {
	var chain []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				chain = append(chain, ip)
			}
		}
	}
	if len(chain) == 0 {
		return ""
	}
	if len(chain) < hops {
		return chain[0]
	}
	return chain[len(chain)-hops]
}

func formFields(r *http.Request) map[string]string {
	out := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	if isForm(r) {
		if err := r.ParseForm(); err == nil {
			for k, v := range r.PostForm {
				if len(v) > 0 && k != IntegrityFormField {
					out[k] = v[0]
				}
			}
		}
	}
	return out
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}
