package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/validation"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *goGuard.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := goGuard.DefaultConfig()
	cfg.Session.Enabled = true
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("middleware-test-secret-0123456789abcdef")
	cfg.Integrity.Enabled = true
	cfg.Secrets.MasterKey = []byte("middleware-master-key-0123456789abcdef")
	cfg.Roles = map[string][]string{"teller": {"transfers.create"}}
	cfg.Operations = map[string]goGuard.Operation{
		"login": {RateLimit: goGuard.RateLimitPolicy{MaxRequests: 1, Window: time.Minute, Block: 30 * time.Second}},
	}

	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithAuditSink(audit.NoOpSink{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

type denialResponse struct {
	Reason        string `json:"reason"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	Required      string `json:"required_permission"`
	Field         string `json:"field"`
	Rule          string `json:"rule"`
	RetryAfter    int    `json:"retry_after"`
}

func decodeDenial(t *testing.T, rec *httptest.ResponseRecorder) denialResponse {
	t.Helper()
	var body denialResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	sc, ok := SecurityContextFromContext(r)
	if !ok {
		http.Error(w, "missing security context", http.StatusInternalServerError)
		return
	}
	_, _ = io.WriteString(w, sc.Actor.Role)
})

func TestGuardAllowsWithSessionAndIntegrity(t *testing.T) {
	engine := newEngine(t)
	issued, err := engine.OpenSession(context.Background(), goGuard.SessionRequest{UserID: "u-1", Role: "teller"})
	require.NoError(t, err)

	op := goGuard.Operation{Name: "transfer", RequiredPermission: "transfers.create", Mutating: true}
	h := Guard(engine, op)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/transfers", nil)
	req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
	req.Header.Set(DefaultIntegrityHeader, issued.IntegrityToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "teller", rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/transfers", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: issued.SessionID})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(goGuard.ReasonCSRFInvalid), decodeDenial(t, rec).Reason)
}

func TestGuardDenialStatusCodes(t *testing.T) {
	engine := newEngine(t)
	issued, err := engine.OpenSession(context.Background(), goGuard.SessionRequest{UserID: "u-2", Role: "teller"})
	require.NoError(t, err)

	gated := Guard(engine, goGuard.Operation{Name: "gated", RequiredPermission: "transfers.create"})(okHandler)
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gated", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeDenial(t, rec)
	assert.Equal(t, string(goGuard.ReasonAuthenticationRequired), body.Reason)
	assert.NotEmpty(t, body.CorrelationID)

	admin := Guard(engine, goGuard.Operation{Name: "admin", RequiredPermission: "admin.panel"})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin.panel", decodeDenial(t, rec).Required)

	form := url.Values{"amount": {"-3"}}
	pay := Guard(engine, goGuard.Operation{Name: "pay", Validation: map[string]validation.Rule{"amount": {Kind: validation.KindAmount}}})(okHandler)
	req = httptest.NewRequest(http.MethodGet, "/pay?"+form.Encode(), nil)
	rec = httptest.NewRecorder()
	pay.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body = decodeDenial(t, rec)
	assert.Equal(t, "amount", body.Field)
	assert.Equal(t, "amount", body.Rule)
}

func TestNamedRateLimitSetsRetryAfter(t *testing.T) {
	engine := newEngine(t)

	_, err := Named(engine, "missing")
	require.ErrorIs(t, err, goGuard.ErrUnknownOperation)

	mw, err := Named(engine, "login", WithTrustProxy(true))
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Handle("/login", okHandler).Methods(http.MethodPost)
	r.Use(mux.MiddlewareFunc(mw))

	send := func(spoofed, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", spoofed+", "+ip)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("1.1.1.1", "203.0.113.9").Code)

	// a rotated client-supplied entry does not reset the limit
	rec := send("2.2.2.2", "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, 30, decodeDenial(t, rec).RetryAfter)

	assert.Equal(t, http.StatusOK, send("2.2.2.2", "203.0.113.10").Code, "limit is per client ip")
}

func TestGuardNilEngineFailsClosed(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil, goGuard.Operation{Name: "x"})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.2")
	req.Header.Set("X-Real-IP", "198.51.100.3")

	assert.Equal(t, "192.0.2.1", clientIP(req, 0))
	assert.Equal(t, "198.51.100.2", clientIP(req, 1))

	req.Header.Set("X-Forwarded-For", "6.6.6.6, 198.51.100.7")
	req.Header.Add("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, "10.0.0.1", clientIP(req, 1))
	assert.Equal(t, "198.51.100.7", clientIP(req, 2))
	assert.Equal(t, "6.6.6.6", clientIP(req, 5), "short chain was written by trusted proxies")

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.3", clientIP(req, 1))
}

func TestTrustOptions(t *testing.T) {
	assert.Equal(t, 1, buildOptions([]Option{WithTrustProxy(true)}).trustedHops)
	assert.Equal(t, 0, buildOptions([]Option{WithTrustedHops(3), WithTrustProxy(false)}).trustedHops)
	assert.Equal(t, 2, buildOptions([]Option{WithTrustedHops(2)}).trustedHops)
	assert.Equal(t, 0, buildOptions([]Option{WithTrustedHops(-1)}).trustedHops)
}

func TestStatusCode(t *testing.T) {
	cases := map[goGuard.DenyReason]int{
		goGuard.ReasonAuthenticationRequired:    http.StatusUnauthorized,
		goGuard.ReasonSessionExpiredOrAnomalous: http.StatusUnauthorized,
		goGuard.ReasonRateLimited:               http.StatusTooManyRequests,
		goGuard.ReasonCSRFInvalid:               http.StatusForbidden,
		goGuard.ReasonInsufficientPermission:    http.StatusForbidden,
		goGuard.ReasonValidationFailed:          http.StatusUnprocessableEntity,
		goGuard.ReasonUnavailable:               http.StatusServiceUnavailable,
	}
	for reason, want := range cases {
		assert.Equal(t, want, StatusCode(reason), reason)
	}
}
