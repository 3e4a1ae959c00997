package goGuard

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	testMasterKey = []byte("test-master-key-0123456789abcdef-0123")
	testJWTSecret = []byte("test-jwt-secret-0123456789abcdef-0123")
	testEpoch     = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Write(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func (s *captureSink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	sink   *captureSink
	clock  *fakeClock
	mr     *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Enabled = true
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = cloneBytes(testJWTSecret)
	cfg.Integrity.Enabled = true
	cfg.Secrets.MasterKey = cloneBytes(testMasterKey)
	cfg.Audit.Chain = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Roles = map[string][]string{
		"standard_user": {"accounts.read"},
		"teller":        {"accounts.read", "transfers.create"},
	}
	cfg.Modules = map[string]string{"treasury": "treasury_dashboard"}
	return cfg
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		sink:  &captureSink{},
		clock: &fakeClock{t: testEpoch},
		mr:    mr,
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAuditSink(env.sink).
		WithClock(env.clock.Now).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) openSession(t *testing.T, userID, role string) IssuedSession {
	t.Helper()
	issued, err := env.engine.OpenSession(context.Background(), SessionRequest{
		UserID:   userID,
		Username: userID + "-name",
		Role:     role,
		Request:  RequestContext{IP: "10.1.1.1", UserAgent: "test-agent"},
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	env.sink.Reset()
	return issued
}

func requireDenial(t *testing.T, res GuardResult, reason DenyReason) *Denial {
	t.Helper()
	if res.Allowed {
		t.Fatalf("expected denial %s, got allowed", reason)
	}
	d := res.Denial()
	if d == nil {
		t.Fatalf("expected *Denial, got %v", res.Err)
	}
	if d.Reason != reason {
		t.Fatalf("expected reason %s, got %s (%s)", reason, d.Reason, d.Message)
	}
	return d
}

func requireSingleEvent(t *testing.T, sink *captureSink) audit.Event {
	t.Helper()
	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one audit event, got %d", len(events))
	}
	return events[0]
}
