package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to open")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations for the session phase")
		budget      = flag.Int("budget", 50, "rate limit budget for the contention phase")
		attempts    = flag.Int("attempts", 5000, "requests sent in the contention phase")
		backend     = flag.String("backend", "redis", "rate limit backend: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *budget <= 0 || *attempts <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops, budget and attempts must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client, *backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ids := make([]string, *sessions)
	fmt.Printf("opening %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range ids {
		issued, err := engine.OpenSession(ctx, goGuard.SessionRequest{
			UserID: fmt.Sprintf("u-%d", i),
			Role:   "teller",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "open session failed: %v\n", err)
			os.Exit(1)
		}
		ids[i] = issued.SessionID
	}
	fmt.Printf("opened in %s\n", time.Since(startSeed).Round(time.Millisecond))

	sessionStats := runSessionPhase(ctx, engine, ids, *ops, *concurrency)
	admitted, contention := runContentionPhase(ctx, engine, *budget, *attempts, *concurrency)

	fmt.Println("---- results ----")
	printStats("session-guard", sessionStats)
	printStats("rate-contention", contention)
	fmt.Printf("rate-contention: admitted=%d budget=%d\n", admitted, *budget)
	if admitted != int64(*budget) {
		fmt.Fprintln(os.Stderr, "rate limit ceiling violated")
		os.Exit(1)
	}
}

func buildEngine(client redis.UniversalClient, backend string) (*goGuard.Engine, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := goGuard.DefaultConfig()
	cfg.Session.Enabled = true
	cfg.RateLimit.Backend = backend
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Roles = map[string][]string{"teller": {"accounts.read"}}
	cfg.Timeouts.Session = time.Second
	cfg.Timeouts.RateLimit = time.Second

	return goGuard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		WithAuditSink(audit.NoOpSink{}).
		Build()
}

func runSessionPhase(ctx context.Context, engine *goGuard.Engine, ids []string, ops, concurrency int) phaseStats {
	op := goGuard.Operation{Name: "view_balance", RequiredPermission: "accounts.read"}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				sid := ids[r.Intn(len(ids))]
				t0 := time.Now()
				res := engine.Guard(ctx, op, goGuard.RequestContext{}, goGuard.ActorContext{SessionID: sid})
				d := time.Since(t0)
				if !res.Allowed {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runContentionPhase sends attempts requests from one client against a
// budget that no window rollover can refill during the run.
func runContentionPhase(ctx context.Context, engine *goGuard.Engine, budget, attempts, concurrency int) (int64, phaseStats) {
	op := goGuard.Operation{
		Name:      "contended",
		RateLimit: goGuard.RateLimitPolicy{MaxRequests: budget, Window: time.Hour},
	}
	req := goGuard.RequestContext{IP: "198.51.100.200"}

	var (
		wg        sync.WaitGroup
		cursor    int64
		admitted  int64
		failures  int64
		latencies = make([]time.Duration, 0, attempts)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= attempts {
					return
				}
				t0 := time.Now()
				res := engine.Guard(ctx, op, req, goGuard.ActorContext{})
				d := time.Since(t0)
				switch {
				case res.Allowed:
					atomic.AddInt64(&admitted, 1)
				case res.Denial() != nil && res.Denial().Reason == goGuard.ReasonRateLimited:
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return admitted, computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
