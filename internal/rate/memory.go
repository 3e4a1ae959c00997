package rate

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

type bucketKey struct {
	client string
	scope  string
}

type bucket struct {
	hits         []time.Time
	blockedUntil time.Time
	window       time.Duration
}

type shard struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// MemoryConfig configures an in-process limiter.
type MemoryConfig struct {
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Memory is an in-process sliding-window limiter. Buckets are grouped into
// shards; the read-evict-append sequence of one bucket runs under its
// shard's mutex.
type Memory struct {
	now    func() time.Time
	shards [shardCount]shard
}

// NewMemory creates an empty in-process limiter.
func NewMemory(cfg MemoryConfig) *Memory {
	m := &Memory{now: cfg.Clock}
	if m.now == nil {
		m.now = time.Now
	}
	for i := range m.shards {
		m.shards[i].buckets = make(map[bucketKey]*bucket)
	}
	return m
}

// Allow implements [Limiter]. It never blocks on I/O.
func (m *Memory) Allow(_ context.Context, clientID, scope string, p Policy) (Decision, error) {
	if clientID == "" {
		return Decision{}, ErrEmptyClient
	}
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	if !p.Enabled() {
		return unlimited(), nil
	}

	key := bucketKey{client: clientID, scope: scope}
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.window = p.Window

	if now.Before(b.blockedUntil) {
		return Decision{RetryAfter: b.blockedUntil.Sub(now)}, nil
	}

	b.evict(now.Add(-p.Window))

	if len(b.hits) >= p.MaxRequests {
		if p.Block > 0 {
			b.blockedUntil = now.Add(p.Block)
			if !p.RetainHistory {
				b.hits = b.hits[:0]
			}
			return Decision{RetryAfter: p.Block}, nil
		}
		retry := b.hits[0].Add(p.Window).Sub(now)
		if retry <= 0 {
			retry = time.Nanosecond
		}
		return Decision{RetryAfter: retry}, nil
	}

	b.hits = append(b.hits, now)
	return Decision{Allowed: true, Remaining: p.MaxRequests - len(b.hits)}, nil
}

// Sweep drops buckets that are neither blocked nor hold hits inside their
// last-used window. It returns the number of buckets removed.
func (m *Memory) Sweep(now time.Time) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if now.Before(b.blockedUntil) {
				continue
			}
			b.evict(now.Add(-b.window))
			if len(b.hits) == 0 {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live buckets.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

func (m *Memory) shardFor(key bucketKey) *shard {
	d := xxhash.New()
	_, _ = d.WriteString(key.scope)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(key.client)
	return &m.shards[d.Sum64()%shardCount]
}

// evict removes hits strictly older than cutoff. Hits are kept in
// ascending order.
func (b *bucket) evict(cutoff time.Time) {
	i := 0
	for i < len(b.hits) && b.hits[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(b.hits, b.hits[i:])
	b.hits = b.hits[:n]
}
